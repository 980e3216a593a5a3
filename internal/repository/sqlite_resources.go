package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/rafikh/go-emergency-dispatch/internal/models"
)

func (s *SQLiteDB) SeedResources(ctx context.Context, inventory map[string]int) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM resources`).Scan(&count); err != nil {
		return fmt.Errorf("error counting resources: %w", err)
	}
	if count > 0 {
		return nil
	}
	for resource, total := range inventory {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO resources (resource_type, available_count, total_count) VALUES (?, ?, ?)`,
			resource, total, total,
		); err != nil {
			return fmt.Errorf("error seeding resource %q: %w", resource, err)
		}
	}
	return nil
}

func (s *SQLiteDB) ListResources(ctx context.Context) ([]models.ResourceType, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT resource_type, available_count, total_count FROM resources ORDER BY resource_type`)
	if err != nil {
		return nil, fmt.Errorf("error listing resources: %w", err)
	}
	defer rows.Close()

	var resources []models.ResourceType
	for rows.Next() {
		var r models.ResourceType
		if err := rows.Scan(&r.Name, &r.Available, &r.Total); err != nil {
			return nil, fmt.Errorf("error scanning resource row: %w", err)
		}
		resources = append(resources, r)
	}
	return resources, rows.Err()
}

func (s *SQLiteDB) SetAvailable(ctx context.Context, resource string, available int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE resources SET available_count = ? WHERE resource_type = ?`,
		available, resource,
	)
	if err != nil {
		return fmt.Errorf("error updating resource %q: %w", resource, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading rows affected: %w", err)
	}
	if n == 0 {
		return ErrResourceNotFound
	}
	return nil
}

func (s *SQLiteDB) AddDeployment(ctx context.Context, d *models.Deployment) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO deployed_resources (incident_id, resource_type, quantity, deployed_at, returned_at)
		VALUES (?, ?, ?, ?, NULL)`,
		d.IncidentID, d.Resource, d.Quantity, d.DeployedAt,
	)
	if err != nil {
		return fmt.Errorf("error inserting deployment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("error reading deployment id: %w", err)
	}
	d.ID = id
	return nil
}

func (s *SQLiteDB) MarkReturned(ctx context.Context, incidentID int64, resource string, quantity int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, quantity FROM deployed_resources
		WHERE incident_id = ? AND resource_type = ? AND returned_at IS NULL
		ORDER BY deployed_at, id`,
		incidentID, resource,
	)
	if err != nil {
		return fmt.Errorf("error fetching outstanding deployments: %w", err)
	}

	type record struct {
		id  int64
		qty int
	}
	var records []record
	for rows.Next() {
		var rec record
		if err := rows.Scan(&rec.id, &rec.qty); err != nil {
			rows.Close()
			return fmt.Errorf("error scanning deployment row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("error iterating deployments: %w", err)
	}
	rows.Close()

	now := time.Now().UTC()
	remaining := quantity
	for _, rec := range records {
		if remaining == 0 {
			break
		}
		if rec.qty <= remaining {
			if _, err := tx.ExecContext(ctx, `
				UPDATE deployed_resources SET returned_at = ? WHERE id = ?`, now, rec.id); err != nil {
				return fmt.Errorf("error closing deployment %d: %w", rec.id, err)
			}
			remaining -= rec.qty
			continue
		}
		// Partial return: shrink the outstanding record and log the
		// returned portion as a closed one.
		if _, err := tx.ExecContext(ctx, `
			UPDATE deployed_resources SET quantity = quantity - ? WHERE id = ?`, remaining, rec.id); err != nil {
			return fmt.Errorf("error shrinking deployment %d: %w", rec.id, err)
		}
		var incID int64
		var deployedAt time.Time
		if err := tx.QueryRowContext(ctx, `
			SELECT incident_id, deployed_at FROM deployed_resources WHERE id = ?`, rec.id).
			Scan(&incID, &deployedAt); err != nil {
			return fmt.Errorf("error reading deployment %d: %w", rec.id, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO deployed_resources (incident_id, resource_type, quantity, deployed_at, returned_at)
			VALUES (?, ?, ?, ?, ?)`,
			incID, resource, remaining, deployedAt, now,
		); err != nil {
			return fmt.Errorf("error recording partial return: %w", err)
		}
		remaining = 0
	}
	if remaining > 0 {
		return fmt.Errorf("outstanding quantity for incident %d resource %q is less than %d", incidentID, resource, quantity)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing return: %w", err)
	}
	return nil
}

func (s *SQLiteDB) OutstandingDeployments(ctx context.Context) ([]models.Deployment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, incident_id, resource_type, quantity, deployed_at
		FROM deployed_resources WHERE returned_at IS NULL
		ORDER BY deployed_at, id`)
	if err != nil {
		return nil, fmt.Errorf("error listing outstanding deployments: %w", err)
	}
	defer rows.Close()

	var deployments []models.Deployment
	for rows.Next() {
		var d models.Deployment
		if err := rows.Scan(&d.ID, &d.IncidentID, &d.Resource, &d.Quantity, &d.DeployedAt); err != nil {
			return nil, fmt.Errorf("error scanning deployment row: %w", err)
		}
		deployments = append(deployments, d)
	}
	return deployments, rows.Err()
}
