package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rafikh/go-emergency-dispatch/internal/models"
)

func (s *SQLiteDB) CreateIncident(ctx context.Context, inc *models.Incident, facts models.Facts) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO incidents (type, category, priority, status, location, description, reporter_id, responder_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inc.Type, string(inc.Category), inc.Priority.String(), string(inc.Status),
		inc.Location, inc.Description, inc.ReporterID, inc.ResponderID,
		inc.CreatedAt, inc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("error inserting incident: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("error reading incident id: %w", err)
	}

	for key, response := range facts {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO incident_details (incident_id, question_key, response) VALUES (?, ?, ?)`,
			id, key, response,
		); err != nil {
			return fmt.Errorf("error inserting incident detail %q: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing incident: %w", err)
	}
	inc.ID = id
	return nil
}

func (s *SQLiteDB) GetIncident(ctx context.Context, id int64) (*models.Incident, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, type, category, priority, status, location, description, reporter_id, responder_id, created_at, updated_at
		FROM incidents WHERE id = ?`, id)

	inc, err := scanIncident(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrIncidentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching incident %d: %w", id, err)
	}
	return inc, nil
}

func (s *SQLiteDB) UpdateIncident(ctx context.Context, inc *models.Incident) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE incidents
		SET priority = ?, status = ?, responder_id = ?, updated_at = ?
		WHERE id = ?`,
		inc.Priority.String(), string(inc.Status), inc.ResponderID, inc.UpdatedAt, inc.ID,
	)
	if err != nil {
		return fmt.Errorf("error updating incident %d: %w", inc.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading rows affected: %w", err)
	}
	if n == 0 {
		return ErrIncidentNotFound
	}
	return nil
}

func (s *SQLiteDB) ListIncidents(ctx context.Context, f IncidentFilter) ([]models.Incident, error) {
	query := `
		SELECT id, type, category, priority, status, location, description, reporter_id, responder_id, created_at, updated_at
		FROM incidents`
	var conds []string
	var args []any

	if f.Status != nil {
		conds = append(conds, "status = ?")
		args = append(args, string(*f.Status))
	}
	if f.Category != nil {
		conds = append(conds, "category = ?")
		args = append(args, string(*f.Category))
	}
	if f.Priority != nil {
		conds = append(conds, "priority = ?")
		args = append(args, f.Priority.String())
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing incidents: %w", err)
	}
	defer rows.Close()

	var incidents []models.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning incident row: %w", err)
		}
		incidents = append(incidents, *inc)
	}
	return incidents, rows.Err()
}

func (s *SQLiteDB) IncidentFacts(ctx context.Context, id int64) (models.Facts, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT question_key, response FROM incident_details WHERE incident_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("error fetching incident details: %w", err)
	}
	defer rows.Close()

	facts := models.Facts{}
	for rows.Next() {
		var key, response string
		if err := rows.Scan(&key, &response); err != nil {
			return nil, fmt.Errorf("error scanning incident detail: %w", err)
		}
		facts[key] = response
	}
	return facts, rows.Err()
}

func (s *SQLiteDB) CountByCategory(ctx context.Context) (map[models.Category]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT category, COUNT(*) FROM incidents GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("error counting incidents by category: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Category]int)
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, fmt.Errorf("error scanning category count: %w", err)
		}
		counts[models.Category(cat)] = n
	}
	return counts, rows.Err()
}

func (s *SQLiteDB) CountByStatus(ctx context.Context) (map[models.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM incidents GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("error counting incidents by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("error scanning status count: %w", err)
		}
		counts[models.Status(status)] = n
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIncident(row rowScanner) (*models.Incident, error) {
	var inc models.Incident
	var category, priority, status string
	var responderID sql.NullInt64
	if err := row.Scan(
		&inc.ID, &inc.Type, &category, &priority, &status,
		&inc.Location, &inc.Description, &inc.ReporterID, &responderID,
		&inc.CreatedAt, &inc.UpdatedAt,
	); err != nil {
		return nil, err
	}
	inc.Category = models.Category(category)
	inc.Priority = models.ParsePriority(priority)
	inc.Status = models.Status(status)
	if responderID.Valid {
		inc.ResponderID = &responderID.Int64
	}
	return &inc, nil
}
