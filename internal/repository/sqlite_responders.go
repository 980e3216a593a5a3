package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rafikh/go-emergency-dispatch/internal/models"
)

func (s *SQLiteDB) CreateResponder(ctx context.Context, r *models.Responder) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (name, role, category, status, active_incidents, created_at)
		VALUES (?, 'responder', ?, ?, ?, ?)`,
		r.Name, string(r.Category), string(r.Status), r.ActiveIncidents, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("error inserting responder: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("error reading responder id: %w", err)
	}
	r.ID = id
	return nil
}

func (s *SQLiteDB) GetResponder(ctx context.Context, id int64) (*models.Responder, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, category, status, active_incidents, created_at
		FROM users WHERE id = ? AND role = 'responder'`, id)

	r, err := scanResponder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrResponderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching responder %d: %w", id, err)
	}
	return r, nil
}

func (s *SQLiteDB) UpdateResponder(ctx context.Context, r *models.Responder) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET status = ?, active_incidents = ? WHERE id = ? AND role = 'responder'`,
		string(r.Status), r.ActiveIncidents, r.ID,
	)
	if err != nil {
		return fmt.Errorf("error updating responder %d: %w", r.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading rows affected: %w", err)
	}
	if n == 0 {
		return ErrResponderNotFound
	}
	return nil
}

func (s *SQLiteDB) ListResponders(ctx context.Context, category *models.Category) ([]models.Responder, error) {
	query := `
		SELECT id, name, category, status, active_incidents, created_at
		FROM users WHERE role = 'responder'`
	var args []any
	if category != nil {
		query += " AND category = ?"
		args = append(args, string(*category))
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing responders: %w", err)
	}
	defer rows.Close()

	var responders []models.Responder
	for rows.Next() {
		r, err := scanResponder(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning responder row: %w", err)
		}
		responders = append(responders, *r)
	}
	return responders, rows.Err()
}

func scanResponder(row rowScanner) (*models.Responder, error) {
	var r models.Responder
	var category, status string
	if err := row.Scan(&r.ID, &r.Name, &category, &status, &r.ActiveIncidents, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.Category = models.Category(category)
	r.Status = models.ResponderStatus(status)
	return &r, nil
}
