package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rafikh/go-emergency-dispatch/internal/models"
)

func (s *SQLiteDB) AppendEntry(ctx context.Context, e *models.DispatchEntry) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO responder_actions (incident_id, responder_id, category, action, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.IncidentID, e.ResponderID, string(e.Category), string(e.Action), e.Detail, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("error appending dispatch entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("error reading dispatch entry id: %w", err)
	}
	e.ID = id
	return nil
}

func (s *SQLiteDB) EntriesForIncident(ctx context.Context, incidentID int64) ([]models.DispatchEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, incident_id, responder_id, category, action, detail, created_at
		FROM responder_actions WHERE incident_id = ? ORDER BY id`, incidentID)
	if err != nil {
		return nil, fmt.Errorf("error fetching dispatch entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *SQLiteDB) RecentEntries(ctx context.Context, n int) ([]models.DispatchEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, incident_id, responder_id, category, action, detail, created_at
		FROM responder_actions ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("error fetching recent dispatch entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *SQLiteDB) AppendActivity(ctx context.Context, a *models.Activity) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_log (actor, activity, created_at) VALUES (?, ?, ?)`,
		a.Actor, a.Activity, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("error appending activity: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("error reading activity id: %w", err)
	}
	a.ID = id
	return nil
}

func scanEntries(rows *sql.Rows) ([]models.DispatchEntry, error) {
	var entries []models.DispatchEntry
	for rows.Next() {
		var e models.DispatchEntry
		var responderID sql.NullInt64
		var category, action string
		var detail sql.NullString
		if err := rows.Scan(&e.ID, &e.IncidentID, &responderID, &category, &action, &detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning dispatch entry: %w", err)
		}
		if responderID.Valid {
			e.ResponderID = &responderID.Int64
		}
		e.Category = models.Category(category)
		e.Action = models.DispatchAction(action)
		e.Detail = detail.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
