package repository

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

type SQLiteDB struct {
	db *sql.DB
}

var _ Store = (*SQLiteDB)(nil)

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	// The driver serializes access per connection; a single connection
	// avoids SQLITE_BUSY on concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteDB{
		db: db,
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("error while migrating to database: %w", err)
	}

	return s, nil
}

func (s *SQLiteDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'responder',
			category TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'available',
			active_incidents INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS incidents (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			category TEXT NOT NULL,
			priority TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			location TEXT NOT NULL,
			description TEXT NOT NULL,
			reporter_id INTEGER NOT NULL,
			responder_id INTEGER,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS incident_details (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			incident_id INTEGER NOT NULL,
			question_key TEXT NOT NULL,
			response TEXT NOT NULL,
			FOREIGN KEY (incident_id) REFERENCES incidents(id)
		);

		CREATE TABLE IF NOT EXISTS resources (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			resource_type TEXT UNIQUE NOT NULL,
			available_count INTEGER NOT NULL,
			total_count INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS deployed_resources (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			incident_id INTEGER NOT NULL,
			resource_type TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			deployed_at DATETIME NOT NULL,
			returned_at DATETIME,
			FOREIGN KEY (incident_id) REFERENCES incidents(id)
		);

		CREATE TABLE IF NOT EXISTS responder_actions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			incident_id INTEGER NOT NULL,
			responder_id INTEGER,
			category TEXT NOT NULL,
			action TEXT NOT NULL,
			detail TEXT,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (incident_id) REFERENCES incidents(id)
		);

		CREATE TABLE IF NOT EXISTS activity_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			actor TEXT NOT NULL,
			activity TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_incidents_status ON incidents(status);
		CREATE INDEX IF NOT EXISTS idx_incidents_category ON incidents(category);
		CREATE INDEX IF NOT EXISTS idx_details_incident ON incident_details(incident_id);
		CREATE INDEX IF NOT EXISTS idx_deployed_incident ON deployed_resources(incident_id);
		CREATE INDEX IF NOT EXISTS idx_actions_incident ON responder_actions(incident_id);
  	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}
