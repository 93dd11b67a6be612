package store

import (
	"database/sql"
	"fmt"

	"gutcheck/internal/logging"
)

// migration adds a column that older databases lack.
type migration struct {
	Table  string
	Column string
	Def    string
}

// pendingMigrations are applied in order to tables created by earlier
// releases.
var pendingMigrations = []migration{
	// Escalation metadata, added with the confidence gate
	{"log_entries", "confidence", "REAL NOT NULL DEFAULT 0"},
	{"log_entries", "source", "TEXT NOT NULL DEFAULT 'rules'"},
	// Soft undo
	{"log_entries", "undone_at", "INTEGER"},
}

// runMigrations brings existing tables up to the current column set.
func runMigrations(db *sql.DB) error {
	timer := logging.StartTimer(logging.CategoryStore, "runMigrations")
	defer timer.Stop()

	applied := 0
	for _, m := range pendingMigrations {
		exists, err := columnExists(db, m.Table, m.Column)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		logging.StoreDebug("Executing migration: %s", query)
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("migration %s.%s failed: %w", m.Table, m.Column, err)
		}
		applied++
	}
	if applied > 0 {
		logging.Store("Schema migrations applied: %d", applied)
	}
	return nil
}

// columnExists checks a column using PRAGMA table_info.
func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("table_info(%s): %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notnull   int
			dfltValue any
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return false, fmt.Errorf("table_info(%s): %w", table, err)
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
