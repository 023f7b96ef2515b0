// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite is a ledger stored in a SQLite database.
type SQLite struct {
	db  *sql.DB
	set set
	now func() time.Time
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps writes serialized inside the process.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
		`CREATE TABLE IF NOT EXISTS ledger (
			identity TEXT PRIMARY KEY,
			recorded_at INTEGER NOT NULL
		);`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("initializing %s: %w", path, err)
		}
	}

	return &SQLite{db: db, now: time.Now}, nil
}

// Load reads all identities into memory.
func (s *SQLite) Load(ctx context.Context) error {
	s.set.reset()

	rows, err := s.db.QueryContext(ctx, `SELECT identity FROM ledger ORDER BY rowid;`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			s.set.reset()
			return err
		}
		s.set.add(id)
	}
	if err := rows.Err(); err != nil {
		s.set.reset()
		return err
	}
	return nil
}

// Contains reports whether identity was recorded.
func (s *SQLite) Contains(identity string) bool {
	return s.set.has(identity)
}

// Record stores identity. Recording an identity that is already present does
// nothing.
func (s *SQLite) Record(ctx context.Context, identity string) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO ledger (identity, recorded_at) VALUES (?, ?);
	`, identity, s.now().Unix()); err != nil {
		return err
	}
	s.set.add(identity)
	return nil
}

// Import records all identities in one transaction and returns how many of
// them were not present before.
func (s *SQLite) Import(ctx context.Context, identities []string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO ledger (identity, recorded_at) VALUES (?, ?);
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	now := s.now().Unix()
	var added int
	for _, id := range identities {
		res, err := stmt.ExecContext(ctx, id, now)
		if err != nil {
			return 0, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}

	for _, id := range identities {
		s.set.add(id)
	}
	return added, nil
}

// Entries returns loaded and recorded identities in insertion order.
func (s *SQLite) Entries() []string { return s.set.entries() }

// Close closes the database.
func (s *SQLite) Close() error { return s.db.Close() }
