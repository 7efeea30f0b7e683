package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// AuthorSchema creates the authors table and the indexes the lookups rely on.
var AuthorSchema = []string{
	`CREATE TABLE IF NOT EXISTS authors (
		id               TEXT PRIMARY KEY,
		name             TEXT NOT NULL DEFAULT '',
		handle           TEXT NOT NULL,
		followers_count  INTEGER NOT NULL DEFAULT 0,
		description      TEXT NOT NULL DEFAULT '',
		favourites_count INTEGER NOT NULL DEFAULT 0,
		statuses_count   INTEGER NOT NULL DEFAULT 0,
		created_at       TIMESTAMPTZ NOT NULL,
		location         TEXT,
		url              TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS authors_handle_idx ON authors (handle)`,
	`CREATE INDEX IF NOT EXISTS authors_followers_idx ON authors (followers_count DESC)`,
}

// ApplyMigrations executes the provided SQL statements in order within the given context.
func ApplyMigrations(ctx context.Context, db *sql.DB, statements ...string) error {
	if db == nil {
		return fmt.Errorf("postgres: db is nil")
	}
	for _, stmt := range statements {
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: migrate: %w", err)
		}
	}
	return nil
}
