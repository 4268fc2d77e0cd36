package sqlite

import (
	"context"
	"fmt"
)

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			label TEXT NOT NULL DEFAULT '',
			msisdn TEXT NOT NULL UNIQUE,
			token TEXT NOT NULL DEFAULT '',
			user_agent TEXT NOT NULL DEFAULT '',
			proxy TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'active',
			checks_performed INTEGER NOT NULL DEFAULT 0,
			cooldown_until_ms INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS identifiers (
			value TEXT PRIMARY KEY,
			enqueued_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS results (
			id TEXT PRIMARY KEY,
			identifier TEXT NOT NULL,
			outcome TEXT NOT NULL,
			profile_json TEXT NOT NULL DEFAULT '',
			account_id TEXT NOT NULL DEFAULT '',
			attempts INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_results_identifier ON results(identifier);`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value_json TEXT NOT NULL DEFAULT '{}',
			updated_at INTEGER NOT NULL
		);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
