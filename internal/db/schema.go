package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		photo_url TEXT,
		role TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS classes (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		image TEXT,
		instructor_name TEXT NOT NULL DEFAULT '',
		instructor_email TEXT NOT NULL DEFAULT '',
		available_seats INTEGER NOT NULL DEFAULT 0,
		num_students INTEGER NOT NULL DEFAULT 0,
		price NUMERIC NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS selections (
		id UUID PRIMARY KEY,
		email TEXT NOT NULL,
		class_id UUID NOT NULL,
		class_name TEXT NOT NULL DEFAULT '',
		image TEXT,
		price NUMERIC NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id UUID PRIMARY KEY,
		email TEXT NOT NULL,
		transaction_id TEXT NOT NULL DEFAULT '',
		amount NUMERIC NOT NULL DEFAULT 0,
		class_id UUID,
		class_name TEXT,
		paid_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS selections_email_idx ON selections (email)`,
	`CREATE INDEX IF NOT EXISTS payments_email_idx ON payments (email)`,
}

// EnsureSchema creates the tables the store expects. Statements are
// idempotent so startup can run this unconditionally.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
