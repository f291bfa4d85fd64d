package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(up_20261001000001, down_20261001000001)
}

func up_20261001000001(ctx context.Context, db *bun.DB) error {
	t := typesFor(db)

	err := execAll(ctx, db, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS users (
	id %[1]s NOT NULL,
	username VARCHAR(64) NOT NULL,
	email VARCHAR(320),
	password_hash TEXT,
	first_name VARCHAR(255),
	last_name VARCHAR(255),
	avatar TEXT,
	username_setup_complete BOOLEAN NOT NULL DEFAULT FALSE,
	loggedin_at %[2]s,
	created_at %[2]s DEFAULT CURRENT_TIMESTAMP,
	updated_at %[2]s DEFAULT CURRENT_TIMESTAMP,
	CONSTRAINT users_pkey PRIMARY KEY (id),
	CONSTRAINT uq_users_username UNIQUE (username),
	CONSTRAINT uq_users_email UNIQUE (email)
)`, t.uuid, t.timestamp))
	if err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}
	return nil
}

func down_20261001000001(ctx context.Context, db *bun.DB) error {
	if err := execAll(ctx, db, `DROP TABLE IF EXISTS users`); err != nil {
		return fmt.Errorf("failed to drop users table: %w", err)
	}
	return nil
}
