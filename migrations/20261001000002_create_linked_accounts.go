package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(up_20261001000002, down_20261001000002)
}

func up_20261001000002(ctx context.Context, db *bun.DB) error {
	t := typesFor(db)

	err := execAll(ctx, db,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS linked_accounts (
	id %[1]s NOT NULL,
	user_id %[1]s NOT NULL,
	provider VARCHAR(64) NOT NULL,
	provider_account_id VARCHAR(255) NOT NULL,
	email VARCHAR(320),
	display_name VARCHAR(255),
	avatar TEXT,
	access_token TEXT,
	refresh_token TEXT,
	token_expires_at %[2]s,
	created_at %[2]s DEFAULT CURRENT_TIMESTAMP,
	updated_at %[2]s DEFAULT CURRENT_TIMESTAMP,
	CONSTRAINT linked_accounts_pkey PRIMARY KEY (id),
	CONSTRAINT fk_linked_accounts_user FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE,
	CONSTRAINT uq_linked_accounts_provider_account UNIQUE (provider, provider_account_id),
	CONSTRAINT uq_linked_accounts_user_provider UNIQUE (user_id, provider)
)`, t.uuid, t.timestamp),
		`CREATE INDEX IF NOT EXISTS idx_linked_accounts_user_id ON linked_accounts (user_id)`,
	)
	if err != nil {
		return fmt.Errorf("failed to create linked_accounts table: %w", err)
	}
	return nil
}

func down_20261001000002(ctx context.Context, db *bun.DB) error {
	if err := execAll(ctx, db, `DROP TABLE IF EXISTS linked_accounts`); err != nil {
		return fmt.Errorf("failed to drop linked_accounts table: %w", err)
	}
	return nil
}
