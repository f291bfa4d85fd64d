package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(up_20261001000003, down_20261001000003)
}

func up_20261001000003(ctx context.Context, db *bun.DB) error {
	t := typesFor(db)

	err := execAll(ctx, db, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS api_secrets (
	id %[1]s NOT NULL,
	user_id %[1]s NOT NULL,
	name VARCHAR(64) NOT NULL,
	payload TEXT NOT NULL,
	created_at %[2]s DEFAULT CURRENT_TIMESTAMP,
	updated_at %[2]s DEFAULT CURRENT_TIMESTAMP,
	CONSTRAINT api_secrets_pkey PRIMARY KEY (id),
	CONSTRAINT fk_api_secrets_user FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE,
	CONSTRAINT uq_api_secrets_user_name UNIQUE (user_id, name)
)`, t.uuid, t.timestamp))
	if err != nil {
		return fmt.Errorf("failed to create api_secrets table: %w", err)
	}
	return nil
}

func down_20261001000003(ctx context.Context, db *bun.DB) error {
	if err := execAll(ctx, db, `DROP TABLE IF EXISTS api_secrets`); err != nil {
		return fmt.Errorf("failed to drop api_secrets table: %w", err)
	}
	return nil
}
