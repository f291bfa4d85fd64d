package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// APISecrets is the bun repository for encrypted API secrets.
type APISecrets interface {
	UpsertTx(ctx context.Context, tx bun.IDB, record *APISecret) (*APISecret, error)
	FindTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, name string) (*APISecret, error)
	DeleteTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, name string) (int, error)
	ListTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) ([]*APISecret, error)
}

type apiSecrets struct{}

func NewAPISecretsRepository() APISecrets {
	return apiSecrets{}
}

func (r apiSecrets) UpsertTx(ctx context.Context, tx bun.IDB, record *APISecret) (*APISecret, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	now := time.Now()
	record.CreatedAt, record.UpdatedAt = &now, &now

	_, err := tx.NewInsert().
		Model(record).
		On("CONFLICT (user_id, name) DO UPDATE").
		Set("payload = EXCLUDED.payload").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	return r.FindTx(ctx, tx, record.UserID, record.Name)
}

func (apiSecrets) FindTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, name string) (*APISecret, error) {
	record := &APISecret{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ? AND ?TableAlias.name = ?", userID.String(), name).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (apiSecrets) DeleteTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, name string) (int, error) {
	res, err := tx.NewDelete().
		Model((*APISecret)(nil)).
		Where("user_id = ? AND name = ?", userID.String(), name).
		Exec(ctx)
	if err != nil {
		return 0, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (apiSecrets) ListTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) ([]*APISecret, error) {
	records := make([]*APISecret, 0)
	err := tx.NewSelect().
		Model(&records).
		Where("?TableAlias.user_id = ?", userID.String()).
		Order("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}
