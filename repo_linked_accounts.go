package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// LinkedAccounts is the bun repository for federated account links.
type LinkedAccounts interface {
	UpsertTx(ctx context.Context, tx bun.IDB, account *LinkedAccount) (*LinkedAccount, error)
	DeleteByUserAndProviderTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, provider string) (int, error)
	FindByUserAndProviderTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, provider string) (*LinkedAccount, error)
	FindByProviderIDTx(ctx context.Context, tx bun.IDB, provider, providerAccountID string) (*LinkedAccount, error)
	FindByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) ([]*LinkedAccount, error)
}

type linkedAccounts struct{}

func NewLinkedAccountsRepository() LinkedAccounts {
	return linkedAccounts{}
}

// UpsertTx inserts the link or refreshes the profile and tokens of the
// existing (provider, provider_account_id) row. The owner of an existing
// row is never changed; callers compare the returned UserID.
func (r linkedAccounts) UpsertTx(ctx context.Context, tx bun.IDB, account *LinkedAccount) (*LinkedAccount, error) {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	now := time.Now()
	account.UpdatedAt = &now
	if account.CreatedAt == nil {
		account.CreatedAt = &now
	}

	_, err := tx.NewInsert().
		Model(account).
		On("CONFLICT (provider, provider_account_id) DO UPDATE").
		Set("email = EXCLUDED.email").
		Set("display_name = EXCLUDED.display_name").
		Set("avatar = EXCLUDED.avatar").
		Set("access_token = EXCLUDED.access_token").
		Set("refresh_token = EXCLUDED.refresh_token").
		Set("token_expires_at = EXCLUDED.token_expires_at").
		Set("updated_at = EXCLUDED.updated_at").
		Where("?TableAlias.user_id = EXCLUDED.user_id").
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	return r.FindByProviderIDTx(ctx, tx, account.Provider, account.ProviderAccountID)
}

func (linkedAccounts) DeleteByUserAndProviderTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, provider string) (int, error) {
	res, err := tx.NewDelete().
		Model((*LinkedAccount)(nil)).
		Where("user_id = ? AND provider = ?", userID.String(), provider).
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

func (linkedAccounts) FindByUserAndProviderTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, provider string) (*LinkedAccount, error) {
	record := &LinkedAccount{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ? AND ?TableAlias.provider = ?", userID.String(), provider).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (linkedAccounts) FindByProviderIDTx(ctx context.Context, tx bun.IDB, provider, providerAccountID string) (*LinkedAccount, error) {
	record := &LinkedAccount{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.provider = ? AND ?TableAlias.provider_account_id = ?", provider, providerAccountID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (linkedAccounts) FindByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) ([]*LinkedAccount, error) {
	records := make([]*LinkedAccount, 0)
	err := tx.NewSelect().
		Model(&records).
		Where("?TableAlias.user_id = ?", userID.String()).
		Order("provider ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}
