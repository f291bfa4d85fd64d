package identity

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	Validate() error
	MustValidate()
	Users() Users
	LinkedAccounts() LinkedAccounts
	APISecrets() APISecrets
}

// BunStore implements IdentityStore and SecretStore on top of bun. A
// store returned to a RunInTx callback is bound to that transaction.
type BunStore struct {
	db             *bun.DB
	idb            bun.IDB
	inTx           bool
	users          Users
	linkedAccounts LinkedAccounts
	apiSecrets     APISecrets
}

var (
	_ IdentityStore     = (*BunStore)(nil)
	_ SecretStore       = (*BunStore)(nil)
	_ RepositoryManager = (*BunStore)(nil)
)

func NewBunStore(db *bun.DB) *BunStore {
	return &BunStore{
		db:             db,
		idb:            db,
		users:          NewUsersRepository(db),
		linkedAccounts: NewLinkedAccountsRepository(),
		apiSecrets:     NewAPISecretsRepository(),
	}
}

func (s *BunStore) Validate() error {
	if s.db == nil {
		return errors.New("bun store requires a database")
	}

	if s.users == nil {
		return errors.New("repository users should be initialized")
	}

	if s.linkedAccounts == nil {
		return errors.New("repository linkedAccounts should be initialized")
	}

	if s.apiSecrets == nil {
		return errors.New("repository apiSecrets should be initialized")
	}

	return nil
}

func (s *BunStore) MustValidate() {
	if err := s.Validate(); err != nil {
		log.Panic(err)
	}
}

func (s *BunStore) Users() Users { return s.users }

func (s *BunStore) LinkedAccounts() LinkedAccounts { return s.linkedAccounts }

func (s *BunStore) APISecrets() APISecrets { return s.apiSecrets }

// RunInTx runs fn inside a database transaction. Nested calls join the
// running transaction.
func (s *BunStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx IdentityStore) error) error {
	if s.inTx {
		return fn(ctx, s)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		bound := *s
		bound.idb = tx
		bound.inTx = true
		return fn(ctx, &bound)
	})
}

func (s *BunStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	exists, err := s.idb.NewSelect().
		Model((*User)(nil)).
		Where("?TableAlias.username = ?", strings.ToLower(strings.TrimSpace(username))).
		Exists(ctx)
	if err != nil {
		return false, mapStoreError("username exists", err, ErrIdentityNotFound)
	}
	return exists, nil
}

func (s *BunStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return nil, ErrIdentityNotFound
	}
	user, err := s.users.FindByColumnTx(ctx, s.idb, "username", username)
	return user, mapStoreError("find by username", err, ErrIdentityNotFound)
}

func (s *BunStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, ErrIdentityNotFound
	}
	user, err := s.users.FindByColumnTx(ctx, s.idb, "email", email)
	return user, mapStoreError("find by email", err, ErrIdentityNotFound)
}

func (s *BunStore) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	if id == uuid.Nil {
		return nil, ErrIdentityNotFound
	}
	user, err := s.users.FindByColumnTx(ctx, s.idb, "id", id.String())
	return user, mapStoreError("find by id", err, ErrIdentityNotFound)
}

// FindByIdentifier resolves an id, email or username.
func (s *BunStore) FindByIdentifier(ctx context.Context, identifier string) (*User, error) {
	user, err := s.users.GetByIdentifierTx(ctx, s.idb, identifier)
	return user, mapStoreError("find by identifier", err, ErrIdentityNotFound)
}

func (s *BunStore) Create(ctx context.Context, user *User) (*User, error) {
	record := *user
	created, err := s.users.CreateTx(ctx, s.idb, &record)
	if err != nil {
		return nil, mapStoreError("create user", err, ErrIdentityNotFound)
	}
	return created, nil
}

func (s *BunStore) Update(ctx context.Context, user *User) (*User, error) {
	record := *user
	updated, err := s.users.SaveTx(ctx, s.idb, &record)
	if err != nil {
		return nil, mapStoreError("update user", err, ErrIdentityNotFound)
	}
	return updated, nil
}

func (s *BunStore) SetPasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	err := s.users.SetPasswordHashTx(ctx, s.idb, id, hash)
	return mapStoreError("set password hash", err, ErrIdentityNotFound)
}

// TrackLogin stamps the last successful login time.
func (s *BunStore) TrackLogin(ctx context.Context, id uuid.UUID) error {
	err := s.users.TrackSuccessfulLoginTx(ctx, s.idb, id)
	return mapStoreError("track login", err, ErrIdentityNotFound)
}

func (s *BunStore) LinkAccount(ctx context.Context, account *LinkedAccount) (*LinkedAccount, error) {
	existing, err := s.linkedAccounts.FindByProviderIDTx(ctx, s.idb, account.Provider, account.ProviderAccountID)
	if err == nil && existing.UserID != account.UserID {
		return nil, errLinkedElsewhere()
	}
	if err != nil && !repository.IsRecordNotFound(err) {
		return nil, mapStoreError("link account", err, ErrLinkedAccountNotFound)
	}

	record := *account
	linked, err := s.linkedAccounts.UpsertTx(ctx, s.idb, &record)
	if err != nil {
		return nil, mapStoreError("link account", err, ErrLinkedAccountNotFound)
	}
	if linked.UserID != account.UserID {
		return nil, errLinkedElsewhere()
	}
	return linked, nil
}

func errLinkedElsewhere() error {
	return &UniqueViolationError{
		Column: "provider_account_id",
		Err:    errors.New("provider account linked to another identity"),
	}
}

func (s *BunStore) UnlinkAccount(ctx context.Context, userID uuid.UUID, provider string) (int, error) {
	n, err := s.linkedAccounts.DeleteByUserAndProviderTx(ctx, s.idb, userID, provider)
	if err != nil {
		return 0, mapStoreError("unlink account", err, ErrLinkedAccountNotFound)
	}
	return n, nil
}

func (s *BunStore) FindLinkedAccount(ctx context.Context, userID uuid.UUID, provider string) (*LinkedAccount, error) {
	account, err := s.linkedAccounts.FindByUserAndProviderTx(ctx, s.idb, userID, provider)
	return account, mapStoreError("find linked account", err, ErrLinkedAccountNotFound)
}

func (s *BunStore) FindLinkedAccountByProvider(ctx context.Context, provider, providerAccountID string) (*LinkedAccount, error) {
	account, err := s.linkedAccounts.FindByProviderIDTx(ctx, s.idb, provider, providerAccountID)
	return account, mapStoreError("find linked account by provider", err, ErrLinkedAccountNotFound)
}

func (s *BunStore) ListLinkedAccounts(ctx context.Context, userID uuid.UUID) ([]*LinkedAccount, error) {
	accounts, err := s.linkedAccounts.FindByUserTx(ctx, s.idb, userID)
	if err != nil {
		return nil, mapStoreError("list linked accounts", err, ErrLinkedAccountNotFound)
	}
	return accounts, nil
}

func (s *BunStore) SaveSecret(ctx context.Context, record *APISecret) (*APISecret, error) {
	cp := *record
	saved, err := s.apiSecrets.UpsertTx(ctx, s.idb, &cp)
	if err != nil {
		return nil, mapStoreError("save secret", err, ErrSecretNotFound)
	}
	return saved, nil
}

func (s *BunStore) FindSecret(ctx context.Context, userID uuid.UUID, name string) (*APISecret, error) {
	record, err := s.apiSecrets.FindTx(ctx, s.idb, userID, name)
	return record, mapStoreError("find secret", err, ErrSecretNotFound)
}

func (s *BunStore) DeleteSecret(ctx context.Context, userID uuid.UUID, name string) (int, error) {
	n, err := s.apiSecrets.DeleteTx(ctx, s.idb, userID, name)
	if err != nil {
		return 0, mapStoreError("delete secret", err, ErrSecretNotFound)
	}
	return n, nil
}

func (s *BunStore) ListSecrets(ctx context.Context, userID uuid.UUID) ([]*APISecret, error) {
	records, err := s.apiSecrets.ListTx(ctx, s.idb, userID)
	if err != nil {
		return nil, mapStoreError("list secrets", err, ErrSecretNotFound)
	}
	return records, nil
}
