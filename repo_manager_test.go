package identity_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"

	"github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/migrations"
	"github.com/goliatone/go-identity/secret"
)

func newBunStore(t *testing.T) *identity.BunStore {
	t.Helper()

	sqldb, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec("PRAGMA foreign_keys = ON;")
	require.NoError(t, err)

	_, err = migrations.Up(context.Background(), db)
	require.NoError(t, err)

	store := identity.NewBunStore(db)
	store.MustValidate()
	return store
}

func createBunUser(t *testing.T, store *identity.BunStore, username, email string) *identity.User {
	t.Helper()
	user := &identity.User{Username: username, UsernameSetupComplete: true}
	user.SetEmail(email)
	created, err := store.Create(context.Background(), user)
	require.NoError(t, err)
	return created
}

func TestBunStoreUsers(t *testing.T) {
	store := newBunStore(t)
	ctx := context.Background()

	jane := createBunUser(t, store, "Jane", "Jane@Example.com")
	assert.NotEqual(t, uuid.Nil, jane.ID)
	assert.Equal(t, "jane", jane.Username)

	exists, err := store.UsernameExists(ctx, "JANE")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.UsernameExists(ctx, "john")
	require.NoError(t, err)
	assert.False(t, exists)

	byName, err := store.FindByUsername(ctx, "jane")
	require.NoError(t, err)
	assert.Equal(t, jane.ID, byName.ID)

	byEmail, err := store.FindByEmail(ctx, " jane@example.COM ")
	require.NoError(t, err)
	assert.Equal(t, jane.ID, byEmail.ID)

	byID, err := store.FindByID(ctx, jane.ID)
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", byID.GetEmail())

	for _, identifier := range []string{jane.ID.String(), "jane@example.com", "jane"} {
		found, err := store.FindByIdentifier(ctx, identifier)
		require.NoError(t, err, identifier)
		assert.Equal(t, jane.ID, found.ID, identifier)
	}

	_, err = store.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, identity.ErrIdentityNotFound)

	_, err = store.FindByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, identity.ErrIdentityNotFound)
}

func TestBunStoreUniqueViolations(t *testing.T) {
	store := newBunStore(t)
	ctx := context.Background()
	createBunUser(t, store, "jane", "jane@example.com")

	tests := []struct {
		name     string
		username string
		email    string
		column   string
	}{
		{name: "username", username: "jane", email: "other@example.com", column: "username"},
		{name: "email", username: "john", email: "JANE@example.com", column: "email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := &identity.User{Username: tt.username}
			user.SetEmail(tt.email)

			_, err := store.Create(ctx, user)
			require.Error(t, err)
			assert.ErrorIs(t, err, identity.ErrUniqueViolation)

			column, ok := identity.IsUniqueViolation(err)
			require.True(t, ok)
			assert.Equal(t, tt.column, column)
		})
	}

	t.Run("null emails do not collide", func(t *testing.T) {
		createBunUser(t, store, "noemail1", "")
		createBunUser(t, store, "noemail2", "")
	})
}

func TestBunStoreUpdateAndPassword(t *testing.T) {
	store := newBunStore(t)
	ctx := context.Background()

	user := createBunUser(t, store, "user1a2b3c4d", "fed@example.com")
	user.Username = "Chosen"
	user.UsernameSetupComplete = true
	user.FirstName = "Fed"

	updated, err := store.Update(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, "chosen", updated.Username)
	assert.Equal(t, "Fed", updated.FirstName)

	require.NoError(t, store.SetPasswordHash(ctx, user.ID, "hash"))
	current, err := store.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, current.HasPassword())

	err = store.SetPasswordHash(ctx, uuid.New(), "hash")
	assert.ErrorIs(t, err, identity.ErrIdentityNotFound)

	_, err = store.Update(ctx, &identity.User{ID: uuid.New(), Username: "ghost"})
	assert.ErrorIs(t, err, identity.ErrIdentityNotFound)

	require.NoError(t, store.TrackLogin(ctx, user.ID))
	current, err = store.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.NotNil(t, current.LoggedInAt)
}

func TestBunStoreLinkedAccounts(t *testing.T) {
	store := newBunStore(t)
	ctx := context.Background()
	jane := createBunUser(t, store, "jane", "jane@example.com")
	john := createBunUser(t, store, "john", "john@example.com")

	linked, err := store.LinkAccount(ctx, &identity.LinkedAccount{
		UserID:            jane.ID,
		Provider:          "github",
		ProviderAccountID: "gh-1",
		DisplayName:       "Jane",
	})
	require.NoError(t, err)
	assert.Equal(t, jane.ID, linked.UserID)

	relinked, err := store.LinkAccount(ctx, &identity.LinkedAccount{
		UserID:            jane.ID,
		Provider:          "github",
		ProviderAccountID: "gh-1",
		DisplayName:       "Jane D",
	})
	require.NoError(t, err)
	assert.Equal(t, linked.ID, relinked.ID)
	assert.Equal(t, "Jane D", relinked.DisplayName)

	_, err = store.LinkAccount(ctx, &identity.LinkedAccount{
		UserID:            john.ID,
		Provider:          "github",
		ProviderAccountID: "gh-1",
	})
	column, ok := identity.IsUniqueViolation(err)
	require.True(t, ok)
	assert.Equal(t, "provider_account_id", column)

	_, err = store.LinkAccount(ctx, &identity.LinkedAccount{
		UserID:            jane.ID,
		Provider:          "github",
		ProviderAccountID: "gh-2",
	})
	column, ok = identity.IsUniqueViolation(err)
	require.True(t, ok)
	assert.Equal(t, "provider", column)

	found, err := store.FindLinkedAccountByProvider(ctx, "github", "gh-1")
	require.NoError(t, err)
	assert.Equal(t, jane.ID, found.UserID)

	accounts, err := store.ListLinkedAccounts(ctx, jane.ID)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)

	removed, err := store.UnlinkAccount(ctx, jane.ID, "github")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	removed, err = store.UnlinkAccount(ctx, jane.ID, "github")
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	_, err = store.FindLinkedAccount(ctx, jane.ID, "github")
	assert.ErrorIs(t, err, identity.ErrLinkedAccountNotFound)
}

func TestBunStoreRunInTxRollsBack(t *testing.T) {
	store := newBunStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.RunInTx(ctx, func(ctx context.Context, tx identity.IdentityStore) error {
		user := &identity.User{Username: "rolledback"}
		if _, err := tx.Create(ctx, user); err != nil {
			return err
		}
		return tx.RunInTx(ctx, func(ctx context.Context, nested identity.IdentityStore) error {
			exists, err := nested.UsernameExists(ctx, "rolledback")
			require.NoError(t, err)
			assert.True(t, exists)
			return boom
		})
	})
	require.ErrorIs(t, err, boom)

	exists, err := store.UsernameExists(ctx, "rolledback")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestBunStoreSecrets(t *testing.T) {
	store := newBunStore(t)
	ctx := context.Background()
	user := createBunUser(t, store, "jane", "jane@example.com")

	vault := identity.NewSecretVault(store, secret.NewCipherFromSecrets("0123456789abcdef", ""))

	_, err := vault.Save(ctx, user.ID, "openai_api_key", "sk-test-123")
	require.NoError(t, err)
	_, err = vault.Save(ctx, user.ID, "openai_api_key", "sk-test-456")
	require.NoError(t, err)

	value, ok, err := vault.Resolve(ctx, user.ID, "openai_api_key")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "sk-test-456", value)

	records, err := store.ListSecrets(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	require.NoError(t, vault.Clear(ctx, user.ID, "openai_api_key"))
	_, err = store.FindSecret(ctx, user.ID, "openai_api_key")
	assert.ErrorIs(t, err, identity.ErrSecretNotFound)
}

func TestBunStoreProvisioningAndDisconnect(t *testing.T) {
	store := newBunStore(t)
	ctx := context.Background()

	p := newProvisioner(store)
	local, err := p.RegisterLocal(ctx, identity.LocalRegistration{Email: "a@x.com", Password: "password123"})
	require.NoError(t, err)
	assert.Regexp(t, `^a[0-9a-f]{4}$`, local.Username)

	_, err = p.RegisterLocal(ctx, identity.LocalRegistration{Email: "a@x.com", Password: "password123"})
	assert.ErrorIs(t, err, identity.ErrEmailTaken)

	fed, account, err := p.ProvisionFederated(ctx, identity.FederatedProfile{
		Provider:          "google",
		ProviderAccountID: "g-1",
		Email:             "fed@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, fed.ID, account.UserID)
	assert.False(t, fed.HasPassword())

	m := identity.NewAccountLinkManager(store, identity.WithLinkHasher(fastHasher))

	_, err = m.Disconnect(ctx, fed.ID.String(), "google", identity.DisconnectRequest{})
	assert.ErrorIs(t, err, identity.ErrPasswordRequired)

	res, err := m.Disconnect(ctx, fed.ID.String(), "google", identity.DisconnectRequest{
		Password:        "new-password",
		ConfirmPassword: "new-password",
	})
	require.NoError(t, err)
	assert.True(t, res.HasPassword)

	status, err := m.Status(ctx, fed.ID)
	require.NoError(t, err)
	assert.True(t, status.HasPassword)
	assert.Empty(t, status.Providers)
}

// staleBunStore answers "free" to the first username and email checks, as
// seen by a request that looked just before a concurrent insert committed.
type staleBunStore struct {
	*identity.BunStore
	staleUsernames int32
	staleEmails    int32
}

func (s *staleBunStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	if atomic.AddInt32(&s.staleUsernames, -1) >= 0 {
		return false, nil
	}
	return s.BunStore.UsernameExists(ctx, username)
}

func (s *staleBunStore) FindByEmail(ctx context.Context, email string) (*identity.User, error) {
	if atomic.AddInt32(&s.staleEmails, -1) >= 0 {
		return nil, identity.ErrIdentityNotFound
	}
	return s.BunStore.FindByEmail(ctx, email)
}

func TestBunStoreRegisterLocalRetriesUsernameCollision(t *testing.T) {
	store := newBunStore(t)
	ctx := context.Background()
	jane := createBunUser(t, store, "jane", "jane@one.com")

	p := newProvisioner(&staleBunStore{BunStore: store, staleUsernames: 1})

	user, err := p.RegisterLocal(ctx, identity.LocalRegistration{Email: "jane@other.com", Password: "password123"})
	require.NoError(t, err)
	assert.NotEqual(t, jane.ID, user.ID)
	assert.Regexp(t, `^jane[0-9a-f]{4}$`, user.Username)

	found, err := store.FindByUsername(ctx, user.Username)
	require.NoError(t, err)
	assert.Equal(t, "jane@other.com", found.GetEmail())
}

func TestBunStoreRegisterLocalDuplicateEmail(t *testing.T) {
	store := newBunStore(t)
	ctx := context.Background()
	createBunUser(t, store, "jane", "jane@one.com")

	p := newProvisioner(&staleBunStore{BunStore: store, staleEmails: 1})

	_, err := p.RegisterLocal(ctx, identity.LocalRegistration{Email: "JANE@one.com", Password: "password123"})
	require.Error(t, err)
	assert.ErrorIs(t, err, identity.ErrEmailTaken)
	assert.Equal(t, http.StatusConflict, identity.HTTPStatus(err))
}

func TestBunStoreConcurrentProvisioningSameSeed(t *testing.T) {
	store := newBunStore(t)
	ctx := context.Background()

	// both requests see "sam" as free
	p := newProvisioner(&staleBunStore{BunStore: store, staleUsernames: 2})

	const workers = 2
	var wg sync.WaitGroup
	users := make([]*identity.User, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			users[i], errs[i] = p.RegisterLocal(ctx, identity.LocalRegistration{
				Email:    fmt.Sprintf("sam@%d.example.com", i),
				Password: "password123",
			})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.NotEqual(t, users[0].Username, users[1].Username)

	for _, u := range users {
		found, err := store.FindByUsername(ctx, u.Username)
		require.NoError(t, err)
		assert.Equal(t, u.ID, found.ID)
	}
}
