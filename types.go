package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Logger is the logging surface every service accepts.
// Arguments after msg are key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// IdentityStore is the persistence boundary for identities and their
// linked federated accounts. Finders return ErrIdentityNotFound or
// ErrLinkedAccountNotFound on a miss; creates that break a uniqueness
// constraint return an error matching ErrUniqueViolation.
type IdentityStore interface {
	UsernameExists(ctx context.Context, username string) (bool, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	Create(ctx context.Context, user *User) (*User, error)
	Update(ctx context.Context, user *User) (*User, error)
	SetPasswordHash(ctx context.Context, id uuid.UUID, hash string) error

	LinkAccount(ctx context.Context, account *LinkedAccount) (*LinkedAccount, error)
	UnlinkAccount(ctx context.Context, userID uuid.UUID, provider string) (int, error)
	FindLinkedAccount(ctx context.Context, userID uuid.UUID, provider string) (*LinkedAccount, error)
	FindLinkedAccountByProvider(ctx context.Context, provider, providerAccountID string) (*LinkedAccount, error)
	ListLinkedAccounts(ctx context.Context, userID uuid.UUID) ([]*LinkedAccount, error)

	// RunInTx runs fn against a store bound to a single transaction.
	// The transaction commits only if fn returns nil.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx IdentityStore) error) error
}

// SecretStore persists encrypted API secrets. SaveSecret upserts on
// (user id, name). FindSecret returns ErrSecretNotFound on a miss.
type SecretStore interface {
	SaveSecret(ctx context.Context, record *APISecret) (*APISecret, error)
	FindSecret(ctx context.Context, userID uuid.UUID, name string) (*APISecret, error)
	DeleteSecret(ctx context.Context, userID uuid.UUID, name string) (int, error)
	ListSecrets(ctx context.Context, userID uuid.UUID) ([]*APISecret, error)
}

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

type defLogger struct{}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Print("[DBG] IDENTITY " + format(msg, args...))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Print("[INF] IDENTITY " + format(msg, args...))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Print("[WRN] IDENTITY " + format(msg, args...))
}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Print("[ERR] IDENTITY " + format(msg, args...))
}

func format(msg string, args ...any) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
		} else {
			fmt.Fprintf(&b, " %v", args[i])
		}
	}
	b.WriteByte('\n')
	return b.String()
}

func resolveLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}

// DefaultLogger returns the stdout logger used when none is configured.
func DefaultLogger() Logger {
	return defLogger{}
}
