package identity

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DisconnectRequest carries the replacement password a passwordless
// identity must set before dropping a federated login.
type DisconnectRequest struct {
	Password        string `json:"password" form:"password"`
	ConfirmPassword string `json:"confirmPassword" form:"confirmPassword"`
}

// DisconnectResult is returned after a provider was disconnected.
type DisconnectResult struct {
	Message     string `json:"message"`
	Linked      bool   `json:"linked"`
	HasPassword bool   `json:"hasPassword"`
}

// AccountStatus summarizes the authentication methods of an identity.
type AccountStatus struct {
	HasPassword bool     `json:"hasPassword"`
	Providers   []string `json:"providers"`
}

// AccountLinkManager links and unlinks federated accounts without ever
// leaving an identity with no way to sign in.
type AccountLinkManager struct {
	store    IdentityStore
	hasher   PasswordHasher
	activity ActivitySink
	logger   Logger
}

type LinkManagerOption func(*AccountLinkManager)

func WithLinkHasher(h PasswordHasher) LinkManagerOption {
	return func(m *AccountLinkManager) {
		if h != nil {
			m.hasher = h
		}
	}
}

func WithLinkActivity(s ActivitySink) LinkManagerOption {
	return func(m *AccountLinkManager) {
		m.activity = normalizeActivitySink(s)
	}
}

func WithLinkLogger(l Logger) LinkManagerOption {
	return func(m *AccountLinkManager) {
		m.logger = resolveLogger(l)
	}
}

func NewAccountLinkManager(store IdentityStore, opts ...LinkManagerOption) *AccountLinkManager {
	m := &AccountLinkManager{
		store:    store,
		hasher:   BcryptHasher{},
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Disconnect removes the provider link for the identity. Preconditions are
// checked in order: an authenticated caller, an existing link, and for a
// passwordless identity a matching new password pair. The password update
// and the unlink commit in one transaction.
func (m *AccountLinkManager) Disconnect(ctx context.Context, userID string, provider string, req DisconnectRequest) (*DisconnectResult, error) {
	id, err := uuid.Parse(strings.TrimSpace(userID))
	if err != nil {
		return nil, ErrUnauthenticated
	}
	provider = normalizeProvider(provider)

	err = m.store.RunInTx(ctx, func(ctx context.Context, tx IdentityStore) error {
		user, err := tx.FindByID(ctx, id)
		if err != nil {
			return err
		}

		if _, err := tx.FindLinkedAccount(ctx, id, provider); err != nil {
			if IsNotFound(err) {
				return ErrAlreadyDisconnected
			}
			return err
		}

		if !user.HasPassword() {
			if req.Password == "" && req.ConfirmPassword == "" {
				return ErrPasswordRequired
			}
			if err := ValidateNewPassword(req.Password, req.ConfirmPassword); err != nil {
				return err
			}

			hash, err := m.hasher.HashPassword(req.Password)
			if err != nil {
				return err
			}
			if err := tx.SetPasswordHash(ctx, id, hash); err != nil {
				return err
			}
		}

		removed, err := tx.UnlinkAccount(ctx, id, provider)
		if err != nil {
			return err
		}
		if removed == 0 {
			return ErrAlreadyDisconnected
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.record(ctx, ActivityEventAccountUnlinked, id, provider)

	return &DisconnectResult{
		Message:     "disconnected " + provider,
		Linked:      false,
		HasPassword: true,
	}, nil
}

// Link attaches a provider account to an existing identity. A provider
// account bound to a different identity is rejected.
func (m *AccountLinkManager) Link(ctx context.Context, userID uuid.UUID, account *LinkedAccount) (*LinkedAccount, error) {
	if account == nil || account.ProviderAccountID == "" || account.Provider == "" {
		return nil, ErrInvalidProviderAccount
	}
	account.Provider = normalizeProvider(account.Provider)
	account.UserID = userID

	if _, err := m.store.FindByID(ctx, userID); err != nil {
		return nil, err
	}

	existing, err := m.store.FindLinkedAccountByProvider(ctx, account.Provider, account.ProviderAccountID)
	switch {
	case err == nil && existing.UserID != userID:
		return nil, ErrAccountLinkedElsewhere
	case err != nil && !IsNotFound(err):
		return nil, err
	}

	linked, err := m.store.LinkAccount(ctx, account)
	if err != nil {
		if _, ok := IsUniqueViolation(err); ok {
			return nil, ErrAccountLinkedElsewhere
		}
		return nil, err
	}

	m.record(ctx, ActivityEventAccountLinked, userID, account.Provider)
	return linked, nil
}

// Status reports the authentication methods of the identity.
func (m *AccountLinkManager) Status(ctx context.Context, userID uuid.UUID) (*AccountStatus, error) {
	user, err := m.store.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	accounts, err := m.store.ListLinkedAccounts(ctx, userID)
	if err != nil {
		return nil, err
	}

	providers := make([]string, 0, len(accounts))
	for _, a := range accounts {
		providers = append(providers, a.Provider)
	}

	return &AccountStatus{
		HasPassword: user.HasPassword(),
		Providers:   providers,
	}, nil
}

func (m *AccountLinkManager) record(ctx context.Context, event ActivityEventType, userID uuid.UUID, provider string) {
	err := m.activity.Record(ctx, ActivityEvent{
		EventType:  event,
		UserID:     userID.String(),
		Metadata:   map[string]any{"provider": provider},
		OccurredAt: time.Now(),
	})
	if err != nil {
		m.logger.Warn("activity sink failed", "event", string(event), "error", err)
	}
}

func normalizeProvider(p string) string {
	return strings.ToLower(strings.TrimSpace(p))
}
