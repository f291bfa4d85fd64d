package identity

import (
	"context"

	"github.com/google/uuid"
)

// SessionView is the claim surface downstream handlers may rely on.
type SessionView struct {
	ID                    string `json:"id"`
	Username              string `json:"username"`
	UsernameSetupComplete bool   `json:"usernameSetupComplete"`
	Email                 string `json:"email"`
}

// UserUUID parses the session id.
func (s SessionView) UserUUID() (uuid.UUID, error) {
	return uuid.Parse(s.ID)
}

// FreshnessPolicy decides when token claims are re-read from the store.
// The subject id is always trusted from a verified token. Username, email
// and the setup flag are re-read whenever one of them is missing.
type FreshnessPolicy struct {
	// AlwaysRefresh re-reads the identity on every request.
	AlwaysRefresh bool
	// RefreshPendingSetup re-reads while usernameSetupComplete is false,
	// so finishing the setup shows up without a new login.
	RefreshPendingSetup bool
}

func DefaultFreshnessPolicy() FreshnessPolicy {
	return FreshnessPolicy{RefreshPendingSetup: true}
}

// IdentityReader loads identities by id.
type IdentityReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
}

// SessionEnricher turns identities and prior tokens into claims (Mint)
// and claims into the caller visible session (Expose).
type SessionEnricher struct {
	store  IdentityReader
	policy FreshnessPolicy
	logger Logger
}

type EnricherOption func(*SessionEnricher)

func WithFreshnessPolicy(p FreshnessPolicy) EnricherOption {
	return func(e *SessionEnricher) {
		e.policy = p
	}
}

func WithEnricherLogger(l Logger) EnricherOption {
	return func(e *SessionEnricher) {
		e.logger = resolveLogger(l)
	}
}

func NewSessionEnricher(store IdentityReader, opts ...EnricherOption) *SessionEnricher {
	e := &SessionEnricher{
		store:  store,
		policy: DefaultFreshnessPolicy(),
		logger: defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Policy returns the freshness policy in use.
func (e *SessionEnricher) Policy() FreshnessPolicy {
	return e.policy
}

// Mint produces the claim set for a request. A freshly authenticated user
// seeds the claims directly; otherwise the prior claims are refreshed from
// the store when the policy calls them stale. changed reports whether the
// result differs from prior and needs signing.
func (e *SessionEnricher) Mint(ctx context.Context, user *User, prior *SessionClaims) (claims *SessionClaims, changed bool, err error) {
	if user != nil {
		claims = &SessionClaims{}
		if prior != nil {
			claims = prior.clone()
		}
		changed = claims.applyUser(user)
		return claims, changed || prior == nil, nil
	}

	if prior == nil || prior.Subject == "" {
		return nil, false, ErrUnauthenticated
	}

	claims = prior.clone()
	if !e.Stale(prior) {
		return claims, false, nil
	}

	id, err := uuid.Parse(prior.Subject)
	if err != nil {
		return nil, false, ErrUnauthenticated
	}

	current, err := e.store.FindByID(ctx, id)
	if err != nil {
		if IsNotFound(err) {
			e.logger.Info("session subject no longer exists", "subject", prior.Subject)
			return nil, false, ErrUnauthenticated
		}
		return nil, false, err
	}

	return claims, claims.applyUser(current), nil
}

// Stale reports whether claims must be re-read under the policy.
func (e *SessionEnricher) Stale(c *SessionClaims) bool {
	if e.policy.AlwaysRefresh {
		return true
	}
	if c.Username == "" || c.Email == "" || c.UsernameSetupComplete == nil {
		return true
	}
	return e.policy.RefreshPendingSetup && !*c.UsernameSetupComplete
}

// Expose copies the allow listed claims into the session view.
func (e *SessionEnricher) Expose(c *SessionClaims) SessionView {
	if c == nil {
		return SessionView{}
	}

	username := c.Username
	if username == "" {
		username = c.Name
	}
	if username == "" {
		username = "user"
	}

	return SessionView{
		ID:                    c.Subject,
		Username:              username,
		UsernameSetupComplete: c.SetupComplete(),
		Email:                 c.Email,
	}
}
