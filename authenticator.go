package identity

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// LoginResult is returned to the client after a credential login.
type LoginResult struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Avatar   string `json:"avatar"`
}

// LoginTracker is implemented by stores that record login times.
type LoginTracker interface {
	TrackLogin(ctx context.Context, id uuid.UUID) error
}

// Authenticator ties credential checks, the session enricher and the
// token service together.
type Authenticator struct {
	credentials *CredentialAuthenticator
	enricher    *SessionEnricher
	tokens      *TokenService
	tracker     LoginTracker
	activity    ActivitySink
	logger      Logger
}

type AuthenticatorOption func(*Authenticator)

func WithCredentials(c *CredentialAuthenticator) AuthenticatorOption {
	return func(a *Authenticator) {
		if c != nil {
			a.credentials = c
		}
	}
}

func WithEnricher(e *SessionEnricher) AuthenticatorOption {
	return func(a *Authenticator) {
		if e != nil {
			a.enricher = e
		}
	}
}

func WithAuthenticatorActivity(s ActivitySink) AuthenticatorOption {
	return func(a *Authenticator) {
		a.activity = normalizeActivitySink(s)
	}
}

func WithAuthenticatorLogger(l Logger) AuthenticatorOption {
	return func(a *Authenticator) {
		a.logger = resolveLogger(l)
	}
}

func NewAuthenticator(store IdentityStore, tokens *TokenService, opts ...AuthenticatorOption) *Authenticator {
	a := &Authenticator{
		tokens:   tokens,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	if a.credentials == nil {
		a.credentials = NewCredentialAuthenticator(store, WithCredentialLogger(a.logger))
	}
	if a.enricher == nil {
		a.enricher = NewSessionEnricher(store, WithEnricherLogger(a.logger))
	}
	if t, ok := store.(LoginTracker); ok {
		a.tracker = t
	}
	return a
}

// Login verifies credentials and returns a signed session token.
func (a *Authenticator) Login(ctx context.Context, username, password string) (string, *LoginResult, error) {
	user, err := a.credentials.Verify(ctx, username, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			a.record(ctx, ActivityEventLoginFailure, "")
		}
		return "", nil, err
	}

	token, err := a.IssueToken(ctx, user)
	if err != nil {
		return "", nil, err
	}

	if a.tracker != nil {
		if err := a.tracker.TrackLogin(ctx, user.ID); err != nil {
			a.logger.Warn("failed to track login", "user_id", user.ID.String(), "error", err)
		}
	}

	a.record(ctx, ActivityEventLoginSuccess, user.ID.String())

	return token, &LoginResult{
		ID:       user.ID.String(),
		Username: user.Username,
		Email:    user.GetEmail(),
		Avatar:   user.Avatar,
	}, nil
}

// IssueToken mints and signs claims for a freshly authenticated user.
func (a *Authenticator) IssueToken(ctx context.Context, user *User) (string, error) {
	token, _, err := a.Reissue(ctx, user)
	return token, err
}

// Reissue signs a new token for user and returns the matching session
// view, used after the identity changed under an active session.
func (a *Authenticator) Reissue(ctx context.Context, user *User) (string, SessionView, error) {
	claims, _, err := a.enricher.Mint(ctx, user, nil)
	if err != nil {
		return "", SessionView{}, err
	}
	token, err := a.tokens.Sign(claims)
	if err != nil {
		return "", SessionView{}, err
	}
	return token, a.enricher.Expose(claims), nil
}

// TokenTTL is the lifetime of issued session tokens.
func (a *Authenticator) TokenTTL() time.Duration {
	return a.tokens.TTL()
}

// Session verifies raw, refreshes its claims and exposes the session.
// refreshed is a re-signed token when the claims changed, empty otherwise.
func (a *Authenticator) Session(ctx context.Context, raw string) (view SessionView, refreshed string, err error) {
	prior, err := a.tokens.Parse(raw)
	if err != nil {
		return SessionView{}, "", err
	}

	claims, changed, err := a.enricher.Mint(ctx, nil, prior)
	if err != nil {
		return SessionView{}, "", err
	}

	if changed {
		if refreshed, err = a.tokens.Sign(claims); err != nil {
			return SessionView{}, "", err
		}
	}

	return a.enricher.Expose(claims), refreshed, nil
}

func (a *Authenticator) record(ctx context.Context, event ActivityEventType, userID string) {
	err := a.activity.Record(ctx, ActivityEvent{
		EventType:  event,
		UserID:     userID,
		OccurredAt: time.Now(),
	})
	if err != nil {
		a.logger.Warn("activity sink failed", "event", string(event), "error", err)
	}
}
