package social

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/secret"
)

// Federation actions carried in the OAuth state.
const (
	ActionLogin = "login"
	ActionLink  = "link"
)

// Redirect is where the browser goes to start a provider round trip.
type Redirect struct {
	URL      string
	State    string
	Provider string
}

// FederationResult is the outcome of a completed provider callback.
type FederationResult struct {
	User        *identity.User
	Account     *identity.LinkedAccount
	Token       string
	Provider    string
	Action      string
	IsNewUser   bool
	RedirectURL string
}

// FederationService drives federated sign in and account linking.
type FederationService struct {
	providers   map[string]Provider
	state       StateManager
	store       identity.IdentityStore
	provisioner *identity.IdentityProvisioner
	links       *identity.AccountLinkManager
	auth        *identity.Authenticator
	cipher      *secret.Cipher
	activity    identity.ActivitySink
	logger      identity.Logger
}

type FederationOption func(*FederationService)

// WithProvider registers a provider under its name.
func WithProvider(p Provider) FederationOption {
	return func(s *FederationService) {
		if p != nil {
			s.providers[strings.ToLower(p.Name())] = p
		}
	}
}

// WithTokenCipher encrypts provider tokens before they are stored.
// Without an available cipher tokens are not persisted.
func WithTokenCipher(c *secret.Cipher) FederationOption {
	return func(s *FederationService) {
		s.cipher = c
	}
}

func WithFederationActivity(sink identity.ActivitySink) FederationOption {
	return func(s *FederationService) {
		if sink != nil {
			s.activity = sink
		}
	}
}

func WithFederationLogger(l identity.Logger) FederationOption {
	return func(s *FederationService) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewFederationService(
	store identity.IdentityStore,
	provisioner *identity.IdentityProvisioner,
	links *identity.AccountLinkManager,
	auth *identity.Authenticator,
	state StateManager,
	opts ...FederationOption,
) *FederationService {
	s := &FederationService{
		providers:   map[string]Provider{},
		state:       state,
		store:       store,
		provisioner: provisioner,
		links:       links,
		auth:        auth,
		cipher:      secret.NewCipher(nil),
		activity:    identity.ActivitySinkFunc(nil),
		logger:      identity.DefaultLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Providers lists the registered provider names.
func (s *FederationService) Providers() []string {
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	return names
}

func (s *FederationService) provider(name string) (Provider, error) {
	p, ok := s.providers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, ErrProviderNotFound
	}
	return p, nil
}

// Begin seals a new state with a PKCE verifier and returns the provider
// authorization URL. The link action requires userID.
func (s *FederationService) Begin(ctx context.Context, providerName, action, userID string) (*Redirect, error) {
	return s.BeginWithRedirect(ctx, providerName, action, userID, "")
}

// BeginWithRedirect is Begin with a post-login redirect carried in the state.
func (s *FederationService) BeginWithRedirect(ctx context.Context, providerName, action, userID, redirectURL string) (*Redirect, error) {
	p, err := s.provider(providerName)
	if err != nil {
		return nil, err
	}

	switch action {
	case "":
		action = ActionLogin
	case ActionLogin:
	case ActionLink:
		if strings.TrimSpace(userID) == "" {
			return nil, ErrLinkRequiresLogin
		}
	default:
		return nil, ErrInvalidAction
	}
	if action == ActionLogin {
		userID = ""
	}

	verifier := oauth2.GenerateVerifier()
	st := &OAuthState{
		Provider:     p.Name(),
		Action:       action,
		CodeVerifier: verifier,
		UserID:       userID,
		RedirectURL:  redirectURL,
	}

	token, err := s.state.Encode(st)
	if err != nil {
		return nil, err
	}

	return &Redirect{
		URL:      p.AuthCodeURL(token, WithPKCE(verifier)),
		State:    token,
		Provider: p.Name(),
	}, nil
}

// Complete verifies the state, exchanges the code and resolves the
// identity: an existing link first, then an identity owning the verified
// email, then a freshly provisioned identity. Link flows attach the
// provider account to the identity that started them.
func (s *FederationService) Complete(ctx context.Context, providerName, code, stateToken string) (*FederationResult, error) {
	st, err := s.state.Decode(stateToken)
	if err != nil {
		if goerrors.Is(err, ErrStateExpired) {
			return nil, ErrStateExpired
		}
		return nil, ErrInvalidState
	}

	p, err := s.provider(providerName)
	if err != nil {
		return nil, err
	}
	if st.Provider != p.Name() {
		return nil, ErrInvalidState
	}

	tok, err := p.Exchange(ctx, code, WithCodeVerifier(st.CodeVerifier))
	if err != nil {
		return nil, flowError(ErrTokenExchangeFailed, err)
	}

	profile, err := p.Profile(ctx, tok)
	if err != nil {
		return nil, flowError(ErrProfileFailed, err)
	}
	if profile == nil || strings.TrimSpace(profile.ProviderUserID) == "" {
		return nil, identity.ErrInvalidProviderAccount
	}

	fed := s.federatedProfile(p.Name(), profile, tok)

	result := &FederationResult{
		Provider:    p.Name(),
		Action:      st.Action,
		RedirectURL: st.RedirectURL,
	}

	if st.Action == ActionLink {
		err = s.completeLink(ctx, st.UserID, fed, result)
	} else {
		err = s.completeLogin(ctx, profile, fed, result)
	}
	if err != nil {
		return nil, err
	}

	result.Token, err = s.auth.IssueToken(ctx, result.User)
	if err != nil {
		return nil, err
	}

	s.record(ctx, result)
	return result, nil
}

func (s *FederationService) completeLink(ctx context.Context, rawUserID string, fed identity.FederatedProfile, result *FederationResult) error {
	userID, err := uuid.Parse(rawUserID)
	if err != nil {
		return ErrLinkRequiresLogin
	}

	account, err := s.links.Link(ctx, userID, fed.LinkedAccount(userID))
	if err != nil {
		return err
	}

	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	result.User, result.Account = user, account
	return nil
}

func (s *FederationService) completeLogin(ctx context.Context, profile *Profile, fed identity.FederatedProfile, result *FederationResult) error {
	if found, err := s.fromExistingLink(ctx, fed, result); found || err != nil {
		return err
	}

	if profile.EmailVerified && fed.Email != "" {
		user, err := s.store.FindByEmail(ctx, fed.Email)
		switch {
		case err == nil:
			account, err := s.links.Link(ctx, user.ID, fed.LinkedAccount(user.ID))
			if err != nil {
				return err
			}
			result.User, result.Account = user, account
			return nil
		case !identity.IsNotFound(err):
			return err
		}
	}

	user, account, err := s.provisioner.ProvisionFederated(ctx, fed)
	if err != nil {
		// a concurrent callback for the same provider account may have won
		if goerrors.Is(err, identity.ErrAccountLinkedElsewhere) || goerrors.Is(err, identity.ErrEmailTaken) {
			if found, lookupErr := s.fromExistingLink(ctx, fed, result); found || lookupErr != nil {
				return lookupErr
			}
		}
		return err
	}
	result.User, result.Account, result.IsNewUser = user, account, true
	return nil
}

// fromExistingLink resolves the identity already bound to the provider
// account and refreshes the stored grant.
func (s *FederationService) fromExistingLink(ctx context.Context, fed identity.FederatedProfile, result *FederationResult) (bool, error) {
	existing, err := s.store.FindLinkedAccountByProvider(ctx, fed.Provider, fed.ProviderAccountID)
	if err != nil {
		if identity.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}

	user, err := s.store.FindByID(ctx, existing.UserID)
	if err != nil {
		return false, err
	}
	account, err := s.store.LinkAccount(ctx, fed.LinkedAccount(user.ID))
	if err != nil {
		return false, err
	}
	result.User, result.Account = user, account
	return true, nil
}

// federatedProfile maps the provider profile, encrypting the grant.
func (s *FederationService) federatedProfile(provider string, profile *Profile, tok *Token) identity.FederatedProfile {
	fed := identity.FederatedProfile{
		Provider:          provider,
		ProviderAccountID: profile.ProviderUserID,
		Email:             identity.NormalizeEmail(profile.Email),
		DisplayName:       profile.Name,
		FirstName:         profile.FirstName,
		LastName:          profile.LastName,
		Avatar:            profile.AvatarURL,
	}

	if tok == nil || !s.cipher.Available() {
		return fed
	}

	access, err := s.seal(tok.AccessToken)
	if err != nil {
		s.logger.Warn("provider token not stored", "provider", provider, "error", err)
		return fed
	}
	refresh, err := s.seal(tok.RefreshToken)
	if err != nil {
		s.logger.Warn("provider refresh token not stored", "provider", provider, "error", err)
		return fed
	}

	fed.AccessToken, fed.RefreshToken, fed.TokenExpiresAt = access, refresh, tok.ExpiresAtPtr()
	return fed
}

func (s *FederationService) seal(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	return s.cipher.Encrypt(value)
}

// ProviderTokens decrypts the grant stored on account.
func (s *FederationService) ProviderTokens(account *identity.LinkedAccount) (*Token, bool) {
	if account == nil || account.AccessToken == "" {
		return nil, false
	}
	access, ok := s.cipher.Decrypt(account.AccessToken)
	if !ok {
		return nil, false
	}
	tok := &Token{AccessToken: access}
	if account.RefreshToken != "" {
		tok.RefreshToken, _ = s.cipher.Decrypt(account.RefreshToken)
	}
	if account.TokenExpiresAt != nil {
		tok.ExpiresAt = *account.TokenExpiresAt
	}
	return tok, true
}

// record reports federated logins. Links are reported by the link manager.
func (s *FederationService) record(ctx context.Context, result *FederationResult) {
	if result.Action == ActionLink {
		return
	}
	event := identity.ActivityEventFederatedLogin
	err := s.activity.Record(ctx, identity.ActivityEvent{
		EventType: event,
		UserID:    result.User.ID.String(),
		Metadata: map[string]any{
			"provider":    result.Provider,
			"is_new_user": result.IsNewUser,
		},
		OccurredAt: time.Now(),
	})
	if err != nil {
		s.logger.Warn("activity sink failed", "event", string(event), "error", err)
	}
}
