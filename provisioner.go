package identity

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

const DefaultCreateAttempts = 8

// LocalRegistration is the input of a password based sign up.
type LocalRegistration struct {
	Email     string
	Username  string
	Password  string
	FirstName string
	LastName  string
	Avatar    string
}

// FederatedProfile is what a provider asserted about the user on first
// login. Token fields are stored as given, callers encrypt them first.
type FederatedProfile struct {
	Provider          string
	ProviderAccountID string
	Email             string
	DisplayName       string
	FirstName         string
	LastName          string
	Avatar            string
	AccessToken       string
	RefreshToken      string
	TokenExpiresAt    *time.Time
}

// LinkedAccount builds the row binding this profile to userID.
func (p FederatedProfile) LinkedAccount(userID uuid.UUID) *LinkedAccount {
	return &LinkedAccount{
		UserID:            userID,
		Provider:          p.Provider,
		ProviderAccountID: p.ProviderAccountID,
		Email:             NormalizeEmail(p.Email),
		DisplayName:       p.DisplayName,
		Avatar:            p.Avatar,
		AccessToken:       p.AccessToken,
		RefreshToken:      p.RefreshToken,
		TokenExpiresAt:    p.TokenExpiresAt,
	}
}

// DemoIdentity describes a seeded demo account.
type DemoIdentity struct {
	Email       string
	Username    string
	DisplayName string
	Password    string
}

// IdentityProvisioner creates new identities. All call sites share the
// username namespace, so each create retries allocation from scratch when
// the store rejects the username as taken.
type IdentityProvisioner struct {
	store          IdentityStore
	allocator      *UsernameAllocator
	hasher         PasswordHasher
	deferFederated bool
	createAttempts int
	logger         Logger
	activity       ActivitySink
}

type ProvisionerOption func(*IdentityProvisioner)

func WithAllocator(a *UsernameAllocator) ProvisionerOption {
	return func(p *IdentityProvisioner) {
		if a != nil {
			p.allocator = a
		}
	}
}

func WithProvisionerHasher(h PasswordHasher) ProvisionerOption {
	return func(p *IdentityProvisioner) {
		if h != nil {
			p.hasher = h
		}
	}
}

// WithDeferredFederatedUsername makes federated sign ups start with a
// random placeholder username that the user replaces later.
func WithDeferredFederatedUsername(enabled bool) ProvisionerOption {
	return func(p *IdentityProvisioner) {
		p.deferFederated = enabled
	}
}

func WithCreateAttempts(n int) ProvisionerOption {
	return func(p *IdentityProvisioner) {
		if n > 0 {
			p.createAttempts = n
		}
	}
}

func WithProvisionerLogger(l Logger) ProvisionerOption {
	return func(p *IdentityProvisioner) {
		p.logger = resolveLogger(l)
	}
}

func WithProvisionerActivity(s ActivitySink) ProvisionerOption {
	return func(p *IdentityProvisioner) {
		p.activity = normalizeActivitySink(s)
	}
}

func NewIdentityProvisioner(store IdentityStore, opts ...ProvisionerOption) *IdentityProvisioner {
	p := &IdentityProvisioner{
		store:          store,
		hasher:         BcryptHasher{},
		createAttempts: DefaultCreateAttempts,
		logger:         defLogger{},
		activity:       noopActivitySink{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.allocator == nil {
		p.allocator = NewUsernameAllocator(store, WithAllocatorLogger(p.logger))
	}
	return p
}

// Allocator exposes the allocator used by this provisioner.
func (p *IdentityProvisioner) Allocator() *UsernameAllocator {
	return p.allocator
}

// RegisterLocal creates a password identity. A taken email is rejected
// before any username is allocated. An explicit username must be valid
// and free; otherwise one is derived from the email local part.
func (p *IdentityProvisioner) RegisterLocal(ctx context.Context, req LocalRegistration) (*User, error) {
	email := NormalizeEmail(req.Email)
	requested := strings.ToLower(strings.TrimSpace(req.Username))

	if email == "" && requested == "" {
		return nil, ErrInvalidUsername
	}

	if len([]rune(req.Password)) < MinPasswordLength {
		return nil, ErrPasswordTooShort
	}

	if err := p.ensureEmailFree(ctx, email); err != nil {
		return nil, err
	}

	pick := func(ctx context.Context) (string, error) {
		return p.allocator.Allocate(ctx, EmailSeed(email))
	}
	if requested != "" {
		if !p.allocator.Policy().Valid(requested) {
			return nil, ErrInvalidUsername
		}
		pick = func(ctx context.Context) (string, error) {
			exists, err := p.store.UsernameExists(ctx, requested)
			if err != nil {
				return "", err
			}
			if exists {
				return "", ErrUsernameTaken
			}
			return requested, nil
		}
	}

	hash, err := p.hasher.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &User{
		ID:                    uuid.New(),
		PasswordHash:          hash,
		FirstName:             strings.TrimSpace(req.FirstName),
		LastName:              strings.TrimSpace(req.LastName),
		Avatar:                req.Avatar,
		UsernameSetupComplete: true,
	}
	user.SetEmail(email)

	created, _, err := p.create(ctx, user, nil, pick, requested == "")
	if err != nil {
		return nil, err
	}

	p.record(ctx, ActivityEventIdentityRegistered, created, map[string]any{"method": "local"})
	return created, nil
}

// ProvisionFederated creates the identity and its linked account in one
// transaction on first federated login.
func (p *IdentityProvisioner) ProvisionFederated(ctx context.Context, profile FederatedProfile) (*User, *LinkedAccount, error) {
	email := NormalizeEmail(profile.Email)
	if err := p.ensureEmailFree(ctx, email); err != nil {
		return nil, nil, err
	}

	first, last := strings.TrimSpace(profile.FirstName), strings.TrimSpace(profile.LastName)
	if first == "" && last == "" {
		first, last = splitDisplayName(profile.DisplayName)
	}

	user := &User{
		ID:                    uuid.New(),
		FirstName:             first,
		LastName:              last,
		Avatar:                profile.Avatar,
		UsernameSetupComplete: !p.deferFederated,
	}
	user.SetEmail(email)

	seed := EmailSeed(email)
	if seed == "" {
		seed = profile.DisplayName
	}

	pick := func(ctx context.Context) (string, error) {
		if p.deferFederated {
			return p.allocator.Placeholder(ctx)
		}
		return p.allocator.Allocate(ctx, seed)
	}

	created, account, err := p.create(ctx, user, &profile, pick, true)
	if err != nil {
		return nil, nil, err
	}

	p.record(ctx, ActivityEventIdentityRegistered, created, map[string]any{
		"method":   "federated",
		"provider": profile.Provider,
	})
	return created, account, nil
}

// SeedDemo creates a demo identity with an id derived from its email.
// Seeding twice returns the existing identity and false.
func (p *IdentityProvisioner) SeedDemo(ctx context.Context, demo DemoIdentity) (*User, bool, error) {
	email := NormalizeEmail(demo.Email)
	if email == "" {
		return nil, false, ErrInvalidUsername
	}

	id, err := hashid.NewUUID(email)
	if err != nil {
		return nil, false, err
	}

	if existing, err := p.store.FindByID(ctx, id); err == nil {
		return existing, false, nil
	} else if !IsNotFound(err) {
		return nil, false, err
	}

	if existing, err := p.store.FindByEmail(ctx, email); err == nil {
		return existing, false, nil
	} else if !IsNotFound(err) {
		return nil, false, err
	}

	first, last := splitDisplayName(demo.DisplayName)
	user := &User{
		ID:                    id,
		FirstName:             first,
		LastName:              last,
		UsernameSetupComplete: true,
	}
	user.SetEmail(email)

	if demo.Password != "" {
		hash, err := p.hasher.HashPassword(demo.Password)
		if err != nil {
			return nil, false, err
		}
		user.PasswordHash = hash
	}

	seed := demo.Username
	if seed == "" {
		seed = EmailSeed(email)
	}

	pick := func(ctx context.Context) (string, error) {
		return p.allocator.Allocate(ctx, seed)
	}

	created, _, err := p.create(ctx, user, nil, pick, true)
	if err != nil {
		return nil, false, err
	}

	p.record(ctx, ActivityEventIdentityRegistered, created, map[string]any{"method": "demo"})
	return created, true, nil
}

// CompleteUsernameSetup replaces the placeholder username of a deferred
// federated identity with the one the user picked.
func (p *IdentityProvisioner) CompleteUsernameSetup(ctx context.Context, id uuid.UUID, username string) (*User, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if !p.allocator.Policy().Valid(username) {
		return nil, ErrInvalidUsername
	}

	user, err := p.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if user.UsernameSetupComplete {
		return nil, ErrUsernameSetupDone
	}

	exists, err := p.store.UsernameExists(ctx, username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrUsernameTaken
	}

	user.Username = username
	user.UsernameSetupComplete = true

	updated, err := p.store.Update(ctx, user)
	if err != nil {
		if column, ok := IsUniqueViolation(err); ok && column == "username" {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}

	p.record(ctx, ActivityEventUsernameChosen, updated, nil)
	return updated, nil
}

func (p *IdentityProvisioner) ensureEmailFree(ctx context.Context, email string) error {
	if email == "" {
		return nil
	}

	_, err := p.store.FindByEmail(ctx, email)
	if err == nil {
		return ErrEmailTaken
	}
	if !IsNotFound(err) {
		return err
	}
	return nil
}

// create persists user, and the linked account when profile is given, in
// one transaction per attempt. A username unique violation restarts the
// attempt with a freshly picked username when retry is set.
func (p *IdentityProvisioner) create(ctx context.Context, user *User, profile *FederatedProfile, pick func(context.Context) (string, error), retry bool) (*User, *LinkedAccount, error) {
	for attempt := 1; ; attempt++ {
		username, err := pick(ctx)
		if err != nil {
			return nil, nil, err
		}
		user.Username = username

		var created *User
		var account *LinkedAccount
		err = p.store.RunInTx(ctx, func(ctx context.Context, tx IdentityStore) error {
			var err error
			if created, err = tx.Create(ctx, user); err != nil {
				return err
			}
			if profile == nil {
				return nil
			}
			account, err = tx.LinkAccount(ctx, profile.LinkedAccount(created.ID))
			return err
		})
		if err == nil {
			return created, account, nil
		}

		column, ok := IsUniqueViolation(err)
		if !ok {
			return nil, nil, err
		}

		switch column {
		case "email":
			return nil, nil, ErrEmailTaken
		case "provider_account_id", "provider":
			return nil, nil, ErrAccountLinkedElsewhere
		case "username":
			if !retry {
				return nil, nil, ErrUsernameTaken
			}
			if attempt >= p.createAttempts {
				p.logger.Warn("username kept colliding on create", "attempts", attempt)
				return nil, nil, ErrUsernameExhausted
			}
			p.logger.Debug("username taken concurrently, allocating again", "username", username, "attempt", attempt)
		default:
			return nil, nil, err
		}
	}
}

func (p *IdentityProvisioner) record(ctx context.Context, event ActivityEventType, user *User, meta map[string]any) {
	err := p.activity.Record(ctx, ActivityEvent{
		EventType:  event,
		UserID:     user.ID.String(),
		Metadata:   meta,
		OccurredAt: time.Now(),
	})
	if err != nil {
		p.logger.Warn("activity sink failed", "event", string(event), "error", err)
	}
}

func splitDisplayName(name string) (string, string) {
	name = strings.TrimSpace(name)
	first, last, _ := strings.Cut(name, " ")
	return strings.TrimSpace(first), strings.TrimSpace(last)
}
