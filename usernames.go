package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

const (
	DefaultUsernameMinLength   = 3
	DefaultUsernameMaxLength   = 20
	DefaultUsernameSuffixLen   = 4
	DefaultUsernameMarker      = "user"
	DefaultUsernameMaxAttempts = 32

	randomTokenLen = 8
)

// UsernamePolicy describes what a valid username looks like and how
// collisions are resolved.
type UsernamePolicy struct {
	MinLength       int
	MaxLength       int
	AllowUnderscore bool
	// SuffixLength is the number of hex characters appended on collision.
	SuffixLength int
	// RandomMarker prefixes usernames generated without a usable seed.
	RandomMarker string
	// MaxAttempts bounds existence checks per allocation. Zero means
	// DefaultUsernameMaxAttempts, a negative value removes the bound.
	MaxAttempts int
}

// DefaultUsernamePolicy allows lowercase letters, digits and underscores.
func DefaultUsernamePolicy() UsernamePolicy {
	return UsernamePolicy{
		MinLength:       DefaultUsernameMinLength,
		MaxLength:       DefaultUsernameMaxLength,
		AllowUnderscore: true,
		SuffixLength:    DefaultUsernameSuffixLen,
		RandomMarker:    DefaultUsernameMarker,
		MaxAttempts:     DefaultUsernameMaxAttempts,
	}
}

func (p UsernamePolicy) withDefaults() UsernamePolicy {
	if p.MinLength <= 0 {
		p.MinLength = DefaultUsernameMinLength
	}
	if p.SuffixLength <= 0 {
		p.SuffixLength = DefaultUsernameSuffixLen
	}
	if p.MaxLength <= 0 {
		p.MaxLength = DefaultUsernameMaxLength
	}
	if p.MaxLength < p.MinLength+p.SuffixLength {
		p.MaxLength = p.MinLength + p.SuffixLength
	}
	if p.MaxAttempts == 0 {
		p.MaxAttempts = DefaultUsernameMaxAttempts
	}
	p.RandomMarker = p.strip(strings.ToLower(p.RandomMarker))
	if p.RandomMarker == "" {
		p.RandomMarker = DefaultUsernameMarker
	}
	if len(p.RandomMarker) > p.MaxLength-p.SuffixLength {
		p.RandomMarker = p.RandomMarker[:p.MaxLength-p.SuffixLength]
	}
	return p
}

func (p UsernamePolicy) allowed(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		return true
	case r == '_':
		return p.AllowUnderscore
	}
	return false
}

func (p UsernamePolicy) strip(s string) string {
	var b strings.Builder
	for _, r := range s {
		if p.allowed(r) {
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "_")
}

// Normalize lowercases the seed, drops disallowed characters and truncates
// the result to MaxLength. The result may be shorter than MinLength.
func (p UsernamePolicy) Normalize(seed string) string {
	p = p.withDefaults()
	base := p.strip(strings.ToLower(strings.TrimSpace(seed)))
	if len(base) > p.MaxLength {
		base = strings.TrimRight(base[:p.MaxLength], "_")
	}
	return base
}

// Valid reports whether username already satisfies the policy as is.
func (p UsernamePolicy) Valid(username string) bool {
	p = p.withDefaults()
	if len(username) < p.MinLength || len(username) > p.MaxLength {
		return false
	}
	for _, r := range username {
		if !p.allowed(r) {
			return false
		}
	}
	return true
}

// EmailSeed returns the local part of an email, without any +tag.
func EmailSeed(email string) string {
	local, _, _ := strings.Cut(strings.TrimSpace(email), "@")
	local, _, _ = strings.Cut(local, "+")
	return local
}

// UsernameChecker is the uniqueness primitive the allocator depends on.
type UsernameChecker interface {
	UsernameExists(ctx context.Context, username string) (bool, error)
}

// UsernameAllocator produces usernames that were free at the time of the check.
// The caller still has to create the identity and handle a unique violation.
type UsernameAllocator struct {
	store  UsernameChecker
	policy UsernamePolicy
	random io.Reader
	logger Logger
}

type AllocatorOption func(*UsernameAllocator)

func WithUsernamePolicy(p UsernamePolicy) AllocatorOption {
	return func(a *UsernameAllocator) {
		a.policy = p.withDefaults()
	}
}

// WithRandomSource replaces crypto/rand as the suffix source.
func WithRandomSource(r io.Reader) AllocatorOption {
	return func(a *UsernameAllocator) {
		if r != nil {
			a.random = r
		}
	}
}

func WithAllocatorLogger(l Logger) AllocatorOption {
	return func(a *UsernameAllocator) {
		a.logger = resolveLogger(l)
	}
}

func NewUsernameAllocator(store UsernameChecker, opts ...AllocatorOption) *UsernameAllocator {
	a := &UsernameAllocator{
		store:  store,
		policy: DefaultUsernamePolicy().withDefaults(),
		random: rand.Reader,
		logger: defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Policy returns the effective policy.
func (a *UsernameAllocator) Policy() UsernamePolicy {
	return a.policy
}

// Allocate derives a username from seed and retries with random suffixes
// until the store reports it as free.
func (a *UsernameAllocator) Allocate(ctx context.Context, seed string) (string, error) {
	base := a.policy.Normalize(seed)
	if base == "" {
		return a.Placeholder(ctx)
	}

	next := func() (string, error) { return a.suffixed(base) }
	candidate := base
	if len(base) < a.policy.MinLength {
		var err error
		if candidate, err = next(); err != nil {
			return "", err
		}
	}
	return a.claim(ctx, base, candidate, next)
}

// Placeholder allocates a fully random marker prefixed username, used when
// the real choice is deferred to the user.
func (a *UsernameAllocator) Placeholder(ctx context.Context) (string, error) {
	candidate, err := a.randomToken()
	if err != nil {
		return "", err
	}
	return a.claim(ctx, a.policy.RandomMarker, candidate, a.randomToken)
}

// claim checks candidate, then values drawn from next, until one is free.
func (a *UsernameAllocator) claim(ctx context.Context, base, candidate string, next func() (string, error)) (string, error) {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		exists, err := a.store.UsernameExists(ctx, candidate)
		if err != nil {
			return "", err
		}

		if !exists {
			if attempt > 1 {
				a.logger.Debug("username allocated after collisions", "attempts", attempt)
			}
			return candidate, nil
		}

		if a.policy.MaxAttempts > 0 && attempt >= a.policy.MaxAttempts {
			a.logger.Warn("username allocation exhausted", "base", base, "attempts", attempt)
			return "", ErrUsernameExhausted
		}

		if candidate, err = next(); err != nil {
			return "", err
		}
	}
}

func (a *UsernameAllocator) suffixed(base string) (string, error) {
	n := a.policy.SuffixLength
	if short := a.policy.MinLength - len(base); short > n {
		n = short
	}

	suffix, err := a.hex(n)
	if err != nil {
		return "", err
	}

	limit := a.policy.MaxLength - len(suffix)
	if len(base) > limit {
		base = base[:limit]
	}
	return base + suffix, nil
}

func (a *UsernameAllocator) randomToken() (string, error) {
	n := randomTokenLen
	if room := a.policy.MaxLength - len(a.policy.RandomMarker); n > room {
		n = room
	}

	token, err := a.hex(n)
	if err != nil {
		return "", err
	}
	return a.policy.RandomMarker + token, nil
}

func (a *UsernameAllocator) hex(n int) (string, error) {
	b := make([]byte, (n+1)/2)
	if _, err := io.ReadFull(a.random, b); err != nil {
		return "", fmt.Errorf("username suffix: %w", err)
	}
	return hex.EncodeToString(b)[:n], nil
}
