package identity

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-identity/secret"
)

var secretNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// SecretStatus reports whether a named secret has a stored value. The
// value itself is never exposed.
type SecretStatus struct {
	Name       string `json:"name"`
	Configured bool   `json:"configured"`
}

// SecretVault stores third party API keys encrypted at rest.
type SecretVault struct {
	store    SecretStore
	cipher   *secret.Cipher
	known    []string
	activity ActivitySink
	logger   Logger
}

type VaultOption func(*SecretVault)

// WithKnownSecrets lists names Status always reports, configured or not.
func WithKnownSecrets(names ...string) VaultOption {
	return func(v *SecretVault) {
		for _, n := range names {
			if n = normalizeSecretName(n); secretNamePattern.MatchString(n) {
				v.known = append(v.known, n)
			}
		}
	}
}

func WithVaultActivity(s ActivitySink) VaultOption {
	return func(v *SecretVault) {
		v.activity = normalizeActivitySink(s)
	}
}

func WithVaultLogger(l Logger) VaultOption {
	return func(v *SecretVault) {
		v.logger = resolveLogger(l)
	}
}

func NewSecretVault(store SecretStore, c *secret.Cipher, opts ...VaultOption) *SecretVault {
	v := &SecretVault{
		store:    store,
		cipher:   c,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	if !v.cipher.Available() {
		v.logger.Warn("secret cipher unavailable, API secrets will not be stored")
	}
	return v
}

// Available reports whether the vault can store secrets.
func (v *SecretVault) Available() bool {
	return v.cipher.Available()
}

// Save encrypts plaintext under name. An empty plaintext clears the secret.
// stored is false when the cipher is unavailable, in which case nothing
// is written.
func (v *SecretVault) Save(ctx context.Context, userID uuid.UUID, name, plaintext string) (stored bool, err error) {
	name = normalizeSecretName(name)
	if !secretNamePattern.MatchString(name) {
		return false, ErrInvalidSecretName
	}

	if plaintext == "" {
		return false, v.Clear(ctx, userID, name)
	}

	if !v.cipher.Available() {
		v.logger.Warn("secret not stored, cipher unavailable", "name", name, "user_id", userID.String())
		return false, nil
	}

	payload, err := v.cipher.Encrypt(plaintext)
	if err != nil {
		return false, err
	}

	if _, err := v.store.SaveSecret(ctx, &APISecret{
		UserID:  userID,
		Name:    name,
		Payload: payload,
	}); err != nil {
		return false, err
	}

	v.record(ctx, ActivityEventSecretSaved, userID, name)
	return true, nil
}

// Resolve decrypts the named secret. A missing, corrupt or undecryptable
// payload reports ok=false without an error; only store failures error.
func (v *SecretVault) Resolve(ctx context.Context, userID uuid.UUID, name string) (value string, ok bool, err error) {
	name = normalizeSecretName(name)
	if !secretNamePattern.MatchString(name) {
		return "", false, ErrInvalidSecretName
	}

	rec, err := v.store.FindSecret(ctx, userID, name)
	if err != nil {
		if IsNotFound(err) {
			return "", false, nil
		}
		return "", false, err
	}

	value, ok = v.cipher.Decrypt(rec.Payload)
	if !ok {
		v.logger.Debug("secret payload unreadable, treating as absent", "name", name, "user_id", userID.String())
	}
	return value, ok, nil
}

// Clear removes the named secret. Clearing an absent secret is not an error.
func (v *SecretVault) Clear(ctx context.Context, userID uuid.UUID, name string) error {
	name = normalizeSecretName(name)
	if !secretNamePattern.MatchString(name) {
		return ErrInvalidSecretName
	}

	removed, err := v.store.DeleteSecret(ctx, userID, name)
	if err != nil {
		return err
	}
	if removed > 0 {
		v.record(ctx, ActivityEventSecretCleared, userID, name)
	}
	return nil
}

// Status lists the known secret names plus every stored one.
func (v *SecretVault) Status(ctx context.Context, userID uuid.UUID) ([]SecretStatus, error) {
	records, err := v.store.ListSecrets(ctx, userID)
	if err != nil {
		return nil, err
	}

	configured := make(map[string]bool, len(records)+len(v.known))
	for _, n := range v.known {
		configured[n] = false
	}
	for _, rec := range records {
		configured[rec.Name] = rec.Payload != ""
	}

	out := make([]SecretStatus, 0, len(configured))
	for name, ok := range configured {
		out = append(out, SecretStatus{Name: name, Configured: ok})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (v *SecretVault) record(ctx context.Context, event ActivityEventType, userID uuid.UUID, name string) {
	err := v.activity.Record(ctx, ActivityEvent{
		EventType:  event,
		UserID:     userID.String(),
		Metadata:   map[string]any{"name": name},
		OccurredAt: time.Now(),
	})
	if err != nil {
		v.logger.Warn("activity sink failed", "event", string(event), "error", err)
	}
}

func normalizeSecretName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
