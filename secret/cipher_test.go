package secret_test

import (
	"encoding/base64"
	"strings"
	"sync"
	"testing"

	"github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-identity/secret"
)

func TestCipherRoundTrip(t *testing.T) {
	c := secret.NewCipherFromSecrets("0123456789abcdef", "")
	require.True(t, c.Available())

	tests := []struct {
		name      string
		plaintext string
	}{
		{name: "empty", plaintext: ""},
		{name: "api key", plaintext: "sk-test-123"},
		{name: "unicode", plaintext: "clé secrète ✓"},
		{name: "contains separator", plaintext: "a:b:c"},
		{name: "multi kilobyte", plaintext: strings.Repeat("0123456789abcdef", 512)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := c.Encrypt(tt.plaintext)
			require.NoError(t, err)

			got, ok := c.Decrypt(payload)
			require.True(t, ok)
			assert.Equal(t, tt.plaintext, got)
		})
	}
}

func TestCipherScenarioDifferentSecret(t *testing.T) {
	enc := secret.NewCipherFromSecrets("0123456789abcdef", "")
	payload, err := enc.Encrypt("sk-test-123")
	require.NoError(t, err)

	same := secret.NewCipherFromSecrets("0123456789abcdef", "")
	got, ok := same.Decrypt(payload)
	require.True(t, ok)
	assert.Equal(t, "sk-test-123", got)

	other := secret.NewCipherFromSecrets("fedcba9876543210", "")
	got, ok = other.Decrypt(payload)
	assert.False(t, ok)
	assert.Empty(t, got)
}

func TestCipherPayloadFormat(t *testing.T) {
	c := secret.NewCipherFromSecrets("0123456789abcdef", "")

	payload, err := c.Encrypt("hello")
	require.NoError(t, err)

	parts := strings.Split(payload, secret.Separator)
	require.Len(t, parts, 3)

	iv, err := base64.StdEncoding.DecodeString(parts[0])
	require.NoError(t, err)
	assert.Len(t, iv, secret.NonceSize)

	tag, err := base64.StdEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	assert.Len(t, tag, secret.TagSize)

	ct, err := base64.StdEncoding.DecodeString(parts[2])
	require.NoError(t, err)
	assert.Len(t, ct, len("hello"))
	assert.NotContains(t, payload, "hello")
}

func TestCipherFreshNoncePerCall(t *testing.T) {
	c := secret.NewCipherFromSecrets("0123456789abcdef", "")

	a, err := c.Encrypt("same")
	require.NoError(t, err)
	b, err := c.Encrypt("same")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, strings.Split(a, ":")[0], strings.Split(b, ":")[0])
}

func TestCipherTamperedTag(t *testing.T) {
	c := secret.NewCipherFromSecrets("0123456789abcdef", "")

	payload, err := c.Encrypt("sk-test-123")
	require.NoError(t, err)

	parts := strings.Split(payload, ":")
	tag, err := base64.StdEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	tag[0] ^= 0x01
	parts[1] = base64.StdEncoding.EncodeToString(tag)

	got, ok := c.Decrypt(strings.Join(parts, ":"))
	assert.False(t, ok)
	assert.Empty(t, got)
}

func TestCipherDecryptMalformed(t *testing.T) {
	c := secret.NewCipherFromSecrets("0123456789abcdef", "")

	valid, err := c.Encrypt("value")
	require.NoError(t, err)
	parts := strings.Split(valid, ":")

	tests := []struct {
		name    string
		payload string
	}{
		{name: "empty", payload: ""},
		{name: "plaintext", payload: "sk-test-123"},
		{name: "two segments", payload: parts[0] + ":" + parts[1]},
		{name: "four segments", payload: valid + ":AAAA"},
		{name: "bad base64 iv", payload: "!!!:" + parts[1] + ":" + parts[2]},
		{name: "short iv", payload: base64.StdEncoding.EncodeToString([]byte("short")) + ":" + parts[1] + ":" + parts[2]},
		{name: "short tag", payload: parts[0] + ":" + base64.StdEncoding.EncodeToString([]byte("tag")) + ":" + parts[2]},
		{name: "bad base64 ciphertext", payload: parts[0] + ":" + parts[1] + ":%%%"},
		{name: "swapped segments", payload: parts[1] + ":" + parts[0] + ":" + parts[2]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				got, ok := c.Decrypt(tt.payload)
				assert.False(t, ok)
				assert.Empty(t, got)
			})
		})
	}
}

func TestCipherUnavailable(t *testing.T) {
	tests := []struct {
		name     string
		primary  string
		fallback string
	}{
		{name: "no secrets", primary: "", fallback: ""},
		{name: "short primary", primary: "too-short", fallback: ""},
		{name: "both short", primary: "short", fallback: "also-short"},
		{name: "short primary with valid fallback", primary: "too-short", fallback: "fallback-secret-0001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := secret.NewCipherFromSecrets(tt.primary, tt.fallback)
			assert.False(t, c.Available())

			_, err := c.Encrypt("value")
			require.Error(t, err)
			assert.True(t, errors.Is(err, secret.ErrCipherUnavailable))

			got, ok := c.Decrypt("AAAA:BBBB:CCCC")
			assert.False(t, ok)
			assert.Empty(t, got)
		})
	}

	var nilCipher *secret.Cipher
	assert.False(t, nilCipher.Available())
	_, ok := nilCipher.Decrypt("x:y:z")
	assert.False(t, ok)
}

func TestCipherFallbackSecret(t *testing.T) {
	withFallback := secret.NewCipherFromSecrets("", "fallback-secret-0001")
	require.True(t, withFallback.Available())

	payload, err := withFallback.Encrypt("value")
	require.NoError(t, err)

	key, err := secret.DeriveKey("fallback-secret-0001", "")
	require.NoError(t, err)
	direct := secret.NewCipher(key)
	got, ok := direct.Decrypt(payload)
	require.True(t, ok)
	assert.Equal(t, "value", got)

	primary := secret.NewCipherFromSecrets("primary-secret-0001", "fallback-secret-0001")
	_, ok = primary.Decrypt(payload)
	assert.False(t, ok)
}

func TestDeriveKey(t *testing.T) {
	tests := []struct {
		name     string
		primary  string
		fallback string
		wantKey  bool
		wantErr  error
	}{
		{name: "primary", primary: "primary-secret-0001", fallback: "fallback-secret-0001", wantKey: true},
		{name: "fallback when primary is absent", fallback: "fallback-secret-0001", wantKey: true},
		{name: "short primary does not fall back", primary: "too-short", fallback: "fallback-secret-0001", wantErr: secret.ErrSecretTooShort},
		{name: "short fallback", fallback: "short", wantErr: secret.ErrSecretTooShort},
		{name: "nothing configured"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := secret.DeriveKey(tt.primary, tt.fallback)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
				assert.Nil(t, key)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKey, key != nil)
		})
	}
}

func TestCipherConcurrentUse(t *testing.T) {
	c := secret.NewCipherFromSecrets("0123456789abcdef", "")

	var wg sync.WaitGroup
	errs := make(chan string, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			payload, err := c.Encrypt("concurrent")
			if err != nil {
				errs <- err.Error()
				return
			}
			if got, ok := c.Decrypt(payload); !ok || got != "concurrent" {
				errs <- "round trip failed"
			}
		}()
	}
	wg.Wait()
	close(errs)

	for e := range errs {
		t.Error(e)
	}
}
