package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/goliatone/go-errors"
)

const (
	// MinSecretLength is the shortest configuration secret accepted for key derivation.
	MinSecretLength = 16
	// NonceSize is the GCM nonce size in bytes (96 bits).
	NonceSize = 12
	// TagSize is the GCM authentication tag size in bytes.
	TagSize = 16
	// Separator joins the base64 segments of a payload.
	Separator = ":"
)

const TextCodeCipherUnavailable = "SECRET_CIPHER_UNAVAILABLE"

// ErrCipherUnavailable is returned by Encrypt when no usable key was configured.
var ErrCipherUnavailable = errors.New("secret cipher unavailable", errors.CategoryInternal).
	WithTextCode(TextCodeCipherUnavailable).
	WithCode(errors.CodeInternal)

// Key is a 256 bit AES key derived from a configuration secret.
type Key struct {
	b [sha256.Size]byte
}

const TextCodeSecretTooShort = "SECRET_TOO_SHORT"

// ErrSecretTooShort is returned by DeriveKey when the primary secret is set
// but shorter than MinSecretLength.
var ErrSecretTooShort = errors.New(fmt.Sprintf("encryption secret must be at least %d characters", MinSecretLength), errors.CategoryValidation).
	WithTextCode(TextCodeSecretTooShort).
	WithCode(errors.CodeBadRequest)

// DeriveKey hashes the primary secret. The fallback is used only when the
// primary is empty. It returns a nil key and no error when neither is set,
// and ErrSecretTooShort when the chosen secret is too short.
func DeriveKey(primary, fallback string) (*Key, error) {
	s := primary
	if s == "" {
		s = fallback
	}
	if s == "" {
		return nil, nil
	}
	if len(s) < MinSecretLength {
		return nil, ErrSecretTooShort
	}
	return &Key{b: sha256.Sum256([]byte(s))}, nil
}

// Cipher encrypts and decrypts opaque secrets with AES-256-GCM.
// A Cipher built from a nil key is unavailable: Encrypt returns
// ErrCipherUnavailable and Decrypt reports nothing.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a cipher around an already derived key.
func NewCipher(key *Key) *Cipher {
	if key == nil {
		return &Cipher{}
	}

	block, err := aes.NewCipher(key.b[:])
	if err != nil {
		return &Cipher{}
	}

	gcm, err := cipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		return &Cipher{}
	}

	return &Cipher{aead: gcm}
}

// NewCipherFromSecrets derives the key with DeriveKey and returns the
// cipher. A short secret leaves the cipher unavailable; use DeriveKey to
// surface the error.
func NewCipherFromSecrets(primary, fallback string) *Cipher {
	key, err := DeriveKey(primary, fallback)
	if err != nil {
		return NewCipher(nil)
	}
	return NewCipher(key)
}

// Available reports whether the cipher has a key.
func (c *Cipher) Available() bool {
	return c != nil && c.aead != nil
}

// Encrypt seals plaintext and returns "<b64 iv>:<b64 tag>:<b64 ciphertext>".
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if !c.Available() {
		return "", ErrCipherUnavailable
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("secret: generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	split := len(sealed) - TagSize
	ciphertext, tag := sealed[:split], sealed[split:]

	return strings.Join([]string{
		base64.StdEncoding.EncodeToString(nonce),
		base64.StdEncoding.EncodeToString(tag),
		base64.StdEncoding.EncodeToString(ciphertext),
	}, Separator), nil
}

// Decrypt opens a payload produced by Encrypt. Any malformed payload,
// wrong key or tag mismatch yields ("", false).
func (c *Cipher) Decrypt(payload string) (string, bool) {
	if !c.Available() || payload == "" {
		return "", false
	}

	parts := strings.Split(payload, Separator)
	if len(parts) != 3 {
		return "", false
	}

	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil || len(nonce) != NonceSize {
		return "", false
	}

	tag, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil || len(tag) != TagSize {
		return "", false
	}

	ciphertext, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return "", false
	}

	sealed := make([]byte, 0, len(ciphertext)+TagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", false
	}

	return string(plaintext), true
}
