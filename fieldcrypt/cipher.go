package fieldcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

const (
	// AdditionalData is authenticated with every payload.
	AdditionalData = "vea-portal:sensitive-data:v1"

	ivSize  = 12
	tagSize = 16
	keySize = 32
)

// LegacySalt is the application-wide KDF salt used by payloads written before
// the salt became configurable.
var LegacySalt = []byte("vea-portal-sensitive-data-salt")

var (
	// ErrInvalidFormat is returned when a payload is not three hex segments
	// of the expected sizes.
	ErrInvalidFormat = errors.New("fieldcrypt: invalid payload format")
	// ErrAuthenticationFailed is returned when the GCM tag does not verify.
	ErrAuthenticationFailed = errors.New("fieldcrypt: authentication failed")
	// ErrEmptySecret is returned by New when no secret is given.
	ErrEmptySecret = errors.New("fieldcrypt: empty secret")
)

// ScryptParams are the scrypt cost parameters used to derive the key.
type ScryptParams struct {
	N int
	R int
	P int
}

// DefaultScryptParams matches the parameters of the existing payloads.
var DefaultScryptParams = ScryptParams{N: 1 << 14, R: 8, P: 1}

type options struct {
	salt   []byte
	params ScryptParams
}

// Option configures New.
type Option func(*options)

// WithSalt replaces LegacySalt. Payloads written under a different salt will
// fail with ErrAuthenticationFailed.
func WithSalt(salt []byte) Option {
	return func(o *options) {
		if len(salt) > 0 {
			o.salt = append([]byte(nil), salt...)
		}
	}
}

// WithScryptParams overrides the key derivation cost.
func WithScryptParams(p ScryptParams) Option {
	return func(o *options) {
		o.params = p
	}
}

// Cipher is an AES-256-GCM field cipher. It is safe for concurrent use.
type Cipher struct {
	aead       cipher.AEAD
	legacySalt bool
}

// New derives the key for secret and returns a ready Cipher. Key derivation
// is deliberately slow; build one Cipher per process.
func New(secret string, opts ...Option) (*Cipher, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	o := options{salt: LegacySalt, params: DefaultScryptParams}
	for _, opt := range opts {
		opt(&o)
	}

	key, err := scrypt.Key([]byte(secret), o.salt, o.params.N, o.params.R, o.params.P, keySize)
	if err != nil {
		return nil, fmt.Errorf("fieldcrypt: derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, err
	}

	return &Cipher{
		aead:       aead,
		legacySalt: string(o.salt) == string(LegacySalt),
	}, nil
}

// UsesLegacySalt reports whether the key was derived from LegacySalt.
func (c *Cipher) UsesLegacySalt() bool {
	return c.legacySalt
}

// Encrypt seals plaintext under a fresh random IV.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("fieldcrypt: read iv: %w", err)
	}

	sealed := c.aead.Seal(nil, iv, []byte(plaintext), []byte(AdditionalData))
	split := len(sealed) - tagSize
	ciphertext, tag := sealed[:split], sealed[split:]

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ciphertext), nil
}

// Decrypt opens a payload produced by Encrypt.
func (c *Cipher) Decrypt(payload string) (string, error) {
	iv, tag, ciphertext, err := splitPayload(payload)
	if err != nil {
		return "", err
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := c.aead.Open(nil, iv, sealed, []byte(AdditionalData))
	if err != nil {
		return "", ErrAuthenticationFailed
	}
	return string(plaintext), nil
}

func splitPayload(payload string) (iv, tag, ciphertext []byte, err error) {
	parts := strings.Split(payload, ":")
	if len(parts) != 3 {
		return nil, nil, nil, ErrInvalidFormat
	}

	if iv, err = hex.DecodeString(parts[0]); err != nil || len(iv) != ivSize {
		return nil, nil, nil, ErrInvalidFormat
	}
	if tag, err = hex.DecodeString(parts[1]); err != nil || len(tag) != tagSize {
		return nil, nil, nil, ErrInvalidFormat
	}
	if ciphertext, err = hex.DecodeString(parts[2]); err != nil {
		return nil, nil, nil, ErrInvalidFormat
	}
	return iv, tag, ciphertext, nil
}
