package password

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultCost is the bcrypt work factor used when Config.Cost is zero.
	DefaultCost = 12
	// MinCost and MaxCost bound Config.Cost.
	MinCost = bcrypt.MinCost
	MaxCost = bcrypt.MaxCost
	// MaxPasswordBytes is the longest input bcrypt will hash without truncation.
	MaxPasswordBytes = 72
)

var (
	// ErrInvalidPassword is returned by Hash for empty or oversized input.
	ErrInvalidPassword = errors.New("password: invalid password input")
	// ErrInvalidConfig is returned by New for out-of-range parameters.
	ErrInvalidConfig = errors.New("password: invalid config")
)

// Config controls the bcrypt work factor.
type Config struct {
	Cost int
}

// Hasher produces bcrypt hashes and verifies bcrypt and legacy argon2id hashes.
// It is safe for concurrent use.
type Hasher struct {
	cost int
}

// New validates cfg and returns a Hasher.
func New(cfg Config) (*Hasher, error) {
	cost := cfg.Cost
	if cost == 0 {
		cost = DefaultCost
	}
	if cost < MinCost || cost > MaxCost {
		return nil, fmt.Errorf("%w: cost must be between %d and %d", ErrInvalidConfig, MinCost, MaxCost)
	}
	return &Hasher{cost: cost}, nil
}

// Cost returns the configured bcrypt work factor.
func (h *Hasher) Cost() int {
	return h.cost
}

// Hash returns a bcrypt hash of plain.
func (h *Hasher) Hash(plain string) (string, error) {
	if plain == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPassword)
	}
	if len(plain) > MaxPasswordBytes {
		return "", fmt.Errorf("%w: longer than %d bytes", ErrInvalidPassword, MaxPasswordBytes)
	}

	out, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Verify reports whether plain matches encoded. Empty, truncated or
// unrecognised hashes yield false.
func (h *Hasher) Verify(plain, encoded string) bool {
	switch {
	case encoded == "":
		return false
	case isBcrypt(encoded):
		return bcrypt.CompareHashAndPassword([]byte(encoded), []byte(plain)) == nil
	case strings.HasPrefix(encoded, "$"+argon2ID+"$"):
		return verifyArgon2id(plain, encoded)
	default:
		return false
	}
}

// NeedsRehash reports whether encoded should be replaced by a fresh Hash.
// Unparseable hashes report false; they cannot be verified in the first place.
func (h *Hasher) NeedsRehash(encoded string) bool {
	if strings.HasPrefix(encoded, "$"+argon2ID+"$") {
		_, err := parsePHC(encoded)
		return err == nil
	}
	if !isBcrypt(encoded) {
		return false
	}
	cost, err := bcrypt.Cost([]byte(encoded))
	if err != nil {
		return false
	}
	return cost < h.cost
}

func isBcrypt(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") ||
		strings.HasPrefix(encoded, "$2b$") ||
		strings.HasPrefix(encoded, "$2y$")
}
