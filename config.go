package veaauth

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/umarmf343/veaauth/lockout"
	"github.com/umarmf343/veaauth/password"
)

// Development fallback secrets. Validate rejects them in production.
const (
	DevAccessTokenSecret  = "vea-dev-access-token-secret"
	DevRefreshTokenSecret = "vea-dev-refresh-token-secret"
	DevEncryptionSecret   = "vea-dev-encryption-secret"
)

// Config is the full engine configuration. Start from DefaultConfig.
type Config struct {
	// Production forbids development secrets.
	Production bool
	JWT        JWTConfig
	Lockout    LockoutConfig
	Password   PasswordConfig
	Cipher     CipherConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig holds token signing secrets and lifetimes. Access and refresh
// tokens are signed with HS256 under separate secrets.
type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

type LockoutConfig struct {
	MaxAttempts     int
	Window          time.Duration
	LockoutDuration time.Duration
	// MaxTrackedIdentifiers bounds the in-memory store built when no
	// LockoutStore is supplied.
	MaxTrackedIdentifiers int
}

/*
====================================
PASSWORD CONFIG
====================================
*/

type PasswordConfig struct {
	BcryptCost int
	MinLength  int
	// MaxConcurrentHashes bounds bcrypt work running at once.
	MaxConcurrentHashes int
	// UpgradeOnLogin rehashes legacy or low-cost hashes after a successful login.
	UpgradeOnLogin bool
}

/*
====================================
CIPHER CONFIG
====================================
*/

// CipherConfig configures the sensitive data cipher. An empty Salt keeps
// the legacy fixed salt so existing payloads stay readable.
type CipherConfig struct {
	Secret string
	Salt   string
}

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns development defaults.
func DefaultConfig() Config {
	return Config{
		Production: false,
		JWT: JWTConfig{
			AccessSecret:  DevAccessTokenSecret,
			RefreshSecret: DevRefreshTokenSecret,
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			Issuer:        "vea-portal",
		},
		Lockout: LockoutConfig{
			MaxAttempts:           lockout.DefaultMaxAttempts,
			Window:                lockout.DefaultWindow,
			LockoutDuration:       lockout.DefaultLockoutDuration,
			MaxTrackedIdentifiers: 100000,
		},
		Password: PasswordConfig{
			BcryptCost:          password.DefaultCost,
			MinLength:           8,
			MaxConcurrentHashes: runtime.NumCPU(),
			UpgradeOnLogin:      true,
		},
		Cipher: CipherConfig{
			Secret: DevEncryptionSecret,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func (c Config) lockoutConfig() lockout.Config {
	return lockout.Config{
		MaxAttempts:     c.Lockout.MaxAttempts,
		Window:          c.Lockout.Window,
		LockoutDuration: c.Lockout.LockoutDuration,
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks c for internal consistency.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessSecret == "" || c.JWT.RefreshSecret == "" {
		return errors.New("JWT access and refresh secrets are required")
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be >= AccessTTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be within [0, 2m]")
	}

	// Lockout
	if err := c.lockoutConfig().Validate(); err != nil {
		return err
	}
	if c.Lockout.MaxTrackedIdentifiers < 0 {
		return errors.New("Lockout MaxTrackedIdentifiers must be >= 0")
	}

	// Password
	if c.Password.BcryptCost < password.MinCost || c.Password.BcryptCost > password.MaxCost {
		return fmt.Errorf("Password BcryptCost must be within [%d, %d]", password.MinCost, password.MaxCost)
	}
	if c.Password.MinLength < 1 || c.Password.MinLength > password.MaxPasswordBytes {
		return fmt.Errorf("Password MinLength must be within [1, %d]", password.MaxPasswordBytes)
	}
	if c.Password.MaxConcurrentHashes <= 0 {
		return errors.New("Password MaxConcurrentHashes must be > 0")
	}

	// Cipher
	if c.Cipher.Secret == "" {
		return errors.New("Cipher Secret is required")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	if c.Production {
		return c.validateProduction()
	}
	return nil
}

func (c *Config) validateProduction() error {
	switch {
	case c.JWT.AccessSecret == DevAccessTokenSecret:
		return errors.New("production requires a non-default access token secret")
	case c.JWT.RefreshSecret == DevRefreshTokenSecret:
		return errors.New("production requires a non-default refresh token secret")
	case c.Cipher.Secret == DevEncryptionSecret:
		return errors.New("production requires a non-default encryption secret")
	case c.JWT.AccessSecret == c.JWT.RefreshSecret:
		return errors.New("production requires distinct access and refresh secrets")
	case len(c.JWT.AccessSecret) < 32 || len(c.JWT.RefreshSecret) < 32:
		return errors.New("production token secrets must be at least 32 bytes")
	}
	return nil
}
