package veaauth

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// envConfig mirrors the environment variables understood by
// LoadConfigFromEnv.
type envConfig struct {
	Env                 string        `env:"VEA_ENV" env-default:"development"`
	AccessTokenSecret   string        `env:"VEA_ACCESS_TOKEN_SECRET" env-default:"vea-dev-access-token-secret"`
	RefreshTokenSecret  string        `env:"VEA_REFRESH_TOKEN_SECRET" env-default:"vea-dev-refresh-token-secret"`
	EncryptionSecret    string        `env:"VEA_ENCRYPTION_SECRET" env-default:"vea-dev-encryption-secret"`
	EncryptionSalt      string        `env:"VEA_ENCRYPTION_SALT"`
	AccessTokenTTL      time.Duration `env:"VEA_ACCESS_TOKEN_TTL" env-default:"15m"`
	RefreshTokenTTL     time.Duration `env:"VEA_REFRESH_TOKEN_TTL" env-default:"168h"`
	LoginMaxAttempts    int           `env:"VEA_LOGIN_MAX_ATTEMPTS" env-default:"5"`
	LoginAttemptWindow  time.Duration `env:"VEA_LOGIN_ATTEMPT_WINDOW" env-default:"15m"`
	LoginLockout        time.Duration `env:"VEA_LOGIN_LOCKOUT_DURATION" env-default:"5m"`
	BcryptCost          int           `env:"VEA_BCRYPT_COST" env-default:"12"`
	TokenIssuer         string        `env:"VEA_TOKEN_ISSUER" env-default:"vea-portal"`
	TokenAudience       string        `env:"VEA_TOKEN_AUDIENCE"`
	AuditEnabled        bool          `env:"VEA_AUDIT_ENABLED" env-default:"false"`
	AuditBufferSize     int           `env:"VEA_AUDIT_BUFFER_SIZE" env-default:"1024"`
	MaxConcurrentHashes int           `env:"VEA_MAX_CONCURRENT_HASHES"`
}

// LoadConfigFromEnv builds a Config from DefaultConfig overlaid with the
// VEA_* environment variables, then validates it. VEA_ENV=production turns
// on Production.
func LoadConfigFromEnv() (Config, error) {
	var env envConfig
	if err := cleanenv.ReadEnv(&env); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}

	cfg := env.apply(DefaultConfig())
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (env envConfig) apply(cfg Config) Config {
	cfg.Production = isProductionEnv(env.Env)

	cfg.JWT.AccessSecret = env.AccessTokenSecret
	cfg.JWT.RefreshSecret = env.RefreshTokenSecret
	cfg.JWT.AccessTTL = env.AccessTokenTTL
	cfg.JWT.RefreshTTL = env.RefreshTokenTTL
	cfg.JWT.Issuer = env.TokenIssuer
	cfg.JWT.Audience = env.TokenAudience

	cfg.Lockout.MaxAttempts = env.LoginMaxAttempts
	cfg.Lockout.Window = env.LoginAttemptWindow
	cfg.Lockout.LockoutDuration = env.LoginLockout

	cfg.Password.BcryptCost = env.BcryptCost
	if env.MaxConcurrentHashes > 0 {
		cfg.Password.MaxConcurrentHashes = env.MaxConcurrentHashes
	}

	cfg.Cipher.Secret = env.EncryptionSecret
	cfg.Cipher.Salt = env.EncryptionSalt

	cfg.Audit.Enabled = env.AuditEnabled
	cfg.Audit.BufferSize = env.AuditBufferSize
	return cfg
}

func isProductionEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "production", "prod":
		return true
	}
	return false
}
