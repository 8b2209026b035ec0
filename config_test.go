package veaauth

import (
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "defaults",
			mutate:    func(*Config) {},
			wantValid: true,
		},
		{
			name: "jwt leeway valid",
			mutate: func(c *Config) {
				c.JWT.Leeway = 45 * time.Second
			},
			wantValid: true,
		},
		{
			name: "jwt leeway invalid",
			mutate: func(c *Config) {
				c.JWT.Leeway = 3 * time.Minute
			},
			wantValid: false,
		},
		{
			name: "refresh shorter than access",
			mutate: func(c *Config) {
				c.JWT.RefreshTTL = time.Minute
			},
			wantValid: false,
		},
		{
			name: "missing refresh secret",
			mutate: func(c *Config) {
				c.JWT.RefreshSecret = ""
			},
			wantValid: false,
		},
		{
			name: "bcrypt cost too low",
			mutate: func(c *Config) {
				c.Password.BcryptCost = 3
			},
			wantValid: false,
		},
		{
			name: "min length beyond bcrypt limit",
			mutate: func(c *Config) {
				c.Password.MinLength = 73
			},
			wantValid: false,
		},
		{
			name: "zero lockout window",
			mutate: func(c *Config) {
				c.Lockout.Window = 0
			},
			wantValid: false,
		},
		{
			name: "no hash slots",
			mutate: func(c *Config) {
				c.Password.MaxConcurrentHashes = 0
			},
			wantValid: false,
		},
		{
			name: "audit without buffer",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
		{
			name: "missing cipher secret",
			mutate: func(c *Config) {
				c.Cipher.Secret = ""
			},
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tt.wantValid && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestConfigProductionRejectsDevSecrets(t *testing.T) {
	strong := func(c *Config) {
		c.Production = true
		c.JWT.AccessSecret = strings.Repeat("a", 32)
		c.JWT.RefreshSecret = strings.Repeat("r", 32)
		c.Cipher.Secret = "prod-cipher-secret"
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"dev access secret", func(c *Config) { c.JWT.AccessSecret = DevAccessTokenSecret }},
		{"dev refresh secret", func(c *Config) { c.JWT.RefreshSecret = DevRefreshTokenSecret }},
		{"dev cipher secret", func(c *Config) { c.Cipher.Secret = DevEncryptionSecret }},
		{"shared token secret", func(c *Config) { c.JWT.RefreshSecret = c.JWT.AccessSecret }},
		{"short token secret", func(c *Config) { c.JWT.AccessSecret = "short" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			strong(&cfg)
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected production validation error")
			}
		})
	}

	cfg := DefaultConfig()
	strong(&cfg)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("strong production config rejected: %v", err)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("VEA_ENV", "development")
	t.Setenv("VEA_ACCESS_TOKEN_TTL", "10m")
	t.Setenv("VEA_LOGIN_MAX_ATTEMPTS", "3")
	t.Setenv("VEA_BCRYPT_COST", "10")
	t.Setenv("VEA_ENCRYPTION_SALT", "school-salt")
	t.Setenv("VEA_AUDIT_ENABLED", "true")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Production {
		t.Fatal("development env must not enable production")
	}
	if cfg.JWT.AccessTTL != 10*time.Minute || cfg.JWT.RefreshTTL != 168*time.Hour {
		t.Fatalf("unexpected TTLs %v / %v", cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)
	}
	if cfg.Lockout.MaxAttempts != 3 || cfg.Lockout.LockoutDuration != 5*time.Minute {
		t.Fatalf("unexpected lockout %+v", cfg.Lockout)
	}
	if cfg.Password.BcryptCost != 10 || cfg.Cipher.Salt != "school-salt" || !cfg.Audit.Enabled {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.JWT.AccessSecret != DevAccessTokenSecret {
		t.Fatalf("expected dev fallback secret, got %q", cfg.JWT.AccessSecret)
	}
}

func TestLoadConfigFromEnvProductionNeedsSecrets(t *testing.T) {
	t.Setenv("VEA_ENV", "production")

	if _, err := LoadConfigFromEnv(); err == nil {
		t.Fatal("production with default secrets must fail")
	}

	t.Setenv("VEA_ACCESS_TOKEN_SECRET", strings.Repeat("a", 40))
	t.Setenv("VEA_REFRESH_TOKEN_SECRET", strings.Repeat("b", 40))
	t.Setenv("VEA_ENCRYPTION_SECRET", "prod-encryption-secret")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Production {
		t.Fatal("expected production")
	}
}

func TestBuildRequiresDirectory(t *testing.T) {
	if _, err := New().Build(); err == nil {
		t.Fatal("expected error without a user directory")
	}
}

func TestBuilderSingleUse(t *testing.T) {
	env := newTestEnv(t, nil)
	b := New().WithConfig(testConfig()).WithUserDirectory(env.users)
	if _, err := b.Build(); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}

func TestSecurityReport(t *testing.T) {
	env := newTestEnv(t, nil)

	r := env.engine.SecurityReport()
	if r.SigningAlgorithm != "HS256" || !r.DevSecretsInUse || !r.LegacyCipherSalt {
		t.Fatalf("unexpected report %+v", r)
	}
	if r.Lockout.MaxAttempts != 5 || r.Lockout.Window != 15*time.Minute {
		t.Fatalf("unexpected lockout report %+v", r.Lockout)
	}
	if !r.AuditEnabled {
		t.Fatal("audit is enabled in tests")
	}
}
