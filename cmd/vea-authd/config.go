package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// serverConfig holds the process settings. Engine settings are read
// separately by veaauth.LoadConfigFromEnv.
type serverConfig struct {
	Env      string `env:"VEA_ENV" env-default:"development"`
	HTTPAddr string `env:"VEA_HTTP_ADDR" env-default:":8080"`
	LogLevel string `env:"VEA_LOG_LEVEL" env-default:"info"`
	// LogFormat is text or json.
	LogFormat string `env:"VEA_LOG_FORMAT" env-default:"json"`

	UsersFile string `env:"VEA_USERS_FILE" env-default:"users.json"`

	// RefreshBackend is one of memory, file, redis, sqlite, postgres.
	RefreshBackend string `env:"VEA_REFRESH_BACKEND" env-default:"memory"`
	RefreshFile    string `env:"VEA_REFRESH_FILE" env-default:"refresh-tokens.json"`
	// LockoutBackend is memory or redis.
	LockoutBackend string `env:"VEA_LOCKOUT_BACKEND" env-default:"memory"`

	RedisAddr     string `env:"VEA_REDIS_ADDR"`
	RedisPassword string `env:"VEA_REDIS_PASSWORD"`
	RedisPrefix   string `env:"VEA_REDIS_PREFIX" env-default:"vea:"`
	// EmbeddedRedis starts an in-process miniredis when RedisAddr is empty.
	EmbeddedRedis bool `env:"VEA_EMBEDDED_REDIS" env-default:"false"`

	SQLitePath  string `env:"VEA_SQLITE_PATH" env-default:"vea-auth.db"`
	DatabaseURL string `env:"VEA_DATABASE_URL"`

	PurgeInterval   time.Duration `env:"VEA_PURGE_INTERVAL" env-default:"1h"`
	ShutdownTimeout time.Duration `env:"VEA_SHUTDOWN_TIMEOUT" env-default:"10s"`

	SentryDSN string `env:"SENTRY_DSN"`
}

func loadServerConfig() (serverConfig, error) {
	var cfg serverConfig
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return serverConfig{}, fmt.Errorf("read environment: %w", err)
	}

	switch cfg.RefreshBackend {
	case backendMemory, backendFile, backendRedis, backendSQLite, backendPostgres:
	default:
		return serverConfig{}, fmt.Errorf("VEA_REFRESH_BACKEND: unknown backend %q", cfg.RefreshBackend)
	}
	switch cfg.LockoutBackend {
	case backendMemory, backendRedis:
	default:
		return serverConfig{}, fmt.Errorf("VEA_LOCKOUT_BACKEND: unknown backend %q", cfg.LockoutBackend)
	}
	if cfg.RefreshBackend == backendPostgres && cfg.DatabaseURL == "" {
		return serverConfig{}, fmt.Errorf("VEA_DATABASE_URL is required for the postgres backend")
	}
	if cfg.needsRedis() && cfg.RedisAddr == "" && !cfg.EmbeddedRedis {
		return serverConfig{}, fmt.Errorf("VEA_REDIS_ADDR is required for the redis backend")
	}
	return cfg, nil
}

func (c serverConfig) needsRedis() bool {
	return c.RefreshBackend == backendRedis || c.LockoutBackend == backendRedis
}

func (c serverConfig) newLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.slogLevel()}
	if strings.EqualFold(c.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func (c serverConfig) slogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
