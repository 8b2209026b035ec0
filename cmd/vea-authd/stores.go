package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/alicebob/miniredis/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"

	"github.com/umarmf343/veaauth"
	"github.com/umarmf343/veaauth/lockout"
	"github.com/umarmf343/veaauth/refresh"
)

const (
	backendMemory   = "memory"
	backendFile     = "file"
	backendRedis    = "redis"
	backendSQLite   = "sqlite"
	backendPostgres = "postgres"
)

// backends are the stores handed to the builder plus their cleanup.
type backends struct {
	refresh veaauth.RefreshStore
	lockout veaauth.LockoutStore
	closers []func()
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackends(ctx context.Context, cfg serverConfig, maxTracked int, logger *slog.Logger) (*backends, error) {
	b := &backends{}

	var client redis.UniversalClient
	if cfg.needsRedis() {
		c, closeRedis, err := openRedis(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		client = c
		b.closers = append(b.closers, closeRedis)
	}

	switch cfg.RefreshBackend {
	case backendMemory:
		b.refresh = refresh.NewMemoryStore()
	case backendFile:
		store, err := refresh.OpenFileStore(cfg.RefreshFile)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("open refresh file: %w", err)
		}
		b.refresh = store
	case backendRedis:
		b.refresh = refresh.NewRedisStore(client, refresh.RedisStoreConfig{Prefix: cfg.RedisPrefix + "rt:"})
	case backendSQLite:
		store, closeDB, err := openSQLStore(ctx, "sqlite3", cfg.SQLitePath, refresh.DialectSQLite)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.refresh = store
		b.closers = append(b.closers, closeDB)
	case backendPostgres:
		store, closeDB, err := openSQLStore(ctx, "pgx", cfg.DatabaseURL, refresh.DialectPostgres)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.refresh = store
		b.closers = append(b.closers, closeDB)
	}

	switch cfg.LockoutBackend {
	case backendMemory:
		b.lockout = lockout.NewMemoryStore(maxTracked)
	case backendRedis:
		b.lockout = lockout.NewRedisStore(client, cfg.RedisPrefix+"lock:")
	}

	logger.Info("stores ready", "refresh", cfg.RefreshBackend, "lockout", cfg.LockoutBackend)
	return b, nil
}

func openRedis(ctx context.Context, cfg serverConfig, logger *slog.Logger) (redis.UniversalClient, func(), error) {
	addr := cfg.RedisAddr
	var mr *miniredis.Miniredis
	if addr == "" {
		var err error
		mr, err = miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start embedded redis: %w", err)
		}
		addr = mr.Addr()
		logger.Warn("using embedded redis; state is lost on restart", "addr", addr)
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{addr},
		Password: cfg.RedisPassword,
	})
	closeFn := func() {
		_ = client.Close()
		if mr != nil {
			mr.Close()
		}
	}

	if err := client.Ping(ctx).Err(); err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, closeFn, nil
}

func openSQLStore(ctx context.Context, driver, dsn string, dialect refresh.Dialect) (*refresh.SQLStore, func(), error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if dialect == refresh.DialectSQLite {
		// sqlite allows one writer; a single connection keeps Rotate serialized.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if err := refresh.Migrate(ctx, db, dialect); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	store, err := refresh.NewSQLStore(db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return store, func() { _ = db.Close() }, nil
}
