// Command vea-authd serves the portal authentication API over HTTP.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"

	"github.com/umarmf343/veaauth"
	"github.com/umarmf343/veaauth/audit/sentrysink"
	"github.com/umarmf343/veaauth/directory"
)

func main() {
	_ = godotenv.Load()

	if err := run(); err != nil {
		slog.Error("vea-authd stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	srvCfg, err := loadServerConfig()
	if err != nil {
		return err
	}
	logger := srvCfg.newLogger(os.Stderr)

	cfg, err := veaauth.LoadConfigFromEnv()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	users, err := directory.OpenJSONFile(srvCfg.UsersFile)
	if err != nil {
		return err
	}

	stores, err := openBackends(ctx, srvCfg, cfg.Lockout.MaxTrackedIdentifiers, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	builder := veaauth.New().
		WithConfig(cfg).
		WithUserDirectory(users).
		WithRefreshStore(stores.refresh).
		WithLockoutStore(stores.lockout).
		WithLogger(logger).
		WithAuditSink(veaauth.NewSlogSink(logger.With("component", "audit")))

	if srvCfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              srvCfg.SentryDSN,
			Environment:      srvCfg.Env,
			AttachStacktrace: true,
		})
		if err != nil {
			logger.Error("init sentry failed", "error", err)
		} else {
			sink := sentrysink.New(sentrysink.Options{})
			defer sink.Flush(2 * time.Second)
			builder = builder.WithAuditSink(sink)
		}
	}

	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	for _, w := range engine.SecurityReport().Warnings {
		logger.Warn("security posture", "warning", w)
	}

	srv := &server{engine: engine, logger: logger}
	httpServer := &http.Server{
		Addr:              srvCfg.HTTPAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go purgeLoop(ctx, engine, srvCfg.PurgeInterval, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srvCfg.HTTPAddr, "production", cfg.Production)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), srvCfg.ShutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func purgeLoop(ctx context.Context, engine *veaauth.Engine, every time.Duration, logger *slog.Logger) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := engine.PurgeExpiredRefreshTokens(ctx)
			if err != nil {
				logger.Warn("purge refresh tokens failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("purged refresh tokens", "count", n)
			}
		}
	}
}
