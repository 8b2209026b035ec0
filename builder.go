package veaauth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/umarmf343/veaauth/directory"
	"github.com/umarmf343/veaauth/fieldcrypt"
	"github.com/umarmf343/veaauth/internal/audit"
	"github.com/umarmf343/veaauth/internal/flows"
	"github.com/umarmf343/veaauth/jwt"
	"github.com/umarmf343/veaauth/lockout"
	"github.com/umarmf343/veaauth/password"
	"github.com/umarmf343/veaauth/permission"
	"github.com/umarmf343/veaauth/refresh"
)

// Builder assembles an Engine. Configure it during initialization, call
// Build once and discard it.
type Builder struct {
	config Config

	users   UserDirectory
	refresh RefreshStore
	lockout LockoutStore
	sinks   []AuditSink
	logger  *slog.Logger
	now     func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithUserDirectory sets the account source. It is required.
func (b *Builder) WithUserDirectory(users UserDirectory) *Builder {
	b.users = users
	return b
}

// WithRefreshStore sets the refresh token ledger. Without one Build uses an
// in-memory store, which does not survive a restart.
func (b *Builder) WithRefreshStore(store RefreshStore) *Builder {
	b.refresh = store
	return b
}

// WithLockoutStore sets the failed-attempt store. Without one Build uses an
// in-memory store bounded by Lockout.MaxTrackedIdentifiers.
func (b *Builder) WithLockoutStore(store LockoutStore) *Builder {
	b.lockout = store
	return b
}

// WithAuditSink adds a sink. Sinks only receive events when Audit.Enabled
// is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	if sink != nil {
		b.sinks = append(b.sinks, sink)
	}
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock replaces time.Now for token issuance, lockout and the refresh
// ledger.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.users == nil {
		return nil, errors.New("user directory required")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	// -------- STORES --------
	refreshStore := b.refresh
	if refreshStore == nil {
		refreshStore = refresh.NewMemoryStore()
	}
	lockoutStore := b.lockout
	if lockoutStore == nil {
		lockoutStore = lockout.NewMemoryStore(cfg.Lockout.MaxTrackedIdentifiers)
	}

	tracker, err := lockout.New(lockoutStore, cfg.lockoutConfig(), lockout.WithClock(now))
	if err != nil {
		return nil, err
	}

	// -------- CRYPTO --------
	hasher, err := password.New(password.Config{Cost: cfg.Password.BcryptCost})
	if err != nil {
		return nil, err
	}

	tokens, err := jwt.NewManager(jwt.Config{
		AccessSecret:  []byte(cfg.JWT.AccessSecret),
		RefreshSecret: []byte(cfg.JWT.RefreshSecret),
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	var cipherOpts []fieldcrypt.Option
	if cfg.Cipher.Salt != "" {
		cipherOpts = append(cipherOpts, fieldcrypt.WithSalt([]byte(cfg.Cipher.Salt)))
	}
	cipher, err := fieldcrypt.New(cfg.Cipher.Secret, cipherOpts...)
	if err != nil {
		return nil, err
	}
	if cfg.Production && cipher.UsesLegacySalt() {
		logger.Warn("sensitive data cipher uses the legacy fixed salt")
	}

	engine := &Engine{
		config:  cfg,
		users:   b.users,
		refresh: refreshStore,
		lockout: tracker,
		hasher:  hasher,
		slots:   semaphore.NewWeighted(int64(cfg.Password.MaxConcurrentHashes)),
		tokens:  tokens,
		cipher:  cipher,
		roles:   permission.Portal(),
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.sinks...),
		metrics: NewMetrics(cfg.Metrics),
		logger:  logger,
		now:     now,
	}
	engine.flowDeps = engine.buildFlowDeps()

	b.built = true
	return engine, nil
}

func (e *Engine) buildFlowDeps() flows.Deps {
	issue := flows.IssueDeps{
		IssueAccess:  e.tokens.IssueAccess,
		IssueRefresh: e.tokens.IssueRefresh,
		RoleLabel: func(role string) string {
			return e.roles.Label(Role(role))
		},
	}
	warn := func(msg string, args ...any) {
		e.logger.Warn(msg, args...)
	}

	var upgrade func(context.Context, directory.User, string) (bool, error)
	if e.config.Password.UpgradeOnLogin {
		upgrade = e.upgradeHash
	}

	return flows.Deps{
		Login: flows.LoginDeps{
			Now:              e.now,
			CanAttempt:       e.lockout.CanAttempt,
			RecordFailure:    e.lockout.RecordFailedAttempt,
			ResetAttempts:    e.lockout.Reset,
			FindUserByEmail:  e.users.FindUserByEmail,
			VerifyPassword:   e.verifyPassword,
			DummyVerify:      e.dummyVerify,
			UpgradeHash:      upgrade,
			RevokeAllForUser: e.refresh.RevokeAllForUser,
			PutRefresh:       e.refresh.Put,
			Issue:            issue,
			Warn:             warn,
		},
		Refresh: flows.RefreshDeps{
			Now:              e.now,
			ParseRefresh:     e.tokens.ParseRefresh,
			GetRecord:        e.refresh.Get,
			Rotate:           e.refresh.Rotate,
			RevokeAllForUser: e.refresh.RevokeAllForUser,
			FindUserByID:     e.users.FindUserByID,
			Issue:            issue,
			Warn:             warn,
		},
		Logout: flows.LogoutDeps{
			Now:              e.now,
			ParseRefresh:     e.tokens.ParseRefresh,
			RevokeAllForUser: e.refresh.RevokeAllForUser,
		},
	}
}
