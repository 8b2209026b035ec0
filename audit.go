package veaauth

import (
	"io"
	"log/slog"

	"github.com/umarmf343/veaauth/internal/audit"
)

type (
	AuditEvent = audit.Event
	AuditSink  = audit.Sink

	NoOpSink       = audit.NoOpSink
	ChannelSink    = audit.ChannelSink
	JSONWriterSink = audit.JSONWriterSink
	SlogSink       = audit.SlogSink
)

// Audit event types.
const (
	AuditLoginSuccess      = "login_success"
	AuditLoginFailure      = "login_failure"
	AuditLoginLocked       = "login_locked"
	AuditRefreshSuccess    = "refresh_success"
	AuditRefreshFailure    = "refresh_failure"
	AuditRefreshReuse      = "refresh_reuse_detected"
	AuditLogout            = "logout"
	AuditSessionsRevoked   = "sessions_revoked"
	AuditAccountRegistered = "account_registered"
	AuditPasswordChanged   = "password_changed"
	AuditPasswordSet       = "password_set"
	AuditAccountUnlocked   = "account_unlocked"
)

func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// NewSlogSink writes audit events through logger.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return audit.NewSlogSink(logger)
}
