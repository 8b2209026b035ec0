// Package sentrysink forwards security-relevant audit events to Sentry.
//
// Only refresh token reuse, lockout trips and backend outages are sent;
// routine logins and refreshes stay in the regular audit stream.
package sentrysink

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/umarmf343/veaauth"
)

// DefaultEventTypes are forwarded when Options.EventTypes is empty.
var DefaultEventTypes = []string{
	veaauth.AuditRefreshReuse,
	veaauth.AuditLoginLocked,
}

type Options struct {
	// Hub defaults to sentry.CurrentHub().
	Hub *sentry.Hub
	// EventTypes selects the audit events to forward.
	EventTypes []string
	// IncludeBackendErrors also forwards any failed event whose Error is
	// "backend_unavailable".
	IncludeBackendErrors bool
}

// Sink implements veaauth.AuditSink.
type Sink struct {
	hub     *sentry.Hub
	types   map[string]sentry.Level
	backend bool
}

func New(opts Options) *Sink {
	hub := opts.Hub
	if hub == nil {
		hub = sentry.CurrentHub()
	}

	eventTypes := opts.EventTypes
	if len(eventTypes) == 0 {
		eventTypes = DefaultEventTypes
	}
	types := make(map[string]sentry.Level, len(eventTypes))
	for _, t := range eventTypes {
		types[t] = levelFor(t)
	}

	return &Sink{hub: hub, types: types, backend: opts.IncludeBackendErrors}
}

// Emit implements veaauth.AuditSink.
func (s *Sink) Emit(_ context.Context, event veaauth.AuditEvent) {
	level, ok := s.types[event.EventType]
	if !ok {
		if !s.backend || event.Success || event.Error != "backend_unavailable" {
			return
		}
		level = sentry.LevelError
	}

	s.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(level)
		scope.SetTag("audit.event_type", event.EventType)
		if event.Error != "" {
			scope.SetTag("audit.error", event.Error)
		}
		if event.UserID != "" || event.IP != "" {
			scope.SetUser(sentry.User{ID: event.UserID, IPAddress: event.IP})
		}

		extra := map[string]interface{}{
			"timestamp": event.Timestamp.Format(time.RFC3339),
		}
		if event.Identifier != "" {
			extra["identifier"] = event.Identifier
		}
		if event.TokenID != "" {
			extra["jti"] = event.TokenID
		}
		for k, v := range event.Metadata {
			extra["meta."+k] = v
		}
		scope.SetExtras(extra)

		s.hub.CaptureMessage("auth: " + event.EventType)
	})
}

// Flush waits up to timeout for queued events to be sent.
func (s *Sink) Flush(timeout time.Duration) bool {
	return s.hub.Flush(timeout)
}

func levelFor(eventType string) sentry.Level {
	switch eventType {
	case veaauth.AuditRefreshReuse:
		return sentry.LevelError
	default:
		return sentry.LevelWarning
	}
}
