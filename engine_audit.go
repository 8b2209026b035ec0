package veaauth

import (
	"context"
	"errors"
)

const auditBackendError = "backend_unavailable"

// emitAudit hands an event to the dispatcher. metadata is only evaluated
// when auditing is enabled.
func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, userID, identifier, tokenID string, err error, metadata func() map[string]string) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp:  e.now().UTC(),
		EventType:  eventType,
		UserID:     userID,
		Identifier: identifier,
		TokenID:    tokenID,
		IP:         clientIPFromContext(ctx),
		Success:    success,
		Error:      auditErrorCode(err),
	}
	if metadata != nil {
		event.Metadata = metadata()
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) string {
	if err == nil {
		return ""
	}
	if reason, ok := ReasonOf(err); ok {
		return string(reason)
	}
	switch {
	case errors.Is(err, ErrLockoutUnavailable),
		errors.Is(err, ErrDirectoryUnavailable),
		errors.Is(err, ErrRefreshStoreUnavailable):
		return auditBackendError
	}
	return "internal_error"
}
