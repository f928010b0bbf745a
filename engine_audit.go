package identity

import (
	"context"
	"time"
)

const (
	auditEventRegisterSuccess    = "register.success"
	auditEventRegisterFailure    = "register.failure"
	auditEventLoginSuccess       = "login.success"
	auditEventLoginFailure       = "login.failure"
	auditEventVerificationStart  = "verification.start"
	auditEventVerificationRedeem = "verification.redeem"
	auditEventResetRequest       = "reset.request"
	auditEventResetRedeem        = "reset.redeem"
	auditEventSessionIssued      = "session.issued"
)

// emitAudit builds and queues an audit event. details is evaluated lazily so
// disabled audit costs no map allocation on hot paths.
func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	opErr error,
	details func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: eventType,
		AccountID: accountID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
	}
	if opErr != nil {
		event.Error = opErr.Error()
	}
	if details != nil {
		event.Metadata = details()
	}

	e.audit.Emit(ctx, event)
}
