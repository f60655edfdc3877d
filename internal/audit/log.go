// Package audit records security-relevant mutations as structured log entries.
package audit

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"staffdesk.org/internal/auth"
	"staffdesk.org/internal/obs"
)

type ctxKey struct{}

// Event names recorded by LogEvent.
const (
	EventAdminPromoted     = "admin.promoted"
	EventAdminDemoted      = "admin.demoted"
	EventAdminUpdated      = "admin.updated"
	EventSysadminBootstrap = "sysadmin.bootstrapped"
	EventProfileReconciled = "profile.reconciled"
	EventEmployeeCreated   = "employee.created"
	EventEmployeeDeleted   = "employee.deleted"
	EventTokenIssued       = "auth.token.issued"
)

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, requestID)
}

// RequestIDFromContext returns the request id set by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxKey{}).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit entry enriched with request and caller context.
// Keys already carried by the request-scoped logger are not repeated.
func LogEvent(ctx context.Context, event string, fields ...zap.Field) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	base := []zap.Field{
		zap.String("type", "audit"),
		zap.String("event", event),
	}
	if rid := RequestIDFromContext(ctx); rid != "" && !obs.HasField(ctx, "request_id") {
		base = append(base, obs.RequestID(rid))
	}
	if c, ok := auth.CallerFromContext(ctx); ok {
		if !obs.HasField(ctx, "user_id") {
			base = append(base, obs.UserID(c.UID))
		}
		base = append(base, zap.String("actor_role", c.Role.String()))
	}
	obs.From(ctx).Info("audit", append(base, zap.Dict("fields", fields...))...)
	return nil
}
