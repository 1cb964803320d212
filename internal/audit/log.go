// Package audit emits structured audit events for security-relevant
// actions: registrations, logins, revocations, and token redemptions.
package audit

import (
	"context"
	"errors"
	"strings"

	"github.com/knowledgeshare/identity/internal/auth"
	"github.com/knowledgeshare/identity/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit
// logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the audit request id from context if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit log entry enriched with request and user context.
// Token values and passwords must never appear in fields.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	args := []any{"type", "audit", "event", event}
	if rid := RequestIDFromContext(ctx); rid != "" {
		args = append(args, "request_id", rid)
	}
	if userID, ok := auth.UserIDFromContext(ctx); ok {
		args = append(args, "user_id", userID)
	}
	for k, v := range fields {
		args = append(args, k, v)
	}
	obs.Logger().InfoContext(ctx, "audit", args...)
	return nil
}
