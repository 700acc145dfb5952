package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEventType classifies a log line for filtering (e.g. attach_timeout).
	FieldEventType = "event_type"
	// FieldErrorHint carries a next step for the operator.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldSession identifies one client instance across its log lines.
	FieldSession = "session"
	// FieldTransport names the transport variant in use.
	FieldTransport = "transport"
	// FieldCommandID is the correlation id of a command.
	FieldCommandID = "command_id"
	// FieldAttachStatus is the attachment status after a transition.
	FieldAttachStatus = "attach_status"
)

type sessionKey struct{}

// WithSession stores a client session id on ctx.
func WithSession(ctx context.Context, session string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, sessionKey{}, session)
}

// SessionFromContext returns the session id stored by WithSession.
func SessionFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	session, ok := ctx.Value(sessionKey{}).(string)
	return session, ok && session != ""
}

// WithContext returns a logger augmented with structured fields derived from ctx.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if session, ok := SessionFromContext(ctx); ok {
		return logger.With(String(FieldSession, session))
	}
	return logger
}
