// Package logging assembles structured slog loggers and formatting helpers used
// across skylink.
//
// It owns the console and JSON handlers, centralizes level and output plumbing,
// and exposes helpers so transport and client code can tag log lines with the
// client session, transport kind, and command identifiers. A no-op logger is
// provided for tests and wiring code that cannot fail.
package logging
