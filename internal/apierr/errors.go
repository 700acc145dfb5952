// Package apierr defines the error kinds surfaced by the control-channel
// client. Every error returned by skylink packages wraps exactly one of the
// sentinels below so callers classify with errors.Is.
package apierr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransportUnavailable means the host application is not running or its
	// channel cannot be opened. Launch the host and retry.
	ErrTransportUnavailable = errors.New("transport unavailable")
	// ErrAttachRefused means the host user declined the attach request.
	ErrAttachRefused = errors.New("attach refused")
	// ErrAttachTimeout means the host did not answer the attach handshake in time.
	ErrAttachTimeout = errors.New("attach timeout")
	// ErrCommandTimeout means a blocking command got no reply in time.
	ErrCommandTimeout = errors.New("command timeout")
	// ErrIDConflict means a caller supplied a command id that is already in flight.
	ErrIDConflict = errors.New("command id conflict")
	// ErrTransportSendFailure means the IPC primitive rejected an outbound frame.
	ErrTransportSendFailure = errors.New("transport send failure")
	// ErrClosed means the client was closed while the operation was pending.
	ErrClosed = errors.New("client closed")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransportUnavailable
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether a caller may reasonably repeat the operation.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrIDConflict), errors.Is(err, ErrClosed):
		return false
	case errors.Is(err, ErrTransportUnavailable),
		errors.Is(err, ErrAttachRefused),
		errors.Is(err, ErrAttachTimeout),
		errors.Is(err, ErrCommandTimeout),
		errors.Is(err, ErrTransportSendFailure):
		return true
	default:
		return false
	}
}

// Hint returns an operator-facing next step for err, or "" when none applies.
func Hint(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTransportUnavailable):
		return "start the host application (skylink host start) and retry"
	case errors.Is(err, ErrAttachRefused):
		return "allow this client in the host application's privacy settings"
	case errors.Is(err, ErrAttachTimeout):
		return "confirm the host application is running and answer its authorization prompt"
	case errors.Is(err, ErrCommandTimeout):
		return "the host did not answer; check it is responsive or raise client.command_timeout_ms"
	case errors.Is(err, ErrTransportSendFailure):
		return "the host connection dropped; the next command reattaches"
	case errors.Is(err, ErrIDConflict):
		return "command ids must be unique among in-flight commands"
	case errors.Is(err, ErrClosed):
		return "the client was shut down"
	}
	var hostErr *HostError
	if errors.As(err, &hostErr) {
		return "the host rejected the command; check its syntax"
	}
	return ""
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "control channel failure"
	}
	return strings.Join(parts, ": ")
}
