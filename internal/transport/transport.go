// Package transport defines the capability set every host channel variant
// implements. Variants live in subpackages and are selected once, at client
// construction, by the factory package.
package transport

import (
	"context"
	"time"

	"skylink/internal/attach"
)

// Kind names a transport variant.
type Kind string

const (
	KindDBus     Kind = "dbus"
	KindX11      Kind = "x11"
	KindWinMsg   Kind = "winmsg"
	KindCFNotify Kind = "cfnotify"
)

// Sink receives inbound traffic from a transport's worker.
type Sink interface {
	// Receive is called once per whole inbound frame.
	Receive(raw string)
	// SetStatus reports host-driven attachment changes.
	SetStatus(status attach.Status)
}

// HandshakeMode selects how the client completes an attach.
type HandshakeMode int

const (
	// HandshakeCommand waits for Discover, then sends "NAME <friendly name>"
	// and expects "OK".
	HandshakeCommand HandshakeMode = iota
	// HandshakeNative calls RequestAttach and waits for SetStatus to report
	// Success or Refused.
	HandshakeNative
)

// Handshake describes a variant's attach procedure.
type Handshake struct {
	Mode HandshakeMode
	// PendingSuspendsTimeout disables the attach timer while the host is
	// waiting for its user to approve the client.
	PendingSuspendsTimeout bool
}

// Transport is one host channel.
type Transport interface {
	Kind() Kind
	// Open starts the worker that owns native resources. Calling Open on an
	// open transport is a no-op.
	Open(ctx context.Context, sink Sink) error
	// Close stops the worker and releases native resources. It is idempotent.
	Close() error
	// Discover reports whether the host is reachable. A host that is not
	// running yields false with a nil error.
	Discover(ctx context.Context) (bool, error)
	// Post sends one framed command. Failures wrap apierr.ErrTransportSendFailure.
	Post(ctx context.Context, frame string) error
	Handshake() Handshake
	// RequestAttach starts a native handshake. Command-handshake variants
	// return nil without doing anything.
	RequestAttach(ctx context.Context, friendlyName string) error
}

// Pumper is implemented by transports whose event loop can be driven by the
// caller instead of a dedicated thread. Pump runs the loop for at most timeout
// and reports whether anything was handled.
type Pumper interface {
	Pump(timeout time.Duration) bool
}

// ParseKind validates a configured transport name.
func ParseKind(name string) (Kind, bool) {
	switch k := Kind(name); k {
	case KindDBus, KindX11, KindWinMsg, KindCFNotify:
		return k, true
	default:
		return "", false
	}
}
