//go:build !darwin || !cgo

package cfnotify

import (
	"context"
	"log/slog"
	"time"

	"skylink/internal/apierr"
	"skylink/internal/logging"
	"skylink/internal/transport"
)

// Transport is unavailable without darwin and cgo.
type Transport struct {
	logger *slog.Logger
}

// New returns a transport whose Open always fails.
func New(opts Options) *Transport {
	return &Transport{logger: logging.NewComponentLogger(opts.Logger, "cfnotify")}
}

func (t *Transport) Kind() transport.Kind { return transport.KindCFNotify }

func (t *Transport) Handshake() transport.Handshake {
	return transport.Handshake{Mode: transport.HandshakeNative}
}

func (t *Transport) Open(context.Context, transport.Sink) error { return unavailable("open") }

func (t *Transport) Close() error { return nil }

func (t *Transport) Discover(context.Context) (bool, error) { return false, unavailable("discover") }

func (t *Transport) Post(context.Context, string) error {
	return apierr.Wrap(apierr.ErrTransportSendFailure, "cfnotify", "post", "distributed notifications require darwin with cgo", nil)
}

func (t *Transport) RequestAttach(context.Context, string) error { return unavailable("attach") }

// Pump does nothing here.
func (t *Transport) Pump(time.Duration) bool { return false }

func unavailable(op string) error {
	return apierr.Wrap(apierr.ErrTransportUnavailable, "cfnotify", op, "distributed notifications require darwin with cgo", nil)
}
