//go:build !windows

package winmsg

import (
	"context"
	"log/slog"

	"skylink/internal/apierr"
	"skylink/internal/logging"
	"skylink/internal/transport"
)

// Transport is unavailable off Windows.
type Transport struct {
	logger *slog.Logger
}

// New returns a transport whose Open always fails.
func New(opts Options) *Transport {
	return &Transport{logger: logging.NewComponentLogger(opts.Logger, "winmsg")}
}

func (t *Transport) Kind() transport.Kind { return transport.KindWinMsg }

func (t *Transport) Handshake() transport.Handshake {
	return transport.Handshake{Mode: transport.HandshakeNative, PendingSuspendsTimeout: true}
}

func (t *Transport) Open(context.Context, transport.Sink) error {
	return unavailable("open")
}

func (t *Transport) Close() error { return nil }

func (t *Transport) Discover(context.Context) (bool, error) {
	return false, unavailable("discover")
}

func (t *Transport) Post(context.Context, string) error {
	return apierr.Wrap(apierr.ErrTransportSendFailure, "winmsg", "post", "window messages require windows", nil)
}

func (t *Transport) RequestAttach(context.Context, string) error {
	return unavailable("attach")
}

func unavailable(op string) error {
	return apierr.Wrap(apierr.ErrTransportUnavailable, "winmsg", op, "window messages require windows", nil)
}
