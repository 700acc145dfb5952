// Package factory builds the configured transport variant.
package factory

import (
	"fmt"
	"log/slog"

	"skylink/internal/config"
	"skylink/internal/transport"
	"skylink/internal/transport/cfnotify"
	"skylink/internal/transport/dbus"
	"skylink/internal/transport/winmsg"
	"skylink/internal/transport/x11"
)

// New returns an unopened transport for cfg.Client.Transport.
func New(cfg *config.Config, logger *slog.Logger) (transport.Transport, error) {
	if cfg == nil {
		return nil, fmt.Errorf("transport factory: config is required")
	}
	kind, ok := transport.ParseKind(cfg.Client.Transport)
	if !ok {
		return nil, fmt.Errorf("transport factory: unknown transport %q", cfg.Client.Transport)
	}

	switch kind {
	case transport.KindDBus:
		return dbus.New(dbus.Options{UseSystemBus: cfg.DBus.UseSystemBus, Logger: logger}), nil
	case transport.KindX11:
		return x11.New(x11.Options{Display: cfg.X11.Display, Logger: logger}), nil
	case transport.KindWinMsg:
		return winmsg.New(winmsg.Options{Logger: logger}), nil
	default:
		return cfnotify.New(cfnotify.Options{RunOwnEventLoop: cfg.Client.RunOwnEventLoop, Logger: logger}), nil
	}
}
