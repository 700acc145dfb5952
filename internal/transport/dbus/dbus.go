// Package dbus talks to the host over the D-Bus session (or system) bus.
// Commands are method calls on the host's exported API object; the host
// delivers replies and notifications by calling Notify on an object this
// client exports.
package dbus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	godbus "github.com/godbus/dbus/v5"

	"skylink/internal/apierr"
	"skylink/internal/attach"
	"skylink/internal/logging"
	"skylink/internal/transport"
	"skylink/internal/wire"
)

const (
	hostService   = "com.Skype.API"
	hostPath      = godbus.ObjectPath("/com/Skype")
	invokeMethod  = "com.Skype.API.Invoke"
	clientPath    = godbus.ObjectPath("/com/Skype/Client")
	clientIface   = "com.Skype.API.Client"
	busIface      = "org.freedesktop.DBus"
	ownerChanged  = busIface + ".NameOwnerChanged"
	nameHasOwner  = busIface + ".NameHasOwner"
	signalBacklog = 16
)

// Options configures the bus connection.
type Options struct {
	UseSystemBus bool
	Logger       *slog.Logger
}

// Transport is the D-Bus host channel.
type Transport struct {
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	conn    *godbus.Conn
	signals chan *godbus.Signal
	quit    chan struct{}
	done    chan struct{}
	sink    transport.Sink
}

// New returns an unopened transport.
func New(opts Options) *Transport {
	return &Transport{
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "dbus"),
	}
}

func (t *Transport) Kind() transport.Kind { return transport.KindDBus }

func (t *Transport) Handshake() transport.Handshake {
	return transport.Handshake{Mode: transport.HandshakeCommand}
}

// Open connects to the bus, exports the Notify object and subscribes to
// ownership changes of the host's service name.
func (t *Transport) Open(ctx context.Context, sink transport.Sink) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		return nil
	}

	conn, err := t.connect(ctx)
	if err != nil {
		return apierr.Wrap(apierr.ErrTransportUnavailable, "dbus", "connect", busName(t.opts.UseSystemBus), err)
	}
	if err := conn.Export(notifier{sink: sink}, clientPath, clientIface); err != nil {
		_ = conn.Close()
		return apierr.Wrap(apierr.ErrTransportUnavailable, "dbus", "export", string(clientPath), err)
	}
	if err := conn.AddMatchSignalContext(ctx,
		godbus.WithMatchInterface(busIface),
		godbus.WithMatchMember("NameOwnerChanged"),
		godbus.WithMatchArg(0, hostService),
	); err != nil {
		_ = conn.Close()
		return apierr.Wrap(apierr.ErrTransportUnavailable, "dbus", "add match", hostService, err)
	}

	signals := make(chan *godbus.Signal, signalBacklog)
	conn.Signal(signals)

	t.conn = conn
	t.signals = signals
	t.sink = sink
	t.quit = make(chan struct{})
	t.done = make(chan struct{})
	go t.watch(signals, sink, t.quit, t.done)

	t.logger.Debug("dbus transport opened", logging.String("bus", busName(t.opts.UseSystemBus)))
	return nil
}

func (t *Transport) connect(ctx context.Context) (*godbus.Conn, error) {
	if t.opts.UseSystemBus {
		return godbus.ConnectSystemBus(godbus.WithContext(ctx))
	}
	return godbus.ConnectSessionBus(godbus.WithContext(ctx))
}

// watch turns NameOwnerChanged signals into attachment statuses.
func (t *Transport) watch(signals <-chan *godbus.Signal, sink transport.Sink, quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-quit:
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			status, ok := ownerStatus(sig)
			if !ok {
				continue
			}
			t.logger.Debug("host service owner changed", logging.String(logging.FieldAttachStatus, status.String()))
			sink.SetStatus(status)
		}
	}
}

// Close unexports the Notify object and closes the private connection.
func (t *Transport) Close() error {
	t.mu.Lock()
	conn, signals, quit, done := t.conn, t.signals, t.quit, t.done
	t.conn, t.signals, t.sink = nil, nil, nil
	t.mu.Unlock()
	if conn == nil {
		return nil
	}

	close(quit)
	<-done
	conn.RemoveSignal(signals)
	_ = conn.Export(nil, clientPath, clientIface)
	if err := conn.Close(); err != nil {
		return fmt.Errorf("close dbus connection: %w", err)
	}
	t.logger.Debug("dbus transport closed")
	return nil
}

// Discover asks the bus daemon whether the host's service name has an owner.
func (t *Transport) Discover(ctx context.Context) (bool, error) {
	conn := t.connection()
	if conn == nil {
		return false, apierr.Wrap(apierr.ErrTransportUnavailable, "dbus", "discover", "transport not open", nil)
	}
	var owned bool
	if err := conn.BusObject().CallWithContext(ctx, nameHasOwner, 0, hostService).Store(&owned); err != nil {
		return false, apierr.Wrap(apierr.ErrTransportUnavailable, "dbus", "discover", hostService, err)
	}
	return owned, nil
}

// Post invokes the host API with frame. The host may answer inline; an inline
// answer in reply grammar is routed exactly like one arriving through Notify.
func (t *Transport) Post(ctx context.Context, frame string) error {
	t.mu.Lock()
	conn, sink := t.conn, t.sink
	t.mu.Unlock()
	if conn == nil {
		return apierr.Wrap(apierr.ErrTransportSendFailure, "dbus", "invoke", "transport not open", nil)
	}

	var reply string
	call := conn.Object(hostService, hostPath).CallWithContext(ctx, invokeMethod, 0, frame)
	if err := call.Store(&reply); err != nil {
		return apierr.Wrap(apierr.ErrTransportSendFailure, "dbus", "invoke", hostService, err)
	}
	if isInlineReply(reply) {
		sink.Receive(reply)
	}
	return nil
}

func (t *Transport) RequestAttach(context.Context, string) error { return nil }

func (t *Transport) connection() *godbus.Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn
}

// notifier is exported at /com/Skype/Client; the host calls Notify for
// every reply and notification.
type notifier struct {
	sink transport.Sink
}

// Notify is the exported D-Bus method.
func (n notifier) Notify(frame string) *godbus.Error {
	n.sink.Receive(frame)
	return nil
}

func ownerStatus(sig *godbus.Signal) (attach.Status, bool) {
	if sig == nil || sig.Name != ownerChanged || len(sig.Body) < 3 {
		return attach.Unknown, false
	}
	name, ok := sig.Body[0].(string)
	if !ok || name != hostService {
		return attach.Unknown, false
	}
	newOwner, ok := sig.Body[2].(string)
	if !ok {
		return attach.Unknown, false
	}
	if newOwner == "" {
		return attach.NotAvailable, true
	}
	return attach.Available, true
}

func isInlineReply(reply string) bool {
	_, _, ok := wire.ParseReply(reply)
	return ok
}

func busName(system bool) string {
	if system {
		return "system"
	}
	return "session"
}
