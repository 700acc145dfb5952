// Package client is the control-channel client: it attaches to the host
// application over one transport, correlates commands with replies, and
// publishes attachment changes and notifications as events.
package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"skylink/internal/apierr"
	"skylink/internal/attach"
	"skylink/internal/correlator"
	"skylink/internal/events"
	"skylink/internal/logging"
	"skylink/internal/router"
	"skylink/internal/transport"
)

const (
	// DefaultProtocol is requested when Options.Protocol is unset.
	DefaultProtocol = 5
	// DefaultTimeout applies to commands and attaches without their own timeout.
	DefaultTimeout = 30 * time.Second
	// DefaultFriendlyName identifies the client to the host when unset.
	DefaultFriendlyName = "skylink"

	defaultDiscoverInterval = time.Second
)

// Options configures a Client.
type Options struct {
	Transport        transport.Transport
	FriendlyName     string
	Protocol         int
	CommandTimeout   time.Duration
	AttachTimeout    time.Duration
	DiscoverInterval time.Duration
	Logger           *slog.Logger
}

// Client is safe for concurrent use.
type Client struct {
	tr      transport.Transport
	table   *correlator.Table
	router  *router.Router
	machine *attach.Machine
	events  *events.Dispatcher
	logger  *slog.Logger
	session string

	// attachMu serializes attach sequences with command registration and
	// posting. It is never held while waiting for an ordinary reply.
	attachMu sync.Mutex

	openMu sync.Mutex
	opened bool

	nameMu       sync.RWMutex
	friendlyName string

	wantProtocol     int
	protocol         atomic.Int64
	commandTimeout   time.Duration
	attachTimeout    time.Duration
	discoverInterval time.Duration

	closed    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// New builds a client around opts.Transport. The transport is opened lazily
// by the first Attach or Send.
func New(opts Options) (*Client, error) {
	if opts.Transport == nil {
		return nil, errors.New("client: transport is required")
	}
	c := &Client{
		tr:               opts.Transport,
		session:          uuid.NewString(),
		friendlyName:     opts.FriendlyName,
		wantProtocol:     opts.Protocol,
		commandTimeout:   opts.CommandTimeout,
		attachTimeout:    opts.AttachTimeout,
		discoverInterval: opts.DiscoverInterval,
		done:             make(chan struct{}),
	}
	if c.friendlyName == "" {
		c.friendlyName = DefaultFriendlyName
	}
	if c.wantProtocol <= 0 {
		c.wantProtocol = DefaultProtocol
	}
	if c.commandTimeout <= 0 {
		c.commandTimeout = DefaultTimeout
	}
	if c.attachTimeout <= 0 {
		c.attachTimeout = DefaultTimeout
	}
	if c.discoverInterval <= 0 {
		c.discoverInterval = defaultDiscoverInterval
	}
	c.protocol.Store(int64(c.wantProtocol))

	base := opts.Logger
	if base == nil {
		base = logging.NewNop()
	}
	base = base.With(
		logging.String(logging.FieldSession, c.session),
		logging.String(logging.FieldTransport, string(c.tr.Kind())),
	)
	c.logger = logging.NewComponentLogger(base, "client")
	c.events = events.New(base, resolveHandlerObject, EventNames()...)
	c.table = correlator.NewTable(base)
	c.router = router.New(c.table, routed{c}, base)
	c.machine = attach.NewMachine(c.statusChanged)
	return c, nil
}

// Session returns the client's unique session id, also attached to its logs.
func (c *Client) Session() string { return c.session }

// Kind returns the transport variant in use.
func (c *Client) Kind() transport.Kind { return c.tr.Kind() }

// Status returns the current attachment status.
func (c *Client) Status() attach.Status { return c.machine.Status() }

// Protocol returns the protocol version negotiated on the last successful
// attach, or the requested version before that.
func (c *Client) Protocol() int { return int(c.protocol.Load()) }

// FriendlyName returns the name announced to the host.
func (c *Client) FriendlyName() string {
	c.nameMu.RLock()
	defer c.nameMu.RUnlock()
	return c.friendlyName
}

// Events exposes the dispatcher for direct registration.
func (c *Client) Events() *events.Dispatcher { return c.events }

// Pending lists in-flight commands.
func (c *Client) Pending() []correlator.Snapshot { return c.table.Pending() }

// IsRunning reports whether the host application is reachable.
func (c *Client) IsRunning(ctx context.Context) (bool, error) {
	if c.closed.Load() {
		return false, closedError("is running")
	}
	return c.tr.Discover(ctx)
}

// Pump drives the transport's event loop from the caller's goroutine when the
// transport was built without its own loop. It reports false when the
// transport does not support pumping.
func (c *Client) Pump(timeout time.Duration) bool {
	p, ok := c.tr.(transport.Pumper)
	if !ok {
		return false
	}
	return p.Pump(timeout)
}

// Close releases the transport, wakes blocked senders with ErrClosed, and
// waits for queued event handlers. Calling Close more than once is safe.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		dropped := c.table.Drain()

		// Waits for any attach sequence, which now fails fast.
		c.attachMu.Lock()
		c.closeErr = c.tr.Close()
		c.attachMu.Unlock()

		c.events.Close()
		c.logger.Info("client closed", logging.Int("dropped_commands", dropped))
	})
	return c.closeErr
}

func (c *Client) open(ctx context.Context) error {
	c.openMu.Lock()
	defer c.openMu.Unlock()
	if c.opened {
		return nil
	}
	if err := c.tr.Open(ctx, sink{c}); err != nil {
		if errors.Is(err, apierr.ErrTransportUnavailable) {
			return err
		}
		return apierr.Wrap(apierr.ErrTransportUnavailable, "client", "open", string(c.tr.Kind()), err)
	}
	c.opened = true
	c.logger.Debug("transport opened")
	return nil
}

func (c *Client) statusChanged(status attach.Status) {
	c.logger.Info("attachment status changed", logging.String(logging.FieldAttachStatus, status.String()))
	c.emit(EventAttachmentStatus, status)
}

func (c *Client) emit(name events.Name, payload any) {
	if err := c.events.Emit(name, payload); err != nil {
		c.logger.Error("emit event failed", logging.String("event", string(name)), logging.Error(err))
	}
}

func closedError(operation string) error {
	return apierr.Wrap(apierr.ErrClosed, "client", operation, "", nil)
}

// sink adapts the client to transport.Sink without exporting the methods.
type sink struct{ c *Client }

func (s sink) Receive(raw string) {
	s.c.logger.Debug("received frame", logging.String("frame", raw))
	s.c.router.Route(raw)
}

func (s sink) SetStatus(status attach.Status) { s.c.machine.Set(status) }

// routed adapts the client to router.Output.
type routed struct{ c *Client }

func (r routed) ReplyReceived(cmd *correlator.Command) { r.c.emit(EventReply, cmd) }

func (r routed) NotificationReceived(text string) { r.c.emit(EventNotify, text) }
