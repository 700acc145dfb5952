// Package x11 talks to the host through X ClientMessage events. The host
// advertises its window in the _SKYPE_INSTANCE property of the root window;
// frames travel as NUL-terminated 20-byte format-8 messages, the first of
// each frame tagged with the BEGIN atom.
package x11

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"

	"skylink/internal/apierr"
	"skylink/internal/logging"
	"skylink/internal/transport"
)

const (
	instanceProperty = "_SKYPE_INSTANCE"
	messageAtomName  = "SKYPECONTROLAPI_MESSAGE"
	beginAtomName    = messageAtomName + "_BEGIN"

	// settleDelay gives a freshly started host time to initialize before
	// Available is reported; an immediate NAME confuses it.
	settleDelay = time.Second
	minPoll     = 100 * time.Microsecond
	maxPoll     = time.Second
)

// Options configures the display connection.
type Options struct {
	// Display is an X display name; empty uses $DISPLAY.
	Display string
	Logger  *slog.Logger
}

// Transport is the X11 host channel. One pump goroutine owns the display
// connection; every X request is issued from it.
type Transport struct {
	opts   Options
	logger *slog.Logger

	mu   sync.Mutex
	conn *xgb.Conn
	self xproto.Window
	jobs chan job
	quit chan struct{}
	done chan struct{}
}

type job struct {
	run    func(*session) error
	result chan error
}

// New returns an unopened transport.
func New(opts Options) *Transport {
	return &Transport{
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "x11"),
	}
}

func (t *Transport) Kind() transport.Kind { return transport.KindX11 }

func (t *Transport) Handshake() transport.Handshake {
	return transport.Handshake{Mode: transport.HandshakeCommand}
}

func (t *Transport) RequestAttach(context.Context, string) error { return nil }

// Open connects to the display, creates the client window that receives the
// host's messages and starts the pump.
func (t *Transport) Open(_ context.Context, sink transport.Sink) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		return nil
	}

	conn, err := xgb.NewConnDisplay(t.opts.Display)
	if err != nil {
		return apierr.Wrap(apierr.ErrTransportUnavailable, "x11", "open display", t.opts.Display, err)
	}
	s, err := newSession(conn, sink, t.logger)
	if err != nil {
		conn.Close()
		return apierr.Wrap(apierr.ErrTransportUnavailable, "x11", "setup", "", err)
	}

	t.conn = conn
	t.self = s.self
	t.jobs = make(chan job)
	t.quit = make(chan struct{})
	t.done = make(chan struct{})
	go t.pump(s, t.jobs, t.quit, t.done)

	t.logger.Debug("x11 transport opened",
		logging.String("display", t.opts.Display),
		logging.Bool("host_present", s.host != 0),
	)
	return nil
}

func newSession(conn *xgb.Conn, sink transport.Sink, logger *slog.Logger) (*session, error) {
	screen := xproto.Setup(conn).DefaultScreen(conn)

	var ids atoms
	for name, dst := range map[string]*xproto.Atom{
		instanceProperty: &ids.instance,
		messageAtomName:  &ids.message,
		beginAtomName:    &ids.begin,
	} {
		reply, err := xproto.InternAtom(conn, false, uint16(len(name)), name).Reply()
		if err != nil {
			return nil, fmt.Errorf("intern atom %s: %w", name, err)
		}
		*dst = reply.Atom
	}

	self, err := xproto.NewWindowId(conn)
	if err != nil {
		return nil, fmt.Errorf("allocate window id: %w", err)
	}
	if err := xproto.CreateWindowChecked(conn, screen.RootDepth, self, screen.Root,
		100, 100, 100, 100, 1, xproto.WindowClassInputOutput, screen.RootVisual, 0, nil).Check(); err != nil {
		return nil, fmt.Errorf("create client window: %w", err)
	}
	if err := xproto.ChangeWindowAttributesChecked(conn, screen.Root, xproto.CwEventMask,
		[]uint32{xproto.EventMaskPropertyChange}).Check(); err != nil {
		return nil, fmt.Errorf("watch root window: %w", err)
	}

	s := &session{
		conn:   conn,
		root:   screen.Root,
		self:   self,
		atoms:  ids,
		sink:   sink,
		logger: logger,
	}
	s.lookup = s.readInstance
	host, err := s.lookup()
	if err != nil {
		logger.Debug("reading host instance failed", logging.Error(err))
	}
	s.host = host
	return s, nil
}

// pump drains X events with an adaptive poll interval and runs queued jobs.
// Activity resets the interval to minPoll; idle rounds double it up to maxPoll.
func (t *Transport) pump(s *session, jobs <-chan job, quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	wait := minPoll
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		if s.drain() {
			wait = minPoll
		}
		s.settle(time.Now())
		timer.Reset(s.nextWait(wait, time.Now()))

		select {
		case <-quit:
			return
		case j := <-jobs:
			j.result <- j.run(s)
			wait = minPoll
		case <-timer.C:
			wait = nextPoll(wait)
		}
	}
}

// do runs fn on the pump goroutine and waits for its result.
func (t *Transport) do(ctx context.Context, op string, fn func(*session) error) error {
	t.mu.Lock()
	jobs, done := t.jobs, t.done
	t.mu.Unlock()
	if jobs == nil {
		return fmt.Errorf("x11 %s: transport not open", op)
	}

	j := job{run: fn, result: make(chan error, 1)}
	select {
	case jobs <- j:
	case <-done:
		return fmt.Errorf("x11 %s: transport closed", op)
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-j.result:
		return err
	case <-done:
		return fmt.Errorf("x11 %s: transport closed", op)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Discover re-reads _SKYPE_INSTANCE.
func (t *Transport) Discover(ctx context.Context) (bool, error) {
	var found bool
	err := t.do(ctx, "discover", func(s *session) error {
		host, err := s.lookup()
		if err != nil {
			return err
		}
		s.host = host
		found = host != 0
		return nil
	})
	if err != nil {
		return false, apierr.Wrap(apierr.ErrTransportUnavailable, "x11", "discover", "", err)
	}
	return found, nil
}

// Post sends frame to the host window as a sequence of ClientMessages.
func (t *Transport) Post(ctx context.Context, frame string) error {
	err := t.do(ctx, "post", func(s *session) error { return s.send(frame) })
	if err != nil {
		return apierr.Wrap(apierr.ErrTransportSendFailure, "x11", "post", "", err)
	}
	return nil
}

// Close stops the pump, destroys the client window and closes the display.
func (t *Transport) Close() error {
	t.mu.Lock()
	conn, self, quit, done := t.conn, t.self, t.quit, t.done
	t.conn, t.jobs = nil, nil
	t.mu.Unlock()
	if conn == nil {
		return nil
	}

	close(quit)
	<-done
	_ = xproto.DestroyWindowChecked(conn, self).Check()
	conn.Close()
	t.logger.Debug("x11 transport closed")
	return nil
}

func nextPoll(current time.Duration) time.Duration {
	return min(current*2, maxPoll)
}
