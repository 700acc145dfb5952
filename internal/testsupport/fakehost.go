package testsupport

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"skylink/internal/apierr"
	"skylink/internal/attach"
	"skylink/internal/transport"
	"skylink/internal/wire"
)

// Responder produces the frames the fake host sends back for one posted
// command. id and text are the parsed outbound frame.
type Responder func(id int, text string) []string

// FakeHost is an in-memory host implementing transport.Transport. Replies and
// notifications are delivered from a worker goroutine, like real transports.
type FakeHost struct {
	kind      transport.Kind
	handshake transport.Handshake

	mu        sync.Mutex
	running   bool
	available bool
	responder Responder
	posted    []string
	postErr   error
	onAttach  func(friendlyName string) []attach.Status

	inbound   chan func(transport.Sink)
	quit      chan struct{}
	done      chan struct{}
	opens     atomic.Int32
	closes    atomic.Int32
	releases  atomic.Int32
	attachReq atomic.Int32
}

// FakeOption customizes a FakeHost.
type FakeOption func(*FakeHost)

// WithHandshake selects the handshake the fake advertises.
func WithHandshake(h transport.Handshake) FakeOption {
	return func(f *FakeHost) { f.handshake = h }
}

// WithKind overrides the advertised transport kind.
func WithKind(kind transport.Kind) FakeOption {
	return func(f *FakeHost) { f.kind = kind }
}

// WithResponder installs the reply script.
func WithResponder(r Responder) FakeOption {
	return func(f *FakeHost) { f.responder = r }
}

// WithNativeAttach scripts the statuses reported after RequestAttach.
func WithNativeAttach(fn func(friendlyName string) []attach.Status) FakeOption {
	return func(f *FakeHost) { f.onAttach = fn }
}

// Unavailable makes Discover report false until SetAvailable(true).
func Unavailable() FakeOption {
	return func(f *FakeHost) { f.available = false }
}

// NewFakeHost returns a command-handshake fake whose default responder accepts
// NAME with "OK" and echoes PROTOCOL requests.
func NewFakeHost(opts ...FakeOption) *FakeHost {
	f := &FakeHost{
		kind:      transport.KindDBus,
		handshake: transport.Handshake{Mode: transport.HandshakeCommand},
		available: true,
		responder: StandardResponder(0),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// StandardResponder answers NAME with OK and PROTOCOL with the requested
// version, or with protocol when it is non-zero. Other commands get no reply.
func StandardResponder(protocol int) Responder {
	return func(id int, text string) []string {
		switch {
		case strings.HasPrefix(text, "NAME "):
			return []string{wire.Format(id, "OK")}
		case strings.HasPrefix(text, "PROTOCOL "):
			if protocol > 0 {
				return []string{wire.Format(id, "PROTOCOL "+strconv.Itoa(protocol))}
			}
			return []string{wire.Format(id, text)}
		default:
			return nil
		}
	}
}

func (f *FakeHost) Kind() transport.Kind { return f.kind }

func (f *FakeHost) Handshake() transport.Handshake { return f.handshake }

func (f *FakeHost) Open(_ context.Context, sink transport.Sink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return nil
	}
	f.inbound = make(chan func(transport.Sink), 64)
	f.quit = make(chan struct{})
	f.done = make(chan struct{})
	f.running = true
	f.opens.Add(1)
	go f.worker(sink, f.inbound, f.quit, f.done)
	return nil
}

func (f *FakeHost) worker(sink transport.Sink, inbound <-chan func(transport.Sink), quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-quit:
			return
		case deliver := <-inbound:
			deliver(sink)
		}
	}
}

func (f *FakeHost) Close() error {
	f.mu.Lock()
	f.closes.Add(1)
	if !f.running {
		f.mu.Unlock()
		return nil
	}
	f.running = false
	quit, done := f.quit, f.done
	f.mu.Unlock()

	close(quit)
	<-done
	f.releases.Add(1)
	return nil
}

func (f *FakeHost) Discover(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available, nil
}

func (f *FakeHost) Post(_ context.Context, frame string) error {
	f.mu.Lock()
	f.posted = append(f.posted, frame)
	postErr := f.postErr
	responder := f.responder
	f.mu.Unlock()

	if postErr != nil {
		return apierr.Wrap(apierr.ErrTransportSendFailure, "fakehost", "post", "", postErr)
	}
	id, text, ok := wire.ParseReply(frame)
	if !ok || responder == nil {
		return nil
	}
	for _, reply := range responder(id, text) {
		f.Inject(reply)
	}
	return nil
}

func (f *FakeHost) RequestAttach(_ context.Context, friendlyName string) error {
	f.attachReq.Add(1)
	f.mu.Lock()
	script := f.onAttach
	f.mu.Unlock()
	if script == nil {
		return nil
	}
	for _, status := range script(friendlyName) {
		f.InjectStatus(status)
	}
	return nil
}

// Inject delivers an inbound frame from the worker goroutine.
func (f *FakeHost) Inject(raw string) {
	f.enqueue(func(s transport.Sink) { s.Receive(raw) })
}

// InjectStatus delivers a host-driven status change from the worker goroutine.
func (f *FakeHost) InjectStatus(status attach.Status) {
	f.enqueue(func(s transport.Sink) { s.SetStatus(status) })
}

func (f *FakeHost) enqueue(fn func(transport.Sink)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return
	}
	f.inbound <- fn
}

// SetAvailable controls Discover.
func (f *FakeHost) SetAvailable(v bool) {
	f.mu.Lock()
	f.available = v
	f.mu.Unlock()
}

// SetResponder swaps the reply script.
func (f *FakeHost) SetResponder(r Responder) {
	f.mu.Lock()
	f.responder = r
	f.mu.Unlock()
}

// FailPosts makes every Post fail with err until called with nil.
func (f *FakeHost) FailPosts(err error) {
	f.mu.Lock()
	f.postErr = err
	f.mu.Unlock()
}

// Posted returns every frame posted so far.
func (f *FakeHost) Posted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.posted...)
}

// Opens, Closes, Releases and AttachRequests expose call counters.
func (f *FakeHost) Opens() int          { return int(f.opens.Load()) }
func (f *FakeHost) Closes() int         { return int(f.closes.Load()) }
func (f *FakeHost) Releases() int       { return int(f.releases.Load()) }
func (f *FakeHost) AttachRequests() int { return int(f.attachReq.Load()) }
