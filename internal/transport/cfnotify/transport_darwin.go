//go:build darwin && cgo

package cfnotify

import (
	"context"
	"log/slog"
	"runtime"
	"runtime/cgo"
	"sync"
	"time"

	"skylink/internal/apierr"
	"skylink/internal/attach"
	"skylink/internal/logging"
	"skylink/internal/transport"
)

const defaultObserverName = "skylink"

// Transport is the distributed-notification host channel. Observer
// registration happens on the run-loop thread, which is either the
// transport's own locked goroutine or the application's Pump caller.
type Transport struct {
	opts   Options
	logger *slog.Logger

	mu     sync.Mutex
	state  *observerState
	handle cgo.Handle
	jobs   chan func()
	quit   chan struct{}
	done   chan struct{}

	// observing is only touched on the run-loop thread.
	observing bool
}

// New returns an unopened transport.
func New(opts Options) *Transport {
	return &Transport{
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "cfnotify"),
	}
}

func (t *Transport) Kind() transport.Kind { return transport.KindCFNotify }

// Handshake reports a native attach. The transport enters
// PendingAuthorization itself, so pending does not suspend the timer.
func (t *Transport) Handshake() transport.Handshake {
	return transport.Handshake{Mode: transport.HandshakeNative}
}

func (t *Transport) Open(_ context.Context, sink transport.Sink) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != nil {
		return nil
	}

	t.state = newObserverState(sink, t.logger)
	t.state.reset(defaultObserverName)
	t.handle = cgo.NewHandle(t.state)
	t.jobs = make(chan func(), 16)
	if t.opts.RunOwnEventLoop {
		t.quit = make(chan struct{})
		t.done = make(chan struct{})
		go t.loop(t.jobs, t.quit, t.done)
	}
	t.logger.Debug("cfnotify transport opened", logging.Bool("own_event_loop", t.opts.RunOwnEventLoop))
	return nil
}

func (t *Transport) loop(jobs <-chan func(), quit <-chan struct{}, done chan<- struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(done)
	for {
		select {
		case <-quit:
			return
		default:
		}
		t.service(jobs, loopSlice)
	}
}

// Pump runs queued work and the run loop on the caller's thread for at most
// timeout. It is only meaningful without an own event loop; the caller must
// stay on one OS-thread-locked goroutine.
func (t *Transport) Pump(timeout time.Duration) bool {
	t.mu.Lock()
	jobs := t.jobs
	cooperative := t.state != nil && !t.opts.RunOwnEventLoop
	t.mu.Unlock()
	if !cooperative {
		return false
	}
	return t.service(jobs, timeout)
}

func (t *Transport) service(jobs <-chan func(), timeout time.Duration) bool {
	ran := false
	for drained := false; !drained; {
		select {
		case job := <-jobs:
			job()
			ran = true
		default:
			drained = true
		}
	}
	return runLoop(timeout) || ran
}

// ensureObserver registers the observer once. Run-loop thread only.
func (t *Transport) ensureObserver() error {
	if t.observing {
		return nil
	}
	if err := addObserver(uintptr(t.handle)); err != nil {
		return err
	}
	t.observing = true
	return nil
}

func (t *Transport) enqueue(ctx context.Context, job func(st *observerState)) error {
	t.mu.Lock()
	jobs, st := t.jobs, t.state
	t.mu.Unlock()
	if jobs == nil {
		return apierr.Wrap(apierr.ErrTransportUnavailable, "cfnotify", "enqueue", "transport not open", nil)
	}
	select {
	case jobs <- func() { job(st) }:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RequestAttach re-registers under friendlyName, enters PendingAuthorization
// and posts the attach request.
func (t *Transport) RequestAttach(ctx context.Context, friendlyName string) error {
	return t.enqueue(ctx, func(st *observerState) {
		st.reset(friendlyName)
		if err := t.ensureObserver(); err != nil {
			t.logger.Warn("observer registration failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "cfnotify_observe_failed"),
				logging.String(logging.FieldErrorHint, "check the friendly name for invalid characters"),
				logging.String(logging.FieldImpact, "attach will time out"),
			)
			return
		}
		st.sink.SetStatus(attach.PendingAuthorization)
		if err := post(notifyAttachRequest, friendlyName, nil, 0); err != nil {
			t.logger.Debug("attach request failed", logging.Error(err))
		}
	})
}

// Discover asks the host whether it is available and waits up to a second
// for the answer.
func (t *Transport) Discover(ctx context.Context) (bool, error) {
	t.mu.Lock()
	st := t.state
	t.mu.Unlock()
	if st == nil {
		return false, apierr.Wrap(apierr.ErrTransportUnavailable, "cfnotify", "discover", "transport not open", nil)
	}

	err := t.enqueue(ctx, func(st *observerState) {
		st.expectAvailability()
		if err := t.ensureObserver(); err != nil {
			t.logger.Debug("observer registration failed", logging.Error(err))
			return
		}
		if err := post(notifyAvailabilityRequest, st.friendlyName(), nil, 0); err != nil {
			t.logger.Debug("availability request failed", logging.Error(err))
		}
	})
	if err != nil {
		return false, err
	}

	timer := time.NewTimer(availabilityWait)
	defer timer.Stop()
	select {
	case available := <-st.availability:
		return available, nil
	case <-timer.C:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Post sends frame with the attached client id.
func (t *Transport) Post(_ context.Context, frame string) error {
	t.mu.Lock()
	st := t.state
	t.mu.Unlock()
	if st == nil {
		return apierr.Wrap(apierr.ErrTransportSendFailure, "cfnotify", "post", "transport not open", nil)
	}
	if err := post(notifyCommand, st.friendlyName(), &frame, st.client()); err != nil {
		return apierr.Wrap(apierr.ErrTransportSendFailure, "cfnotify", "post", "", err)
	}
	return nil
}

// Close stops the run-loop thread and removes the observer.
func (t *Transport) Close() error {
	t.mu.Lock()
	st, handle, quit, done := t.state, t.handle, t.quit, t.done
	t.state, t.jobs, t.quit, t.done = nil, nil, nil, nil
	t.mu.Unlock()
	if st == nil {
		return nil
	}
	if quit != nil {
		close(quit)
		<-done
	}
	removeObserver(uintptr(handle))
	handle.Delete()
	t.observing = false
	t.logger.Debug("cfnotify transport closed")
	return nil
}
