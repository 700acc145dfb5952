// Package events delivers named events to handlers. Emissions under one name
// run in order on that name's lane; different names run concurrently.
package events

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"sync"

	"skylink/internal/logging"
)

// Name identifies an event stream.
type Name string

var (
	// ErrUnknownEvent rejects names the dispatcher was not built with.
	ErrUnknownEvent = errors.New("unknown event")
	// ErrHandlerNotComparable rejects handlers that cannot be found again by
	// Unregister. Wrap plain funcs with Func.
	ErrHandlerNotComparable = errors.New("handler is not comparable")
)

// Handler receives events.
type Handler interface {
	HandleEvent(name Name, payload any)
}

type funcHandler struct {
	fn func(Name, any)
}

func (f *funcHandler) HandleEvent(name Name, payload any) { f.fn(name, payload) }

// Func wraps fn into a handler. Each call returns a distinct handler; keep the
// result to unregister it later.
func Func(fn func(name Name, payload any)) Handler {
	return &funcHandler{fn: fn}
}

// Resolver maps a handler object to its method for one event name, or nil when
// the object does not handle that event.
type Resolver func(obj any, name Name) Handler

type job struct {
	name     Name
	payload  any
	handlers []Handler
}

type lane struct {
	queue   []job
	running bool
}

// Dispatcher merges three handler sources per event in fixed order: the
// default handler, the handler object's method, then registered handlers in
// registration order.
type Dispatcher struct {
	mu         sync.Mutex
	known      map[Name]struct{}
	defaults   map[Name]Handler
	registered map[Name][]Handler
	object     any
	resolver   Resolver
	lanes      map[Name]*lane
	closed     bool
	wg         sync.WaitGroup
	logger     *slog.Logger
}

// New returns a dispatcher accepting the given event names. resolver may be
// nil when handler objects are not used.
func New(logger *slog.Logger, resolver Resolver, names ...Name) *Dispatcher {
	known := make(map[Name]struct{}, len(names))
	for _, name := range names {
		known[name] = struct{}{}
	}
	return &Dispatcher{
		known:      known,
		defaults:   make(map[Name]Handler),
		registered: make(map[Name][]Handler),
		resolver:   resolver,
		lanes:      make(map[Name]*lane),
		logger:     logging.NewComponentLogger(logger, "events"),
	}
}

// Register appends h to name's handlers. It returns false when h is already
// registered.
func (d *Dispatcher) Register(name Name, h Handler) (bool, error) {
	if err := d.check(name, h); err != nil {
		return false, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if slices.Contains(d.registered[name], h) {
		return false, nil
	}
	d.registered[name] = append(d.registered[name], h)
	return true, nil
}

// Unregister removes h from name's handlers. It returns false when h was not
// registered.
func (d *Dispatcher) Unregister(name Name, h Handler) (bool, error) {
	if err := d.check(name, h); err != nil {
		return false, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	list := d.registered[name]
	idx := slices.Index(list, h)
	if idx < 0 {
		return false, nil
	}
	d.registered[name] = slices.Delete(slices.Clone(list), idx, idx+1)
	return true, nil
}

// Handlers returns a snapshot of name's registered handlers.
func (d *Dispatcher) Handlers(name Name) []Handler {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.registered[name])
}

// SetDefault replaces name's default handler. A nil handler clears it.
func (d *Dispatcher) SetDefault(name Name, h Handler) error {
	if _, ok := d.known[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEvent, name)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if h == nil {
		delete(d.defaults, name)
		return nil
	}
	d.defaults[name] = h
	return nil
}

// SetHandlerObject replaces the handler object. A nil object clears it.
func (d *Dispatcher) SetHandlerObject(obj any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.object = obj
}

// Emit snapshots name's handlers and queues them on name's lane. It never
// blocks on handler execution. Emissions after Close are dropped.
func (d *Dispatcher) Emit(name Name, payload any) error {
	if _, ok := d.known[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEvent, name)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	handlers := d.snapshotLocked(name)
	if len(handlers) == 0 {
		return nil
	}

	l := d.lanes[name]
	if l == nil {
		l = &lane{}
		d.lanes[name] = l
	}
	l.queue = append(l.queue, job{name: name, payload: payload, handlers: handlers})
	if !l.running {
		l.running = true
		d.wg.Add(1)
		go d.drain(l)
	}
	return nil
}

// Close stops accepting emissions and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) snapshotLocked(name Name) []Handler {
	handlers := make([]Handler, 0, 2+len(d.registered[name]))
	if h := d.defaults[name]; h != nil {
		handlers = append(handlers, h)
	}
	if d.object != nil && d.resolver != nil {
		if h := d.resolver(d.object, name); h != nil {
			handlers = append(handlers, h)
		}
	}
	return append(handlers, d.registered[name]...)
}

func (d *Dispatcher) drain(l *lane) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		if len(l.queue) == 0 {
			l.running = false
			d.mu.Unlock()
			return
		}
		next := l.queue[0]
		l.queue[0] = job{}
		l.queue = l.queue[1:]
		d.mu.Unlock()

		for _, h := range next.handlers {
			d.invoke(h, next)
		}
	}
}

func (d *Dispatcher) invoke(h Handler, j job) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event handler panicked",
				logging.String("event", string(j.name)),
				logging.Any("panic", r),
				logging.String(logging.FieldEventType, "handler_panic"),
				logging.String(logging.FieldImpact, "remaining handlers for this event still run"),
			)
		}
	}()
	h.HandleEvent(j.name, j.payload)
}

func (d *Dispatcher) check(name Name, h Handler) error {
	if _, ok := d.known[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEvent, name)
	}
	if h == nil {
		return fmt.Errorf("%w: nil handler", ErrHandlerNotComparable)
	}
	if !reflect.TypeOf(h).Comparable() {
		return fmt.Errorf("%w: %T", ErrHandlerNotComparable, h)
	}
	return nil
}
