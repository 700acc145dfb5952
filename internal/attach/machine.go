package attach

import (
	"context"
	"sync"
)

// Machine holds one client's attachment status. Set reports transitions to the
// change callback exactly once; setting the current status is a no-op.
type Machine struct {
	mu       sync.Mutex
	status   Status
	changed  chan struct{}
	onChange func(Status)
}

// NewMachine returns a machine in the Unknown state. onChange may be nil. It
// runs with the machine's lock held, so it must not block or call back into
// the machine.
func NewMachine(onChange func(Status)) *Machine {
	return &Machine{
		status:   Unknown,
		changed:  make(chan struct{}),
		onChange: onChange,
	}
}

// Status returns the current status.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Set moves to status and returns true if that was a transition.
func (m *Machine) Set(status Status) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == status {
		return false
	}
	m.status = status
	close(m.changed)
	m.changed = make(chan struct{})
	if m.onChange != nil {
		m.onChange(status)
	}
	return true
}

// Watch returns the current status and a channel closed on the next transition.
func (m *Machine) Watch() (Status, <-chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status, m.changed
}

// Wait blocks until pred accepts the status or ctx ends. It returns the status
// that satisfied pred, or the last observed status with ctx's error.
func (m *Machine) Wait(ctx context.Context, pred func(Status) bool) (Status, error) {
	for {
		status, changed := m.Watch()
		if pred(status) {
			return status, nil
		}
		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-changed:
		}
	}
}
