package correlator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"skylink/internal/apierr"
	"skylink/internal/logging"
)

// Ticket is the handle for one registered command.
type Ticket struct {
	cmd   *Command
	done  chan struct{}
	err   error
	timer *time.Timer
	since time.Time
}

// ID returns the id assigned at registration.
func (t *Ticket) ID() int { return t.cmd.ID }

// Command returns the registered command.
func (t *Ticket) Command() *Command { return t.cmd }

// Done is closed when the command leaves the table for any reason.
func (t *Ticket) Done() <-chan struct{} { return t.done }

// Snapshot describes an in-flight command for diagnostics.
type Snapshot struct {
	ID       int
	Text     string
	Blocking bool
	Since    time.Time
}

// Table is the in-flight command table. One mutex guards every entry; removal
// under that lock is the only authoritative resolution of a command.
type Table struct {
	mu      sync.Mutex
	entries map[int]*Ticket
	closed  bool
	logger  *slog.Logger
}

// NewTable returns an empty table.
func NewTable(logger *slog.Logger) *Table {
	return &Table{
		entries: make(map[int]*Ticket),
		logger:  logging.NewComponentLogger(logger, "correlator"),
	}
}

// Register assigns the smallest free non-negative id to commands with ID < 0
// and records the command as in flight. An explicit id that is already in
// flight fails with ErrIDConflict.
func (t *Table) Register(cmd *Command) (*Ticket, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, apierr.Wrap(apierr.ErrClosed, "correlator", "register", "", nil)
	}
	if cmd.ID < 0 {
		id := 0
		for {
			if _, taken := t.entries[id]; !taken {
				break
			}
			id++
		}
		cmd.ID = id
	} else if _, taken := t.entries[cmd.ID]; taken {
		return nil, apierr.Wrap(apierr.ErrIDConflict, "correlator", "register", fmt.Sprintf("id %d already in flight", cmd.ID), nil)
	}

	ticket := &Ticket{cmd: cmd, done: make(chan struct{}), since: time.Now()}
	t.entries[cmd.ID] = ticket
	return ticket, nil
}

// Resolve completes the in-flight command with id. It returns false when no
// such command is in flight, in which case the caller should treat the frame
// as a notification.
func (t *Table) Resolve(id int, reply string) (*Command, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ticket, ok := t.entries[id]
	if !ok {
		return nil, false
	}
	delete(t.entries, id)
	if ticket.timer != nil {
		ticket.timer.Stop()
	}
	ticket.cmd.Reply = reply
	close(ticket.done)
	return ticket.cmd, true
}

// Remove drops the command with id without resolving it. Any waiter is woken
// with err.
func (t *Table) Remove(id int, err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	ticket, ok := t.entries[id]
	if !ok {
		return false
	}
	t.release(ticket, err)
	return true
}

// Wait blocks until ticket is resolved, timeout elapses, or ctx ends. On expiry
// the entry is removed under the table lock; if a reply won that race the
// reply is kept and Wait returns nil. A timeout of zero or less waits on ctx
// only.
func (t *Table) Wait(ctx context.Context, ticket *Ticket, timeout time.Duration) error {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-ticket.done:
		return ticket.err
	case <-expired:
		t.abandon(ticket, apierr.Wrap(apierr.ErrCommandTimeout, "correlator", "wait",
			fmt.Sprintf("no reply to command %d within %s", ticket.cmd.ID, timeout), nil))
	case <-ctx.Done():
		t.abandon(ticket, ctx.Err())
	}
	// Every removal path closes done under the table lock.
	<-ticket.done
	return ticket.err
}

// ArmDiscard silently drops ticket after timeout unless a reply arrives first.
func (t *Table) ArmDiscard(ticket *Ticket, timeout time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.entries[ticket.cmd.ID] != ticket {
		return
	}
	ticket.timer = time.AfterFunc(timeout, func() {
		if t.abandon(ticket, nil) {
			t.logger.Debug("discarded unanswered command",
				logging.Int(logging.FieldCommandID, ticket.cmd.ID),
				logging.Duration("timeout", timeout),
			)
		}
	})
}

// Drain removes every in-flight command, wakes blocked waiters with ErrClosed,
// and rejects later registrations. It returns the number of commands dropped.
func (t *Table) Drain() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	n := len(t.entries)
	closedErr := apierr.Wrap(apierr.ErrClosed, "correlator", "drain", "", nil)
	for _, ticket := range t.entries {
		t.release(ticket, closedErr)
	}
	return n
}

// Len returns the number of in-flight commands.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Pending lists in-flight commands ordered by id.
func (t *Table) Pending() []Snapshot {
	t.mu.Lock()
	out := make([]Snapshot, 0, len(t.entries))
	for _, ticket := range t.entries {
		out = append(out, Snapshot{
			ID:       ticket.cmd.ID,
			Text:     ticket.cmd.Text,
			Blocking: ticket.cmd.Blocking,
			Since:    ticket.since,
		})
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// abandon removes ticket if it is still the entry for its id.
func (t *Table) abandon(ticket *Ticket, err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.entries[ticket.cmd.ID] != ticket {
		return false
	}
	t.release(ticket, err)
	return true
}

// release must be called with t.mu held.
func (t *Table) release(ticket *Ticket, err error) {
	delete(t.entries, ticket.cmd.ID)
	if ticket.timer != nil {
		ticket.timer.Stop()
	}
	ticket.err = err
	close(ticket.done)
}
