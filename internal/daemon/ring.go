package daemon

import (
	"context"
	"sync"
	"time"
)

// Notification is one host notification kept by the daemon.
type Notification struct {
	Seq      uint64
	Received time.Time
	Text     string
}

// ring keeps the most recent notifications. Sequence numbers start at 1 and
// never repeat for the life of the daemon.
type ring struct {
	mu      sync.Mutex
	buf     []Notification
	size    int
	last    uint64
	changed chan struct{}
}

func newRing(size int) *ring {
	if size < 1 {
		size = 1
	}
	return &ring{size: size, changed: make(chan struct{})}
}

func (r *ring) add(text string, at time.Time) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last++
	r.buf = append(r.buf, Notification{Seq: r.last, Received: at, Text: text})
	if over := len(r.buf) - r.size; over > 0 {
		r.buf = append(r.buf[:0:0], r.buf[over:]...)
	}
	close(r.changed)
	r.changed = make(chan struct{})
	return r.last
}

// since returns up to limit entries newer than after, oldest first, and
// whether entries between after and the first returned one were evicted.
func (r *ring) since(after uint64, limit int) ([]Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sinceLocked(after, limit)
}

func (r *ring) sinceLocked(after uint64, limit int) ([]Notification, bool) {
	if len(r.buf) == 0 || after >= r.last {
		return nil, false
	}
	start := 0
	for start < len(r.buf) && r.buf[start].Seq <= after {
		start++
	}
	missed := r.buf[start].Seq > after+1
	out := r.buf[start:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return append([]Notification(nil), out...), missed
}

// wait blocks until an entry newer than after exists or ctx ends.
func (r *ring) wait(ctx context.Context, after uint64) error {
	for {
		r.mu.Lock()
		if r.last > after {
			r.mu.Unlock()
			return nil
		}
		changed := r.changed
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

func (r *ring) lastSeq() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}
