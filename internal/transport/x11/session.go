package x11

import (
	"errors"
	"log/slog"
	"time"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"

	"skylink/internal/attach"
	"skylink/internal/logging"
	"skylink/internal/transport"
	"skylink/internal/wire"
)

var errHostGone = errors.New("host window not present")

type atoms struct {
	instance xproto.Atom
	message  xproto.Atom
	begin    xproto.Atom
}

// session is the pump goroutine's state. Nothing else touches it.
type session struct {
	conn   *xgb.Conn
	root   xproto.Window
	self   xproto.Window
	host   xproto.Window
	atoms  atoms
	lookup func() (xproto.Window, error)

	reasm    wire.Reassembler
	sink     transport.Sink
	settleAt time.Time
	logger   *slog.Logger
}

// readInstance returns the host window from _SKYPE_INSTANCE, or zero when
// the host is not running.
func (s *session) readInstance() (xproto.Window, error) {
	reply, err := xproto.GetProperty(s.conn, false, s.root, s.atoms.instance, xproto.AtomWindow, 0, 1).Reply()
	if err != nil {
		return 0, err
	}
	if reply.Format != 32 || reply.ValueLen != 1 || len(reply.Value) < 4 {
		return 0, nil
	}
	return xproto.Window(xgb.Get32(reply.Value)), nil
}

// drain handles every queued event and reports whether there were any.
func (s *session) drain() bool {
	handled := false
	for {
		ev, xerr := s.conn.PollForEvent()
		if ev == nil && xerr == nil {
			return handled
		}
		handled = true
		if xerr != nil {
			s.logger.Debug("x11 protocol error", logging.String("error", xerr.Error()))
			continue
		}
		s.handle(ev, time.Now())
	}
}

func (s *session) handle(ev xgb.Event, now time.Time) {
	switch e := ev.(type) {
	case xproto.ClientMessageEvent:
		s.handleMessage(e.Type, e.Format, e.Data.Data8)
	case xproto.PropertyNotifyEvent:
		s.handleProperty(e.Atom, e.State, now)
	}
}

func (s *session) handleMessage(typ xproto.Atom, format byte, data []byte) {
	if format != 8 {
		return
	}
	var begin bool
	switch typ {
	case s.atoms.begin:
		begin = true
	case s.atoms.message:
	default:
		return
	}
	frame, done, err := s.reasm.Feed(data, begin)
	if err != nil {
		s.logger.Warn("dropping message chunk",
			logging.Error(err),
			logging.String(logging.FieldEventType, "x11_orphan_chunk"),
			logging.String(logging.FieldErrorHint, "the host may have restarted mid-message"),
			logging.String(logging.FieldImpact, "one inbound frame lost"),
		)
		return
	}
	if done {
		s.sink.Receive(frame)
	}
}

func (s *session) handleProperty(atom xproto.Atom, state byte, now time.Time) {
	if atom != s.atoms.instance {
		return
	}
	switch state {
	case xproto.PropertyNewValue:
		host, err := s.lookup()
		if err != nil {
			s.logger.Debug("reading host instance failed", logging.Error(err))
		}
		s.host = host
		s.settleAt = now.Add(settleDelay)
	case xproto.PropertyDelete:
		s.host = 0
		s.settleAt = time.Time{}
		s.reasm.Reset()
		s.sink.SetStatus(attach.NotAvailable)
	}
}

// settle reports Available once a new host instance has had settleDelay to
// start up.
func (s *session) settle(now time.Time) {
	if s.settleAt.IsZero() || now.Before(s.settleAt) {
		return
	}
	s.settleAt = time.Time{}
	s.sink.SetStatus(attach.Available)
}

func (s *session) nextWait(wait time.Duration, now time.Time) time.Duration {
	if s.settleAt.IsZero() {
		return wait
	}
	return max(min(wait, s.settleAt.Sub(now)), minPoll)
}

// messages builds the ClientMessage events carrying frame.
func (s *session) messages(frame string) []xproto.ClientMessageEvent {
	chunks := wire.Chunk(frame)
	out := make([]xproto.ClientMessageEvent, 0, len(chunks))
	typ := s.atoms.begin
	for _, chunk := range chunks {
		data := make([]byte, wire.ChunkSize)
		copy(data, chunk)
		out = append(out, xproto.ClientMessageEvent{
			Format: 8,
			Window: s.self,
			Type:   typ,
			Data:   xproto.ClientMessageDataUnionData8New(data),
		})
		typ = s.atoms.message
	}
	return out
}

func (s *session) send(frame string) error {
	if s.host == 0 {
		return errHostGone
	}
	for _, ev := range s.messages(frame) {
		if err := xproto.SendEventChecked(s.conn, false, s.host, 0, string(ev.Bytes())).Check(); err != nil {
			return err
		}
	}
	return nil
}
