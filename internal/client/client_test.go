package client_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"skylink/internal/apierr"
	"skylink/internal/attach"
	"skylink/internal/client"
	"skylink/internal/correlator"
	"skylink/internal/testsupport"
	"skylink/internal/transport"
	"skylink/internal/wire"
)

func newClient(t *testing.T, host *testsupport.FakeHost) *client.Client {
	t.Helper()
	c, err := client.New(client.Options{
		Transport:        host,
		FriendlyName:     "tester",
		CommandTimeout:   time.Second,
		AttachTimeout:    time.Second,
		DiscoverInterval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

type statusLog struct {
	mu  sync.Mutex
	got []attach.Status
}

func (s *statusLog) OnAttachmentStatus(st attach.Status) {
	s.mu.Lock()
	s.got = append(s.got, st)
	s.mu.Unlock()
}

func (s *statusLog) snapshot() []attach.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]attach.Status(nil), s.got...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestAttachNegotiatesProtocol(t *testing.T) {
	host := testsupport.NewFakeHost(testsupport.WithResponder(testsupport.StandardResponder(7)))
	c := newClient(t, host)
	statuses := &statusLog{}
	c.SetHandlerObject(statuses)

	if err := c.Attach(context.Background(), 0); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if c.Status() != attach.Success {
		t.Fatalf("expected Success, got %s", c.Status())
	}
	if c.Protocol() != 7 {
		t.Fatalf("expected negotiated protocol 7, got %d", c.Protocol())
	}

	posted := host.Posted()
	if len(posted) != 2 || posted[0] != "#0 NAME tester" || posted[1] != "#0 PROTOCOL 5" {
		t.Fatalf("unexpected handshake frames %q", posted)
	}
	waitFor(t, "status events", func() bool { return len(statuses.snapshot()) == 2 })
	got := statuses.snapshot()
	if got[0] != attach.PendingAuthorization || got[1] != attach.Success {
		t.Fatalf("unexpected status events %v", got)
	}

	// Attaching again is a no-op.
	if err := c.Attach(context.Background(), 0); err != nil {
		t.Fatalf("second Attach: %v", err)
	}
	if len(host.Posted()) != 2 {
		t.Fatalf("second attach posted frames: %q", host.Posted())
	}
}

func TestSendBlockingReturnsReply(t *testing.T) {
	host := testsupport.NewFakeHost()
	host.SetResponder(func(id int, text string) []string {
		if text == "PROTOCOL 5" {
			return []string{wire.Format(id, "PROTOCOL 7")}
		}
		return testsupport.StandardResponder(0)(id, text)
	})
	c := newClient(t, host)

	cmd := correlator.NewCommand("PROTOCOL 5", "PROTOCOL", true, 0)
	if err := c.Send(context.Background(), cmd); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if cmd.Reply != "PROTOCOL 7" {
		t.Fatalf("unexpected reply %q", cmd.Reply)
	}
	if c.Protocol() != 7 {
		t.Fatalf("expected protocol 7, got %d", c.Protocol())
	}
}

func TestSendTimesOutAndLateReplyBecomesNotification(t *testing.T) {
	host := testsupport.NewFakeHost()
	c := newClient(t, host)
	if err := c.Attach(context.Background(), 0); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	var mu sync.Mutex
	var notes []string
	c.OnNotify(func(text string) {
		mu.Lock()
		notes = append(notes, text)
		mu.Unlock()
	})

	cmd := correlator.NewCommand("GET SKYPEVERSION", "SKYPEVERSION", true, 50*time.Millisecond)
	start := time.Now()
	err := c.Send(context.Background(), cmd)
	if !errors.Is(err, apierr.ErrCommandTimeout) {
		t.Fatalf("expected command timeout, got %v", err)
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Fatal("timed out early")
	}
	if len(c.Pending()) != 0 {
		t.Fatalf("expected empty in-flight table, got %+v", c.Pending())
	}

	host.Inject(wire.Format(cmd.ID, "SKYPEVERSION 2.0"))
	waitFor(t, "late reply notification", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(notes) == 1
	})
	mu.Lock()
	defer mu.Unlock()
	if notes[0] != "SKYPEVERSION 2.0" {
		t.Fatalf("unexpected notification %q", notes[0])
	}
}

func TestAttachTimeoutLeavesStatusUnknown(t *testing.T) {
	host := testsupport.NewFakeHost(testsupport.WithResponder(func(int, string) []string { return nil }))
	c := newClient(t, host)

	start := time.Now()
	err := c.Attach(context.Background(), 100*time.Millisecond)
	elapsed := time.Since(start)

	if !errors.Is(err, apierr.ErrAttachTimeout) {
		t.Fatalf("expected attach timeout, got %v", err)
	}
	if elapsed < 100*time.Millisecond {
		t.Fatalf("attach timed out early after %s", elapsed)
	}
	if c.Status() != attach.Unknown {
		t.Fatalf("expected Unknown, got %s", c.Status())
	}
}

func TestAttachTimeoutWhenHostMissing(t *testing.T) {
	host := testsupport.NewFakeHost(testsupport.Unavailable())
	c := newClient(t, host)

	err := c.Attach(context.Background(), 100*time.Millisecond)
	if !errors.Is(err, apierr.ErrAttachTimeout) {
		t.Fatalf("expected attach timeout, got %v", err)
	}
	if len(host.Posted()) != 0 {
		t.Fatalf("nothing should be posted to a missing host: %q", host.Posted())
	}
}

func TestAttachRefusedOnNonOKName(t *testing.T) {
	host := testsupport.NewFakeHost(testsupport.WithResponder(func(id int, text string) []string {
		return []string{wire.Format(id, "ERROR 68 Access denied")}
	}))
	c := newClient(t, host)

	err := c.Attach(context.Background(), 0)
	if !errors.Is(err, apierr.ErrAttachRefused) {
		t.Fatalf("expected refusal, got %v", err)
	}
	if c.Status() != attach.Refused {
		t.Fatalf("expected Refused, got %s", c.Status())
	}
}

func nativeHost(script func(string) []attach.Status, suspend bool) *testsupport.FakeHost {
	return testsupport.NewFakeHost(
		testsupport.WithKind(transport.KindWinMsg),
		testsupport.WithHandshake(transport.Handshake{Mode: transport.HandshakeNative, PendingSuspendsTimeout: suspend}),
		testsupport.WithNativeAttach(script),
	)
}

func TestNativeAttachFollowsHostStatuses(t *testing.T) {
	host := nativeHost(func(string) []attach.Status {
		return []attach.Status{attach.PendingAuthorization, attach.Success}
	}, true)
	c := newClient(t, host)

	if err := c.Attach(context.Background(), 0); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if c.Status() != attach.Success {
		t.Fatalf("expected Success, got %s", c.Status())
	}
	posted := host.Posted()
	if len(posted) != 1 || posted[0] != "#0 PROTOCOL 5" {
		t.Fatalf("expected only protocol negotiation, got %q", posted)
	}
}

func TestNativeAttachPendingSuspendsTimeout(t *testing.T) {
	host := nativeHost(func(string) []attach.Status {
		return []attach.Status{attach.PendingAuthorization}
	}, true)
	c := newClient(t, host)

	errs := make(chan error, 1)
	go func() { errs <- c.Attach(context.Background(), 50*time.Millisecond) }()

	// Past the attach timeout, the host user finally approves.
	time.Sleep(150 * time.Millisecond)
	select {
	case err := <-errs:
		t.Fatalf("attach returned while pending: %v", err)
	default:
	}
	host.InjectStatus(attach.Success)

	select {
	case err := <-errs:
		if err != nil {
			t.Fatalf("Attach: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("attach did not complete")
	}
}

func TestNativeAttachRepeatsRequestWhenHostBecomesAvailable(t *testing.T) {
	host := nativeHost(func(string) []attach.Status { return nil }, true)
	c := newClient(t, host)

	errs := make(chan error, 1)
	go func() { errs <- c.Attach(context.Background(), time.Second) }()

	waitFor(t, "first attach request", func() bool { return host.AttachRequests() == 1 })
	host.InjectStatus(attach.Available)
	waitFor(t, "repeated attach request", func() bool { return host.AttachRequests() == 2 })
	host.InjectStatus(attach.Success)

	if err := <-errs; err != nil {
		t.Fatalf("Attach: %v", err)
	}
}

func TestNativeAttachTimeoutAndRefusal(t *testing.T) {
	silent := nativeHost(func(string) []attach.Status { return nil }, false)
	c := newClient(t, silent)
	start := time.Now()
	if err := c.Attach(context.Background(), 100*time.Millisecond); !errors.Is(err, apierr.ErrAttachTimeout) {
		t.Fatalf("expected attach timeout, got %v", err)
	}
	if time.Since(start) < 100*time.Millisecond {
		t.Fatal("timed out early")
	}
	if c.Status() != attach.Unknown {
		t.Fatalf("expected Unknown, got %s", c.Status())
	}

	refusing := nativeHost(func(string) []attach.Status {
		return []attach.Status{attach.PendingAuthorization, attach.Refused}
	}, false)
	c2 := newClient(t, refusing)
	if err := c2.Attach(context.Background(), 0); !errors.Is(err, apierr.ErrAttachRefused) {
		t.Fatalf("expected refusal, got %v", err)
	}
}

func TestNativeAttachRetryAfterRefusal(t *testing.T) {
	host := nativeHost(func(string) []attach.Status {
		return []attach.Status{attach.Refused}
	}, true)
	c := newClient(t, host)

	for attempt := 1; attempt <= 2; attempt++ {
		start := time.Now()
		err := c.Attach(context.Background(), 2*time.Second)
		if !errors.Is(err, apierr.ErrAttachRefused) {
			t.Fatalf("attempt %d: expected refusal, got %v", attempt, err)
		}
		if elapsed := time.Since(start); elapsed >= time.Second {
			t.Fatalf("attempt %d: refusal took %s, expected it before the timeout", attempt, elapsed)
		}
		if c.Status() != attach.Refused {
			t.Fatalf("attempt %d: expected Refused, got %s", attempt, c.Status())
		}
	}
}

func TestPostFailureMarksNotAvailable(t *testing.T) {
	host := testsupport.NewFakeHost()
	c := newClient(t, host)
	if err := c.Attach(context.Background(), 0); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	host.FailPosts(errors.New("window gone"))
	err := c.Send(context.Background(), correlator.NewCommand("PING", "PONG", true, 0))
	if !errors.Is(err, apierr.ErrTransportSendFailure) {
		t.Fatalf("expected send failure, got %v", err)
	}
	if c.Status() != attach.NotAvailable {
		t.Fatalf("expected NotAvailable, got %s", c.Status())
	}
	if len(c.Pending()) != 0 {
		t.Fatal("failed command must not stay in flight")
	}
}

func TestAutoAssignedIDsAreLowestFree(t *testing.T) {
	host := testsupport.NewFakeHost()
	c := newClient(t, host)
	if err := c.Attach(context.Background(), 0); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	first := correlator.NewCommand("SET USERSTATUS ONLINE", "", false, time.Second)
	second := correlator.NewCommand("SET SILENT_MODE ON", "", false, time.Second)
	for _, cmd := range []*correlator.Command{first, second} {
		if err := c.Send(context.Background(), cmd); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	if first.ID != 0 || second.ID != 1 {
		t.Fatalf("expected ids 0 and 1, got %d and %d", first.ID, second.ID)
	}

	dup := correlator.NewCommand("PING", "", true, 0)
	dup.ID = 1
	if err := c.Send(context.Background(), dup); !errors.Is(err, apierr.ErrIDConflict) {
		t.Fatalf("expected id conflict, got %v", err)
	}
}

func TestFireAndForgetIsDiscardedSilently(t *testing.T) {
	host := testsupport.NewFakeHost()
	c := newClient(t, host)

	cmd := correlator.NewCommand("SET USERSTATUS AWAY", "", false, 30*time.Millisecond)
	if err := c.Send(context.Background(), cmd); err != nil {
		t.Fatalf("Send: %v", err)
	}
	waitFor(t, "discard", func() bool { return len(c.Pending()) == 0 })
}

func TestDoCommandHostError(t *testing.T) {
	host := testsupport.NewFakeHost()
	host.SetResponder(func(id int, text string) []string {
		if strings.HasPrefix(text, "GET BOGUS") {
			return []string{wire.Format(id, "ERROR 7 GET: invalid WHAT")}
		}
		if strings.HasPrefix(text, "GET USERSTATUS") {
			return []string{wire.Format(id, "CONNSTATUS ONLINE")}
		}
		return testsupport.StandardResponder(0)(id, text)
	})
	c := newClient(t, host)

	events := make(chan *client.ErrorEvent, 1)
	c.OnError(func(ev *client.ErrorEvent) { events <- ev })

	_, err := c.DoCommand(context.Background(), "GET BOGUS", "BOGUS")
	var hostErr *apierr.HostError
	if !errors.As(err, &hostErr) || hostErr.Code != 7 || hostErr.Text != "GET: invalid WHAT" {
		t.Fatalf("expected host error 7, got %v", err)
	}
	select {
	case ev := <-events:
		if ev.Code != 7 || ev.Command.Text != "GET BOGUS" {
			t.Fatalf("unexpected error event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no error event")
	}

	reply, err := c.DoCommand(context.Background(), "GET USERSTATUS", "USERSTATUS")
	if !errors.As(err, &hostErr) || hostErr.Code != 0 {
		t.Fatalf("expected unexpected-reply error, got %v", err)
	}
	if reply != "CONNSTATUS ONLINE" {
		t.Fatalf("unexpected reply %q", reply)
	}
}

func TestExecuteChecksBlockingReplies(t *testing.T) {
	host := testsupport.NewFakeHost()
	host.SetResponder(func(id int, text string) []string {
		if text == "GET NOPE" {
			return []string{wire.Format(id, "ERROR 7 GET: invalid WHAT")}
		}
		return testsupport.StandardResponder(0)(id, text)
	})
	c := newClient(t, host)

	events := make(chan *client.ErrorEvent, 1)
	c.OnError(func(ev *client.ErrorEvent) { events <- ev })

	cmd := correlator.NewCommand("GET NOPE", "", true, time.Second)
	var hostErr *apierr.HostError
	if err := c.Execute(context.Background(), cmd); !errors.As(err, &hostErr) || hostErr.Command != "GET NOPE" {
		t.Fatalf("expected host error for GET NOPE, got %v", err)
	}
	select {
	case ev := <-events:
		if ev.Code != 7 {
			t.Fatalf("unexpected error event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no error event")
	}

	posted := correlator.NewCommand("GET NOPE", "NEVER", false, time.Second)
	if err := c.Execute(context.Background(), posted); err != nil {
		t.Fatalf("fire-and-forget commands are not checked: %v", err)
	}
}

func TestSetFriendlyNameReannounces(t *testing.T) {
	host := testsupport.NewFakeHost()
	c := newClient(t, host)
	if err := c.Attach(context.Background(), 0); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if err := c.SetFriendlyName(context.Background(), "renamed"); err != nil {
		t.Fatalf("SetFriendlyName: %v", err)
	}
	posted := host.Posted()
	if last := posted[len(posted)-1]; last != "#0 NAME renamed" {
		t.Fatalf("expected NAME re-announcement, got %q", last)
	}
	if c.FriendlyName() != "renamed" {
		t.Fatalf("unexpected friendly name %q", c.FriendlyName())
	}
}

func TestHostStatusChangesSurfaceAsEvents(t *testing.T) {
	host := testsupport.NewFakeHost()
	c := newClient(t, host)
	if err := c.Attach(context.Background(), 0); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	seen := make(chan attach.Status, 4)
	c.OnAttachmentStatus(func(s attach.Status) { seen <- s })

	host.InjectStatus(attach.NotAvailable)
	select {
	case s := <-seen:
		if s != attach.NotAvailable {
			t.Fatalf("unexpected status %s", s)
		}
	case <-time.After(time.Second):
		t.Fatal("no status event")
	}
}

func TestCloseIsIdempotentAndReleasesOnce(t *testing.T) {
	host := testsupport.NewFakeHost()
	c, err := client.New(client.Options{Transport: host})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Attach(context.Background(), time.Second); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if host.Releases() != 1 {
		t.Fatalf("expected one native release, got %d", host.Releases())
	}
	if err := c.Send(context.Background(), correlator.NewCommand("PING", "", true, 0)); !errors.Is(err, apierr.ErrClosed) {
		t.Fatalf("expected closed error, got %v", err)
	}
}

func TestCloseWakesBlockedSender(t *testing.T) {
	host := testsupport.NewFakeHost()
	c, err := client.New(client.Options{Transport: host, CommandTimeout: 10 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Attach(context.Background(), time.Second); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	errs := make(chan error, 1)
	go func() { errs <- c.Send(context.Background(), correlator.NewCommand("GET CALL 1 STATUS", "", true, 0)) }()
	waitFor(t, "command in flight", func() bool { return len(c.Pending()) == 1 })

	_ = c.Close()
	select {
	case err := <-errs:
		if !errors.Is(err, apierr.ErrClosed) {
			t.Fatalf("expected closed error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked sender not woken by Close")
	}
}

func TestNewFromConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithTransport("x11"), testsupport.WithFriendlyName("cfg-client"))
	c, err := client.NewFromConfig(cfg, nil)
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	defer c.Close()
	if c.Kind() != transport.KindX11 {
		t.Fatalf("unexpected transport %s", c.Kind())
	}
	if c.FriendlyName() != "cfg-client" {
		t.Fatalf("unexpected friendly name %q", c.FriendlyName())
	}
	if c.Protocol() != cfg.Client.Protocol {
		t.Fatalf("unexpected protocol %d", c.Protocol())
	}
}
