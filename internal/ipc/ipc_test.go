package ipc_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"skylink/internal/daemon"
	"skylink/internal/ipc"
	"skylink/internal/logging"
	"skylink/internal/testsupport"
	"skylink/internal/wire"
)

func startServer(t *testing.T, host *testsupport.FakeHost) *ipc.Client {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	logger := logging.NewNop()
	d, err := daemon.New(cfg, testsupport.NewClient(t, cfg, host), logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	socket := filepath.Join(cfg.Paths.RuntimeDir, "skylink.sock")
	srv, err := ipc.NewServer(ctx, socket, d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(func() {
		srv.Close()
	})

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})
	return client
}

func TestIPCServerClient(t *testing.T) {
	host := testsupport.NewFakeHost()
	host.SetResponder(func(id int, text string) []string {
		switch {
		case strings.HasPrefix(text, "NAME "):
			return []string{wire.Format(id, "OK")}
		case strings.HasPrefix(text, "PROTOCOL "):
			return []string{wire.Format(id, "PROTOCOL 7")}
		case text == "GET CURRENTUSERHANDLE":
			return []string{wire.Format(id, "CURRENTUSERHANDLE echo123")}
		case text == "GET BOGUS":
			return []string{wire.Format(id, "ERROR 7 GET: invalid WHAT")}
		}
		return nil
	})
	client := startServer(t, host)

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if status.Running {
		t.Fatal("expected daemon to be stopped before Start")
	}

	startResp, err := client.Start()
	if err != nil {
		t.Fatalf("Start RPC failed: %v", err)
	}
	if !startResp.Started {
		t.Fatalf("expected Started=true, message=%s", startResp.Message)
	}

	status, err = client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running || status.AttachStatus != "Success" || status.Protocol != 7 {
		t.Fatalf("unexpected status %+v", status)
	}
	if status.Transport != "dbus" || status.Session == "" {
		t.Fatalf("expected transport and session, got %+v", status)
	}

	again, err := client.Start()
	if err != nil {
		t.Fatalf("second Start RPC failed: %v", err)
	}
	if again.Started {
		t.Fatal("expected second start to report already running")
	}

	sendResp, err := client.Send(ipc.SendRequest{Text: "GET CURRENTUSERHANDLE", Blocking: true})
	if err != nil {
		t.Fatalf("Send RPC failed: %v", err)
	}
	if sendResp.Reply != "CURRENTUSERHANDLE echo123" || sendResp.HostError != nil {
		t.Fatalf("unexpected send response %+v", sendResp)
	}

	errResp, err := client.Send(ipc.SendRequest{Text: "GET BOGUS", Blocking: true})
	if err != nil {
		t.Fatalf("host errors should not fail the RPC: %v", err)
	}
	if errResp.HostError == nil || errResp.HostError.Code != 7 {
		t.Fatalf("expected host error code 7, got %+v", errResp)
	}

	if _, err := client.Send(ipc.SendRequest{}); err == nil {
		t.Fatal("expected empty command to fail")
	}

	attachResp, err := client.Attach(ipc.AttachRequest{})
	if err != nil {
		t.Fatalf("Attach RPC failed: %v", err)
	}
	if attachResp.AttachStatus != "Success" {
		t.Fatalf("unexpected attach status %q", attachResp.AttachStatus)
	}

	stopResp, err := client.Stop()
	if err != nil {
		t.Fatalf("Stop RPC failed: %v", err)
	}
	if !stopResp.Stopped {
		t.Fatal("expected Stopped=true")
	}
}

func TestIPCNotifications(t *testing.T) {
	host := testsupport.NewFakeHost()
	client := startServer(t, host)
	if _, err := client.Start(); err != nil {
		t.Fatalf("Start RPC failed: %v", err)
	}

	empty, err := client.Notifications(ipc.NotificationsRequest{})
	if err != nil {
		t.Fatalf("Notifications RPC failed: %v", err)
	}
	if len(empty.Notifications) != 0 || empty.LastSeq != 0 {
		t.Fatalf("expected empty buffer, got %+v", empty)
	}

	go func() {
		time.Sleep(30 * time.Millisecond)
		host.Inject("CHATMESSAGE 41 STATUS RECEIVED")
		host.Inject("CHATMESSAGE 42 STATUS RECEIVED")
	}()

	var got []ipc.Notification
	var after uint64
	deadline := time.Now().Add(3 * time.Second)
	for len(got) < 2 && time.Now().Before(deadline) {
		resp, err := client.Notifications(ipc.NotificationsRequest{AfterSeq: after, WaitMS: 500})
		if err != nil {
			t.Fatalf("Notifications RPC failed: %v", err)
		}
		for _, n := range resp.Notifications {
			got = append(got, n)
			after = n.Seq
		}
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 notifications, got %+v", got)
	}
	if got[0].Text != "CHATMESSAGE 41 STATUS RECEIVED" || got[1].Seq != 2 {
		t.Fatalf("unexpected notifications %+v", got)
	}
}

func TestIPCShutdown(t *testing.T) {
	client := startServer(t, testsupport.NewFakeHost())
	resp, err := client.Shutdown()
	if err != nil {
		t.Fatalf("Shutdown RPC failed: %v", err)
	}
	if !resp.Acknowledged {
		t.Fatal("expected acknowledgement")
	}
}

func TestDialMissingSocket(t *testing.T) {
	if _, err := ipc.Dial(filepath.Join(t.TempDir(), "missing.sock")); err == nil {
		t.Fatal("expected dial error for missing socket")
	}
}
