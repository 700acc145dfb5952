package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"skylink/internal/ipc"
)

func startDaemon(t *testing.T, env *cliTestEnv) {
	t.Helper()
	if _, _, err := runCLI(t, []string{"start"}, env.socketPath, env.configPath); err != nil {
		t.Fatalf("start: %v", err)
	}
}

func TestSendCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	startDaemon(t, env)

	out, _, err := runCLI(t, []string{"send", "GET", "USERSTATUS"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if strings.TrimSpace(out) != "USERSTATUS ONLINE" {
		t.Fatalf("unexpected reply %q", out)
	}

	out, _, err = runCLI(t, []string{"send", "--json", "GET USERSTATUS"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("send --json: %v", err)
	}
	var resp ipc.SendResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode send json: %v", err)
	}
	if resp.Reply != "USERSTATUS ONLINE" || resp.ID < 0 {
		t.Fatalf("unexpected response %+v", resp)
	}

	_, _, err = runCLI(t, []string{"send", "GET", "BOGUS"}, env.socketPath, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "host error 7") {
		t.Fatalf("expected host error, got %v", err)
	}

	_, _, err = runCLI(t, []string{"send", "--expect", "CURRENTUSERHANDLE", "GET USERSTATUS"}, env.socketPath, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "unexpected reply") {
		t.Fatalf("expected prefix mismatch, got %v", err)
	}

	out, _, err = runCLI(t, []string{"send", "--no-wait", "SET USERSTATUS AWAY"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("send --no-wait: %v", err)
	}
	requireContains(t, out, "Posted command")
}

func TestSendWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"send", "PING"}, env.baseDir+"/absent.sock", env.configPath)
	if err == nil || !strings.Contains(err.Error(), "skylink start") {
		t.Fatalf("expected start hint, got %v", err)
	}
}

func TestAttachCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	startDaemon(t, env)

	out, _, err := runCLI(t, []string{"attach", "--timeout", "1s"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	requireContains(t, out, "Attached (status Success")
}

func TestTailCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	startDaemon(t, env)

	for i := 1; i <= 3; i++ {
		env.host.Inject(fmt.Sprintf("USER echo123 ONLINESTATUS %d", i))
	}
	deadline := time.Now().Add(2 * time.Second)
	for env.daemon.Status().LastSeq < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	out, _, err := runCLI(t, []string{"tail"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 || lines[0] != "USER echo123 ONLINESTATUS 1" {
		t.Fatalf("unexpected tail output %q", out)
	}

	out, _, err = runCLI(t, []string{"tail", "--seq", "--after", "2"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("tail --after: %v", err)
	}
	if strings.TrimSpace(out) != "3\tUSER echo123 ONLINESTATUS 3" {
		t.Fatalf("unexpected tail --after output %q", out)
	}

	out, _, err = runCLI(t, []string{"tail", "--json", "--after", "1"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("tail --json: %v", err)
	}
	records := strings.Split(strings.TrimSpace(out), "\n")
	if len(records) != 2 {
		t.Fatalf("expected one JSON record per line, got %q", out)
	}
	var first ipc.Notification
	if err := json.Unmarshal([]byte(records[0]), &first); err != nil {
		t.Fatalf("decode tail record: %v", err)
	}
	if first.Seq != 2 || first.Text != "USER echo123 ONLINESTATUS 2" {
		t.Fatalf("unexpected record %+v", first)
	}
}
