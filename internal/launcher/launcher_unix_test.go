//go:build unix

package launcher

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"skylink/internal/testsupport"
)

func TestStartLaunchesDetachedHost(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	dir := t.TempDir()
	marker := filepath.Join(dir, "launched")
	script := filepath.Join(dir, "fake-host")
	if err := os.WriteFile(script, []byte("#!/bin/sh\ntouch "+marker+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	cfg := testsupport.NewConfig(t)
	cfg.Host.Executable = script
	l := New(cfg, nil, WithProcRoot(t.TempDir()))

	state, err := l.Start(t.Context())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if state != StartStateStarted {
		t.Fatalf("unexpected state %s", state)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Stat(marker); err == nil {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("launched host never ran")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestStopInterruptsHost(t *testing.T) {
	sleeper, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep not available")
	}
	cmd := exec.Command(sleeper, "30")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start sleeper: %v", err)
	}
	t.Cleanup(func() { _ = cmd.Process.Kill() })

	cfg := testsupport.NewConfig(t)
	root := t.TempDir()
	writeProc(t, root, cmd.Process.Pid, cfg.Host.ProcessName)

	l := New(cfg, nil, WithProcRoot(root))
	n, err := l.Stop()
	if err != nil || n != 1 {
		t.Fatalf("Stop = %d, %v", n, err)
	}

	waitErr := cmd.Wait()
	var exitErr *exec.ExitError
	if !errors.As(waitErr, &exitErr) {
		t.Fatalf("expected the sleeper to die from the interrupt, got %v", waitErr)
	}
}
