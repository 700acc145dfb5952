package main

import (
	"os"
	"path/filepath"
	"testing"

	"skylink/internal/launcher"
	"skylink/internal/testsupport"
)

func TestHostRunningAndStop(t *testing.T) {
	env := setupCLITestEnv(t)
	procRoot := t.TempDir()
	withProc := func(ctx *commandContext) {
		ctx.launcherOpts = append(ctx.launcherOpts, launcher.WithProcRoot(procRoot))
	}

	out, _, err := runCLI(t, []string{"host", "running"}, env.socketPath, env.configPath, withProc)
	if err != nil {
		t.Fatalf("host running: %v", err)
	}
	requireContains(t, out, "Host running: no")

	out, _, err = runCLI(t, []string{"host", "stop"}, env.socketPath, env.configPath, withProc)
	if err != nil {
		t.Fatalf("host stop: %v", err)
	}
	requireContains(t, out, "Host is not running")

	dir := filepath.Join(procRoot, "4242")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir proc entry: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "comm"), []byte(env.cfg.Host.ProcessName+"\n"), 0o644); err != nil {
		t.Fatalf("write comm: %v", err)
	}
	out, _, err = runCLI(t, []string{"host", "running"}, env.socketPath, env.configPath, withProc)
	if err != nil {
		t.Fatalf("host running: %v", err)
	}
	requireContains(t, out, "Host running: yes")

	out, _, err = runCLI(t, []string{"host", "start"}, env.socketPath, env.configPath, withProc)
	if err != nil {
		t.Fatalf("host start: %v", err)
	}
	requireContains(t, out, "Host already running")
}

func TestHostCheck(t *testing.T) {
	env := setupCLITestEnv(t)

	binDir := t.TempDir()
	hostBin := filepath.Join(binDir, "fakehost")
	if err := os.WriteFile(hostBin, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write host stub: %v", err)
	}
	env.cfg.Host.Executable = hostBin
	env.cfg.Client.Transport = "x11"
	configPath := testsupport.WriteConfigFile(t, env.cfg)

	out, _, err := runCLI(t, []string{"host", "check"}, env.socketPath, configPath)
	if err != nil {
		t.Fatalf("host check: %v", err)
	}
	requireContains(t, out, "Host application")
	requireContains(t, out, hostBin)

	env.cfg.Host.Executable = "clearly-not-present-host"
	configPath = testsupport.WriteConfigFile(t, env.cfg)
	out, _, err = runCLI(t, []string{"host", "check"}, env.socketPath, configPath)
	if err == nil {
		t.Fatal("expected missing host to fail the check")
	}
	requireContains(t, out, "not found")
}
