package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"skylink/internal/config"
	"skylink/internal/daemon"
	"skylink/internal/ipc"
	"skylink/internal/logging"
	"skylink/internal/testsupport"
	"skylink/internal/wire"
)

type cliTestEnv struct {
	cfg        *config.Config
	host       *testsupport.FakeHost
	daemon     *daemon.Daemon
	socketPath string
	configPath string
	baseDir    string
	serverDone chan struct{}
}

// setupCLITestEnv runs a daemon backed by a fake host behind a real IPC
// socket. The server exits on a shutdown request like `skylink run`.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	cfg := testsupport.NewConfig(t)
	configPath := testsupport.WriteConfigFile(t, cfg)

	host := testsupport.NewFakeHost()
	host.SetResponder(func(id int, text string) []string {
		switch {
		case strings.HasPrefix(text, "NAME "):
			return []string{wire.Format(id, "OK")}
		case strings.HasPrefix(text, "PROTOCOL "):
			return []string{wire.Format(id, text)}
		case text == "GET USERSTATUS":
			return []string{wire.Format(id, "USERSTATUS ONLINE")}
		case text == "GET BOGUS":
			return []string{wire.Format(id, "ERROR 7 GET: invalid WHAT")}
		}
		return nil
	})

	logger := logging.NewNop()
	d, err := daemon.New(cfg, testsupport.NewClient(t, cfg, host), logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	socketPath := cfg.SocketPath()
	srv, err := ipc.NewServer(ctx, socketPath, d, logger)
	if err != nil {
		cancel()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	env := &cliTestEnv{
		cfg:        cfg,
		host:       host,
		daemon:     d,
		socketPath: socketPath,
		configPath: configPath,
		baseDir:    base,
		serverDone: make(chan struct{}),
	}
	go func() {
		select {
		case <-d.ShutdownRequested():
		case <-ctx.Done():
		}
		srv.Close()
		close(env.serverDone)
	}()

	t.Cleanup(func() {
		cancel()
		<-env.serverDone
		d.Close()
	})

	return env
}

func runCLI(t *testing.T, args []string, socket, configPath string, opts ...rootOption) (string, string, error) {
	t.Helper()
	cmd := newRootCommand(opts...)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
