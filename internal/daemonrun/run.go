// Package daemonrun is the process body of `skylink run`: it builds the
// client, daemon and IPC server from configuration and blocks until a signal
// or a shutdown request arrives.
package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"skylink/internal/client"
	"skylink/internal/config"
	"skylink/internal/daemon"
	"skylink/internal/ipc"
	"skylink/internal/logging"
)

const pumpSlice = 100 * time.Millisecond

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel   string
	SocketPath string
}

// Run starts the skylink daemon runtime loop.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return errors.New("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	logger, err := newLogger(cfg, opts.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	c, err := client.NewFromConfig(cfg, logger)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	d, err := daemon.New(cfg, c, logger)
	if err != nil {
		_ = c.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	socketPath := strings.TrimSpace(opts.SocketPath)
	if socketPath == "" {
		socketPath = cfg.SocketPath()
	}
	ipcServer, err := ipc.NewServer(signalCtx, socketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if !cfg.Client.RunOwnEventLoop {
		go pump(signalCtx, c)
	}

	if err := d.Start(signalCtx); err != nil {
		logging.WarnWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check for another running daemon and the runtime directory permissions"),
			logging.String(logging.FieldImpact, "IPC commands will report the daemon as stopped"),
		)
	}

	select {
	case <-signalCtx.Done():
	case <-d.ShutdownRequested():
	}
	logger.Info("skylink daemon shutting down")
	return nil
}

// pump services a transport configured without its own event loop. The
// loop stays on one OS thread, which the native bridges require. Pump
// reports false until the transport is opened, so idle slices sleep.
func pump(ctx context.Context, c *client.Client) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	for ctx.Err() == nil {
		if !c.Pump(pumpSlice) {
			select {
			case <-ctx.Done():
			case <-time.After(pumpSlice):
			}
		}
	}
}

func newLogger(cfg *config.Config, level string) (*slog.Logger, error) {
	if strings.TrimSpace(level) == "" {
		return logging.NewFromConfig(cfg, true)
	}
	override := *cfg
	override.Logging.Level = level
	return logging.NewFromConfig(&override, true)
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
