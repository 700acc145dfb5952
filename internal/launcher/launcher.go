// Package launcher starts and stops the host application process. Start
// detaches the host into its own session and is serialized across processes
// with a lock file so concurrent callers launch it once.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"skylink/internal/config"
	"skylink/internal/logging"
)

// ErrNotRunning is returned by Stop when no host process exists.
var ErrNotRunning = errors.New("host process not running")

const lockRetryDelay = 100 * time.Millisecond

// StartState describes what Start did.
type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// Launcher controls one host executable.
type Launcher struct {
	executable  string
	processName string
	lockPath    string
	procRoot    string
	logger      *slog.Logger
}

// Option customizes a Launcher.
type Option func(*Launcher)

// WithProcRoot points process discovery at a different procfs mount.
func WithProcRoot(root string) Option {
	return func(l *Launcher) { l.procRoot = root }
}

// New returns a launcher for the host configured in cfg.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Launcher {
	l := &Launcher{
		executable:  cfg.Host.Executable,
		processName: cfg.Host.ProcessName,
		lockPath:    cfg.LaunchLockPath(),
		procRoot:    "/proc",
		logger:      logging.NewComponentLogger(logger, "launcher"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Running reports whether a host process exists.
func (l *Launcher) Running() (bool, error) {
	pids, err := l.pids()
	if err != nil {
		return false, err
	}
	return len(pids) > 0, nil
}

// Start launches the host detached from the caller unless it already runs.
func (l *Launcher) Start(ctx context.Context) (StartState, error) {
	if strings.TrimSpace(l.executable) == "" {
		return "", errors.New("host executable not configured")
	}
	if err := os.MkdirAll(filepath.Dir(l.lockPath), 0o755); err != nil {
		return "", fmt.Errorf("ensure lock directory: %w", err)
	}

	lock := flock.New(l.lockPath)
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return "", fmt.Errorf("acquire launch lock: %w", err)
	}
	if !locked {
		return "", errors.New("acquire launch lock: not acquired")
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			l.logger.Warn("failed to release launch lock", logging.Error(err))
		}
	}()

	running, err := l.Running()
	if err != nil {
		return "", err
	}
	if running {
		l.logger.Info("host already running", logging.String("process", l.processName))
		return StartStateAlreadyRunning, nil
	}

	cmd := exec.Command(l.executable)
	detach(cmd)
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("launch host: %w", err)
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		return "", fmt.Errorf("release host process: %w", err)
	}
	l.logger.Info("host launched",
		logging.String(logging.FieldEventType, "host_launched"),
		logging.String("executable", l.executable),
		logging.Int("pid", pid),
	)
	return StartStateStarted, nil
}

// Stop asks every host process to quit with an interrupt and returns how
// many were signalled.
func (l *Launcher) Stop() (int, error) {
	pids, err := l.pids()
	if err != nil {
		return 0, err
	}
	if len(pids) == 0 {
		return 0, ErrNotRunning
	}
	var errs []error
	signalled := 0
	for _, pid := range pids {
		if err := interrupt(pid); err != nil {
			errs = append(errs, fmt.Errorf("interrupt pid %d: %w", pid, err))
			continue
		}
		signalled++
		l.logger.Info("host interrupted", logging.Int("pid", pid))
	}
	return signalled, errors.Join(errs...)
}

func (l *Launcher) pids() ([]int, error) {
	return findPIDs(l.procRoot, l.processName)
}

// findPIDs scans root/<pid>/comm for processes named name.
func findPIDs(root, name string) ([]int, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("scan processes: %w", err)
	}
	var pids []int
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(entry.Name())
		if err != nil || pid <= 0 {
			continue
		}
		comm, err := os.ReadFile(filepath.Join(root, entry.Name(), "comm"))
		if err != nil {
			// The process may have exited mid-scan.
			continue
		}
		if strings.TrimSpace(string(comm)) == name {
			pids = append(pids, pid)
		}
	}
	sort.Ints(pids)
	return pids, nil
}
