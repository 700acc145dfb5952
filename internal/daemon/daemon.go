package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"skylink/internal/attach"
	"skylink/internal/client"
	"skylink/internal/config"
	"skylink/internal/correlator"
	"skylink/internal/logging"
	"skylink/internal/metrics"
)

// ErrNotRunning is returned by operations that need a started daemon.
var ErrNotRunning = errors.New("daemon not running")

// Daemon holds the attached client and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	client *client.Client
	logger *slog.Logger

	lockPath string
	lock     *flock.Flock

	notes   *ring
	metrics *metrics.Metrics
	server  *metrics.Server

	mu        sync.Mutex
	attachErr string
	startedAt time.Time

	running      atomic.Bool
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// Status represents daemon runtime information.
type Status struct {
	Running         bool
	PID             int
	LockPath        string
	StartedAt       time.Time
	Session         string
	Transport       string
	FriendlyName    string
	AttachStatus    attach.Status
	Protocol        int
	Pending         []correlator.Snapshot
	LastSeq         uint64
	LastAttachError string
	MetricsAddr     string
}

// SendRequest describes one command submitted through the daemon.
type SendRequest struct {
	Text     string
	Expected string
	Blocking bool
	Timeout  time.Duration
}

// New constructs a daemon around c. The daemon owns c from here on and
// closes it in Close.
func New(cfg *config.Config, c *client.Client, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || c == nil {
		return nil, errors.New("daemon requires config and client")
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		client:   c,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
		notes:    newRing(cfg.Daemon.NotificationBuffer),
		metrics:  metrics.New(),
		shutdown: make(chan struct{}),
	}
	d.metrics.Observe(c)
	c.OnNotify(func(text string) { d.notes.add(text, time.Now()) })
	if cfg.Daemon.MetricsBind != "" {
		d.server = metrics.NewServer(cfg.Daemon.MetricsBind, d.metrics, logger)
	}
	return d, nil
}

// Start acquires the daemon lock, opens the metrics endpoint and attaches to
// the host. A failed attach is logged and recorded but does not fail Start:
// the host may simply not be running yet.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := d.cfg.EnsureDirectories(); err != nil {
		return err
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another skylink daemon instance is already running")
	}

	if d.server != nil {
		if err := d.server.Start(); err != nil {
			_ = d.lock.Unlock()
			return err
		}
	}

	d.mu.Lock()
	d.startedAt = time.Now()
	d.mu.Unlock()
	d.running.Store(true)
	d.logger.Info("skylink daemon started",
		logging.String("lock", d.lockPath),
		logging.String(logging.FieldSession, d.client.Session()),
		logging.String(logging.FieldTransport, string(d.client.Kind())),
	)

	if err := d.Attach(ctx, 0); err != nil {
		logging.WarnWithContext(d.logger, "initial attach failed", "daemon_attach_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "start the host application or run `skylink attach`"),
			logging.String(logging.FieldImpact, "commands will retry the attach on demand"),
		)
	}
	return nil
}

// Stop closes the metrics endpoint and releases the daemon lock. The client
// stays open so a later Start can reuse it.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := d.server.Close(ctx); err != nil {
			d.logger.Warn("failed to stop metrics server", logging.Error(err))
		}
		cancel()
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("skylink daemon stopped")
}

// Close stops the daemon and releases the client and its transport.
func (d *Daemon) Close() error {
	d.Stop()
	return d.client.Close()
}

// RequestShutdown asks the process running the daemon to exit.
func (d *Daemon) RequestShutdown() {
	d.shutdownOnce.Do(func() {
		d.logger.Info("daemon shutdown requested",
			logging.String(logging.FieldEventType, "daemon_shutdown_requested"))
		close(d.shutdown)
	})
}

// ShutdownRequested is closed once RequestShutdown has been called.
func (d *Daemon) ShutdownRequested() <-chan struct{} { return d.shutdown }

// Metrics exposes the daemon's collectors.
func (d *Daemon) Metrics() *metrics.Metrics { return d.metrics }

// Status reports runtime information for the status command.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	attachErr, startedAt := d.attachErr, d.startedAt
	d.mu.Unlock()

	status := Status{
		Running:         d.running.Load(),
		PID:             os.Getpid(),
		LockPath:        d.lockPath,
		Session:         d.client.Session(),
		Transport:       string(d.client.Kind()),
		FriendlyName:    d.client.FriendlyName(),
		AttachStatus:    d.client.Status(),
		Protocol:        d.client.Protocol(),
		Pending:         d.client.Pending(),
		LastSeq:         d.notes.lastSeq(),
		LastAttachError: attachErr,
	}
	if status.Running {
		status.StartedAt = startedAt
	}
	if d.server != nil {
		if addr := d.server.Addr(); addr != nil {
			status.MetricsAddr = addr.String()
		}
	}
	return status
}

// Attach runs the attach sequence and records its outcome for Status.
func (d *Daemon) Attach(ctx context.Context, timeout time.Duration) error {
	if !d.running.Load() {
		return ErrNotRunning
	}
	err := d.client.Attach(ctx, timeout)
	d.mu.Lock()
	if err != nil {
		d.attachErr = err.Error()
	} else {
		d.attachErr = ""
	}
	d.mu.Unlock()
	return err
}

// Send submits req through the client. Blocking commands return the command
// with its reply filled in; an ERROR reply or a reply missing req.Expected
// also returns *apierr.HostError.
func (d *Daemon) Send(ctx context.Context, req SendRequest) (*correlator.Command, error) {
	if !d.running.Load() {
		return nil, ErrNotRunning
	}
	if req.Text == "" {
		return nil, errors.New("command text is required")
	}
	cmd := correlator.NewCommand(req.Text, req.Expected, req.Blocking, req.Timeout)
	return cmd, d.client.Execute(ctx, cmd)
}

// Notifications returns up to limit buffered notifications newer than
// afterSeq. When wait is positive and nothing newer exists yet, it blocks up
// to wait for one to arrive. missed reports entries evicted before they could
// be read.
func (d *Daemon) Notifications(ctx context.Context, afterSeq uint64, limit int, wait time.Duration) (items []Notification, missed bool, err error) {
	if wait > 0 {
		waitCtx, cancel := context.WithTimeout(ctx, wait)
		err := d.notes.wait(waitCtx, afterSeq)
		cancel()
		if err != nil && ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
	}
	items, missed = d.notes.since(afterSeq, limit)
	return items, missed, nil
}
