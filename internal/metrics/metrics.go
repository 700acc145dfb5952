// Package metrics exposes client activity as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"skylink/internal/attach"
	"skylink/internal/client"
	"skylink/internal/correlator"
	"skylink/internal/logging"
)

// Metrics holds the registry and the client meters.
type Metrics struct {
	Registry      *prometheus.Registry
	Commands      *prometheus.CounterVec
	Notifications prometheus.Counter
	HostErrors    *prometheus.CounterVec
	StatusChanges *prometheus.CounterVec
	AttachStatus  prometheus.Gauge
}

// New creates a private registry with the skylink meters.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	commands := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skylink_commands_total",
		Help: "Commands posted to the host and replies correlated to them.",
	}, []string{"stage"})

	notifications := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "skylink_notifications_total",
		Help: "Unsolicited notifications received from the host.",
	})

	hostErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skylink_host_errors_total",
		Help: "ERROR replies returned by the host, by code.",
	}, []string{"code"})

	statusChanges := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skylink_attach_status_changes_total",
		Help: "Attachment status transitions, by new status.",
	}, []string{"status"})

	attachStatus := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "skylink_attach_status",
		Help: "Current attachment status as its host wire value.",
	})
	attachStatus.Set(float64(attach.Unknown))

	reg.MustRegister(commands, notifications, hostErrors, statusChanges, attachStatus)

	return &Metrics{
		Registry:      reg,
		Commands:      commands,
		Notifications: notifications,
		HostErrors:    hostErrors,
		StatusChanges: statusChanges,
		AttachStatus:  attachStatus,
	}
}

// Observe subscribes the meters to c's events and exports its in-flight
// command count. Call it once per registry.
func (m *Metrics) Observe(c *client.Client) {
	c.OnCommand(func(*correlator.Command) { m.Commands.WithLabelValues("sent").Inc() })
	c.OnReply(func(*correlator.Command) { m.Commands.WithLabelValues("replied").Inc() })
	c.OnNotify(func(string) { m.Notifications.Inc() })
	c.OnError(func(ev *client.ErrorEvent) {
		m.HostErrors.WithLabelValues(fmt.Sprint(ev.Code)).Inc()
	})
	c.OnAttachmentStatus(func(s attach.Status) {
		m.StatusChanges.WithLabelValues(s.String()).Inc()
		m.AttachStatus.Set(float64(s))
	})
	m.Registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "skylink_commands_in_flight",
		Help: "Commands waiting for a reply.",
	}, func() float64 { return float64(len(c.Pending())) }))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Server serves /metrics and /health on one address.
type Server struct {
	bind    string
	handler http.Handler
	logger  *slog.Logger

	mu     sync.Mutex
	server *http.Server
	addr   net.Addr
}

// NewServer returns a server for m on bind (host:port).
func NewServer(bind string, m *Metrics, logger *slog.Logger) *Server {
	return &Server{
		bind:    bind,
		handler: m.Handler(),
		logger:  logging.NewComponentLogger(logger, "metrics"),
	}
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return errors.New("metrics server already running")
	}

	ln, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.bind, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", s.handler)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	s.server = srv
	s.addr = ln.Addr()
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server stopped", logging.Error(err))
		}
	}()
	s.logger.Info("metrics server listening", logging.String("address", s.addr.String()))
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Close shuts the server down.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
