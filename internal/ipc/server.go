package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"skylink/internal/apierr"
	"skylink/internal/daemon"
	"skylink/internal/logging"
)

// ServiceName prefixes every RPC method.
const ServiceName = "Skylink"

const maxNotificationWait = 30 * time.Second

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: serverCtx}
	if err := rpcServer.RegisterName(ServiceName, srv); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
		conns:     make(map[net.Conn]struct{}),
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"))
				continue
			}
			s.track(conn, true)
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				defer s.track(c, false)
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server, drops open connections and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"))
	}
}

func (s *Server) track(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
		return
	}
	delete(s.conns, conn)
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.logger.Debug("daemon start requested")
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	s.logger.Info("daemon started via IPC",
		logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.logger.Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.logger.Info("daemon stopped via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) Shutdown(_ ShutdownRequest, resp *ShutdownResponse) error {
	s.daemon.RequestShutdown()
	resp.Acknowledged = true
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status()
	resp.Running = status.Running
	resp.PID = status.PID
	resp.LockPath = status.LockPath
	resp.StartedAt = status.StartedAt
	resp.Session = status.Session
	resp.Transport = status.Transport
	resp.FriendlyName = status.FriendlyName
	resp.AttachStatus = status.AttachStatus.String()
	resp.AttachCode = int(status.AttachStatus)
	resp.Protocol = status.Protocol
	resp.LastSeq = status.LastSeq
	resp.LastAttachError = status.LastAttachError
	resp.MetricsAddr = status.MetricsAddr
	if len(status.Pending) > 0 {
		resp.Pending = make([]PendingCommand, 0, len(status.Pending))
		for _, p := range status.Pending {
			resp.Pending = append(resp.Pending, PendingCommand{
				ID:       p.ID,
				Text:     p.Text,
				Blocking: p.Blocking,
				Since:    p.Since,
			})
		}
	}
	return nil
}

func (s *service) Attach(req AttachRequest, resp *AttachResponse) error {
	timeout := time.Duration(req.TimeoutMS) * time.Millisecond
	err := s.daemon.Attach(s.ctx, timeout)
	status := s.daemon.Status()
	resp.AttachStatus = status.AttachStatus.String()
	resp.Protocol = status.Protocol
	return err
}

func (s *service) Send(req SendRequest, resp *SendResponse) error {
	cmd, err := s.daemon.Send(s.ctx, daemon.SendRequest{
		Text:     req.Text,
		Expected: req.Expected,
		Blocking: req.Blocking,
		Timeout:  time.Duration(req.TimeoutMS) * time.Millisecond,
	})
	if cmd != nil {
		resp.ID = cmd.ID
		resp.Reply = cmd.Reply
	}
	var hostErr *apierr.HostError
	if errors.As(err, &hostErr) {
		resp.HostError = &HostError{Code: hostErr.Code, Text: hostErr.Text}
		return nil
	}
	return err
}

func (s *service) Notifications(req NotificationsRequest, resp *NotificationsResponse) error {
	wait := time.Duration(req.WaitMS) * time.Millisecond
	if wait > maxNotificationWait {
		wait = maxNotificationWait
	}
	items, missed, err := s.daemon.Notifications(s.ctx, req.AfterSeq, req.Limit, wait)
	if err != nil {
		return err
	}
	resp.Missed = missed
	resp.Notifications = make([]Notification, 0, len(items))
	for _, item := range items {
		resp.Notifications = append(resp.Notifications, Notification{
			Seq:      item.Seq,
			Received: item.Received,
			Text:     item.Text,
		})
	}
	resp.LastSeq = s.daemon.Status().LastSeq
	return nil
}
