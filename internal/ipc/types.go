package ipc

import "time"

// StartRequest is the payload for Skylink.Start.
type StartRequest struct{}

// StartResponse reports whether the daemon started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest is the payload for Skylink.Stop.
type StopRequest struct{}

// StopResponse reports whether the daemon stopped.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// ShutdownRequest asks the daemon process to exit.
type ShutdownRequest struct{}

// ShutdownResponse acknowledges a shutdown request.
type ShutdownResponse struct {
	Acknowledged bool `json:"acknowledged"`
}

// StatusRequest is the payload for Skylink.Status.
type StatusRequest struct{}

// PendingCommand describes one command still waiting for its reply.
type PendingCommand struct {
	ID       int       `json:"id"`
	Text     string    `json:"text"`
	Blocking bool      `json:"blocking"`
	Since    time.Time `json:"since"`
}

// StatusResponse captures daemon and attachment state.
type StatusResponse struct {
	Running         bool             `json:"running"`
	PID             int              `json:"pid"`
	LockPath        string           `json:"lock_path"`
	StartedAt       time.Time        `json:"started_at"`
	Session         string           `json:"session"`
	Transport       string           `json:"transport"`
	FriendlyName    string           `json:"friendly_name"`
	AttachStatus    string           `json:"attach_status"`
	AttachCode      int              `json:"attach_code"`
	Protocol        int              `json:"protocol"`
	Pending         []PendingCommand `json:"pending"`
	LastSeq         uint64           `json:"last_seq"`
	LastAttachError string           `json:"last_attach_error"`
	MetricsAddr     string           `json:"metrics_addr"`
}

// AttachRequest runs the attach sequence. TimeoutMS of zero uses the
// configured attach timeout.
type AttachRequest struct {
	TimeoutMS int `json:"timeout_ms"`
}

// AttachResponse reports the attachment outcome.
type AttachResponse struct {
	AttachStatus string `json:"attach_status"`
	Protocol     int    `json:"protocol"`
}

// SendRequest submits one command. TimeoutMS of zero uses the configured
// command timeout.
type SendRequest struct {
	Text      string `json:"text"`
	Expected  string `json:"expected"`
	Blocking  bool   `json:"blocking"`
	TimeoutMS int    `json:"timeout_ms"`
}

// SendResponse carries the assigned id and, for blocking commands, the
// reply. A host ERROR reply is reported in HostError rather than as an RPC
// failure so callers still see the id and reply text.
type SendResponse struct {
	ID        int        `json:"id"`
	Reply     string     `json:"reply"`
	HostError *HostError `json:"host_error,omitempty"`
}

// HostError is the wire form of an ERROR reply.
type HostError struct {
	Code int    `json:"code"`
	Text string `json:"text"`
}

// NotificationsRequest pages through buffered notifications. WaitMS blocks
// until something newer than AfterSeq arrives or the wait elapses.
type NotificationsRequest struct {
	AfterSeq uint64 `json:"after_seq"`
	Limit    int    `json:"limit"`
	WaitMS   int    `json:"wait_ms"`
}

// Notification is one buffered host notification.
type Notification struct {
	Seq      uint64    `json:"seq"`
	Received time.Time `json:"received"`
	Text     string    `json:"text"`
}

// NotificationsResponse returns notifications oldest first. Missed is set
// when entries after AfterSeq were evicted before being read.
type NotificationsResponse struct {
	Notifications []Notification `json:"notifications"`
	Missed        bool           `json:"missed"`
	LastSeq       uint64         `json:"last_seq"`
}
