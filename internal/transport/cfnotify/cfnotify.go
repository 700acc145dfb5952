// Package cfnotify talks to the host through the macOS distributed
// notification center. Commands are posted as SKSkypeAPICommand
// notifications; the host answers with SKSkypeAPINotification carrying the
// attached client id. The native bridge needs darwin and cgo; elsewhere Open
// reports the transport as unavailable.
package cfnotify

import (
	"log/slog"
	"sync"
	"time"

	"skylink/internal/attach"
	"skylink/internal/logging"
	"skylink/internal/transport"
)

const (
	notifyAttachRequest       = "SKSkypeAPIAttachRequest"
	notifyAttachResponse      = "SKSkypeAttachResponse"
	notifyCommand             = "SKSkypeAPICommand"
	notifyNotification        = "SKSkypeAPINotification"
	notifyWillQuit            = "SKSkypeWillQuit"
	notifyBecameAvailable     = "SKSkypeBecameAvailable"
	notifyAvailabilityRequest = "SKSkypeAPIAvailabilityRequest"
	notifyAvailabilityUpdate  = "SKAvailabilityUpdate"

	keyCommand        = "SKYPE_API_COMMAND"
	keyClientID       = "SKYPE_API_CLIENT_ID"
	keyNotification   = "SKYPE_API_NOTIFICATION_STRING"
	keyClientName     = "SKYPE_API_CLIENT_NAME"
	keyAttachResponse = "SKYPE_API_ATTACH_RESPONSE"
	keyAvailability   = "SKYPE_API_AVAILABILITY"

	// broadcastClientID marks notifications meant for every attached client.
	broadcastClientID = 999
	noClientID        = -1

	availabilityWait = time.Second
	loopSlice        = 100 * time.Millisecond
)

var observedNames = []string{
	notifyNotification,
	notifyWillQuit,
	notifyBecameAvailable,
	notifyAvailabilityUpdate,
	notifyAttachResponse,
}

// Options configures the transport.
type Options struct {
	// RunOwnEventLoop starts a dedicated run-loop thread. When false the
	// application must call Pump from one OS-thread-locked goroutine.
	RunOwnEventLoop bool
	Logger          *slog.Logger
}

// notification is the decoded part of a host notification's user info that
// this client reads.
type notification struct {
	Name           string
	Text           string
	ClientName     string
	ClientID       int64
	HasClientID    bool
	AttachResponse int64
	Availability   int64
}

// observerState receives decoded notifications on the run-loop thread.
type observerState struct {
	sink         transport.Sink
	logger       *slog.Logger
	availability chan bool

	mu       sync.Mutex
	name     string
	clientID int64
}

func newObserverState(sink transport.Sink, logger *slog.Logger) *observerState {
	return &observerState{
		sink:         sink,
		logger:       logger,
		availability: make(chan bool, 1),
		clientID:     noClientID,
	}
}

// reset starts a new attach under name.
func (s *observerState) reset(name string) {
	s.mu.Lock()
	s.name = name
	s.clientID = noClientID
	s.mu.Unlock()
}

func (s *observerState) friendlyName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

func (s *observerState) client() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientID
}

// expectAvailability drops any stale availability answer.
func (s *observerState) expectAvailability() {
	select {
	case <-s.availability:
	default:
	}
}

func (s *observerState) dispatch(n notification) {
	switch n.Name {
	case notifyNotification:
		if !s.accepts(n) {
			return
		}
		s.sink.Receive(n.Text)

	case notifyWillQuit:
		s.sink.SetStatus(attach.NotAvailable)

	case notifyBecameAvailable:
		s.sink.SetStatus(attach.Available)

	case notifyAvailabilityUpdate:
		s.expectAvailability()
		s.availability <- n.Availability != 0

	case notifyAttachResponse:
		s.mu.Lock()
		mine := n.ClientName == s.name
		first := s.clientID == noClientID
		if mine && first && n.AttachResponse != 0 {
			s.clientID = n.AttachResponse
		}
		s.mu.Unlock()
		if !mine || !first {
			return
		}
		if n.AttachResponse == 0 {
			s.sink.SetStatus(attach.Refused)
			return
		}
		s.logger.Debug("attach accepted", logging.Int64("client_id", n.AttachResponse))
		s.sink.SetStatus(attach.Success)
	}
}

func (s *observerState) accepts(n notification) bool {
	if !n.HasClientID {
		return false
	}
	if n.ClientID == broadcastClientID {
		return true
	}
	return n.ClientID != 0 && n.ClientID == s.client()
}
