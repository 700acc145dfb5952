// Package winmsg talks to the host through window messages on Windows. A
// hidden window owned by one OS-locked goroutine receives the host's attach
// responses and WM_COPYDATA frames; outbound frames are WM_COPYDATA blocks
// sent to the host's API window. On other platforms Open reports the
// transport as unavailable.
package winmsg

import (
	"bytes"
	"log/slog"

	"skylink/internal/attach"
	"skylink/internal/wire"
)

const (
	discoverMessage = "SkypeControlAPIDiscover"
	attachMessage   = "SkypeControlAPIAttach"
)

// Host main window classes, current and legacy.
var hostWindowClasses = []string{"tSkMainForm.UnicodeClass", "TZapMainForm.UnicodeClass"}

// Options configures the transport.
type Options struct {
	Logger *slog.Logger
}

// peerTracker follows the host's API window across attach responses. It is
// not safe for concurrent use.
type peerTracker struct {
	peer   uintptr
	status attach.Status
}

type peerVerdict int

const (
	verdictReport peerVerdict = iota
	verdictSecondPeer
	verdictLatePending
)

// observe applies one attach response and reports whether its status should
// be published.
func (p *peerTracker) observe(peer uintptr, status attach.Status) peerVerdict {
	switch status {
	case attach.Success:
		if p.peer != 0 && p.peer != peer {
			return verdictSecondPeer
		}
		p.peer = peer
	case attach.Refused, attach.NotAvailable, attach.Available:
		p.peer = 0
	case attach.PendingAuthorization:
		if p.status == attach.Success {
			return verdictLatePending
		}
	}
	p.status = status
	return verdictReport
}

// accepts reports whether a WM_COPYDATA from sender belongs to the attached host.
func (p *peerTracker) accepts(sender uintptr) bool {
	return p.peer != 0 && sender == p.peer
}

func encodeCopyData(frame string) []byte {
	data := make([]byte, 0, len(frame)+1)
	data = append(data, frame...)
	return append(data, 0)
}

func decodeCopyData(data []byte) string {
	if idx := bytes.IndexByte(data, 0); idx >= 0 {
		data = data[:idx]
	}
	return wire.Decode(data)
}
