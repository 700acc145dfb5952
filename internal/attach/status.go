// Package attach tracks the attachment lifecycle between a client and the host
// application.
package attach

import "strconv"

// Status is the attachment status. Numeric values match the host's wire values,
// which some transports receive verbatim.
type Status int

const (
	Unknown              Status = -1
	Success              Status = 0
	PendingAuthorization Status = 1
	Refused              Status = 2
	NotAvailable         Status = 3
	Available            Status = 0x8001
)

func (s Status) String() string {
	switch s {
	case Unknown:
		return "Unknown"
	case Success:
		return "Success"
	case PendingAuthorization:
		return "PendingAuthorization"
	case Refused:
		return "Refused"
	case NotAvailable:
		return "NotAvailable"
	case Available:
		return "Available"
	default:
		return "Status(" + strconv.Itoa(int(s)) + ")"
	}
}

// FromWire converts a host-supplied numeric status.
func FromWire(v int) (Status, bool) {
	s := Status(v)
	switch s {
	case Unknown, Success, PendingAuthorization, Refused, NotAvailable, Available:
		return s, true
	default:
		return Unknown, false
	}
}

// Attached reports whether commands may be sent without re-attaching.
func (s Status) Attached() bool { return s == Success }

// InProgress reports whether an attach call should return immediately because
// the host already accepted or is still deciding.
func (s Status) InProgress() bool { return s == Success || s == PendingAuthorization }

// Terminal reports whether an attach attempt has reached a definitive answer.
func (s Status) Terminal() bool { return s == Success || s == Refused }
