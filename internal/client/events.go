package client

import (
	"skylink/internal/attach"
	"skylink/internal/correlator"
	"skylink/internal/events"
)

// Event names published by the client. Payload types:
//
//	AttachmentStatus  attach.Status
//	Notify            string
//	Command           *correlator.Command (about to be posted)
//	Reply             *correlator.Command (Reply populated)
//	Error             *ErrorEvent
const (
	EventAttachmentStatus events.Name = "AttachmentStatus"
	EventNotify           events.Name = "Notify"
	EventCommand          events.Name = "Command"
	EventReply            events.Name = "Reply"
	EventError            events.Name = "Error"
)

// EventNames lists every event the client publishes.
func EventNames() []events.Name {
	return []events.Name{EventAttachmentStatus, EventNotify, EventCommand, EventReply, EventError}
}

// ErrorEvent is published when DoCommand receives an "ERROR <code> <text>" reply.
type ErrorEvent struct {
	Command *correlator.Command
	Code    int
	Text    string
}

// Handler object methods. SetHandlerObject accepts any value implementing
// some of these; each implemented method runs after the default handler and
// before registered handlers.
type (
	AttachmentStatusHandler interface{ OnAttachmentStatus(status attach.Status) }
	NotifyHandler           interface{ OnNotify(text string) }
	CommandHandler          interface{ OnCommand(cmd *correlator.Command) }
	ReplyHandler            interface{ OnReply(cmd *correlator.Command) }
	ErrorHandler            interface{ OnError(ev *ErrorEvent) }
)

// SetHandlerObject installs obj as the handler object.
func (c *Client) SetHandlerObject(obj any) { c.events.SetHandlerObject(obj) }

// OnAttachmentStatus registers fn and returns the handler for Unregister.
func (c *Client) OnAttachmentStatus(fn func(attach.Status)) events.Handler {
	return c.register(EventAttachmentStatus, func(p any) { fn(p.(attach.Status)) })
}

// OnNotify registers fn for unsolicited notifications.
func (c *Client) OnNotify(fn func(string)) events.Handler {
	return c.register(EventNotify, func(p any) { fn(p.(string)) })
}

// OnCommand registers fn for commands about to be posted.
func (c *Client) OnCommand(fn func(*correlator.Command)) events.Handler {
	return c.register(EventCommand, func(p any) { fn(p.(*correlator.Command)) })
}

// OnReply registers fn for correlated replies.
func (c *Client) OnReply(fn func(*correlator.Command)) events.Handler {
	return c.register(EventReply, func(p any) { fn(p.(*correlator.Command)) })
}

// OnError registers fn for host error replies.
func (c *Client) OnError(fn func(*ErrorEvent)) events.Handler {
	return c.register(EventError, func(p any) { fn(p.(*ErrorEvent)) })
}

// Unregister removes a handler returned by one of the On methods.
func (c *Client) Unregister(name events.Name, h events.Handler) bool {
	ok, _ := c.events.Unregister(name, h)
	return ok
}

func (c *Client) register(name events.Name, fn func(any)) events.Handler {
	h := events.Func(func(_ events.Name, payload any) { fn(payload) })
	// Func handlers are always comparable and name is always known.
	_, _ = c.events.Register(name, h)
	return h
}

func resolveHandlerObject(obj any, name events.Name) events.Handler {
	switch name {
	case EventAttachmentStatus:
		if h, ok := obj.(AttachmentStatusHandler); ok {
			return events.Func(func(_ events.Name, p any) { h.OnAttachmentStatus(p.(attach.Status)) })
		}
	case EventNotify:
		if h, ok := obj.(NotifyHandler); ok {
			return events.Func(func(_ events.Name, p any) { h.OnNotify(p.(string)) })
		}
	case EventCommand:
		if h, ok := obj.(CommandHandler); ok {
			return events.Func(func(_ events.Name, p any) { h.OnCommand(p.(*correlator.Command)) })
		}
	case EventReply:
		if h, ok := obj.(ReplyHandler); ok {
			return events.Func(func(_ events.Name, p any) { h.OnReply(p.(*correlator.Command)) })
		}
	case EventError:
		if h, ok := obj.(ErrorHandler); ok {
			return events.Func(func(_ events.Name, p any) { h.OnError(p.(*ErrorEvent)) })
		}
	}
	return nil
}
