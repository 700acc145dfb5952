// Package router classifies inbound frames as correlated replies or
// unsolicited notifications.
package router

import (
	"log/slog"

	"skylink/internal/correlator"
	"skylink/internal/logging"
	"skylink/internal/wire"
)

// Output receives routed frames.
type Output interface {
	ReplyReceived(cmd *correlator.Command)
	NotificationReceived(text string)
}

// Router feeds inbound frames to the correlator and forwards everything else.
type Router struct {
	table  *correlator.Table
	out    Output
	logger *slog.Logger
}

// New returns a router bound to table.
func New(table *correlator.Table, out Output, logger *slog.Logger) *Router {
	return &Router{
		table:  table,
		out:    out,
		logger: logging.NewComponentLogger(logger, "router"),
	}
}

// Route handles one whole inbound frame. A "#<id> <rest>" frame whose id is in
// flight resolves that command. A reply for an unknown id is forwarded as a
// notification with the prefix stripped. Anything else, including malformed
// '#' frames, is forwarded unchanged.
func (r *Router) Route(raw string) {
	id, rest, ok := wire.ParseReply(raw)
	if !ok {
		r.out.NotificationReceived(raw)
		return
	}
	if cmd, resolved := r.table.Resolve(id, rest); resolved {
		r.logger.Debug("reply matched", logging.Int(logging.FieldCommandID, id))
		r.out.ReplyReceived(cmd)
		return
	}
	r.logger.Debug("reply for unknown command",
		logging.Int(logging.FieldCommandID, id),
		logging.String(logging.FieldEventType, "orphan_reply"),
	)
	r.out.NotificationReceived(rest)
}
