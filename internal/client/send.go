package client

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"skylink/internal/apierr"
	"skylink/internal/attach"
	"skylink/internal/correlator"
	"skylink/internal/logging"
	"skylink/internal/wire"
)

// Send submits cmd, attaching first if needed. Blocking commands wait for
// their reply up to cmd.Timeout; fire-and-forget commands return after
// posting and are dropped silently if no reply arrives in time. A zero
// cmd.Timeout uses the configured command timeout.
func (c *Client) Send(ctx context.Context, cmd *correlator.Command) error {
	if c.closed.Load() {
		return closedError("send")
	}
	if cmd.Timeout <= 0 {
		cmd.Timeout = c.commandTimeout
	}

	c.attachMu.Lock()
	if c.machine.Status() != attach.Success {
		if err := c.attachLocked(ctx, c.attachTimeout); err != nil {
			c.attachMu.Unlock()
			return err
		}
	}
	ticket, err := c.submitLocked(ctx, cmd)
	c.attachMu.Unlock()
	if err != nil {
		return err
	}
	return c.await(ctx, ticket)
}

// DoCommand sends text as a blocking command and returns the reply. An
// "ERROR <code> <text>" reply publishes an Error event and returns
// *apierr.HostError; so does a reply that does not start with expected.
func (c *Client) DoCommand(ctx context.Context, text, expected string) (string, error) {
	cmd := correlator.NewCommand(text, expected, true, c.commandTimeout)
	err := c.Execute(ctx, cmd)
	return cmd.Reply, err
}

// Execute sends cmd and, when it is blocking, checks the reply. An "ERROR"
// reply emits EventError and returns *apierr.HostError; a reply without
// cmd.Expected as its prefix returns a HostError with Code 0.
func (c *Client) Execute(ctx context.Context, cmd *correlator.Command) error {
	if err := c.Send(ctx, cmd); err != nil {
		return err
	}
	if !cmd.Blocking {
		return nil
	}
	if hostErr, ok := apierr.ParseHostError(cmd.Reply); ok {
		hostErr.Command = cmd.Text
		c.emit(EventError, &ErrorEvent{Command: cmd, Code: hostErr.Code, Text: hostErr.Text})
		return hostErr
	}
	if !strings.HasPrefix(cmd.Reply, cmd.Expected) {
		return &apierr.HostError{
			Text:    fmt.Sprintf("unexpected reply %q, expected %q", cmd.Reply, cmd.Expected),
			Command: cmd.Text,
		}
	}
	return nil
}

// sendLocked submits and waits without the attach check. It is used by the
// attach sequence itself, which already holds c.attachMu.
func (c *Client) sendLocked(ctx context.Context, cmd *correlator.Command) error {
	if cmd.Timeout <= 0 {
		cmd.Timeout = c.commandTimeout
	}
	ticket, err := c.submitLocked(ctx, cmd)
	if err != nil {
		return err
	}
	return c.await(ctx, ticket)
}

func (c *Client) submitLocked(ctx context.Context, cmd *correlator.Command) (*correlator.Ticket, error) {
	ticket, err := c.table.Register(cmd)
	if err != nil {
		return nil, err
	}
	snapshot := *cmd
	c.emit(EventCommand, &snapshot)

	frame := wire.Format(cmd.ID, cmd.Text)
	c.logger.Debug("sending frame", logging.Int(logging.FieldCommandID, cmd.ID), logging.String("frame", frame))
	if err := c.tr.Post(ctx, frame); err != nil {
		if !errors.Is(err, apierr.ErrTransportSendFailure) {
			err = apierr.Wrap(apierr.ErrTransportSendFailure, "client", "post", "", err)
		}
		c.table.Remove(cmd.ID, err)
		c.machine.Set(attach.NotAvailable)
		logging.WarnWithContext(c.logger, "post failed", "post_failed",
			logging.Int(logging.FieldCommandID, cmd.ID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, apierr.Hint(err)),
			logging.String(logging.FieldImpact, "command not delivered"),
		)
		return nil, err
	}
	return ticket, nil
}

func (c *Client) await(ctx context.Context, ticket *correlator.Ticket) error {
	cmd := ticket.Command()
	if !cmd.Blocking {
		c.table.ArmDiscard(ticket, cmd.Timeout)
		return nil
	}
	err := c.table.Wait(ctx, ticket, cmd.Timeout)
	if errors.Is(err, apierr.ErrCommandTimeout) {
		c.logger.Debug("command timed out", logging.Int(logging.FieldCommandID, cmd.ID))
	}
	return err
}
