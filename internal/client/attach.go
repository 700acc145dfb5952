package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"skylink/internal/apierr"
	"skylink/internal/attach"
	"skylink/internal/correlator"
	"skylink/internal/logging"
	"skylink/internal/transport"
	"skylink/internal/wire"
)

// Attach connects to the host and negotiates the protocol. It returns nil at
// once when the client is attached or the host is still asking its user for
// consent. A timeout of zero uses the configured attach timeout. On timeout the
// status becomes Unknown and the error wraps apierr.ErrAttachTimeout.
func (c *Client) Attach(ctx context.Context, timeout time.Duration) error {
	if c.closed.Load() {
		return closedError("attach")
	}
	if timeout <= 0 {
		timeout = c.attachTimeout
	}
	c.attachMu.Lock()
	defer c.attachMu.Unlock()

	if c.machine.Status().InProgress() {
		return nil
	}
	return c.attachLocked(ctx, timeout)
}

// SetFriendlyName changes the name announced to the host. An attached client
// re-announces itself: command-handshake transports send NAME again, native
// ones reset to Unknown and attach anew.
func (c *Client) SetFriendlyName(ctx context.Context, name string) error {
	c.nameMu.Lock()
	c.friendlyName = name
	c.nameMu.Unlock()

	if c.closed.Load() || c.machine.Status() != attach.Success {
		return nil
	}

	c.attachMu.Lock()
	defer c.attachMu.Unlock()
	if c.tr.Handshake().Mode == transport.HandshakeCommand {
		cmd := correlator.NewCommand("NAME "+name, "", true, c.attachTimeout)
		if err := c.sendLocked(ctx, cmd); err != nil {
			return err
		}
		if cmd.Reply != "OK" {
			c.machine.Set(attach.Refused)
			return apierr.Wrap(apierr.ErrAttachRefused, "client", "rename", fmt.Sprintf("host replied %q", cmd.Reply), nil)
		}
		return nil
	}
	c.machine.Set(attach.Unknown)
	return c.attachLocked(ctx, c.attachTimeout)
}

// attachLocked runs one full attach sequence. c.attachMu must be held.
func (c *Client) attachLocked(ctx context.Context, timeout time.Duration) error {
	if err := c.open(ctx); err != nil {
		return err
	}

	start := time.Now()
	c.logger.Debug("attaching", logging.Duration("timeout", timeout))

	var err error
	hs := c.tr.Handshake()
	if hs.Mode == transport.HandshakeCommand {
		err = c.commandHandshake(ctx, timeout)
	} else {
		err = c.nativeHandshake(ctx, timeout, hs)
	}
	if err != nil {
		c.logAttachFailure(err)
		return err
	}

	if err := c.negotiateProtocol(ctx); err != nil {
		return err
	}
	c.logger.Info("attached",
		logging.Int("protocol", c.Protocol()),
		logging.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// commandHandshake polls Discover until the host appears, then announces the
// friendly name with NAME and expects "OK".
func (c *Client) commandHandshake(ctx context.Context, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		found, err := c.tr.Discover(ctx)
		if err != nil {
			return err
		}
		if found {
			break
		}
		select {
		case <-ctx.Done():
			c.machine.Set(attach.Unknown)
			return ctx.Err()
		case <-c.done:
			return closedError("attach")
		case <-deadline.C:
			c.machine.Set(attach.Unknown)
			return apierr.Wrap(apierr.ErrAttachTimeout, "client", "attach", "host not found", nil)
		case <-time.After(c.discoverInterval):
		}
	}

	name := c.FriendlyName()
	c.machine.Set(attach.PendingAuthorization)
	cmd := correlator.NewCommand("NAME "+name, "", true, timeout)
	if err := c.sendLocked(ctx, cmd); err != nil {
		switch {
		case errors.Is(err, apierr.ErrCommandTimeout):
			c.machine.Set(attach.Unknown)
			return apierr.Wrap(apierr.ErrAttachTimeout, "client", "attach", "no answer to NAME", err)
		case errors.Is(err, apierr.ErrTransportSendFailure), errors.Is(err, apierr.ErrClosed):
			return err
		default:
			c.machine.Set(attach.Unknown)
			return err
		}
	}
	if cmd.Reply != "OK" {
		c.machine.Set(attach.Refused)
		return apierr.Wrap(apierr.ErrAttachRefused, "client", "attach", fmt.Sprintf("host replied %q", cmd.Reply), nil)
	}
	c.machine.Set(attach.Success)
	return nil
}

// nativeHandshake asks the transport to attach and follows the statuses its
// worker reports. PendingAuthorization may suspend the timer; Available means
// the host restarted and the request is repeated.
func (c *Client) nativeHandshake(ctx context.Context, timeout time.Duration, hs transport.Handshake) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	expired := timer.C

	// A repeated Refused or NotAvailable from the host must register as a change.
	switch c.machine.Status() {
	case attach.Refused, attach.NotAvailable:
		c.machine.Set(attach.Unknown)
	}
	_, changed := c.machine.Watch()
	if err := c.tr.RequestAttach(ctx, c.FriendlyName()); err != nil {
		return err
	}

	for {
		select {
		case <-changed:
		case <-expired:
			c.machine.Set(attach.Unknown)
			return apierr.Wrap(apierr.ErrAttachTimeout, "client", "attach", "no attach response", nil)
		case <-ctx.Done():
			c.machine.Set(attach.Unknown)
			return ctx.Err()
		case <-c.done:
			return closedError("attach")
		}

		var status attach.Status
		status, changed = c.machine.Watch()
		switch status {
		case attach.Success:
			return nil
		case attach.Refused:
			return apierr.Wrap(apierr.ErrAttachRefused, "client", "attach", "", nil)
		case attach.PendingAuthorization:
			if hs.PendingSuspendsTimeout && expired != nil {
				timer.Stop()
				expired = nil
				c.logger.Info("waiting for host user to authorize client")
			}
		case attach.Available:
			c.logger.Debug("host became available, repeating attach request")
			if err := c.tr.RequestAttach(ctx, c.FriendlyName()); err != nil {
				return err
			}
		}
	}
}

func (c *Client) negotiateProtocol(ctx context.Context) error {
	cmd := correlator.NewCommand(fmt.Sprintf("PROTOCOL %d", c.wantProtocol), "PROTOCOL", true, c.commandTimeout)
	if err := c.sendLocked(ctx, cmd); err != nil {
		return err
	}
	negotiated, ok := wire.LastInt(cmd.Reply)
	if !ok {
		logging.WarnWithContext(c.logger, "unparseable protocol reply", "protocol_reply_invalid",
			logging.String("reply", cmd.Reply),
			logging.String(logging.FieldImpact, "keeping requested protocol version"),
			logging.String(logging.FieldErrorHint, "check the host application version"),
		)
		return nil
	}
	c.protocol.Store(int64(negotiated))
	return nil
}

func (c *Client) logAttachFailure(err error) {
	eventType := "attach_failed"
	switch {
	case errors.Is(err, apierr.ErrAttachRefused):
		eventType = "attach_refused"
	case errors.Is(err, apierr.ErrAttachTimeout):
		eventType = "attach_timeout"
	case errors.Is(err, apierr.ErrClosed), errors.Is(err, context.Canceled):
		return
	}
	logging.WarnWithContext(c.logger, "attach failed", eventType,
		logging.Error(err),
		logging.String(logging.FieldErrorHint, apierr.Hint(err)),
		logging.String(logging.FieldImpact, "commands cannot be sent until attach succeeds"),
	)
}
