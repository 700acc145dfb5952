// Package correlator matches outbound commands with their inbound replies.
package correlator

import (
	"fmt"
	"time"
)

// Command is one request sent to the host. ID is -1 until the table assigns
// one. Reply is written only by the table; read it after the wait returns.
type Command struct {
	ID       int
	Text     string
	Expected string
	Blocking bool
	Timeout  time.Duration
	Reply    string
}

// NewCommand returns a command with an unassigned id.
func NewCommand(text, expected string, blocking bool, timeout time.Duration) *Command {
	return &Command{
		ID:       -1,
		Text:     text,
		Expected: expected,
		Blocking: blocking,
		Timeout:  timeout,
	}
}

func (c *Command) String() string {
	return fmt.Sprintf("Command{id=%d text=%q blocking=%t reply=%q}", c.ID, c.Text, c.Blocking, c.Reply)
}
