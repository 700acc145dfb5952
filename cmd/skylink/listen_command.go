package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"skylink/internal/attach"
	"skylink/internal/client"
	"skylink/internal/logging"
)

const listenPumpSlice = 100 * time.Millisecond

// newListenCommand attaches directly, without the daemon, and prints status
// changes and notifications until interrupted.
func newListenCommand(ctx *commandContext) *cobra.Command {
	var commands []string
	var duration time.Duration
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Attach directly (no daemon) and print notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := logging.NewFromConfig(cfg, false)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			c, err := client.NewFromConfig(cfg, logger)
			if err != nil {
				return err
			}
			defer c.Close()

			runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			if duration > 0 {
				var stop context.CancelFunc
				runCtx, stop = context.WithTimeout(runCtx, duration)
				defer stop()
			}

			out := &lockedWriter{w: cmd.OutOrStdout()}
			c.OnAttachmentStatus(func(s attach.Status) { out.printf("# attachment %s\n", s) })
			c.OnNotify(func(text string) { out.printf("%s\n", text) })

			if !cfg.Client.RunOwnEventLoop {
				go pumpUntil(runCtx, c)
			}

			if err := c.Attach(runCtx, 0); err != nil {
				return fmt.Errorf("attach: %w", err)
			}
			for _, text := range commands {
				reply, err := c.DoCommand(runCtx, text, "")
				if err != nil {
					out.printf("# %s -> error: %v\n", text, err)
					continue
				}
				out.printf("# %s -> %s\n", text, reply)
			}

			<-runCtx.Done()
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&commands, "command", "e", nil, "Command to send after attaching (repeatable)")
	cmd.Flags().DurationVar(&duration, "for", 0, "Stop listening after this long (default until interrupted)")
	return cmd
}

func pumpUntil(ctx context.Context, c *client.Client) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	for ctx.Err() == nil {
		if !c.Pump(listenPumpSlice) {
			select {
			case <-ctx.Done():
			case <-time.After(listenPumpSlice):
			}
		}
	}
}

// lockedWriter serializes output from event handlers running on separate
// dispatcher lanes.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, format, args...)
}
