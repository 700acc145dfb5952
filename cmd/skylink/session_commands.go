package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"skylink/internal/ipc"
)

func newAttachCommand(ctx *commandContext) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "attach",
		Short: "Attach the daemon's client to the host application",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Attach(ipc.AttachRequest{TimeoutMS: int(timeout / time.Millisecond)})
				if err != nil {
					return fmt.Errorf("attach: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Attached (status %s, protocol %d)\n", resp.AttachStatus, resp.Protocol)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Attach timeout (default from client.attach_timeout_ms)")
	return cmd
}

func newSendCommand(ctx *commandContext) *cobra.Command {
	var expected string
	var noWait bool
	var timeout time.Duration
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "send <command>...",
		Short: "Send one protocol command through the daemon",
		Long: "Send joins its arguments with spaces and submits them as one command.\n" +
			"By default it waits for the reply and prints it; --no-wait returns\n" +
			"as soon as the command is posted.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.TrimSpace(strings.Join(args, " "))
			if text == "" {
				return errors.New("command text is required")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Send(ipc.SendRequest{
					Text:      text,
					Expected:  expected,
					Blocking:  !noWait,
					TimeoutMS: int(timeout / time.Millisecond),
				})
				if err != nil {
					return fmt.Errorf("send %q: %w", text, err)
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), resp)
				}
				out := cmd.OutOrStdout()
				if noWait {
					fmt.Fprintf(out, "Posted command %d\n", resp.ID)
					return nil
				}
				fmt.Fprintln(out, resp.Reply)
				if resp.HostError != nil {
					return fmt.Errorf("host error %d: %s", resp.HostError.Code, resp.HostError.Text)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&expected, "expect", "", "Fail unless the reply starts with this prefix")
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "Post the command without waiting for a reply")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Reply timeout (default from client.command_timeout_ms)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the response as JSON")
	return cmd
}

func newTailCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var after uint64
	var limit int
	var showSeq bool
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print host notifications buffered by the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return ctx.withClient(func(client *ipc.Client) error {
				cursor := after
				for {
					req := ipc.NotificationsRequest{AfterSeq: cursor, Limit: limit}
					if follow {
						req.WaitMS = 5000
					}
					resp, err := client.Notifications(req)
					if err != nil {
						return err
					}
					if resp.Missed {
						fmt.Fprintln(cmd.ErrOrStderr(), "warning: older notifications were dropped from the buffer")
					}
					for _, n := range resp.Notifications {
						if asJSON {
							if err := writeJSONLine(out, n); err != nil {
								return err
							}
						} else if showSeq {
							fmt.Fprintf(out, "%d\t%s\n", n.Seq, n.Text)
						} else {
							fmt.Fprintln(out, n.Text)
						}
						cursor = n.Seq
					}
					if !follow {
						return nil
					}
					if err := cmd.Context().Err(); err != nil {
						return err
					}
				}
			})
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep waiting for new notifications")
	cmd.Flags().Uint64Var(&after, "after", 0, "Only show notifications with a higher sequence number")
	cmd.Flags().IntVarP(&limit, "lines", "n", 0, "Maximum notifications per page (0 for all)")
	cmd.Flags().BoolVar(&showSeq, "seq", false, "Prefix each notification with its sequence number")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print each notification as a JSON object per line")
	return cmd
}
