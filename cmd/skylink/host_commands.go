package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"skylink/internal/deps"
	"skylink/internal/launcher"
	"skylink/internal/logging"
)

func newHostCommand(ctx *commandContext) *cobra.Command {
	hostCmd := &cobra.Command{
		Use:   "host",
		Short: "Manage the host application process",
	}

	newLauncher := func() (*launcher.Launcher, error) {
		cfg, err := ctx.ensureConfig()
		if err != nil {
			return nil, err
		}
		logger, err := logging.NewFromConfig(cfg, false)
		if err != nil {
			return nil, fmt.Errorf("init logger: %w", err)
		}
		return launcher.New(cfg, logger, ctx.launcherOpts...), nil
	}

	hostCmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Launch the host application unless it is already running",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := newLauncher()
			if err != nil {
				return err
			}
			state, err := l.Start(cmd.Context())
			if err != nil {
				return err
			}
			switch state {
			case launcher.StartStateAlreadyRunning:
				fmt.Fprintln(cmd.OutOrStdout(), "Host already running")
			default:
				fmt.Fprintln(cmd.OutOrStdout(), "Host launched")
			}
			return nil
		},
	})

	hostCmd.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Ask the host application to quit",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := newLauncher()
			if err != nil {
				return err
			}
			count, err := l.Stop()
			if errors.Is(err, launcher.ErrNotRunning) {
				fmt.Fprintln(cmd.OutOrStdout(), "Host is not running")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Interrupted %d host process(es)\n", count)
			return nil
		},
	})

	hostCmd.AddCommand(&cobra.Command{
		Use:   "running",
		Short: "Report whether the host application process exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := newLauncher()
			if err != nil {
				return err
			}
			running, err := l.Running()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Host running: %s\n", yesNo(running))
			return nil
		},
	})

	hostCmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Verify the host application and helpers are installed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			statuses := deps.CheckBinaries(deps.HostRequirements(cfg))
			for _, status := range statuses {
				kind := statusOK
				message := status.Path
				if !status.Available {
					kind = statusError
					if status.Optional {
						kind = statusWarn
					}
					message = status.Detail
				}
				fmt.Fprintln(out, renderStatusLine(status.Name, kind, message, colorize))
			}
			if missing := deps.Missing(statuses); len(missing) > 0 {
				return fmt.Errorf("%d required program(s) missing", len(missing))
			}
			return nil
		},
	})

	return hostCmd
}
