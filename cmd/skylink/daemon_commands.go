package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"skylink/internal/daemonctl"
	"skylink/internal/ipc"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	var startLogLevel string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the skylink daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.EnsureStarted(
				ctx.socketPath(),
				exe,
				daemonLaunchOptions(ctx, startLogLevel),
				10*time.Second,
			)
			if err != nil {
				return err
			}

			if result.Launched {
				fmt.Fprintln(stdout, "Daemon not running, launching...")
			}
			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintln(stdout, "Daemon started")
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon already running")
			case daemonctl.StartStateRequested:
				fmt.Fprintln(stdout, result.Message)
			}
			return nil
		},
	}
	startCmd.Flags().StringVar(&startLogLevel, "log-level", "", "Override logging.level for the launched daemon")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the skylink daemon (terminates the process)",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), cfg.PIDPath(), 5*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Daemon did not exit in time; killed pid %d\n", result.PID)
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	var statusJSON bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and attachment status",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			client, err := ipc.Dial(ctx.socketPath())
			if err != nil {
				if !daemonctl.IsUnavailable(err) {
					return wrapDialError(err, ctx.socketPath())
				}
				if statusJSON {
					return writeJSON(stdout, ipc.StatusResponse{})
				}
				colorize := shouldColorize(stdout)
				for _, line := range renderSectionHeader("Daemon", colorize) {
					fmt.Fprintln(stdout, line)
				}
				fmt.Fprintln(stdout, renderStatusLine("Skylink", statusWarn, "Not running (run `skylink start`)", colorize))
				return nil
			}
			defer client.Close()

			status, err := client.Status()
			if err != nil {
				return err
			}
			if statusJSON {
				return writeJSON(stdout, status)
			}
			renderStatus(stdout, status, shouldColorize(stdout))
			return nil
		},
	}
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output status as JSON")

	return []*cobra.Command{startCmd, stopCmd, statusCmd}
}

func renderStatus(w io.Writer, status *ipc.StatusResponse, colorize bool) {
	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(w, line)
	}
	if status.Running {
		detail := fmt.Sprintf("Running (pid %d)", status.PID)
		if !status.StartedAt.IsZero() {
			detail = fmt.Sprintf("%s since %s", detail, status.StartedAt.Local().Format(time.DateTime))
		}
		fmt.Fprintln(w, renderStatusLine("Skylink", statusOK, detail, colorize))
	} else {
		fmt.Fprintln(w, renderStatusLine("Skylink", statusWarn, "Stopped (lock not held)", colorize))
	}
	if status.MetricsAddr != "" {
		fmt.Fprintln(w, renderStatusLine("Metrics", statusInfo, "http://"+status.MetricsAddr+"/metrics", colorize))
	}
	fmt.Fprintln(w)

	for _, line := range renderSectionHeader("Attachment", colorize) {
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w, renderStatusLine("Status", attachStatusKind(status.AttachStatus), status.AttachStatus, colorize))
	if status.LastAttachError != "" {
		fmt.Fprintln(w, renderStatusLine("Last error", statusError, status.LastAttachError, colorize))
	}
	fmt.Fprintln(w, renderStatusLine("Transport", statusInfo, status.Transport, colorize))
	fmt.Fprintln(w, renderStatusLine("Friendly name", statusInfo, status.FriendlyName, colorize))
	fmt.Fprintln(w, renderStatusLine("Protocol", statusInfo, strconv.Itoa(status.Protocol), colorize))
	fmt.Fprintln(w, renderStatusLine("Session", statusInfo, status.Session, colorize))
	fmt.Fprintln(w, renderStatusLine("Notifications", statusInfo, strconv.FormatUint(status.LastSeq, 10)+" received", colorize))
	fmt.Fprintln(w)

	for _, line := range renderSectionHeader("Pending Commands", colorize) {
		fmt.Fprintln(w, line)
	}
	if len(status.Pending) == 0 {
		fmt.Fprintln(w, "No commands in flight")
		return
	}
	fmt.Fprintln(w, renderPendingTable(status.Pending, time.Now()))
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func daemonLaunchOptions(ctx *commandContext, logLevel string) daemonctl.LaunchOptions {
	opts := daemonctl.LaunchOptions{LogLevel: strings.TrimSpace(logLevel)}
	if ctx.socketFlag != nil {
		opts.SocketPath = strings.TrimSpace(*ctx.socketFlag)
	}
	opts.ConfigPath = ctx.configPath()
	return opts
}
