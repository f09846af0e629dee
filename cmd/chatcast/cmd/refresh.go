package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/chatcast/internal/signals"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Poll session readiness again",
	Long: `Restart readiness polling in the daemon. Use it when a session finished
loading after the daemon stopped polling, for example after a slow login.

With --signal the request goes out as SIGHUP to the pid in the daemon's PID file
instead of over the API.

Examples:
  chatcast refresh
  chatcast refresh --signal`,
	RunE: func(cmd *cobra.Command, args []string) error {
		useSignal, _ := cmd.Flags().GetBool("signal")
		if useSignal {
			pid, err := daemonPID()
			if err != nil {
				return err
			}
			if err := signals.SendReload(pid); err != nil {
				return fmt.Errorf("signal daemon: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent reload to pid %d\n", pid)
			return nil
		}

		c, err := newClient()
		if err != nil {
			return err
		}
		if err := c.RefreshReadiness(cmd.Context()); err != nil {
			return explain(err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Readiness polling restarted (see: chatcast status)")
		return nil
	},
}

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Ask the daemon to log its state",
	Long: `Send SIGUSR1 to the running daemon. It logs layout, zoom, every target's
enabled and ready flags and last URL, and the last broadcast cycle.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := daemonPID()
		if err != nil {
			return err
		}
		if err := signals.SendDump(pid); err != nil {
			return fmt.Errorf("signal daemon: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Sent dump to pid %d; see the daemon log\n", pid)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(dumpCmd)

	refreshCmd.Flags().Bool("signal", false, "send SIGHUP instead of calling the API")
}

func daemonPID() (int, error) {
	pid, err := signals.Running(signals.DefaultPIDFilePath())
	if errors.Is(err, signals.ErrNotRunning) {
		return 0, fmt.Errorf("%w\nstart it with: chatcast serve", err)
	}
	return pid, err
}
