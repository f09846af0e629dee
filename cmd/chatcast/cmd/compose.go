package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/chatcast/internal/tui"
)

var composeCmd = &cobra.Command{
	Use:   "compose",
	Short: "Write and broadcast messages in a terminal UI",
	Long: `Open the compose UI against the running daemon.

Type a message and press ctrl+s to send it to every enabled, ready target.
alt+1..9 toggles a target, ctrl+l cycles the layout, f1 shows all keys.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		if _, err := c.Health(cmd.Context()); err != nil {
			return explain(err)
		}
		return tui.Run(c)
	},
}

func init() {
	rootCmd.AddCommand(composeCmd)
}
