package cmd

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/chatcast/internal/client"
)

var openCmd = &cobra.Command{
	Use:   "open <target> <url>",
	Short: "Navigate a target's session to a URL",
	Long: `Navigate a target's session. A URL without a scheme gets https://.

Examples:
  chatcast open browser news.ycombinator.com
  chatcast open chatgpt https://chatgpt.com/?model=gpt-4o`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		u, err := c.Navigate(cmd.Context(), args[0], args[1])
		if err != nil {
			return sessionError(args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", args[0], u)
		return nil
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <target>",
	Short: "Open developer tools for a target's session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		if err := c.Inspect(cmd.Context(), args[0]); err != nil {
			return sessionError(args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Opened inspector for %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(inspectCmd)
}

func sessionError(id string, err error) error {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("unknown target %q (see: chatcast targets)", id)
		case http.StatusServiceUnavailable:
			return fmt.Errorf("%s has no live session yet (see: chatcast status)", id)
		case http.StatusBadRequest:
			return fmt.Errorf("invalid URL: %s", apiErr.Message)
		}
	}
	return explain(err)
}
