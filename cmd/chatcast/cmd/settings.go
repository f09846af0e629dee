package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/chatcast/internal/client"
	"github.com/Dicklesworthstone/chatcast/internal/state"
)

var enableCmd = &cobra.Command{
	Use:   "enable <target>",
	Short: "Include a target in broadcasts",
	Long: `Enable a target. At most 5 targets can be enabled, 4 in the grid layout.

With --force, enabling a fifth target while in grid switches the layout to column.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		return setEnabled(cmd, args[0], true, force)
	},
}

var disableCmd = &cobra.Command{
	Use:   "disable <target>",
	Short: "Exclude a target from broadcasts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setEnabled(cmd, args[0], false, false)
	},
}

var layoutCmd = &cobra.Command{
	Use:   "layout [column|row|grid]",
	Short: "Show or set the session layout",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		if len(args) == 0 {
			st, err := c.Status(cmd.Context())
			if err != nil {
				return explain(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), st.Layout)
			return nil
		}

		l, err := state.ParseLayout(args[0])
		if err != nil {
			return err
		}
		if _, err := c.SetLayout(cmd.Context(), string(l)); err != nil {
			if client.IsStatus(err, http.StatusConflict) {
				return fmt.Errorf("grid holds at most %d targets; disable one first", state.MaxEnabledGrid)
			}
			return explain(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Layout set to %s\n", l)
		return nil
	},
}

var zoomCmd = &cobra.Command{
	Use:   "zoom [level]",
	Short: "Show or set the stored zoom level",
	Long: `Show or set the zoom level, clamped to [-0.9, 3.0]. The value is stored
and reported; sessions are not rescaled.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		if len(args) == 0 {
			st, err := c.Status(cmd.Context())
			if err != nil {
				return explain(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%.1f\n", st.Zoom)
			return nil
		}

		z, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid zoom level %q: %w", args[0], err)
		}
		got, err := c.SetZoom(cmd.Context(), z)
		if err != nil {
			return explain(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Zoom set to %.1f\n", got)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(enableCmd)
	rootCmd.AddCommand(disableCmd)
	rootCmd.AddCommand(layoutCmd)
	rootCmd.AddCommand(zoomCmd)

	enableCmd.Flags().Bool("force", false, "leave grid layout if it is full")
}

func setEnabled(cmd *cobra.Command, id string, on, force bool) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	st, err := c.SetEnabled(cmd.Context(), id, on, force)
	if err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.StatusCode {
			case http.StatusNotFound:
				return fmt.Errorf("unknown target %q (see: chatcast targets)", id)
			case http.StatusConflict:
				return fmt.Errorf("%s; disable another target first, or use --force in grid", apiErr.Message)
			}
		}
		return explain(err)
	}

	verb := "Disabled"
	if on {
		verb = "Enabled"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%d enabled, layout %s)\n", verb, id, st.EnabledCount, st.Layout)
	return nil
}
