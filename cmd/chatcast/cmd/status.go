package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show targets, readiness and the last broadcast",
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")

		c, err := newClient()
		if err != nil {
			return err
		}
		st, err := c.Status(cmd.Context())
		if err != nil {
			return explain(err)
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), st)
		}
		printStatus(cmd.OutOrStdout(), st)
		return nil
	},
}

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "List the configured targets",
	Long: `List the target table the daemon runs with: id, kind, start URL and the
locators used to find the input and the submit control.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")

		c, err := newClient()
		if err != nil {
			return err
		}
		targets, err := c.Targets(cmd.Context())
		if err != nil {
			return explain(err)
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), targets)
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tKIND\tURL\tINPUT")
		for _, t := range targets {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.DisplayName, t.Kind, t.URL, t.InputSelector)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(targetsCmd)
	statusCmd.Flags().Bool("json", false, "output in JSON format")
	targetsCmd.Flags().Bool("json", false, "output in JSON format")
}
