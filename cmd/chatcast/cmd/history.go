package cmd

import (
	"time"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent dispatch outcomes",
	Long: `Show the dispatch log, newest first. Each broadcast writes one row per target.

Examples:
  chatcast history
  chatcast history --limit 100
  chatcast history --cycle 3f2a9c1e-...`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		cycle, _ := cmd.Flags().GetString("cycle")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		c, err := newClient()
		if err != nil {
			return err
		}
		entries, err := c.History(cmd.Context(), limit, cycle)
		if err != nil {
			return explain(err)
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), entries)
		}
		printHistory(cmd.OutOrStdout(), entries, time.Now())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().Int("limit", 20, "maximum rows to show")
	historyCmd.Flags().String("cycle", "", "show only one broadcast cycle")
	historyCmd.Flags().Bool("json", false, "output in JSON format")
}
