package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/metasearch/internal/search"
)

var resultsCmd = &cobra.Command{
	Use:   "results <search-id>",
	Short: "Show mixed results of a ready search",
	Long: `Results prints one page of a ready search. --mixer overrides the mixer the
search was created with. --snapshot renders a file written by "export" instead
of reading the database.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runResults,
}

func init() {
	f := resultsCmd.Flags()
	f.String("mixer", "", "mixer to use instead of the search's own")
	f.Int("page-size", 0, "records per page (default: the search's results_requested)")
	f.String("provider", "", "only records from this provider (ID or name)")
	f.String("snapshot", "", "render a saved snapshot file")
	addPageFlags(resultsCmd)

	rootCmd.AddCommand(resultsCmd)
}

func runResults(cmd *cobra.Command, args []string) error {
	opts, format := pageOptions(cmd)

	if path, _ := cmd.Flags().GetString("snapshot"); path != "" {
		snap, err := search.ReadSnapshot(path)
		if err != nil {
			return err
		}
		return writePage(cmd.OutOrStdout(), snap.Page, format)
	}
	if len(args) == 0 {
		return fmt.Errorf("provide a search ID or --snapshot")
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	mixerName, _ := cmd.Flags().GetString("mixer")
	page, err := a.engine.Mix(cmd.Context(), args[0], a.owner, mixerName, opts)
	if err != nil {
		return err
	}
	return writePage(cmd.OutOrStdout(), page, format)
}
