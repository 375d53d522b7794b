package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/metasearch/internal/search"
)

var exportCmd = &cobra.Command{
	Use:   "export <search-id>",
	Short: "Save a ready search and all its records to a YAML snapshot",
	Long: `Export writes every non-duplicate record of a ready search, with score
explanations, to a YAML file. Render it later with "results --snapshot".`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("output")
		if out == "" {
			out = args[0] + ".yaml"
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		snap, err := a.engine.Snapshot(cmd.Context(), args[0], a.owner)
		if err != nil {
			return err
		}
		if err := search.WriteSnapshot(out, snap); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d records to %s\n", snap.Summary.Total, out)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringP("output", "o", "", "snapshot path (default <search-id>.yaml)")
	rootCmd.AddCommand(exportCmd)
}
