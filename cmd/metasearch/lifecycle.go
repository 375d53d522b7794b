package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/metasearch/internal/store"
	"github.com/pdiddy/metasearch/pkg/types"
)

var searchesCmd = &cobra.Command{
	Use:   "searches",
	Short: "List your searches, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		status, _ := cmd.Flags().GetString("status")
		list, err := a.engine.List(cmd.Context(), store.SearchFilter{Owner: a.owner, Status: types.SearchStatus(status)})
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if len(list) == 0 {
			fmt.Fprintln(w, "No searches.")
			return nil
		}
		fmt.Fprintf(w, "%-36s  %-24s  %-20s  %s\n", "ID", "Status", "Created", "Query")
		fmt.Fprintf(w, "%s\n", strings.Repeat("-", 100))
		for _, s := range list {
			fmt.Fprintf(w, "%-36s  %-24s  %-20s  %s\n", s.ID, s.Status, s.CreatedAt.Format("2006-01-02 15:04:05"), s.QueryString)
		}
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <search-id>",
	Short: "Show a search's status, providers and messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := a.engine.Get(cmd.Context(), args[0], a.owner)
		if err != nil {
			return err
		}
		results, err := a.engine.Results(cmd.Context(), s.ID, a.owner)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Search:     %s\n", s.ID)
		fmt.Fprintf(w, "Query:      %s\n", s.QueryString)
		fmt.Fprintf(w, "Status:     %s (generation %d)\n", s.Status, s.Generation)
		fmt.Fprintf(w, "Mixer:      %s, processor %s, sort %s\n", s.Mixer, s.Processor, s.Sort)
		for _, r := range results {
			fmt.Fprintf(w, "  %-24s %-18s found %d, retrieved %d\n", r.ProviderName, r.Status, r.Found, r.Retrieved)
		}
		for _, m := range s.Messages {
			fmt.Fprintf(w, "  %s\n", m)
		}
		return nil
	},
}

// lifecycleCmd builds a command that applies op to one search and
// optionally waits for the outcome.
func lifecycleCmd(use, short string, op func(ctx context.Context, a *app, id string) (*types.Search, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <search-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := op(cmd.Context(), a, args[0])
			if err != nil {
				return err
			}
			if noWait, _ := cmd.Flags().GetBool("no-wait"); noWait {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", s.ID, s.Status)
				return nil
			}
			return waitAndPrint(cmd, a, s.ID)
		},
	}
	cmd.Flags().Bool("no-wait", false, "return without waiting for the search")
	addPageFlags(cmd)
	return cmd
}

var deleteCmd = &cobra.Command{
	Use:   "delete <search-id>",
	Short: "Delete a search and its results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.engine.Destroy(cmd.Context(), args[0], a.owner); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	},
}

func init() {
	searchesCmd.Flags().String("status", "", "only searches in this status")

	rootCmd.AddCommand(searchesCmd, showCmd, deleteCmd,
		lifecycleCmd("rerun", "Discard results and run a search again",
			func(ctx context.Context, a *app, id string) (*types.Search, error) {
				return a.engine.Rerun(ctx, id, a.owner)
			}),
		lifecycleCmd("rescore", "Score a ready search's stored results again",
			func(ctx context.Context, a *app, id string) (*types.Search, error) {
				return a.engine.Rescore(ctx, id, a.owner)
			}),
		lifecycleCmd("update", "Fetch new records for a ready search, keeping read state",
			func(ctx context.Context, a *app, id string) (*types.Search, error) {
				return a.engine.Update(ctx, id, a.owner)
			}),
	)
}
