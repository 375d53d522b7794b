package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/metasearch/internal/mixer"
	"github.com/pdiddy/metasearch/internal/search"
	"github.com/pdiddy/metasearch/pkg/types"
)

var searchCmd = &cobra.Command{
	Use:   "search [query...]",
	Short: "Run a federated search",
	Long: `Search sends the query to the selected providers, waits for the search to
become ready and prints the first page of mixed results.

A leading "tag:" token narrows the default providers to those carrying the
tag ("news: election"); an embedded "tag:term" adds providers carrying the tag.
--providers names providers explicitly by ID, name or tag.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	f := searchCmd.Flags()
	f.StringSlice("providers", nil, "provider IDs, names or tags (default: selected by query tags)")
	f.String("sort", types.SortRelevancy, "provider sort order: relevancy or date")
	f.String("mixer", "", "mixer: "+strings.Join(mixer.Names(), ", "))
	f.String("processor", "", "relevancy processor: lexical or cosine")
	f.Int("results", 0, "results per page (default from config)")
	f.Bool("no-wait", false, "print the search ID and return without waiting")
	addPageFlags(searchCmd)

	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	providers, _ := cmd.Flags().GetStringSlice("providers")
	sortOrder, _ := cmd.Flags().GetString("sort")
	mixerName, _ := cmd.Flags().GetString("mixer")
	processor, _ := cmd.Flags().GetString("processor")
	results, _ := cmd.Flags().GetInt("results")
	noWait, _ := cmd.Flags().GetBool("no-wait")

	s, err := a.engine.Create(ctx, search.Request{
		Owner:            a.owner,
		Query:            strings.Join(args, " "),
		Providers:        providers,
		Sort:             sortOrder,
		Mixer:            mixerName,
		Processor:        processor,
		ResultsRequested: results,
	})
	if err != nil {
		return err
	}
	if noWait {
		fmt.Fprintln(cmd.OutOrStdout(), s.ID)
		return nil
	}
	return waitAndPrint(cmd, a, s.ID)
}

// waitAndPrint waits for a ready status and prints a page, or reports the
// error status with the search's messages.
func waitAndPrint(cmd *cobra.Command, a *app, id string) error {
	s, err := a.engine.WaitReady(cmd.Context(), id)
	if err != nil {
		return err
	}
	if s.Status.IsError() {
		for _, m := range s.Messages {
			fmt.Fprintln(cmd.ErrOrStderr(), m)
		}
		return fmt.Errorf("search %s ended in %s", id, s.Status)
	}
	opts, format := pageOptions(cmd)
	page, err := a.engine.Mix(cmd.Context(), id, a.owner, "", opts)
	if err != nil {
		return err
	}
	return writePage(cmd.OutOrStdout(), page, format)
}

func addPageFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Int("page", 1, "page number")
	f.Bool("explain", false, "include score explanations")
	f.Bool("mark-read", false, "mark the printed records read")
	f.String("format", "table", "output format: table, json or csl")
}

func pageOptions(cmd *cobra.Command) (mixer.Options, string) {
	page, _ := cmd.Flags().GetInt("page")
	explain, _ := cmd.Flags().GetBool("explain")
	markRead, _ := cmd.Flags().GetBool("mark-read")
	format, _ := cmd.Flags().GetString("format")
	opts := mixer.Options{Page: page, Explain: explain, MarkRead: markRead}
	if cmd.Flags().Lookup("page-size") != nil {
		opts.PageSize, _ = cmd.Flags().GetInt("page-size")
	}
	if cmd.Flags().Lookup("provider") != nil {
		opts.Provider, _ = cmd.Flags().GetString("provider")
	}
	return opts, format
}

func writePage(w io.Writer, page mixer.Page, format string) error {
	switch format {
	case "json":
		return mixer.FormatJSON(page, w)
	case "csl":
		return mixer.FormatCSL(page, w)
	case "", "table":
		mixer.FormatTable(page, w)
		return nil
	}
	return fmt.Errorf("unknown format %q: expected table, json or csl", format)
}
