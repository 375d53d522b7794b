package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/metasearch/internal/connector"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Manage search providers",
	Long: `Providers are search sources: a connector (` + strings.Join(connector.Names(), ", ") + `),
a query template and the mappings that turn responses into records. You see
your own providers and those shared by others; credentials of providers you
do not own are never shown.`,
}

var providersImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Add or replace providers from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		saved, err := a.engine.ImportProviders(cmd.Context(), a.owner, args[0])
		for _, p := range saved {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", p.ID, p.Name)
		}
		return err
	},
}

var providersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List providers visible to you",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		list, err := a.engine.Providers(cmd.Context(), a.owner)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if len(list) == 0 {
			fmt.Fprintln(w, "No providers. Import some with: metasearch providers import configs/providers.yaml")
			return nil
		}
		fmt.Fprintf(w, "%-36s  %-28s  %-12s  %-7s  %-6s  %s\n", "ID", "Name", "Connector", "Default", "Active", "Tags")
		fmt.Fprintf(w, "%s\n", strings.Repeat("-", 110))
		for _, p := range list {
			fmt.Fprintf(w, "%-36s  %-28s  %-12s  %-7t  %-6t  %s\n",
				p.ID, truncateName(p.Name, 28), p.Connector, p.Default, p.Active, strings.Join(p.Tags, ","))
		}
		return nil
	},
}

var providersShowCmd = &cobra.Command{
	Use:   "show <provider-id>",
	Short: "Print one provider as YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		p, err := a.engine.Provider(cmd.Context(), args[0], a.owner)
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(p)
	},
}

var providersRemoveCmd = &cobra.Command{
	Use:   "remove <provider-id>",
	Short: "Delete one of your providers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.engine.RemoveProvider(cmd.Context(), args[0], a.owner); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
		return nil
	},
}

func truncateName(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func init() {
	providersCmd.AddCommand(providersImportCmd, providersListCmd, providersShowCmd, providersRemoveCmd)
	rootCmd.AddCommand(providersCmd)
}
