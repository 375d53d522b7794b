// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the metasearch CLI.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is set at build time via ldflags.
var version = "dev"

// logger is configured in PersistentPreRunE from --verbose.
var logger = slog.Default()

// rootCmd is the base command for the metasearch CLI.
var rootCmd = &cobra.Command{
	Use:   "metasearch",
	Short: "Federated search across configured providers",
	Long: `metasearch sends one query to many search providers at once, normalizes
their responses into a common record shape, removes duplicates, scores each
record against the query and serves a merged, paginated view.

Providers are declared in YAML (see configs/providers.yaml) and imported with
"metasearch providers import". Searches, providers and results are stored in
a local sqlite database.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if viper.GetBool("verbose") {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
		if f := viper.ConfigFileUsed(); f != "" {
			logger.Debug("using config file", "path", f)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./metasearch.yaml or ~/.config/metasearch/metasearch.yaml)")
	pf.String("db", "", "sqlite database path (default metasearch.db)")
	pf.String("owner", "", "owner of searches and providers (default $USER)")
	pf.String("secrets-dir", ".secrets", "directory of session credential files")
	pf.BoolP("verbose", "v", false, "debug logging")

	viper.BindPFlag("store.path", pf.Lookup("db"))
	viper.BindPFlag("owner", pf.Lookup("owner"))
	viper.BindPFlag("secrets_dir", pf.Lookup("secrets-dir"))
	viper.BindPFlag("verbose", pf.Lookup("verbose"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("metasearch")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "metasearch"))
		}
	}

	viper.SetEnvPrefix("METASEARCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setConfigDefaults()

	viper.ReadInConfig()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
