package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/metasearch/internal/metrics"
	"github.com/pdiddy/metasearch/internal/queue"
	"github.com/pdiddy/metasearch/internal/search"
	"github.com/pdiddy/metasearch/internal/secrets"
	"github.com/pdiddy/metasearch/internal/store"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume search tasks from the queue",
	Long: `Worker runs searches enqueued by other metasearch processes. It needs a
shared queue (queue.backend: redis) and the same database as its clients.
Prometheus metrics are served on --metrics-addr.`,
	RunE: runWorker,
}

func init() {
	workerCmd.Flags().String("metrics-addr", ":9090", "metrics listen address (empty disables)")
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := engineConfig()
	if cfg.Queue.Backend == "" || cfg.Queue.Backend == "memory" {
		logger.Warn("worker with the memory queue only sees its own tasks; set queue.backend to redis")
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()
	q, err := queue.New(cfg.Queue, logger)
	if err != nil {
		return err
	}
	defer q.Close()
	eng, err := search.New(cfg, st, q,
		search.WithLogger(logger),
		search.WithSessions(secrets.Dir{Path: viper.GetString("secrets_dir"), Logger: logger}),
	)
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}
	defer eng.Close()

	if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "err", err)
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(sctx)
		}()
		logger.Info("serving metrics", "addr", addr)
	}

	logger.Info("worker started", "queue", cfg.Queue.Backend, "db", cfg.Store.Path, "pool", cfg.Dispatch.PoolSize)
	err = eng.Serve(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, queue.ErrClosed) {
		return nil
	}
	return err
}
