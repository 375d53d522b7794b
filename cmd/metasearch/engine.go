package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/pdiddy/metasearch/internal/queue"
	"github.com/pdiddy/metasearch/internal/search"
	"github.com/pdiddy/metasearch/internal/secrets"
	"github.com/pdiddy/metasearch/internal/store"
	"github.com/pdiddy/metasearch/pkg/types"
)

// setConfigDefaults registers every engine setting with viper so config
// files and METASEARCH_* variables can override it.
func setConfigDefaults() {
	d := types.DefaultEngineConfig()
	viper.SetDefault("connector.timeout", d.Connector.Timeout)
	viper.SetDefault("connector.user_agent", d.Connector.UserAgent)
	viper.SetDefault("connector.page_delay", d.Connector.PageDelay)
	viper.SetDefault("connector.max_pages", d.Connector.MaxPages)
	viper.SetDefault("relevancy.highlight_start", d.Relevancy.HighlightStart)
	viper.SetDefault("relevancy.highlight_end", d.Relevancy.HighlightEnd)
	viper.SetDefault("relevancy.max_field_len", d.Relevancy.MaxFieldLen)
	viper.SetDefault("dedup.key_field", d.Dedup.KeyField)
	viper.SetDefault("dedup.similarity_fields", d.Dedup.SimilarityFields)
	viper.SetDefault("dedup.threshold", d.Dedup.Threshold)
	viper.SetDefault("dispatch.pool_size", d.Dispatch.PoolSize)
	viper.SetDefault("dispatch.searches", d.Dispatch.Searches)
	viper.SetDefault("dispatch.search_timeout", d.Dispatch.SearchTimeout)
	viper.SetDefault("dispatch.ready_wait", d.Dispatch.ReadyWait)
	viper.SetDefault("dispatch.poll_interval", d.Dispatch.PollInterval)
	viper.SetDefault("embedding.backend", d.Embedding.Backend)
	viper.SetDefault("embedding.base_url", d.Embedding.BaseURL)
	viper.SetDefault("embedding.model", d.Embedding.Model)
	viper.SetDefault("embedding.api_key", d.Embedding.APIKey)
	viper.SetDefault("embedding.dimensions", d.Embedding.Dimensions)
	viper.SetDefault("embedding.cache_size", d.Embedding.CacheSize)
	viper.SetDefault("queue.backend", d.Queue.Backend)
	viper.SetDefault("queue.redis_url", d.Queue.RedisURL)
	viper.SetDefault("queue.key", d.Queue.Key)
	viper.SetDefault("store.path", d.Store.Path)
	viper.SetDefault("default_mixer", d.DefaultMixer)
	viper.SetDefault("default_processor", d.DefaultProcessor)
	viper.SetDefault("results_requested", d.ResultsRequested)
}

func engineConfig() types.EngineConfig {
	cfg := types.EngineConfig{
		Connector: types.ConnectorConfig{
			HTTPConfig: types.HTTPConfig{
				Timeout:   viper.GetDuration("connector.timeout"),
				UserAgent: viper.GetString("connector.user_agent"),
			},
			PageDelay: viper.GetDuration("connector.page_delay"),
			MaxPages:  viper.GetInt("connector.max_pages"),
		},
		Relevancy: types.RelevancyConfig{
			HighlightStart: viper.GetString("relevancy.highlight_start"),
			HighlightEnd:   viper.GetString("relevancy.highlight_end"),
			MaxFieldLen:    viper.GetInt("relevancy.max_field_len"),
		},
		Dedup: types.DedupConfig{
			KeyField:         viper.GetString("dedup.key_field"),
			SimilarityFields: viper.GetStringSlice("dedup.similarity_fields"),
			Threshold:        viper.GetFloat64("dedup.threshold"),
		},
		Dispatch: types.DispatchConfig{
			PoolSize:      viper.GetInt("dispatch.pool_size"),
			Searches:      viper.GetInt("dispatch.searches"),
			SearchTimeout: viper.GetDuration("dispatch.search_timeout"),
			ReadyWait:     viper.GetDuration("dispatch.ready_wait"),
			PollInterval:  viper.GetDuration("dispatch.poll_interval"),
		},
		Embedding: types.EmbeddingConfig{
			Backend:    viper.GetString("embedding.backend"),
			BaseURL:    viper.GetString("embedding.base_url"),
			Model:      viper.GetString("embedding.model"),
			APIKey:     viper.GetString("embedding.api_key"),
			Dimensions: viper.GetInt("embedding.dimensions"),
			CacheSize:  viper.GetInt("embedding.cache_size"),
		},
		Queue: types.QueueConfig{
			Backend:  viper.GetString("queue.backend"),
			RedisURL: viper.GetString("queue.redis_url"),
			Key:      viper.GetString("queue.key"),
		},
		Store:            types.StoreConfig{Path: viper.GetString("store.path")},
		DefaultMixer:     viper.GetString("default_mixer"),
		DefaultProcessor: viper.GetString("default_processor"),
		ResultsRequested: viper.GetInt("results_requested"),
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = types.DefaultEngineConfig().Store.Path
	}
	return cfg
}

// currentOwner is --owner, or the login name.
func currentOwner() string {
	if o := viper.GetString("owner"); o != "" {
		return o
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "default"
}

// app bundles the engine with the resources it was built from.
type app struct {
	cfg    types.EngineConfig
	engine *search.Engine
	store  *store.SQLite
	queue  queue.Queue
	owner  string
	stop   context.CancelFunc
}

// openApp builds the engine. With the in-memory queue nothing else would
// consume tasks, so a worker is started in-process.
func openApp(ctx context.Context) (*app, error) {
	cfg := engineConfig()

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	q, err := queue.New(cfg.Queue, logger)
	if err != nil {
		st.Close()
		return nil, err
	}
	eng, err := search.New(cfg, st, q,
		search.WithLogger(logger),
		search.WithSessions(secrets.Dir{Path: viper.GetString("secrets_dir"), Logger: logger}),
	)
	if err != nil {
		q.Close()
		st.Close()
		return nil, fmt.Errorf("creating engine: %w", err)
	}

	a := &app{cfg: cfg, engine: eng, store: st, queue: q, owner: currentOwner(), stop: func() {}}
	if cfg.Queue.Backend == "" || cfg.Queue.Backend == "memory" {
		wctx, cancel := context.WithCancel(ctx)
		a.stop = cancel
		go eng.Serve(wctx)
	}
	return a, nil
}

func (a *app) Close() {
	a.stop()
	a.engine.Close()
	a.queue.Close()
	a.store.Close()
}
