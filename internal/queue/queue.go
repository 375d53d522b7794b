// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package queue carries search tasks from the engine to workers. Enqueue
// is fire-and-forget; Consume drives a handler until its context ends.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pdiddy/metasearch/internal/metrics"
	"github.com/pdiddy/metasearch/pkg/types"
)

// Task kinds.
const (
	KindSearch  = "search"
	KindRescore = "rescore"
)

var (
	// ErrUnknownBackend is returned for an unsupported queue backend.
	ErrUnknownBackend = errors.New("unknown queue backend")

	// ErrClosed is returned by Enqueue after Close.
	ErrClosed = errors.New("queue closed")
)

// Task asks a worker to drive one search.
type Task struct {
	SearchID string `json:"search_id"`
	Kind     string `json:"kind"`
}

// Handler processes one task. Errors are logged; the task is not retried.
type Handler func(ctx context.Context, t Task) error

// Queue is the task dispatch collaborator.
type Queue interface {
	Enqueue(ctx context.Context, t Task) error
	Consume(ctx context.Context, h Handler) error
	Close() error
}

// New builds the queue selected by cfg.
func New(cfg types.QueueConfig, logger *slog.Logger) (Queue, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Backend {
	case "", "memory":
		return NewMemory(0, logger), nil
	case "redis":
		return NewRedis(cfg.RedisURL, cfg.Key, logger)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
}

func handle(ctx context.Context, backend string, logger *slog.Logger, h Handler, t Task) {
	metrics.QueueTasksTotal.WithLabelValues(backend, "consume").Inc()
	if err := h(ctx, t); err != nil {
		logger.Error("task failed", "search_id", t.SearchID, "kind", t.Kind, "err", err)
	}
}
