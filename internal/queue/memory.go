// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package queue

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pdiddy/metasearch/internal/metrics"
)

const defaultMemoryCapacity = 1024

// Memory is an in-process queue backed by a buffered channel.
type Memory struct {
	tasks  chan Task
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

// NewMemory returns an in-process queue holding up to capacity pending
// tasks (default 1024). Enqueue blocks while the queue is full.
func NewMemory(capacity int, logger *slog.Logger) *Memory {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Memory{
		tasks:  make(chan Task, capacity),
		done:   make(chan struct{}),
		logger: logger.With("component", "queue", "backend", "memory"),
	}
}

func (q *Memory) Enqueue(ctx context.Context, t Task) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	select {
	case q.tasks <- t:
		metrics.QueueTasksTotal.WithLabelValues("memory", "enqueue").Inc()
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume calls h for each task in turn until ctx is done or the
// queue is closed.
func (q *Memory) Consume(ctx context.Context, h Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.done:
			return nil
		case t := <-q.tasks:
			handle(ctx, "memory", q.logger, h, t)
		}
	}
}

// Len returns the number of pending tasks.
func (q *Memory) Len() int { return len(q.tasks) }

func (q *Memory) Close() error {
	q.once.Do(func() { close(q.done) })
	return nil
}
