// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pdiddy/metasearch/internal/metrics"
)

// pollTimeout bounds one BRPOP so Consume notices cancellation.
var pollTimeout = time.Second

// Redis is a queue on a Redis list: LPUSH to enqueue, BRPOP to consume.
// Several worker processes may consume the same list.
type Redis struct {
	client *redis.Client
	key    string
	logger *slog.Logger
}

// NewRedis connects to the redis:// URL and uses key as the task list.
func NewRedis(url, key string, logger *slog.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return NewRedisWithClient(redis.NewClient(opts), key, logger), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, key string, logger *slog.Logger) *Redis {
	if key == "" {
		key = "metasearch:tasks"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{
		client: client,
		key:    key,
		logger: logger.With("component", "queue", "backend", "redis"),
	}
}

func (q *Redis) Enqueue(ctx context.Context, t Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encoding task: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("enqueueing task for %s: %w", t.SearchID, err)
	}
	metrics.QueueTasksTotal.WithLabelValues("redis", "enqueue").Inc()
	return nil
}

// Consume pops tasks until ctx is done. Undecodable payloads are logged
// and dropped.
func (q *Redis) Consume(ctx context.Context, h Handler) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		vals, err := q.client.BRPop(ctx, pollTimeout, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("popping task: %w", err)
		}
		// vals is [key, payload].
		var t Task
		if err := json.Unmarshal([]byte(vals[1]), &t); err != nil {
			q.logger.Warn("dropping malformed task", "payload", vals[1], "err", err)
			continue
		}
		handle(ctx, "redis", q.logger, h, t)
	}
}

// Len returns the number of pending tasks.
func (q *Redis) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

func (q *Redis) Close() error {
	return q.client.Close()
}
