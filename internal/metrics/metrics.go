// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics provides Prometheus metrics for the search engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "metasearch"

var (
	// SearchesTotal counts searches reaching a terminal status.
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Total number of searches by terminal status",
		},
		[]string{"status"},
	)

	// DispatchesTotal counts provider work units by outcome.
	DispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Total number of provider dispatches by result status",
		},
		[]string{"provider", "status"},
	)

	// ProviderRequestDuration measures one provider page request.
	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Duration of provider requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"connector"},
	)

	// PostProcessingDuration measures deduplication and scoring per search.
	PostProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "post_processing_duration_seconds",
			Help:      "Duration of result post-processing in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"processor"},
	)

	// StaleCompletionsTotal counts work units discarded after a rerun,
	// update, or destroy superseded their dispatch.
	StaleCompletionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_completions_total",
			Help:      "Total number of provider completions discarded as stale",
		},
	)

	// QueueTasksTotal counts tasks moved through the task queue.
	QueueTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_tasks_total",
			Help:      "Total number of queue operations",
		},
		[]string{"backend", "operation"},
	)
)

// Handler serves the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
