// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"errors"

	"github.com/pdiddy/metasearch/internal/store"
)

var (
	// ErrNotFound is returned for a missing search or provider.
	ErrNotFound = store.ErrNotFound

	// ErrForbidden is returned when the caller does not own the entity.
	ErrForbidden = errors.New("forbidden")

	// ErrEmptyQuery is returned when a search has no query text.
	ErrEmptyQuery = errors.New("query is empty")

	// ErrNotReady is returned when results are requested before the search
	// reached a ready status.
	ErrNotReady = errors.New("search is not ready")

	// ErrWaitTimeout is returned by WaitReady when the wait elapses first.
	ErrWaitTimeout = errors.New("timed out waiting for search")

	// ErrStoreRequired and ErrQueueRequired guard New.
	ErrStoreRequired = errors.New("store is required")
	ErrQueueRequired = errors.New("queue is required")
)
