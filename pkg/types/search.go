// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types holds the data model shared by the engine, the store, and the CLI.
package types

import (
	"fmt"
	"strings"
	"time"
)

// SearchStatus is the lifecycle state of a Search. The string values are
// part of the external contract: clients poll for them.
type SearchStatus string

const (
	StatusNewSearch            SearchStatus = "NEW_SEARCH"
	StatusDispatched           SearchStatus = "DISPATCHED"
	StatusPostResultProcessing SearchStatus = "POST_RESULT_PROCESSING"
	StatusRescoring            SearchStatus = "RESCORING"
	StatusUpdateSearch         SearchStatus = "UPDATE_SEARCH"

	StatusErrNoSearchProviders SearchStatus = "ERR_NO_SEARCHPROVIDERS"
	StatusErrNoResults         SearchStatus = "ERR_NO_RESULTS"
	StatusErrPostProcessing    SearchStatus = "ERR_POST_PROCESSING"
)

const (
	readySuffix = "_READY"
	errPrefix   = "ERR_"
)

// ReadyStatus returns the terminal success status for a mixer tag,
// e.g. "relevancy" becomes RELEVANCY_READY.
func ReadyStatus(mixer string) SearchStatus {
	return SearchStatus(strings.ToUpper(mixer) + readySuffix)
}

// IsReady reports whether results may be mixed and served.
func (s SearchStatus) IsReady() bool { return strings.HasSuffix(string(s), readySuffix) }

// IsError reports whether the search ended in an error state.
func (s SearchStatus) IsError() bool { return strings.HasPrefix(string(s), errPrefix) }

// IsTerminal reports whether no engine work is pending for the search.
func (s SearchStatus) IsTerminal() bool { return s.IsReady() || s.IsError() }

// CanTransition reports whether from → to is an edge of the lifecycle graph.
// Reruns are not edges: they reset the search explicitly.
func CanTransition(from, to SearchStatus) bool {
	switch {
	case from == StatusNewSearch:
		return to == StatusDispatched || to == StatusErrNoSearchProviders
	case from == StatusDispatched:
		return to == StatusPostResultProcessing || to == StatusErrNoResults
	case from == StatusPostResultProcessing, from == StatusRescoring:
		return to.IsReady() || to == StatusErrPostProcessing
	case from == StatusUpdateSearch:
		return to == StatusDispatched
	case from.IsReady():
		return to == StatusRescoring || to == StatusUpdateSearch
	}
	return false
}

// TransitionError is returned when an operation would move a search along
// an edge that does not exist.
type TransitionError struct {
	From SearchStatus
	To   SearchStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid search transition %s -> %s", e.From, e.To)
}

// Search is one federated query and its lifecycle state.
type Search struct {
	ID                   string       `json:"id" yaml:"id"`
	Owner                string       `json:"owner" yaml:"owner"`
	QueryString          string       `json:"query_string" yaml:"query_string"`
	QueryStringProcessed string       `json:"query_string_processed" yaml:"query_string_processed"`
	Tags                 []string     `json:"tags,omitempty" yaml:"tags,omitempty"`
	Providers            []string     `json:"providers,omitempty" yaml:"providers,omitempty"`

	// Selected holds the IDs of the providers the last dispatch chose, in
	// priority order. Providers keeps the caller's request; a rerun selects
	// again from it and from the tags.
	Selected []string `json:"selected,omitempty" yaml:"selected,omitempty"`

	Sort                 string       `json:"sort" yaml:"sort"`
	Status               SearchStatus `json:"status" yaml:"status"`
	Mixer                string       `json:"mixer" yaml:"mixer"`
	Processor            string       `json:"processor" yaml:"processor"`
	ResultsRequested     int          `json:"results_requested" yaml:"results_requested"`
	Messages             []string     `json:"messages,omitempty" yaml:"messages,omitempty"`

	// Generation increments on every dispatch. Work units carry the
	// generation they were started under and are discarded on mismatch.
	Generation int64 `json:"generation" yaml:"generation"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Sort orders understood by connectors.
const (
	SortRelevancy = "relevancy"
	SortDate      = "date"
)

// Transition moves the search to status if the lifecycle graph allows it.
func (s *Search) Transition(to SearchStatus) error {
	if !CanTransition(s.Status, to) {
		return &TransitionError{From: s.Status, To: to}
	}
	s.Status = to
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// AddMessage appends a timestamped message.
func (s *Search) AddMessage(format string, args ...any) {
	ts := time.Now().UTC().Format(time.RFC3339)
	s.Messages = append(s.Messages, fmt.Sprintf("[%s] ", ts)+fmt.Sprintf(format, args...))
}

// ReadyStatus is the status the search reaches when post-processing succeeds.
func (s *Search) ReadyStatus() SearchStatus { return ReadyStatus(s.Mixer) }
