// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/metasearch/internal/mixer"
)

// Snapshot is the on-disk representation of a finished search and its
// mixed results. A snapshot can be reloaded and formatted later without
// querying providers again.
type Snapshot struct {
	Search  SnapshotSearch  `yaml:"search"`
	Config  SnapshotConfig  `yaml:"config"`
	Page    mixer.Page      `yaml:"page"`
	Summary SnapshotSummary `yaml:"summary"`
}

// SnapshotSearch identifies the search.
type SnapshotSearch struct {
	ID        string    `yaml:"id"`
	Query     string    `yaml:"query"`
	Tags      []string  `yaml:"tags,omitempty"`
	Status    string    `yaml:"status"`
	CreatedAt time.Time `yaml:"created_at"`
}

// SnapshotConfig stores the settings that produced the results.
type SnapshotConfig struct {
	Mixer     string   `yaml:"mixer"`
	Processor string   `yaml:"processor"`
	Sort      string   `yaml:"sort"`
	Providers []string `yaml:"providers"`
}

// SnapshotSummary stores result statistics and a timestamp.
type SnapshotSummary struct {
	Total          int       `yaml:"total"`
	Duplicates     int       `yaml:"duplicates"`
	ProviderErrors []string  `yaml:"provider_errors,omitempty"`
	Timestamp      time.Time `yaml:"timestamp"`
}

// Snapshot mixes every non-duplicate record of a ready search into one page.
func (e *Engine) Snapshot(ctx context.Context, id, owner string) (*Snapshot, error) {
	s, err := e.Get(ctx, id, owner)
	if err != nil {
		return nil, err
	}
	results, err := e.store.ListResults(ctx, id)
	if err != nil {
		return nil, err
	}
	total, dups := 0, 0
	for _, r := range results {
		for _, rec := range r.Records {
			total++
			if rec.DuplicateOf != "" {
				dups++
			}
		}
	}
	page, err := e.Mix(ctx, id, owner, "", mixer.Options{PageSize: max(total, 1), Explain: true})
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Search: SnapshotSearch{
			ID:        s.ID,
			Query:     s.QueryString,
			Tags:      s.Tags,
			Status:    string(s.Status),
			CreatedAt: s.CreatedAt,
		},
		Config: SnapshotConfig{
			Mixer:     s.Mixer,
			Processor: s.Processor,
			Sort:      s.Sort,
			Providers: s.Selected,
		},
		Page: page,
		Summary: SnapshotSummary{
			Total:      len(page.Items),
			Duplicates: dups,
			Timestamp:  time.Now().UTC(),
		},
	}
	for _, info := range page.Info {
		if info.Status.IsError() {
			snap.Summary.ProviderErrors = append(snap.Summary.ProviderErrors, fmt.Sprintf("%s: %s", info.Provider, info.Status))
		}
	}
	return snap, nil
}

// WriteSnapshot saves a snapshot to a YAML file.
func WriteSnapshot(path string, snap *Snapshot) error {
	data, err := yaml.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadSnapshot loads a previously saved snapshot from disk.
func ReadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parsing snapshot: %w", err)
	}
	return &snap, nil
}
