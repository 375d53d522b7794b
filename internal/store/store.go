// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists providers, searches and results in SQLite. Each
// entity is stored as a JSON document next to the columns used for
// filtering; results cascade with their search.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/metasearch/pkg/types"
)

// ErrNotFound is returned when an entity does not exist.
var ErrNotFound = errors.New("not found")

// SQLite is the sqlite-backed store.
type SQLite struct {
	db *sql.DB
}

// Open opens or creates the database at path and creates the schema if it
// does not exist.
func Open(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Workers commit concurrently; one connection serializes writers.
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS providers (
			id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			name TEXT NOT NULL,
			shared INTEGER NOT NULL DEFAULT 0,
			data TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS searches (
			id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			status TEXT NOT NULL,
			generation INTEGER NOT NULL DEFAULT 0,
			data TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_searches_owner ON searches(owner)`,
		`CREATE INDEX IF NOT EXISTS idx_searches_status ON searches(status)`,
		`CREATE TABLE IF NOT EXISTS results (
			id TEXT PRIMARY KEY,
			search_id TEXT NOT NULL REFERENCES searches(id) ON DELETE CASCADE,
			provider_id TEXT NOT NULL,
			generation INTEGER NOT NULL,
			data TEXT NOT NULL,
			UNIQUE(search_id, provider_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_results_search_id ON results(search_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// timestampLayout is fixed-width so stored timestamps sort as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

func timestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// --- Providers ---

// SaveProvider inserts or replaces a provider.
func (s *SQLite) SaveProvider(ctx context.Context, p *types.Provider) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding provider %s: %w", p.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO providers (id, owner, name, shared, data, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET owner=excluded.owner, name=excluded.name,
		   shared=excluded.shared, data=excluded.data, updated_at=excluded.updated_at`,
		p.ID, p.Owner, p.Name, p.Shared, string(data), timestamp(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("saving provider %s: %w", p.ID, err)
	}
	return nil
}

// GetProvider loads one provider.
func (s *SQLite) GetProvider(ctx context.Context, id string) (*types.Provider, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM providers WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("provider %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading provider %s: %w", id, err)
	}
	var p types.Provider
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("decoding provider %s: %w", id, err)
	}
	return &p, nil
}

// ListProviders returns the providers visible to owner (their own plus
// shared ones) ordered by name. An empty owner lists every provider.
func (s *SQLite) ListProviders(ctx context.Context, owner string) ([]*types.Provider, error) {
	q := `SELECT data FROM providers`
	var args []any
	if owner != "" {
		q += ` WHERE owner = ? OR shared = 1`
		args = append(args, owner)
	}
	q += ` ORDER BY name, id`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing providers: %w", err)
	}
	defer rows.Close()

	var out []*types.Provider
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning provider: %w", err)
		}
		var p types.Provider
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, fmt.Errorf("decoding provider: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// DeleteProvider removes a provider. Results that reference it are kept.
func (s *SQLite) DeleteProvider(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "providers", id)
}

// --- Searches ---

// SearchFilter narrows ListSearches. Empty fields match everything.
type SearchFilter struct {
	Owner  string
	Status types.SearchStatus
}

// CreateSearch inserts a new search.
func (s *SQLite) CreateSearch(ctx context.Context, sr *types.Search) error {
	data, err := json.Marshal(sr)
	if err != nil {
		return fmt.Errorf("encoding search %s: %w", sr.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO searches (id, owner, status, generation, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sr.ID, sr.Owner, string(sr.Status), sr.Generation, string(data), timestamp(sr.CreatedAt), timestamp(sr.UpdatedAt))
	if err != nil {
		return fmt.Errorf("creating search %s: %w", sr.ID, err)
	}
	return nil
}

// UpdateSearch stores the current state of an existing search.
func (s *SQLite) UpdateSearch(ctx context.Context, sr *types.Search) error {
	data, err := json.Marshal(sr)
	if err != nil {
		return fmt.Errorf("encoding search %s: %w", sr.ID, err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE searches SET owner = ?, status = ?, generation = ?, data = ?, updated_at = ? WHERE id = ?`,
		sr.Owner, string(sr.Status), sr.Generation, string(data), timestamp(sr.UpdatedAt), sr.ID)
	if err != nil {
		return fmt.Errorf("updating search %s: %w", sr.ID, err)
	}
	return affected(res, "search", sr.ID)
}

// GetSearch loads one search.
func (s *SQLite) GetSearch(ctx context.Context, id string) (*types.Search, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM searches WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("search %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading search %s: %w", id, err)
	}
	var sr types.Search
	if err := json.Unmarshal([]byte(data), &sr); err != nil {
		return nil, fmt.Errorf("decoding search %s: %w", id, err)
	}
	return &sr, nil
}

// ListSearches returns searches matching f, newest first.
func (s *SQLite) ListSearches(ctx context.Context, f SearchFilter) ([]*types.Search, error) {
	q := `SELECT data FROM searches WHERE 1=1`
	var args []any
	if f.Owner != "" {
		q += ` AND owner = ?`
		args = append(args, f.Owner)
	}
	if f.Status != "" {
		q += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	q += ` ORDER BY created_at DESC, id`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing searches: %w", err)
	}
	defer rows.Close()

	var out []*types.Search
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning search: %w", err)
		}
		var sr types.Search
		if err := json.Unmarshal([]byte(data), &sr); err != nil {
			return nil, fmt.Errorf("decoding search: %w", err)
		}
		out = append(out, &sr)
	}
	return out, rows.Err()
}

// DeleteSearch removes a search and, by cascade, its results.
func (s *SQLite) DeleteSearch(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "searches", id)
}

// --- Results ---

// ListResults returns the results of a search in insertion order.
func (s *SQLite) ListResults(ctx context.Context, searchID string) ([]*types.Result, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM results WHERE search_id = ? ORDER BY rowid`, searchID)
	if err != nil {
		return nil, fmt.Errorf("listing results of %s: %w", searchID, err)
	}
	defer rows.Close()

	var out []*types.Result
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		var r types.Result
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("decoding result: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// CommitResult stores a provider's result, replacing any previous result of
// the same provider, only if its search still exists and is on the result's
// generation. It reports whether the result was written.
func (s *SQLite) CommitResult(ctx context.Context, r *types.Result) (bool, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return false, fmt.Errorf("encoding result %s: %w", r.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var current int64
	err = tx.QueryRowContext(ctx, `SELECT generation FROM searches WHERE id = ?`, r.SearchID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("loading generation of %s: %w", r.SearchID, err)
	}
	if current != r.Generation {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM results WHERE search_id = ? AND provider_id = ?`, r.SearchID, r.ProviderID); err != nil {
		return false, fmt.Errorf("deleting previous result: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO results (id, search_id, provider_id, generation, data) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.SearchID, r.ProviderID, r.Generation, string(data)); err != nil {
		return false, fmt.Errorf("committing result %s: %w", r.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing result %s: %w", r.ID, err)
	}
	return true, nil
}

// ReplaceResults atomically swaps all results of a search for results.
func (s *SQLite) ReplaceResults(ctx context.Context, searchID string, results []*types.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM results WHERE search_id = ?`, searchID); err != nil {
		return fmt.Errorf("deleting results of %s: %w", searchID, err)
	}
	for _, r := range results {
		r.SearchID = searchID
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encoding result %s: %w", r.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO results (id, search_id, provider_id, generation, data) VALUES (?, ?, ?, ?, ?)`,
			r.ID, searchID, r.ProviderID, r.Generation, string(data)); err != nil {
			return fmt.Errorf("inserting result %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// RecordRef addresses one record of a stored result.
type RecordRef struct {
	ResultID string
	Rank     int
}

// MarkRead sets Read on the referenced records and returns how many
// changed. Marking an already-read record is a no-op.
func (s *SQLite) MarkRead(ctx context.Context, refs []RecordRef) (int, error) {
	byResult := make(map[string]map[int]bool)
	for _, ref := range refs {
		if byResult[ref.ResultID] == nil {
			byResult[ref.ResultID] = make(map[int]bool)
		}
		byResult[ref.ResultID][ref.Rank] = true
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	changed := 0
	for id, ranks := range byResult {
		var data string
		err := tx.QueryRowContext(ctx, `SELECT data FROM results WHERE id = ?`, id).Scan(&data)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("loading result %s: %w", id, err)
		}
		var r types.Result
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return 0, fmt.Errorf("decoding result %s: %w", id, err)
		}
		n := 0
		for i := range r.Records {
			if ranks[r.Records[i].Rank] && !r.Records[i].Read {
				r.Records[i].Read = true
				n++
			}
		}
		if n == 0 {
			continue
		}
		out, err := json.Marshal(&r)
		if err != nil {
			return 0, fmt.Errorf("encoding result %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE results SET data = ? WHERE id = ?`, string(out), id); err != nil {
			return 0, fmt.Errorf("updating result %s: %w", id, err)
		}
		changed += n
	}
	return changed, tx.Commit()
}

func (s *SQLite) deleteByID(ctx context.Context, table, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting %s %s: %w", table, id, err)
	}
	return affected(res, table, id)
}

func affected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}
