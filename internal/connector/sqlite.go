// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package connector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/metasearch/internal/mapping"
	"github.com/pdiddy/metasearch/internal/metrics"
	"github.com/pdiddy/metasearch/pkg/types"
)

// sqliteConnector queries a local sqlite database. The provider URL is the
// database path and the query template is a SQL statement:
//
//	SELECT title, abstract, link FROM docs WHERE abstract LIKE {query_string} {sort} LIMIT {limit}
//
// {query_string} becomes a bound LIKE parameter matching the query as a
// literal substring, {limit} the provider's results_per_query, and {sort}
// the DATE_SORT or RELEVANCY_SORT mapping.
type sqliteConnector struct {
	cfg    types.ConnectorConfig
	logger *slog.Logger
}

func newSqlite3(cfg types.ConnectorConfig, o options) Connector {
	return &sqliteConnector{cfg: cfg, logger: o.logger}
}

func (c *sqliteConnector) Name() string { return "Sqlite3" }

func (c *sqliteConnector) Execute(ctx context.Context, req Request) Outcome {
	p := req.Provider
	out := Outcome{Status: types.ResultQuerying}

	stmt, args := bindSQL(p, req.Query, req.Sort)
	out.QueryToProvider = stmt
	if !ValidateQuery(stmt) {
		return out.fail(types.ResultErrConfiguration, fmt.Errorf("unbound placeholders in statement %s", stmt))
	}

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	items, err := queryRows(ctx, p.URL, stmt, args)
	metrics.ProviderRequestDuration.WithLabelValues(c.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		c.logger.Warn("sqlite query failed", "provider", p.Name, "err", err)
		if errors.Is(err, context.DeadlineExceeded) {
			return out.fail(types.ResultErrTimeout, err)
		}
		return out.fail(types.ResultErrTransport, err)
	}

	pg, err := mapping.Normalize(items, nil, p.ResultMappings)
	if err != nil {
		return out.fail(types.ResultErrMapping, err)
	}
	for i, r := range pg.Records {
		r.Rank = i + 1
		out.Records = append(out.Records, r)
	}
	out.Found = len(out.Records)
	return finish(out, p)
}

func bindSQL(p types.Provider, query, sort string) (string, []any) {
	stmt := p.QueryTemplate
	for k, v := range p.QueryMappings {
		if isControlMapping(k) {
			continue
		}
		stmt = strings.ReplaceAll(stmt, "{"+k+"}", v)
	}

	sortFrag := p.QueryMappings[types.MappingRelevancySort]
	if sort == types.SortDate {
		sortFrag = p.QueryMappings[types.MappingDateSort]
	}
	stmt = strings.ReplaceAll(stmt, "{sort}", sortFrag)

	limit := p.ResultsPerQuery
	if limit <= 0 {
		limit = PageSize
	}
	stmt = strings.ReplaceAll(stmt, "{limit}", strconv.Itoa(limit))

	n := strings.Count(stmt, "{query_string}")
	stmt = strings.ReplaceAll(stmt, "{query_string}", `? ESCAPE '\'`)
	pattern := "%" + likeEscaper.Replace(query) + "%"
	args := make([]any, n)
	for i := range args {
		args[i] = pattern
	}
	return stmt, args
}

// likeEscaper neutralizes LIKE wildcards in user input.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func queryRows(ctx context.Context, path, stmt string, args []any) ([]any, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", path, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var items []any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		item := make(map[string]any, len(cols))
		for i, col := range cols {
			switch v := vals[i].(type) {
			case []byte:
				item[col] = string(v)
			case time.Time:
				item[col] = v.Format(time.RFC3339)
			default:
				item[col] = v
			}
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
