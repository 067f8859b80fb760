// Package search implements the query DSL and its execution: a
// hand-written parser (parser.go) produces a logical tree (ast.go), the
// planner (planner.go) renders parameterized SQL, and this file runs the
// built query and hydrates results.
package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/tagbox/core/internal/config"
	"github.com/tagbox/core/internal/store"
	"github.com/tagbox/core/internal/tberr"
)

// Result is one page of matches plus the total disregarding paging.
type Result struct {
	Entries    []store.FileEntry `json:"entries"`
	TotalCount int64             `json:"total_count"`
	Offset     int               `json:"offset"`
	Limit      int               `json:"limit"`
}

// Debug is the operator-tooling view of a built query.
type Debug struct {
	SQL               string `json:"sql"`
	Params            []any  `json:"params"`
	EstimatedRowCount int64  `json:"estimated_row_count"`
}

// Searcher executes DSL queries against one store.
type Searcher struct {
	store *store.Store
	cfg   *config.Config
}

// New creates a searcher over the given store and config.
func New(s *store.Store, cfg *config.Config) *Searcher {
	return &Searcher{store: s, cfg: cfg}
}

// Search parses and executes a DSL query. An empty query matches all
// live files, subject to options. Orderless queries sort by FTS rank
// when the query carries free text, else updated_at descending; id
// ascending breaks every tie so paging is stable.
func (s *Searcher) Search(ctx context.Context, query string, opts store.ListOptions) (*Result, error) {
	root, err := Parse(query)
	if err != nil {
		return nil, err
	}
	plan, err := Build(query, root)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, plan, opts)
}

// FuzzySearch matches a partial input across the projected title,
// authors and tags columns, for autocomplete: word-prefix matches come
// from files_fts, and inputs of three or more characters additionally
// match inside words through the trigram index, so "ustono" still finds
// "Rustonomicon". Falls back to a substring scan over titles when FTS
// is disabled in config.
func (s *Searcher) FuzzySearch(ctx context.Context, partial string, opts store.ListOptions) (*Result, error) {
	partial = strings.TrimSpace(partial)
	if partial == "" {
		return s.Search(ctx, "", opts)
	}
	if !s.cfg.EnableFTS() || !s.cfg.FuzzySearchEnabled() {
		plan := &Plan{
			Where:  "instr(lower(f.title), lower(?)) > 0",
			Params: []any{partial},
		}
		return s.execute(ctx, plan, opts)
	}

	match := fmt.Sprintf("{title authors tags} : %s*", ftsQuote(partial))
	plan := &Plan{
		Where:     "f.rowid IN (SELECT rowid FROM files_fts WHERE files_fts MATCH ?)",
		Params:    []any{match},
		RankMatch: match,
	}
	// The trigram tokenizer needs at least three characters to form a
	// gram; shorter inputs stay prefix-only. Rank ordering joins on the
	// prefix match and would drop trigram-only rows, so the widened
	// query orders by recency instead.
	if len(partial) >= 3 {
		plan.Where = "(" + plan.Where +
			" OR f.rowid IN (SELECT rowid FROM files_trgm WHERE files_trgm MATCH ?))"
		plan.Params = append(plan.Params, ftsQuote(partial))
		plan.RankMatch = ""
	}
	return s.execute(ctx, plan, opts)
}

// QueryDebug returns the SQL, parameters and an estimated row count for
// a DSL query without returning entries. The estimate is the exact live
// count, cheap at embedded scale.
func (s *Searcher) QueryDebug(ctx context.Context, query string) (*Debug, error) {
	root, err := Parse(query)
	if err != nil {
		return nil, err
	}
	plan, err := Build(query, root)
	if err != nil {
		return nil, err
	}

	countSQL, countParams := s.countQuery(plan, store.ListOptions{})
	var n int64
	if err := s.store.DB().QueryRowContext(ctx, countSQL, countParams...).Scan(&n); err != nil {
		return nil, fmt.Errorf("%w: query debug count: %v", tberr.ErrDatabaseError, err)
	}

	pageSQL, pageParams := s.pageQuery(plan, store.ListOptions{Limit: s.cfg.SearchLimit()})
	return &Debug{SQL: pageSQL, Params: pageParams, EstimatedRowCount: n}, nil
}

// execute runs the count and page halves of a plan and hydrates entries.
func (s *Searcher) execute(ctx context.Context, plan *Plan, opts store.ListOptions) (*Result, error) {
	if opts.Limit <= 0 {
		opts.Limit = s.cfg.SearchLimit()
	}

	countSQL, countParams := s.countQuery(plan, opts)
	var total int64
	if err := s.store.DB().QueryRowContext(ctx, countSQL, countParams...).Scan(&total); err != nil {
		return nil, fmt.Errorf("%w: search count: %v", tberr.ErrDatabaseError, err)
	}

	pageSQL, pageParams := s.pageQuery(plan, opts)
	rows, err := s.store.DB().QueryContext(ctx, pageSQL, pageParams...)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", tberr.ErrDatabaseError, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: scan search row: %v", tberr.ErrDatabaseError, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate search rows: %v", tberr.ErrDatabaseError, err)
	}

	entries := make([]store.FileEntry, 0, len(ids))
	for _, id := range ids {
		e, err := s.store.GetFile(ctx, id)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return &Result{Entries: entries, TotalCount: total, Offset: opts.Offset, Limit: opts.Limit}, nil
}

// deletedFilter excludes soft-deleted rows unless the caller opted in.
func deletedFilter(opts store.ListOptions) string {
	if opts.IncludeDeleted {
		return "1 = 1"
	}
	return "f.is_deleted = 0"
}

func (s *Searcher) countQuery(plan *Plan, opts store.ListOptions) (string, []any) {
	sql := fmt.Sprintf(
		"SELECT COUNT(*) FROM files f WHERE %s AND (%s)",
		deletedFilter(opts), plan.Where)
	return sql, plan.Params
}

// pageQuery renders the id-selecting page half with ordering. Rank
// ordering joins the FTS table once more on the combined positive match.
func (s *Searcher) pageQuery(plan *Plan, opts store.ListOptions) (string, []any) {
	order, rankJoin := s.orderFor(plan, opts)

	// Parameters follow placeholder order in the SQL text: the rank
	// join's MATCH comes before the WHERE clause.
	var params []any
	if rankJoin != "" {
		params = append(params, plan.RankMatch)
	}
	params = append(params, plan.Params...)

	sql := fmt.Sprintf(
		"SELECT f.id FROM files f%s WHERE %s AND (%s)%s",
		rankJoin, deletedFilter(opts), plan.Where, order)
	if opts.Limit > 0 {
		sql += " LIMIT ? OFFSET ?"
		params = append(params, opts.Limit, opts.Offset)
	}
	return sql, params
}

// orderFor picks the ORDER BY per the tie-breaking rules: explicit sort
// first; otherwise FTS rank when the query carried free text; otherwise
// updated_at descending. id ascending closes every ordering.
func (s *Searcher) orderFor(plan *Plan, opts store.ListOptions) (order, rankJoin string) {
	useRank := plan.RankMatch != "" && s.cfg.EnableFTS() &&
		(opts.SortBy == "" || opts.SortBy == store.SortRank)
	if useRank {
		rankJoin = " JOIN files_fts ON files_fts.rowid = f.rowid AND files_fts MATCH ?"
		return " ORDER BY files_fts.rank, f.id ASC", rankJoin
	}

	col := "f.updated_at"
	dir := " DESC"
	switch opts.SortBy {
	case store.SortImportedAt:
		col = "f.created_at"
	case store.SortTitle:
		col = "f.title"
	case store.SortYear:
		col = "f.year"
	case store.SortAccessCount:
		col = "(SELECT COALESCE(MAX(access_count), 0) FROM file_access_stats WHERE file_id = f.id)"
	case store.SortUpdatedAt, store.SortRank, "":
		col = "f.updated_at"
	}
	if opts.SortBy != "" && opts.SortBy != store.SortRank && !opts.SortDescending {
		dir = " ASC"
	}
	return " ORDER BY " + col + dir + ", f.id ASC", ""
}
