package search_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagbox/core/internal/config"
	"github.com/tagbox/core/internal/editor"
	"github.com/tagbox/core/internal/importer"
	"github.com/tagbox/core/internal/metainfo"
	"github.com/tagbox/core/internal/search"
	"github.com/tagbox/core/internal/store"
	"github.com/tagbox/core/internal/tberr"
)

// fixture bundles everything an end-to-end search test needs.
type fixture struct {
	store    *store.Store
	cfg      *config.Config
	importer *importer.Importer
	editor   *editor.Editor
	searcher *search.Searcher
}

func setup(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	cfg := &config.Config{}
	cfg.Database.Path = filepath.Join(dir, "meta.db")
	cfg.Storage.LibraryPath = filepath.Join(dir, "files")
	require.NoError(t, cfg.Validate())

	s, err := store.Open(cfg.DatabasePath(), store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	_, err = s.Bootstrap(context.Background())
	require.NoError(t, err)

	return &fixture{
		store:    s,
		cfg:      cfg,
		importer: importer.New(s, cfg),
		editor:   editor.New(s, cfg),
		searcher: search.New(s, cfg),
	}
}

func (f *fixture) importDoc(t *testing.T, name, content string, meta *metainfo.ImportMetadata) *store.FileEntry {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	entry, err := f.importer.ImportFile(context.Background(), path, meta)
	require.NoError(t, err)
	return entry
}

func TestParse_Malformed(t *testing.T) {
	for _, q := range []string{
		`"unterminated`,
		`(no close`,
		`AND`,
		`a AND`,
		`)`,
		`tag:`,
	} {
		_, err := search.Parse(q)
		var iq *tberr.InvalidQueryError
		require.ErrorAs(t, err, &iq, "query %q should fail to parse", q)
		assert.Equal(t, q, iq.Query)
		assert.GreaterOrEqual(t, iq.Position, 0)
		assert.NotEmpty(t, iq.Reason)
	}
}

func TestParse_EmptyQueryMatchesAll(t *testing.T) {
	node, err := search.Parse("   ")
	require.NoError(t, err)
	assert.Nil(t, node)
}

func TestBuild_ParamOrder(t *testing.T) {
	query := "tag:rust AND (author:Ada OR year:2024) -tag:old"
	node, err := search.Parse(query)
	require.NoError(t, err)
	plan, err := search.Build(query, node)
	require.NoError(t, err)

	// Parameters appear in query order; tag clauses contribute the exact
	// value plus its subtree pattern.
	var flat []any
	flat = append(flat, plan.Params...)
	require.Len(t, flat, 6)
	assert.Equal(t, "rust", flat[0])
	assert.Equal(t, "rust/%", flat[1])
	assert.Equal(t, "Ada", flat[2])
	assert.Equal(t, 2024, flat[3])
	assert.Equal(t, "old", flat[4])
	assert.Equal(t, "old/%", flat[5])

	assert.Contains(t, plan.Where, "EXISTS")
	assert.Contains(t, plan.Where, "NOT EXISTS")
}

func TestBuild_YearShapes(t *testing.T) {
	for query, wantParams := range map[string][]any{
		"year:2000..2010": {2000, 2010},
		"year:>2020":      {2020},
		"year:<=1999":     {1999},
		"year:2024":       {2024},
	} {
		node, err := search.Parse(query)
		require.NoError(t, err)
		plan, err := search.Build(query, node)
		require.NoError(t, err, query)
		assert.Equal(t, wantParams, plan.Params, query)
	}

	node, err := search.Parse("year:abc")
	require.NoError(t, err)
	_, err = search.Build("year:abc", node)
	var iq *tberr.InvalidQueryError
	require.ErrorAs(t, err, &iq)
}

func TestBuild_CategoryShapes(t *testing.T) {
	for query, wantParams := range map[string][]any{
		"category:tech":        {"tech", "tech", "tech"},
		"category:tech/rust":   {"tech", "rust"},
		"category:tech/*":      {"tech"},
		"category:tech/rust/*": {"tech", "rust"},
	} {
		node, err := search.Parse(query)
		require.NoError(t, err)
		plan, err := search.Build(query, node)
		require.NoError(t, err, query)
		assert.Equal(t, wantParams, plan.Params, query)
	}

	for _, query := range []string{"category:a/b/c/d", "category://"} {
		node, err := search.Parse(query)
		require.NoError(t, err)
		_, err = search.Build(query, node)
		var iq *tberr.InvalidQueryError
		require.ErrorAs(t, err, &iq, query)
	}
}

func TestSearch_CategoryEndToEnd(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	deep := f.importDoc(t, "a.txt", "aa", &metainfo.ImportMetadata{
		Title: "Deep", Category: "tech/rust",
	})
	shallow := f.importDoc(t, "b.txt", "bb", &metainfo.ImportMetadata{
		Title: "Shallow", Category: "tech",
	})
	f.importDoc(t, "c.txt", "cc", &metainfo.ImportMetadata{
		Title: "Other", Category: "history",
	})

	// Bare value matches any of the three columns.
	result, err := f.searcher.Search(ctx, "category:tech", store.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, result.Entries, 2)

	// Exact multi-segment pins the full path.
	result, err = f.searcher.Search(ctx, "category:tech/rust", store.ListOptions{})
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, deep.ID, result.Entries[0].ID)

	// Hierarchical prefix matches the subtree.
	result, err = f.searcher.Search(ctx, "category:tech/*", store.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, result.Entries, 2)

	// Negating the rust-specific exact form leaves only the shallow file.
	result, err = f.searcher.Search(ctx, "-category:tech/rust category:tech/*", store.ListOptions{})
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, shallow.ID, result.Entries[0].ID)
}

func TestSearch_EndToEnd(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	entry := f.importDoc(t, "intro.pdf", "pdf content", &metainfo.ImportMetadata{
		Title:   "Intro",
		Authors: []string{"Ada"},
		Tags:    []string{"tech/rust"},
	})
	f.importDoc(t, "other.pdf", "different content", &metainfo.ImportMetadata{
		Title:   "Unrelated",
		Authors: []string{"Grace"},
		Tags:    []string{"history"},
	})

	for _, query := range []string{"tag:tech/rust", "author:Ada", "Intro", `"Intro"`} {
		result, err := f.searcher.Search(ctx, query, store.ListOptions{})
		require.NoError(t, err, query)
		require.Len(t, result.Entries, 1, "query %q", query)
		assert.Equal(t, entry.ID, result.Entries[0].ID, "query %q", query)
		assert.EqualValues(t, 1, result.TotalCount)
	}
}

func TestSearch_TagSubtreeAndPrefix(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.importDoc(t, "a.txt", "aa", &metainfo.ImportMetadata{Title: "A", Tags: []string{"tech/rust"}})
	f.importDoc(t, "b.txt", "bb", &metainfo.ImportMetadata{Title: "B", Tags: []string{"tech"}})

	result, err := f.searcher.Search(ctx, "tag:tech", store.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, result.Entries, 2, "tag:tech matches the subtree")

	result, err = f.searcher.Search(ctx, "tag:tech/*", store.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, result.Entries, 1, "tag:tech/* matches only descendants")
}

func TestSearch_EmptyQueryListsLive(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.importDoc(t, "a.txt", "aa", &metainfo.ImportMetadata{Title: "A"})
	b := f.importDoc(t, "b.txt", "bb", &metainfo.ImportMetadata{Title: "B"})
	require.NoError(t, f.editor.SoftDelete(ctx, b.ID, "obsolete"))

	result, err := f.searcher.Search(ctx, "", store.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, result.Entries, 1)

	result, err = f.searcher.Search(ctx, "", store.ListOptions{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Len(t, result.Entries, 2)
}

func TestSearch_SoftDeleteRestoreRoundTrip(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	entry := f.importDoc(t, "intro.txt", "searchable body", &metainfo.ImportMetadata{Title: "Intro"})

	require.NoError(t, f.editor.SoftDelete(ctx, entry.ID, "obsolete"))
	result, err := f.searcher.Search(ctx, "Intro", store.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, result.Entries, "deleted file is absent from search")

	require.NoError(t, f.editor.Restore(ctx, entry.ID))
	result, err = f.searcher.Search(ctx, "Intro", store.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, result.Entries, 1, "restore returns the file to the searchable state")
}

func TestSearch_NegationOnly(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.importDoc(t, "a.txt", "aa", &metainfo.ImportMetadata{Title: "A", Tags: []string{"old"}})
	keep := f.importDoc(t, "b.txt", "bb", &metainfo.ImportMetadata{Title: "B"})

	// Negation-only queries evaluate against the live-file universe.
	result, err := f.searcher.Search(ctx, "-tag:old", store.ListOptions{})
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, keep.ID, result.Entries[0].ID)
}

func TestSearch_NegatedFreeText(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.importDoc(t, "a.txt", "aa", &metainfo.ImportMetadata{Title: "Alpha", Summary: "mentions zebra"})
	keep := f.importDoc(t, "b.txt", "bb", &metainfo.ImportMetadata{Title: "Beta"})

	result, err := f.searcher.Search(ctx, "-zebra", store.ListOptions{})
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, keep.ID, result.Entries[0].ID)
}

func TestSearch_Pagination(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		f.importDoc(t, name+".txt", name+name, &metainfo.ImportMetadata{Title: "Doc " + name})
	}

	result, err := f.searcher.Search(ctx, "", store.ListOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, result.Entries, 2)
	assert.EqualValues(t, 3, result.TotalCount, "total_count disregards paging")

	rest, err := f.searcher.Search(ctx, "", store.ListOptions{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, rest.Entries, 1)
}

func TestQueryDebug(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.importDoc(t, "a.txt", "aa", &metainfo.ImportMetadata{Title: "A", Tags: []string{"rust"}})

	dbg, err := f.searcher.QueryDebug(ctx, "tag:rust AND (author:Ada OR year:2024) -tag:old")
	require.NoError(t, err)
	assert.Contains(t, dbg.SQL, "SELECT")
	assert.GreaterOrEqual(t, dbg.EstimatedRowCount, int64(0))

	// The listed parameters include the query values in order.
	var strs []string
	for _, p := range dbg.Params {
		if s, ok := p.(string); ok {
			strs = append(strs, s)
		}
	}
	assert.Subset(t, strs, []string{"rust", "Ada", "old"})
}

func TestQueryDebug_Malformed(t *testing.T) {
	f := setup(t)
	_, err := f.searcher.QueryDebug(context.Background(), `"broken`)
	var iq *tberr.InvalidQueryError
	require.ErrorAs(t, err, &iq)
}

func TestFuzzySearch_Prefix(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	entry := f.importDoc(t, "rustbook.txt", "body", &metainfo.ImportMetadata{
		Title: "Rustonomicon", Authors: []string{"Steve"},
	})

	result, err := f.searcher.FuzzySearch(ctx, "Rusto", store.ListOptions{})
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, entry.ID, result.Entries[0].ID)
}

func TestFuzzySearch_TrigramSubstring(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	entry := f.importDoc(t, "rustbook.txt", "body", &metainfo.ImportMetadata{
		Title: "Rustonomicon", Authors: []string{"Steve"},
	})
	f.importDoc(t, "other.txt", "body two", &metainfo.ImportMetadata{Title: "Unrelated"})

	// A mid-word fragment has no word prefix to match; the trigram
	// index still finds it.
	result, err := f.searcher.FuzzySearch(ctx, "stonomic", store.ListOptions{})
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, entry.ID, result.Entries[0].ID)
}
