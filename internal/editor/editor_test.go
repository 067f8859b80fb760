package editor_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagbox/core/internal/config"
	"github.com/tagbox/core/internal/editor"
	"github.com/tagbox/core/internal/hash"
	"github.com/tagbox/core/internal/importer"
	"github.com/tagbox/core/internal/metainfo"
	"github.com/tagbox/core/internal/store"
	"github.com/tagbox/core/internal/tberr"
)

type fixture struct {
	store    *store.Store
	cfg      *config.Config
	importer *importer.Importer
	editor   *editor.Editor
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

func strptr(s string) *string { return &s }

func TestUpdate_FieldAndProjection(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	entry := f.importDoc(t, "doc.txt", "content", &metainfo.ImportMetadata{Title: "Old Title"})

	require.NoError(t, f.editor.Update(ctx, entry.ID, &store.FileUpdate{
		Title:   strptr("New Title"),
		Summary: strptr("fresh summary"),
		Authors: []string{"Ada"},
		Tags:    []string{"tech/go"},
	}))

	got, err := f.store.GetFile(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "New Title", got.Title)
	assert.Equal(t, "fresh summary", got.Summary)
	assert.Equal(t, []string{"Ada"}, got.Authors)
	assert.Equal(t, []string{"tech/go"}, got.Tags)
	assert.Equal(t, entry.InitialHash, got.InitialHash, "metadata updates never touch hashes")

	updates, err := f.store.CountHistory(ctx, entry.ID, store.OpUpdate)
	require.NoError(t, err)
	assert.EqualValues(t, 1, updates)
}

func TestUpdate_EmptyTitleRejected(t *testing.T) {
	f := setup(t)
	entry := f.importDoc(t, "doc.txt", "content", &metainfo.ImportMetadata{Title: "Title"})

	err := f.editor.Update(context.Background(), entry.ID, &store.FileUpdate{Title: strptr("  ")})
	require.ErrorIs(t, err, tberr.ErrConfigError)
}

func TestUpdateField_YearAndClear(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	entry := f.importDoc(t, "doc.txt", "content", &metainfo.ImportMetadata{Title: "Title"})

	require.NoError(t, f.editor.UpdateField(ctx, entry.ID, "year", "2024"))
	got, err := f.store.GetFile(ctx, entry.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Year)
	assert.Equal(t, 2024, *got.Year)

	require.NoError(t, f.editor.UpdateField(ctx, entry.ID, "year", ""))
	got, err = f.store.GetFile(ctx, entry.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Year)

	require.ErrorIs(t, f.editor.UpdateField(ctx, entry.ID, "year", "abc"), tberr.ErrConfigError)
	require.ErrorIs(t, f.editor.UpdateField(ctx, entry.ID, "bogus", "x"), tberr.ErrConfigError)
}

func TestRecordAccess_LedgerMatchesCounter(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	entry := f.importDoc(t, "doc.txt", "content", &metainfo.ImportMetadata{Title: "Title"})

	for range 5 {
		require.NoError(t, f.editor.RecordAccess(ctx, entry.ID))
	}

	stats, err := f.store.Access(ctx, entry.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 5, stats.AccessCount)

	rows, err := f.store.CountHistory(ctx, entry.ID, store.OpAccess)
	require.NoError(t, err)
	assert.Equal(t, stats.AccessCount, rows)

	require.ErrorIs(t, f.editor.RecordAccess(ctx, "missing"), tberr.ErrFileNotFound)
}

func TestUpdateFileHash_RecordsDriftKeepsInitial(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	entry := f.importDoc(t, "doc.txt", "original content", &metainfo.ImportMetadata{Title: "Title"})

	abs := filepath.Join(f.cfg.LibraryPath(), filepath.FromSlash(entry.RelativePath))
	require.NoError(t, os.WriteFile(abs, []byte("tampered content"), 0644))

	require.NoError(t, f.editor.UpdateFileHash(ctx, entry.ID))

	got, err := f.store.GetFile(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.InitialHash, got.InitialHash, "initial_hash is immutable")
	assert.NotEqual(t, got.InitialHash, got.CurrentHash)

	want, err := hash.File(abs, f.cfg.HashAlgorithm())
	require.NoError(t, err)
	assert.Equal(t, want, got.CurrentHash)
}

func TestMoveFile_FollowsMetadata(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	entry := f.importDoc(t, "doc.txt", "content", &metainfo.ImportMetadata{
		Title: "Title", Category: "alpha",
	})

	// Changing the category changes the classify expansion.
	require.NoError(t, f.editor.UpdateField(ctx, entry.ID, "category1", "beta"))
	require.NoError(t, f.editor.MoveFile(ctx, entry.ID))

	got, err := f.store.GetFile(ctx, entry.ID)
	require.NoError(t, err)
	assert.NotEqual(t, entry.RelativePath, got.RelativePath)
	assert.Contains(t, got.RelativePath, "beta/")

	_, err = os.Stat(filepath.Join(f.cfg.LibraryPath(), filepath.FromSlash(got.RelativePath)))
	assert.NoError(t, err, "file moved on disk")
	_, err = os.Stat(filepath.Join(f.cfg.LibraryPath(), filepath.FromSlash(entry.RelativePath)))
	assert.True(t, os.IsNotExist(err), "old location vacated")

	moves, err := f.store.CountHistory(ctx, entry.ID, store.OpMove)
	require.NoError(t, err)
	assert.EqualValues(t, 1, moves)
}

func TestRebuild_ReportThenApply(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	year := 2024
	entry := f.importDoc(t, "doc.txt", "content", &metainfo.ImportMetadata{
		Title: "Title", Category: "tech", Year: &year,
	})

	// Change the classify template; the file's path is now stale.
	f.cfg.Import.Paths.ClassifyTemplate = "{year}/{category1}/{filename}"

	report, err := f.editor.Rebuild(ctx, "", false, 2)
	require.NoError(t, err)
	require.Len(t, report, 1, "one move per affected file")
	assert.Equal(t, entry.RelativePath, report[0].From)
	assert.Contains(t, report[0].To, "2024/tech/")

	// Report mode must not have changed anything.
	got, err := f.store.GetFile(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.RelativePath, got.RelativePath)

	applied, err := f.editor.Rebuild(ctx, "", true, 2)
	require.NoError(t, err)
	require.Len(t, applied, 1)
	require.NoError(t, applied[0].Err)

	got, err = f.store.GetFile(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, applied[0].To, got.RelativePath)
	assert.Equal(t, entry.InitialHash, got.InitialHash, "rebuild never touches hashes")

	_, err = os.Stat(filepath.Join(f.cfg.LibraryPath(), filepath.FromSlash(got.RelativePath)))
	assert.NoError(t, err)

	// A second rebuild finds nothing to do.
	again, err := f.editor.Rebuild(ctx, "", false, 2)
	require.NoError(t, err)
	assert.Empty(t, again)
}
