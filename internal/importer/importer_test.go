package importer_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagbox/core/internal/config"
	"github.com/tagbox/core/internal/importer"
	"github.com/tagbox/core/internal/metainfo"
	"github.com/tagbox/core/internal/store"
	"github.com/tagbox/core/internal/tberr"
)

// setup creates a store, config and importer rooted in a temp directory.
func setup(t *testing.T) (*store.Store, *config.Config, *importer.Importer) {
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

	return s, cfg, importer.New(s, cfg)
}

func writeSource(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func introMeta() *metainfo.ImportMetadata {
	return &metainfo.ImportMetadata{
		Title:   "Intro",
		Authors: []string{"Ada"},
		Tags:    []string{"tech/rust"},
	}
}

func TestImportFile_FullPipeline(t *testing.T) {
	s, cfg, im := setup(t)
	ctx := context.Background()

	src := writeSource(t, "intro.pdf", "pdf-ish content")
	entry, err := im.ImportFile(ctx, src, introMeta())
	require.NoError(t, err)

	assert.Equal(t, "Intro", entry.Title)
	assert.NotEmpty(t, entry.InitialHash)
	assert.Equal(t, entry.InitialHash, entry.CurrentHash)
	assert.Equal(t, []string{"Ada"}, entry.Authors)
	assert.Equal(t, []string{"tech/rust"}, entry.Tags)

	// One file row, one FTS row, one create history row.
	n, err := s.CountFiles(ctx, false)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	has, err := s.HasFTSRow(ctx, entry.ID)
	require.NoError(t, err)
	assert.True(t, has)

	creates, err := s.CountHistory(ctx, entry.ID, store.OpCreate)
	require.NoError(t, err)
	assert.EqualValues(t, 1, creates)

	// The tag chain tech -> tech/rust exists.
	tags, err := s.ListTags(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 2)

	// The file landed in the library.
	onDisk := filepath.Join(cfg.LibraryPath(), filepath.FromSlash(entry.RelativePath))
	_, err = os.Stat(onDisk)
	assert.NoError(t, err, "imported file should exist at %s", onDisk)
	// Copy mode leaves the source in place.
	_, err = os.Stat(src)
	assert.NoError(t, err)
}

func TestImportFile_DuplicateHashRejected(t *testing.T) {
	s, _, im := setup(t)
	ctx := context.Background()

	src := writeSource(t, "intro.pdf", "identical content")
	first, err := im.ImportFile(ctx, src, introMeta())
	require.NoError(t, err)

	second := writeSource(t, "copy.pdf", "identical content")
	_, err = im.ImportFile(ctx, second, introMeta())
	var dup *tberr.DuplicateHashError
	require.ErrorAs(t, err, &dup)

	n, err := s.CountFiles(ctx, true)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "duplicate import must not add a row")

	creates, err := s.CountHistory(ctx, first.ID, store.OpCreate)
	require.NoError(t, err)
	assert.EqualValues(t, 1, creates, "no create row for the rejected attempt")
}

func TestImportFile_CollisionGetsSuffix(t *testing.T) {
	_, _, im := setup(t)
	ctx := context.Background()

	a := writeSource(t, "one.txt", "content a")
	b := writeSource(t, "one.txt", "content b")

	// Same metadata, same templates: identical generated paths.
	meta := &metainfo.ImportMetadata{Title: "Same Title"}
	first, err := im.ImportFile(ctx, a, meta)
	require.NoError(t, err)
	second, err := im.ImportFile(ctx, b, meta)
	require.NoError(t, err)

	assert.NotEqual(t, first.RelativePath, second.RelativePath)
	assert.Contains(t, second.RelativePath, second.InitialHash[:8],
		"collision is resolved with a fingerprint suffix")
}

func TestImportFile_TooManyCategorySegments(t *testing.T) {
	_, _, im := setup(t)

	src := writeSource(t, "deep.txt", "content")
	_, err := im.ImportFile(context.Background(), src, &metainfo.ImportMetadata{
		Title: "Deep", Category: "a/b/c/d",
	})
	require.ErrorIs(t, err, tberr.ErrConfigError)
}

func TestImportFile_ZeroByteFile(t *testing.T) {
	_, _, im := setup(t)

	src := writeSource(t, "empty.txt", "")
	entry, err := im.ImportFile(context.Background(), src, &metainfo.ImportMetadata{Title: "Empty"})
	require.NoError(t, err)
	assert.EqualValues(t, 0, entry.Size)
	assert.NotEmpty(t, entry.InitialHash, "zero-byte files hash to the algorithm's empty digest")
}

func TestImportFile_MoveModeRemovesSource(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Database.Path = filepath.Join(dir, "meta.db")
	cfg.Storage.LibraryPath = filepath.Join(dir, "files")
	cfg.Import.CopyMode = config.CopyModeMove
	require.NoError(t, cfg.Validate())

	s, err := store.Open(cfg.DatabasePath(), store.Options{})
	require.NoError(t, err)
	defer s.Close()
	_, err = s.Bootstrap(context.Background())
	require.NoError(t, err)
	im := importer.New(s, cfg)

	src := writeSource(t, "moved.txt", "content")
	entry, err := im.ImportFile(context.Background(), src, &metainfo.ImportMetadata{Title: "Moved"})
	require.NoError(t, err)

	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err), "move mode removes the source")
	_, err = os.Stat(filepath.Join(cfg.LibraryPath(), filepath.FromSlash(entry.RelativePath)))
	assert.NoError(t, err)
}

func TestImportFiles_BatchPartialFailure(t *testing.T) {
	s, _, im := setup(t)
	ctx := context.Background()

	good := writeSource(t, "good.txt", "good content")
	missing := filepath.Join(t.TempDir(), "missing.txt")

	results := im.ImportFiles(ctx, []string{good, missing})
	require.Len(t, results, 2)

	assert.NoError(t, results[0].Err)
	require.NotNil(t, results[0].Entry)

	require.Error(t, results[1].Err)
	var ioErr *tberr.IOFailureError
	assert.True(t, errors.As(results[1].Err, &ioErr))

	n, err := s.CountFiles(ctx, false)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "the failing item must not abort the batch")
}

func TestImportFile_MetadataExtractedWhenEmpty(t *testing.T) {
	_, _, im := setup(t)

	dir := t.TempDir()
	src := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(src, []byte("body"), 0644))
	sidecar := filepath.Join(dir, "notes.json")
	require.NoError(t, os.WriteFile(sidecar, []byte(`{"title": "Sidecar Title"}`), 0644))

	entry, err := im.ImportFile(context.Background(), src, nil)
	require.NoError(t, err)
	assert.Equal(t, "Sidecar Title", entry.Title)
}
