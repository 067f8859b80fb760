package validate_test

import (
	"context"
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
	"github.com/tagbox/core/internal/validate"
)

type fixture struct {
	store     *store.Store
	cfg       *config.Config
	importer  *importer.Importer
	validator *validate.Validator
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
	require.NoError(t, validate.RecordConfig(context.Background(), s, cfg))

	return &fixture{
		store:     s,
		cfg:       cfg,
		importer:  importer.New(s, cfg),
		validator: validate.New(s, cfg),
	}
}

func (f *fixture) importDoc(t *testing.T, name, content string) *store.FileEntry {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	entry, err := f.importer.ImportFile(context.Background(), path,
		&metainfo.ImportMetadata{Title: "Title " + name})
	require.NoError(t, err)
	return entry
}

func TestValidate_CleanLibrary(t *testing.T) {
	f := setup(t)
	f.importDoc(t, "one.txt", "content one")
	f.importDoc(t, "two.txt", "content two")

	report, err := f.validator.ValidateFilesInPath(context.Background(), "", true, validate.ModeReportOnly)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Checked)
	assert.Empty(t, report.Issues)
}

func TestValidate_MissingFile(t *testing.T) {
	f := setup(t)
	entry := f.importDoc(t, "one.txt", "content")

	abs := filepath.Join(f.cfg.LibraryPath(), filepath.FromSlash(entry.RelativePath))
	require.NoError(t, os.Remove(abs))

	report, err := f.validator.ValidateFilesInPath(context.Background(), "", true, validate.ModeReportOnly)
	require.NoError(t, err)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, validate.IssueMissing, report.Issues[0].Kind)
	assert.Equal(t, entry.ID, report.Issues[0].FileID)
}

func TestValidate_DriftReportOnly(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	entry := f.importDoc(t, "one.txt", "original")

	abs := filepath.Join(f.cfg.LibraryPath(), filepath.FromSlash(entry.RelativePath))
	require.NoError(t, os.WriteFile(abs, []byte("tampered"), 0644))

	report, err := f.validator.ValidateFilesInPath(ctx, "", true, validate.ModeReportOnly)
	require.NoError(t, err)
	require.Len(t, report.Issues, 1)
	issue := report.Issues[0]
	assert.Equal(t, validate.IssueDrifted, issue.Kind)
	assert.Equal(t, entry.CurrentHash, issue.OldHash)
	assert.NotEqual(t, issue.OldHash, issue.NewHash)
	assert.False(t, issue.Repaired)

	// Report-only leaves the database untouched.
	got, err := f.store.GetFile(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.CurrentHash, got.CurrentHash)
}

func TestValidate_DriftRepair(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	entry := f.importDoc(t, "one.txt", "original")

	abs := filepath.Join(f.cfg.LibraryPath(), filepath.FromSlash(entry.RelativePath))
	require.NoError(t, os.WriteFile(abs, []byte("tampered"), 0644))

	report, err := f.validator.ValidateFilesInPath(ctx, "", true, validate.ModeRepair)
	require.NoError(t, err)
	require.Len(t, report.Issues, 1)
	assert.True(t, report.Issues[0].Repaired)

	got, err := f.store.GetFile(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, report.Issues[0].NewHash, got.CurrentHash)
	assert.Equal(t, entry.InitialHash, got.InitialHash, "repair never touches initial_hash")

	updates, err := f.store.CountHistory(ctx, entry.ID, store.OpUpdate)
	require.NoError(t, err)
	assert.EqualValues(t, 1, updates, "repair records the drift in history")
}

func TestCheckConfigCompatibility(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.validator.CheckConfigCompatibility(ctx))

	// Changing the hash algorithm after initialization is a hard drift.
	f.cfg.Hash.Algorithm = "sha256"
	err := f.validator.CheckConfigCompatibility(ctx)
	var drift *tberr.ConfigDriftError
	require.ErrorAs(t, err, &drift)
	assert.Equal(t, store.KeyHashAlgorithm, drift.Key)
	assert.Equal(t, "sha256", drift.Configured)
}

func TestTemplateDrift(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	drifts, err := f.validator.TemplateDrift(ctx)
	require.NoError(t, err)
	assert.Empty(t, drifts)

	f.cfg.Import.Paths.ClassifyTemplate = "{year}/{category1}/{filename}"
	drifts, err = f.validator.TemplateDrift(ctx)
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	assert.Equal(t, store.KeyClassifyTmpl, drifts[0].Key)
}
