package engine_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagbox/core/internal/config"
	"github.com/tagbox/core/internal/engine"
	"github.com/tagbox/core/internal/metainfo"
	"github.com/tagbox/core/internal/tberr"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Database.Path = filepath.Join(dir, "meta.db")
	cfg.Storage.LibraryPath = filepath.Join(dir, "files")
	return cfg
}

func TestNew_BootstrapsAndRecordsConfig(t *testing.T) {
	cfg := testConfig(t)

	e, err := engine.New(cfg)
	require.NoError(t, err)
	defer e.Close()

	// Compatibility check passes against the freshly recorded config.
	require.NoError(t, e.CheckConfigCompatibility(context.Background()))
}

func TestNew_ReopenExistingLibrary(t *testing.T) {
	cfg := testConfig(t)

	e, err := engine.New(cfg)
	require.NoError(t, err)

	src := filepath.Join(t.TempDir(), "doc.txt")
	require.NoError(t, os.WriteFile(src, []byte("body"), 0644))
	entry, err := e.ImportFile(context.Background(), src, &metainfo.ImportMetadata{Title: "Doc"})
	require.NoError(t, err)
	require.NoError(t, e.Close())

	reopened, err := engine.New(cfg)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetFile(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "Doc", got.Title)
}

func TestNew_InvalidConfigRejected(t *testing.T) {
	cfg := testConfig(t)
	cfg.Import.Paths.RenameTemplate = "{bogus}"
	_, err := engine.New(cfg)
	require.ErrorIs(t, err, tberr.ErrConfigError,
		"config failures carry the taxonomy's ConfigError kind")
}

func TestGetFilePath_Absolute(t *testing.T) {
	cfg := testConfig(t)
	e, err := engine.New(cfg)
	require.NoError(t, err)
	defer e.Close()

	src := filepath.Join(t.TempDir(), "doc.txt")
	require.NoError(t, os.WriteFile(src, []byte("body"), 0644))
	entry, err := e.ImportFile(context.Background(), src, &metainfo.ImportMetadata{Title: "Doc"})
	require.NoError(t, err)

	path, err := e.GetFilePath(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(path))
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestInitDatabase_Idempotent(t *testing.T) {
	cfg := testConfig(t)
	path := cfg.DatabasePath()
	require.NoError(t, engine.InitDatabase(path, cfg))
	require.NoError(t, engine.InitDatabase(path, cfg))
}
