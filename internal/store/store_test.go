package store_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagbox/core/internal/store"
	"github.com/tagbox/core/internal/tberr"
)

// setupStore creates a bootstrapped store in a temp directory.
func setupStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "meta.db"), store.Options{})
	require.NoError(t, err, "opening store")
	t.Cleanup(func() { s.Close() })

	fresh, err := s.Bootstrap(context.Background())
	require.NoError(t, err, "bootstrap")
	require.True(t, fresh, "first bootstrap should initialize")
	return s
}

// insertFile writes a minimal file row with relations inside one
// transaction, the way the importer does.
func insertFile(t *testing.T, s *store.Store, f *store.FileEntry, authors, tags []string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Tx(ctx, func(tx *sql.Tx) error {
		if err := s.InsertFile(ctx, tx, f); err != nil {
			return err
		}
		for _, name := range authors {
			id, err := store.GenID()
			if err != nil {
				return err
			}
			existing, err := s.AuthorByName(ctx, tx, name)
			if err != nil {
				return err
			}
			if existing == nil {
				if err := s.InsertAuthor(ctx, tx, &store.Author{ID: id, Name: name}); err != nil {
					return err
				}
			} else {
				id = existing.ID
			}
			if err := s.LinkFileAuthor(ctx, tx, f.ID, id); err != nil {
				return err
			}
		}
		for _, path := range tags {
			tagID, err := s.UpsertTagChain(ctx, tx, path)
			if err != nil {
				return err
			}
			if err := s.LinkFileTag(ctx, tx, f.ID, tagID); err != nil {
				return err
			}
		}
		return s.Reproject(ctx, tx, f.ID)
	}))
}

func fileEntry(id, hash, path string) *store.FileEntry {
	return &store.FileEntry{
		ID:           id,
		InitialHash:  hash,
		CurrentHash:  hash,
		RelativePath: path,
		Filename:     filepath.Base(path),
		Title:        "Title " + id,
	}
}

func TestBootstrap_Idempotent(t *testing.T) {
	s := setupStore(t)
	fresh, err := s.Bootstrap(context.Background())
	require.NoError(t, err)
	assert.False(t, fresh, "second bootstrap should not re-initialize")

	v, err := s.GetSystemConfig(context.Background(), store.KeySchemaVersion)
	require.NoError(t, err)
	assert.Equal(t, store.SchemaVersion, v)
}

func TestBootstrap_RefusesNewerSchema(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	require.NoError(t, s.SetSystemConfig(ctx, store.KeySchemaVersion, "99.0.0", ""))

	_, err := s.Bootstrap(ctx)
	require.ErrorIs(t, err, tberr.ErrConfigError)
}

func TestInsertFile_DuplicateHash(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	insertFile(t, s, fileEntry("id-1", "hash-a", "a/one.pdf"), nil, nil)

	err := s.Tx(ctx, func(tx *sql.Tx) error {
		return s.InsertFile(ctx, tx, fileEntry("id-2", "hash-a", "a/two.pdf"))
	})
	var dup *tberr.DuplicateHashError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "hash-a", dup.Hash)
}

func TestFTSProjection_FollowsSoftDelete(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	f := fileEntry("id-1", "hash-a", "a/one.pdf")
	insertFile(t, s, f, []string{"Ada"}, []string{"tech/rust"})

	has, err := s.HasFTSRow(ctx, f.ID)
	require.NoError(t, err)
	assert.True(t, has, "live file should have an FTS row")

	require.NoError(t, s.Tx(ctx, func(tx *sql.Tx) error {
		if err := s.SetDeleted(ctx, tx, f.ID, true); err != nil {
			return err
		}
		return s.Reproject(ctx, tx, f.ID)
	}))
	has, err = s.HasFTSRow(ctx, f.ID)
	require.NoError(t, err)
	assert.False(t, has, "deleted file should have no FTS row")

	require.NoError(t, s.Tx(ctx, func(tx *sql.Tx) error {
		if err := s.SetDeleted(ctx, tx, f.ID, false); err != nil {
			return err
		}
		return s.Reproject(ctx, tx, f.ID)
	}))
	has, err = s.HasFTSRow(ctx, f.ID)
	require.NoError(t, err)
	assert.True(t, has, "restored file should regain its FTS row")
}

func TestUpsertTagChain_WiresParents(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	var leafID string
	require.NoError(t, s.Tx(ctx, func(tx *sql.Tx) error {
		var err error
		leafID, err = s.UpsertTagChain(ctx, tx, "tech/rust/async")
		return err
	}))

	tags, err := s.ListTags(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 3)

	byPath := map[string]store.Tag{}
	for _, tag := range tags {
		byPath[tag.Path] = tag
	}
	assert.Nil(t, byPath["tech"].ParentID)
	require.NotNil(t, byPath["tech/rust"].ParentID)
	assert.Equal(t, byPath["tech"].ID, *byPath["tech/rust"].ParentID)
	require.NotNil(t, byPath["tech/rust/async"].ParentID)
	assert.Equal(t, byPath["tech/rust"].ID, *byPath["tech/rust/async"].ParentID)
	assert.Equal(t, leafID, byPath["tech/rust/async"].ID)

	// Upserting again reuses the existing chain.
	require.NoError(t, s.Tx(ctx, func(tx *sql.Tx) error {
		again, err := s.UpsertTagChain(ctx, tx, "tech/rust/async")
		if err != nil {
			return err
		}
		assert.Equal(t, leafID, again)
		return nil
	}))
}

func TestGetFile_HydratesRelations(t *testing.T) {
	s := setupStore(t)

	f := fileEntry("id-1", "hash-a", "a/one.pdf")
	insertFile(t, s, f, []string{"Ada", "Grace"}, []string{"tech/rust", "classics"})

	got, err := s.GetFile(context.Background(), f.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Ada", "Grace"}, got.Authors)
	assert.Equal(t, []string{"classics", "tech/rust"}, got.Tags)
	assert.Equal(t, "hash-a", got.InitialHash)
	assert.GreaterOrEqual(t, got.UpdatedAt, got.CreatedAt)
}

func TestGetFile_NotFound(t *testing.T) {
	s := setupStore(t)
	_, err := s.GetFile(context.Background(), "missing")
	require.ErrorIs(t, err, tberr.ErrFileNotFound)
}

func TestListFiles_ExcludesDeletedByDefault(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	insertFile(t, s, fileEntry("id-1", "hash-a", "a/one.pdf"), nil, nil)
	insertFile(t, s, fileEntry("id-2", "hash-b", "a/two.pdf"), nil, nil)
	require.NoError(t, s.Tx(ctx, func(tx *sql.Tx) error {
		return s.SetDeleted(ctx, tx, "id-2", true)
	}))

	files, total, err := s.ListFiles(ctx, store.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, files, 1)
	assert.EqualValues(t, 1, total)

	files, total, err = s.ListFiles(ctx, store.ListOptions{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Len(t, files, 2)
	assert.EqualValues(t, 2, total)
}

func TestBumpAccess_AccumulatesAndMatchesHistory(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	f := fileEntry("id-1", "hash-a", "a/one.pdf")
	insertFile(t, s, f, nil, nil)

	for range 3 {
		require.NoError(t, s.Tx(ctx, func(tx *sql.Tx) error {
			if err := s.BumpAccess(ctx, tx, f.ID); err != nil {
				return err
			}
			return s.AppendHistory(ctx, tx, &store.HistoryEntry{
				FileID: f.ID, Operation: store.OpAccess,
			})
		}))
	}

	access, err := s.Access(ctx, f.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, access.AccessCount)

	n, err := s.CountHistory(ctx, f.ID, store.OpAccess)
	require.NoError(t, err)
	assert.Equal(t, access.AccessCount, n, "access counter must equal access ledger rows")
}

func TestInsertLink_SelfLinkRejected(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	insertFile(t, s, fileEntry("id-1", "hash-a", "a/one.pdf"), nil, nil)

	err := s.Tx(ctx, func(tx *sql.Tx) error {
		return s.InsertLink(ctx, tx, &store.Link{SourceID: "id-1", TargetID: "id-1", Relation: "references"})
	})
	require.ErrorIs(t, err, tberr.ErrConfigError)
}
