package author_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagbox/core/internal/author"
	"github.com/tagbox/core/internal/store"
	"github.com/tagbox/core/internal/tberr"
)

func setup(t *testing.T) (*store.Store, *author.Registry) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "meta.db"), store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	_, err = s.Bootstrap(context.Background())
	require.NoError(t, err)
	return s, author.New(s)
}

func TestAdd_Resolve(t *testing.T) {
	_, reg := setup(t)
	ctx := context.Background()

	a, err := reg.Add(ctx, "  Ada   Lovelace ")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", a.Name, "whitespace is normalized")

	// Case-insensitive resolution, case-preserving storage.
	got, err := reg.Resolve(ctx, "ada lovelace")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, "Ada Lovelace", got.Name)

	// A duplicate (case-insensitively) is rejected.
	_, err = reg.Add(ctx, "ADA LOVELACE")
	require.ErrorIs(t, err, tberr.ErrConfigError)
}

func TestResolve_Unknown(t *testing.T) {
	_, reg := setup(t)
	got, err := reg.Resolve(context.Background(), "Nobody")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMerge_RewritesFilesAndResolvesToCanonical(t *testing.T) {
	s, reg := setup(t)
	ctx := context.Background()

	canonical, err := reg.Add(ctx, "Ada")
	require.NoError(t, err)
	alias, err := reg.Add(ctx, "A. Lovelace")
	require.NoError(t, err)

	// One file linked to the alias author.
	require.NoError(t, s.Tx(ctx, func(tx *sql.Tx) error {
		f := &store.FileEntry{
			ID: "f1", InitialHash: "h1", CurrentHash: "h1",
			RelativePath: "a/f1.txt", Filename: "f1.txt", Title: "F1",
		}
		if err := s.InsertFile(ctx, tx, f); err != nil {
			return err
		}
		return s.LinkFileAuthor(ctx, tx, "f1", alias.ID)
	}))

	require.NoError(t, reg.Merge(ctx, alias.ID, canonical.ID))

	// The file now links to the canonical author.
	ids, err := s.FilesByAuthor(ctx, canonical.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"f1"}, ids)
	ids, err = s.FilesByAuthor(ctx, alias.ID)
	require.NoError(t, err)
	assert.Empty(t, ids)

	// Resolving the alias name yields the canonical author.
	got, err := reg.Resolve(ctx, "A. Lovelace")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, canonical.ID, got.ID)

	// The alias spelling is recorded on the canonical author.
	assert.Contains(t, got.Aliases, "A. Lovelace")
}

func TestMerge_ReverseFormsCycle(t *testing.T) {
	_, reg := setup(t)
	ctx := context.Background()

	a, err := reg.Add(ctx, "Ada")
	require.NoError(t, err)
	b, err := reg.Add(ctx, "A. Lovelace")
	require.NoError(t, err)

	require.NoError(t, reg.Merge(ctx, b.ID, a.ID))
	err = reg.Merge(ctx, a.ID, b.ID)
	require.ErrorIs(t, err, tberr.ErrAliasCycle)
}

func TestMerge_SelfAndRepeat(t *testing.T) {
	_, reg := setup(t)
	ctx := context.Background()

	a, err := reg.Add(ctx, "Ada")
	require.NoError(t, err)
	b, err := reg.Add(ctx, "Byron")
	require.NoError(t, err)

	require.ErrorIs(t, reg.Merge(ctx, a.ID, a.ID), tberr.ErrAliasCycle)

	require.NoError(t, reg.Merge(ctx, a.ID, b.ID))
	// An author already merged away cannot be merged again.
	c, err := reg.Add(ctx, "Carol")
	require.NoError(t, err)
	require.ErrorIs(t, reg.Merge(ctx, a.ID, c.ID), tberr.ErrAliasCycle)
}

func TestMerge_ChainsStayFlat(t *testing.T) {
	s, reg := setup(t)
	ctx := context.Background()

	a, _ := reg.Add(ctx, "A")
	b, _ := reg.Add(ctx, "B")
	c, _ := reg.Add(ctx, "C")

	// A -> B, then B -> C: both must resolve straight to C.
	require.NoError(t, reg.Merge(ctx, a.ID, b.ID))
	require.NoError(t, reg.Merge(ctx, b.ID, c.ID))

	canonical, err := s.CanonicalOf(ctx, s.DB(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, canonical, "merge re-points edges; resolution is one hop")

	got, err := reg.Resolve(ctx, "A")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, c.ID, got.ID)
}

func TestEnsureIn_CreatesOnce(t *testing.T) {
	s, reg := setup(t)
	ctx := context.Background()

	var first, second string
	require.NoError(t, s.Tx(ctx, func(tx *sql.Tx) error {
		var err error
		first, err = reg.EnsureIn(ctx, tx, "Ada")
		if err != nil {
			return err
		}
		second, err = reg.EnsureIn(ctx, tx, "ada")
		return err
	}))
	assert.Equal(t, first, second, "case-insensitive dedup during import")
}
