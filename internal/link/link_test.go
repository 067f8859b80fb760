package link_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagbox/core/internal/link"
	"github.com/tagbox/core/internal/store"
	"github.com/tagbox/core/internal/tberr"
)

func setup(t *testing.T) (*store.Store, *link.Manager) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "meta.db"), store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	_, err = s.Bootstrap(context.Background())
	require.NoError(t, err)

	ctx := context.Background()
	for _, id := range []string{"f1", "f2", "f3"} {
		require.NoError(t, s.Tx(ctx, func(tx *sql.Tx) error {
			return s.InsertFile(ctx, tx, &store.FileEntry{
				ID: id, InitialHash: "hash-" + id, CurrentHash: "hash-" + id,
				RelativePath: "x/" + id + ".txt", Filename: id + ".txt", Title: id,
			})
		}))
	}
	return s, link.New(s)
}

func TestLink_IdempotentAndQueryable(t *testing.T) {
	_, m := setup(t)
	ctx := context.Background()

	require.NoError(t, m.Link(ctx, "f1", "f2", link.RelationReferences, ""))
	require.NoError(t, m.Link(ctx, "f1", "f2", link.RelationReferences, ""),
		"re-linking an existing edge is a no-op")

	out, err := m.Outgoing(ctx, "f1")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "f2", out[0].TargetID)

	in, err := m.Incoming(ctx, "f2")
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, "f1", in[0].SourceID)
}

func TestLink_MultigraphByRelation(t *testing.T) {
	_, m := setup(t)
	ctx := context.Background()

	require.NoError(t, m.Link(ctx, "f1", "f2", link.RelationReferences, ""))
	require.NoError(t, m.Link(ctx, "f1", "f2", link.RelationDerivedFrom, "second edition"))

	out, err := m.Outgoing(ctx, "f1")
	require.NoError(t, err)
	assert.Len(t, out, 2, "same pair may carry several relations")
}

func TestLink_CyclesAllowedSelfLinksNot(t *testing.T) {
	_, m := setup(t)
	ctx := context.Background()

	require.NoError(t, m.Link(ctx, "f1", "f2", link.RelationRelates, ""))
	require.NoError(t, m.Link(ctx, "f2", "f1", link.RelationRelates, ""),
		"cycles are allowed in the link graph")

	require.ErrorIs(t, m.Link(ctx, "f1", "f1", link.RelationRelates, ""), tberr.ErrConfigError)
}

func TestLink_UnknownFileRejected(t *testing.T) {
	_, m := setup(t)
	err := m.Link(context.Background(), "f1", "ghost", link.RelationRelates, "")
	require.ErrorIs(t, err, tberr.ErrFileNotFound)
}

func TestUnlink_MissingPairIsNoop(t *testing.T) {
	_, m := setup(t)
	ctx := context.Background()

	require.NoError(t, m.Unlink(ctx, "f1", "f2", ""), "unlink of a missing pair is a no-op")

	require.NoError(t, m.Link(ctx, "f1", "f2", link.RelationReferences, ""))
	require.NoError(t, m.Unlink(ctx, "f1", "f2", ""))
	out, err := m.Outgoing(ctx, "f1")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestBatchUnlink(t *testing.T) {
	_, m := setup(t)
	ctx := context.Background()

	require.NoError(t, m.Link(ctx, "f1", "f2", link.RelationReferences, ""))
	require.NoError(t, m.Link(ctx, "f1", "f3", link.RelationReferences, ""))
	require.NoError(t, m.Link(ctx, "f2", "f3", link.RelationRelates, ""))

	require.NoError(t, m.BatchUnlink(ctx, []link.Pair{
		{SourceID: "f1", TargetID: "f2"},
		{SourceID: "f1", TargetID: "f3", Relation: link.RelationReferences},
	}))

	out, err := m.Outgoing(ctx, "f1")
	require.NoError(t, err)
	assert.Empty(t, out)
	out, err = m.Outgoing(ctx, "f2")
	require.NoError(t, err)
	assert.Len(t, out, 1)
}
