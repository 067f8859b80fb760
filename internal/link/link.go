// Package link manages typed relations between files: a directed
// multigraph keyed by (source, target, relation). Cycles are fine;
// self-links are not. Operations are idempotent where the pre- and
// post-condition already match: re-linking an existing edge and
// unlinking a missing one are both no-ops.
package link

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tagbox/core/internal/store"
	"github.com/tagbox/core/internal/tberr"
)

// Conventional relation labels. The column is free-form; these are the
// documented vocabulary, not a constraint.
const (
	RelationReferences  = "references"
	RelationDerivedFrom = "derived_from"
	RelationRelates     = "relates"
	RelationDepends     = "depends"
)

// Pair names one edge for batch operations. An empty Relation removes
// every relation between the pair.
type Pair struct {
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
	Relation string `json:"relation,omitempty"`
}

// Manager runs link operations over one store.
type Manager struct {
	store *store.Store
}

// New creates a manager over the given store.
func New(s *store.Store) *Manager {
	return &Manager{store: s}
}

// Link records source -> target under the given relation. Both files
// must exist; the edge is created at most once.
func (m *Manager) Link(ctx context.Context, source, target, relation, comment string) error {
	if source == target {
		return fmt.Errorf("%w: self-links are not allowed (%s)", tberr.ErrConfigError, source)
	}
	return m.store.Tx(ctx, func(tx *sql.Tx) error {
		if _, err := m.store.FileRowID(ctx, tx, source); err != nil {
			return err
		}
		if _, err := m.store.FileRowID(ctx, tx, target); err != nil {
			return err
		}
		return m.store.InsertLink(ctx, tx, &store.Link{
			SourceID: source,
			TargetID: target,
			Relation: relation,
			Comment:  comment,
		})
	})
}

// Unlink removes the edges between source and target; with relation ""
// every relation between the pair goes. Unlinking a missing pair is a
// no-op, not an error.
func (m *Manager) Unlink(ctx context.Context, source, target, relation string) error {
	return m.store.Tx(ctx, func(tx *sql.Tx) error {
		_, err := m.store.DeleteLink(ctx, tx, source, target, relation)
		return err
	})
}

// BatchUnlink removes every named pair in one transaction.
func (m *Manager) BatchUnlink(ctx context.Context, pairs []Pair) error {
	return m.store.Tx(ctx, func(tx *sql.Tx) error {
		for _, p := range pairs {
			if _, err := m.store.DeleteLink(ctx, tx, p.SourceID, p.TargetID, p.Relation); err != nil {
				return err
			}
		}
		return nil
	})
}

// Outgoing returns every edge whose source is the given file.
func (m *Manager) Outgoing(ctx context.Context, source string) ([]store.Link, error) {
	return m.store.OutgoingLinks(ctx, source)
}

// Incoming returns every edge whose target is the given file.
func (m *Manager) Incoming(ctx context.Context, target string) ([]store.Link, error) {
	return m.store.IncomingLinks(ctx, target)
}
