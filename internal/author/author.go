// Package author implements the author registry: canonicalization,
// on-demand creation during import, alias merging and name resolution.
//
// The alias graph is a flat forest kept in the author_aliases table: each
// merged author carries one edge to its canonical author, and merging
// re-points existing edges so resolution is always a single lookup, never
// a traversal. Merge refuses edges that would bend the forest into a
// cycle.
package author

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tagbox/core/internal/store"
	"github.com/tagbox/core/internal/tberr"
)

// Registry resolves and maintains authors over a store.
type Registry struct {
	store *store.Store
}

// New creates a registry over the given store.
func New(s *store.Store) *Registry {
	return &Registry{store: s}
}

// Resolve returns the canonical author for a name, or nil if the name is
// unknown. The name is whitespace-normalized and compared
// case-insensitively; if the matching author was merged away, the
// canonical author is returned instead.
func (r *Registry) Resolve(ctx context.Context, name string) (*store.Author, error) {
	return r.ResolveIn(ctx, r.store.DB(), name)
}

// ResolveIn is Resolve running against the caller's transaction, so the
// importer can resolve and insert inside one atomic unit.
func (r *Registry) ResolveIn(ctx context.Context, q store.Queryer, name string) (*store.Author, error) {
	a, err := r.store.AuthorByName(ctx, q, name)
	if err != nil || a == nil {
		return nil, err
	}
	canonical, err := r.store.CanonicalOf(ctx, q, a.ID)
	if err != nil {
		return nil, err
	}
	if canonical == a.ID {
		return a, nil
	}
	return r.store.AuthorByID(ctx, q, canonical)
}

// EnsureIn resolves a name inside the caller's transaction, creating the
// author if it does not exist yet, and returns the canonical id. This is
// the importer's per-author-name entry point.
func (r *Registry) EnsureIn(ctx context.Context, q store.Queryer, name string) (string, error) {
	a, err := r.ResolveIn(ctx, q, name)
	if err != nil {
		return "", err
	}
	if a != nil {
		return a.ID, nil
	}

	id, err := store.GenID()
	if err != nil {
		return "", err
	}
	na := &store.Author{ID: id, Name: name}
	if err := r.store.InsertAuthor(ctx, q, na); err != nil {
		return "", err
	}
	return id, nil
}

// Add creates a new author with the given name. Fails if a live author
// with that name (case-insensitively) already exists.
func (r *Registry) Add(ctx context.Context, name string) (*store.Author, error) {
	var created *store.Author
	err := r.store.Tx(ctx, func(tx *sql.Tx) error {
		existing, err := r.store.AuthorByName(ctx, tx, name)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: author %q already exists", tberr.ErrConfigError, name)
		}
		id, err := store.GenID()
		if err != nil {
			return err
		}
		created = &store.Author{ID: id, Name: name}
		return r.store.InsertAuthor(ctx, tx, created)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Remove soft-deletes an author and detaches it from every file.
func (r *Registry) Remove(ctx context.Context, id string) error {
	return r.store.Tx(ctx, func(tx *sql.Tx) error {
		return r.store.SoftDeleteAuthor(ctx, tx, id)
	})
}

// Merge records `from` as an alias of `to` and re-points every live
// file_authors row. Returns AliasCycle when the edge would bend the
// forest into a cycle, including the direct reversal of an earlier
// merge, and leaves everything untouched in that case.
func (r *Registry) Merge(ctx context.Context, from, to string) error {
	if from == to {
		return fmt.Errorf("%w: cannot merge %s into itself", tberr.ErrAliasCycle, from)
	}
	return r.store.Tx(ctx, func(tx *sql.Tx) error {
		// Both sides must exist.
		fromAuthor, err := r.store.AuthorByID(ctx, tx, from)
		if err != nil {
			return err
		}
		if _, err := r.store.AuthorByID(ctx, tx, to); err != nil {
			return err
		}

		// `from` must still be canonical: an author already merged away
		// cannot be merged again.
		if merged, err := r.store.HasAliasEdgeFrom(ctx, tx, from); err != nil {
			return err
		} else if merged {
			return fmt.Errorf("%w: %s is already an alias", tberr.ErrAliasCycle, from)
		}

		// The target must not itself resolve to `from`, or the edge
		// would close a cycle.
		canonical, err := r.store.CanonicalOf(ctx, tx, to)
		if err != nil {
			return err
		}
		if canonical == from {
			return fmt.Errorf("%w: %s already resolves to %s", tberr.ErrAliasCycle, to, from)
		}

		if err := r.store.InsertAliasEdge(ctx, tx, from, canonical, ""); err != nil {
			return err
		}
		if err := r.store.AppendAuthorAlias(ctx, tx, canonical, fromAuthor.Name); err != nil {
			return err
		}
		return r.store.RewriteFileAuthors(ctx, tx, from, canonical)
	})
}
