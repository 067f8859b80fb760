// authors.go implements typed reads and writes on authors, author_aliases
// and file_authors. Name lookups are case-insensitive and whitespace is
// collapsed before comparison; the stored spelling is whatever the first
// writer used. The alias forest itself is managed by the author registry,
// which builds on the edge-level helpers here.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tagbox/core/internal/tberr"
)

// NormalizeAuthorName collapses interior whitespace and trims the ends.
// Case is preserved; lookups compare case-insensitively via the schema's
// NOCASE collation.
func NormalizeAuthorName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}

const authorColumns = `id, name, real_name, aliases, bio, homepage, created_at, updated_at, is_deleted`

func scanAuthor(sc scanner) (Author, error) {
	var a Author
	var aliases string
	var isDeleted int64
	err := sc.Scan(&a.ID, &a.Name, &a.RealName, &aliases, &a.Bio, &a.Homepage,
		&a.CreatedAt, &a.UpdatedAt, &isDeleted)
	if err != nil {
		return a, err
	}
	a.IsDeleted = isDeleted != 0
	if aliases != "" && aliases != "[]" {
		if err := json.Unmarshal([]byte(aliases), &a.Aliases); err != nil {
			return a, fmt.Errorf("decode aliases for %s: %w", a.ID, err)
		}
	}
	return a, nil
}

// AuthorByName returns the live author with the given (normalized,
// case-folded) name, or nil if none exists.
func (s *Store) AuthorByName(ctx context.Context, q Queryer, name string) (*Author, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+authorColumns+` FROM authors
		 WHERE name = ? COLLATE NOCASE AND is_deleted = 0`,
		NormalizeAuthorName(name))
	a, err := scanAuthor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: author by name: %v", tberr.ErrDatabaseError, err)
	}
	return &a, nil
}

// AuthorByID returns one author row regardless of deletion state.
func (s *Store) AuthorByID(ctx context.Context, q Queryer, id string) (*Author, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+authorColumns+` FROM authors WHERE id = ?`, id)
	a, err := scanAuthor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: author %s", tberr.ErrFileNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: author by id: %v", tberr.ErrDatabaseError, err)
	}
	return &a, nil
}

// InsertAuthor writes a new authors row. The name is normalized before
// storage; the caller should have checked for an existing live author
// first (AuthorByName) inside the same transaction.
func (s *Store) InsertAuthor(ctx context.Context, q Queryer, a *Author) error {
	now := time.Now().Unix()
	a.CreatedAt = now
	a.UpdatedAt = now
	a.Name = NormalizeAuthorName(a.Name)
	if a.Name == "" {
		return fmt.Errorf("%w: author name must not be empty", tberr.ErrConfigError)
	}

	aliases := "[]"
	if len(a.Aliases) > 0 {
		b, err := json.Marshal(a.Aliases)
		if err != nil {
			return fmt.Errorf("encode aliases: %w", err)
		}
		aliases = string(b)
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO authors (id, name, real_name, aliases, bio, homepage, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.RealName, aliases, a.Bio, a.Homepage, now, now)
	if err != nil {
		return fmt.Errorf("%w: insert author: %v", tberr.ErrDatabaseError, err)
	}
	return nil
}

// AppendAuthorAlias records a display spelling on the canonical author's
// aliases JSON column. Duplicates (case-insensitive) are skipped.
func (s *Store) AppendAuthorAlias(ctx context.Context, q Queryer, id, spelling string) error {
	a, err := s.AuthorByID(ctx, q, id)
	if err != nil {
		return err
	}
	spelling = NormalizeAuthorName(spelling)
	for _, existing := range a.Aliases {
		if strings.EqualFold(existing, spelling) {
			return nil
		}
	}
	b, err := json.Marshal(append(a.Aliases, spelling))
	if err != nil {
		return fmt.Errorf("encode aliases: %w", err)
	}
	_, err = q.ExecContext(ctx,
		`UPDATE authors SET aliases = ?, updated_at = ? WHERE id = ?`,
		string(b), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("%w: append alias: %v", tberr.ErrDatabaseError, err)
	}
	return nil
}

// SoftDeleteAuthor flags an author as deleted and removes its file links.
func (s *Store) SoftDeleteAuthor(ctx context.Context, q Queryer, id string) error {
	res, err := q.ExecContext(ctx,
		`UPDATE authors SET is_deleted = 1, updated_at = ? WHERE id = ?`,
		time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("%w: delete author: %v", tberr.ErrDatabaseError, err)
	}
	if err := requireAffected(res, id); err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx,
		`DELETE FROM file_authors WHERE author_id = ?`, id); err != nil {
		return fmt.Errorf("%w: unlink author files: %v", tberr.ErrDatabaseError, err)
	}
	return nil
}

// CanonicalOf resolves an author id through the alias forest: if an edge
// id -> canonical exists, the canonical id is returned, otherwise id
// itself. The forest is flat (merge re-points transitively), so one
// lookup suffices.
func (s *Store) CanonicalOf(ctx context.Context, q Queryer, id string) (string, error) {
	var canonical string
	err := q.QueryRowContext(ctx,
		`SELECT canonical_id FROM author_aliases WHERE alias_id = ?`, id).Scan(&canonical)
	if errors.Is(err, sql.ErrNoRows) {
		return id, nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: canonical of: %v", tberr.ErrDatabaseError, err)
	}
	return canonical, nil
}

// InsertAliasEdge records from -> to in the alias forest and re-points any
// existing edges whose canonical was `from`, keeping the forest flat.
func (s *Store) InsertAliasEdge(ctx context.Context, q Queryer, from, to, note string) error {
	now := time.Now().Unix()
	_, err := q.ExecContext(ctx,
		`INSERT INTO author_aliases (alias_id, canonical_id, merged_at, note) VALUES (?, ?, ?, ?)`,
		from, to, now, note)
	if err != nil {
		return fmt.Errorf("%w: insert alias edge: %v", tberr.ErrDatabaseError, err)
	}
	// Anything that previously resolved to `from` now resolves to `to`.
	if _, err := q.ExecContext(ctx,
		`UPDATE author_aliases SET canonical_id = ? WHERE canonical_id = ?`, to, from); err != nil {
		return fmt.Errorf("%w: repoint alias edges: %v", tberr.ErrDatabaseError, err)
	}
	return nil
}

// HasAliasEdgeFrom reports whether the author already appears on the
// alias side of the forest (it is no longer canonical).
func (s *Store) HasAliasEdgeFrom(ctx context.Context, q Queryer, id string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM author_aliases WHERE alias_id = ?`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("%w: alias edge check: %v", tberr.ErrDatabaseError, err)
	}
	return n > 0, nil
}

// LinkFileAuthor connects a file to an author, ignoring duplicates.
func (s *Store) LinkFileAuthor(ctx context.Context, q Queryer, fileID, authorID string) error {
	_, err := q.ExecContext(ctx,
		`INSERT OR IGNORE INTO file_authors (file_id, author_id) VALUES (?, ?)`,
		fileID, authorID)
	if err != nil {
		return fmt.Errorf("%w: link file author: %v", tberr.ErrDatabaseError, err)
	}
	return nil
}

// ClearFileAuthors removes every author link for a file, ahead of a
// relation replacement by the editor.
func (s *Store) ClearFileAuthors(ctx context.Context, q Queryer, fileID string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM file_authors WHERE file_id = ?`, fileID)
	if err != nil {
		return fmt.Errorf("%w: clear file authors: %v", tberr.ErrDatabaseError, err)
	}
	return nil
}

// RewriteFileAuthors re-points every live file_authors row from one author
// to another. INSERT OR IGNORE + DELETE rather than UPDATE, because a file
// may already be linked to both sides of a merge.
func (s *Store) RewriteFileAuthors(ctx context.Context, q Queryer, from, to string) error {
	if _, err := q.ExecContext(ctx, `
		INSERT OR IGNORE INTO file_authors (file_id, author_id)
		SELECT file_id, ? FROM file_authors WHERE author_id = ?`, to, from); err != nil {
		return fmt.Errorf("%w: rewrite file authors: %v", tberr.ErrDatabaseError, err)
	}
	if _, err := q.ExecContext(ctx,
		`DELETE FROM file_authors WHERE author_id = ?`, from); err != nil {
		return fmt.Errorf("%w: rewrite file authors: %v", tberr.ErrDatabaseError, err)
	}
	return nil
}

// FileAuthors returns the names of a file's authors, alphabetically.
func (s *Store) FileAuthors(ctx context.Context, fileID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.name FROM authors a
		JOIN file_authors fa ON fa.author_id = a.id
		WHERE fa.file_id = ? ORDER BY a.name`, fileID)
	if err != nil {
		return nil, fmt.Errorf("%w: file authors: %v", tberr.ErrDatabaseError, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("%w: scan author: %v", tberr.ErrDatabaseError, err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// FilesByAuthor returns ids of live files linked to the author.
func (s *Store) FilesByAuthor(ctx context.Context, authorID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id FROM files f
		JOIN file_authors fa ON fa.file_id = f.id
		WHERE fa.author_id = ? AND f.is_deleted = 0 ORDER BY f.id`, authorID)
	if err != nil {
		return nil, fmt.Errorf("%w: files by author: %v", tberr.ErrDatabaseError, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: scan file id: %v", tberr.ErrDatabaseError, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
