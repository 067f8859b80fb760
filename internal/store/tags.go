// tags.go implements the hierarchical tag table and file_tags relation.
//
// Tag upserts always walk the path root-first ("tech" before "tech/rust")
// so parent_id wiring agrees with the path column at every step: a tag's
// path always equals the chain of its parent links, by construction.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tagbox/core/internal/tberr"
)

// SplitTagPath breaks a tag path on '/' into its segments, dropping empty
// ones ("a//b" is treated as "a/b").
func SplitTagPath(path string) []string {
	var segs []string
	for _, s := range strings.Split(path, "/") {
		s = strings.TrimSpace(s)
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// TagByPath returns the live tag at path, or nil if none exists.
func (s *Store) TagByPath(ctx context.Context, q Queryer, path string) (*Tag, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, path, name, parent_id, created_at, is_deleted
		 FROM tags WHERE path = ? AND is_deleted = 0`, path)
	t, err := scanTag(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: tag by path: %v", tberr.ErrDatabaseError, err)
	}
	return &t, nil
}

func scanTag(sc scanner) (Tag, error) {
	var t Tag
	var parent sql.NullString
	var isDeleted int64
	err := sc.Scan(&t.ID, &t.Path, &t.Name, &parent, &t.CreatedAt, &isDeleted)
	if err != nil {
		return t, err
	}
	if parent.Valid {
		t.ParentID = &parent.String
	}
	t.IsDeleted = isDeleted != 0
	return t, nil
}

// UpsertTagChain ensures every ancestor of the tag path exists, wiring
// parent_id along the way, and returns the leaf tag's id.
func (s *Store) UpsertTagChain(ctx context.Context, q Queryer, path string) (string, error) {
	segs := SplitTagPath(path)
	if len(segs) == 0 {
		return "", fmt.Errorf("%w: empty tag path", tberr.ErrConfigError)
	}

	var parentID *string
	var leafID string
	for i := range segs {
		p := strings.Join(segs[:i+1], "/")
		existing, err := s.TagByPath(ctx, q, p)
		if err != nil {
			return "", err
		}
		if existing != nil {
			leafID = existing.ID
			parentID = &existing.ID
			continue
		}

		id, err := GenID()
		if err != nil {
			return "", err
		}
		var parent any
		if parentID != nil {
			parent = *parentID
		}
		_, err = q.ExecContext(ctx,
			`INSERT INTO tags (id, path, name, parent_id, created_at) VALUES (?, ?, ?, ?, ?)`,
			id, p, segs[i], parent, time.Now().Unix())
		if err != nil {
			return "", fmt.Errorf("%w: insert tag %s: %v", tberr.ErrDatabaseError, p, err)
		}
		leafID = id
		parentID = &id
	}
	return leafID, nil
}

// LinkFileTag connects a file to a tag, ignoring duplicates.
func (s *Store) LinkFileTag(ctx context.Context, q Queryer, fileID, tagID string) error {
	_, err := q.ExecContext(ctx,
		`INSERT OR IGNORE INTO file_tags (file_id, tag_id) VALUES (?, ?)`, fileID, tagID)
	if err != nil {
		return fmt.Errorf("%w: link file tag: %v", tberr.ErrDatabaseError, err)
	}
	return nil
}

// ClearFileTags removes every tag link for a file, ahead of a relation
// replacement by the editor.
func (s *Store) ClearFileTags(ctx context.Context, q Queryer, fileID string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM file_tags WHERE file_id = ?`, fileID)
	if err != nil {
		return fmt.Errorf("%w: clear file tags: %v", tberr.ErrDatabaseError, err)
	}
	return nil
}

// FileTagPaths returns the tag paths attached to a file, alphabetically.
func (s *Store) FileTagPaths(ctx context.Context, fileID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.path FROM tags t
		JOIN file_tags ft ON ft.tag_id = t.id
		WHERE ft.file_id = ? AND t.is_deleted = 0 ORDER BY t.path`, fileID)
	if err != nil {
		return nil, fmt.Errorf("%w: file tags: %v", tberr.ErrDatabaseError, err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("%w: scan tag: %v", tberr.ErrDatabaseError, err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// SoftDeleteTag flags a tag subtree (the tag and every descendant path)
// as deleted and removes their file links.
func (s *Store) SoftDeleteTag(ctx context.Context, q Queryer, path string) error {
	t, err := s.TagByPath(ctx, q, path)
	if err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("%w: tag %s", tberr.ErrFileNotFound, path)
	}
	if _, err := q.ExecContext(ctx, `
		UPDATE tags SET is_deleted = 1
		WHERE is_deleted = 0 AND (path = ? OR path LIKE ?)`,
		path, path+"/%"); err != nil {
		return fmt.Errorf("%w: delete tag: %v", tberr.ErrDatabaseError, err)
	}
	if _, err := q.ExecContext(ctx, `
		DELETE FROM file_tags WHERE tag_id IN
			(SELECT id FROM tags WHERE path = ? OR path LIKE ?)`,
		path, path+"/%"); err != nil {
		return fmt.Errorf("%w: unlink tag files: %v", tberr.ErrDatabaseError, err)
	}
	return nil
}

// ListTags returns all live tags ordered by path.
func (s *Store) ListTags(ctx context.Context) ([]Tag, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, path, name, parent_id, created_at, is_deleted
		 FROM tags WHERE is_deleted = 0 ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("%w: list tags: %v", tberr.ErrDatabaseError, err)
	}
	defer rows.Close()

	var tags []Tag
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan tag: %v", tberr.ErrDatabaseError, err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}
