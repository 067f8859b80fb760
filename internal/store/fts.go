// fts.go maintains the full-text projections: files_fts for search and
// rank, files_trgm for fuzzy substring matching. Reproject is the single
// write path into both; the importer and the editor call it rather than
// touching the index tables themselves, so the projection logic lives in
// exactly one place.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/tagbox/core/internal/tberr"
)

// Reproject replaces the FTS row for a file with a fresh projection of
// its current title, joined author names, summary, joined tag paths and
// full text. A soft-deleted file ends up with no FTS row. Must run inside
// the same transaction as the mutation it mirrors.
func (s *Store) Reproject(ctx context.Context, q Queryer, fileID string) error {
	var rowid int64
	var title, summary, fullText string
	var isDeleted int64
	err := q.QueryRowContext(ctx,
		`SELECT rowid, title, summary, full_text, is_deleted FROM files WHERE id = ?`,
		fileID).Scan(&rowid, &title, &summary, &fullText, &isDeleted)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", tberr.ErrFileNotFound, fileID)
	}
	if err != nil {
		return fmt.Errorf("%w: reproject read: %v", tberr.ErrDatabaseError, err)
	}

	if _, err := q.ExecContext(ctx,
		`DELETE FROM files_fts WHERE rowid = ?`, rowid); err != nil {
		return fmt.Errorf("%w: reproject delete: %v", tberr.ErrDatabaseError, err)
	}
	if _, err := q.ExecContext(ctx,
		`DELETE FROM files_trgm WHERE rowid = ?`, rowid); err != nil {
		return fmt.Errorf("%w: reproject trigram delete: %v", tberr.ErrDatabaseError, err)
	}
	if isDeleted != 0 {
		return nil
	}

	authors, err := joinedColumn(ctx, q, `
		SELECT a.name FROM authors a
		JOIN file_authors fa ON fa.author_id = a.id
		WHERE fa.file_id = ? ORDER BY a.name`, fileID)
	if err != nil {
		return err
	}
	tags, err := joinedColumn(ctx, q, `
		SELECT t.path FROM tags t
		JOIN file_tags ft ON ft.tag_id = t.id
		WHERE ft.file_id = ? AND t.is_deleted = 0 ORDER BY t.path`, fileID)
	if err != nil {
		return err
	}

	if _, err := q.ExecContext(ctx, `
		INSERT INTO files_fts (rowid, title, authors, summary, tags, full_text)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rowid, title, authors, summary, tags, fullText); err != nil {
		return fmt.Errorf("%w: reproject insert: %v", tberr.ErrDatabaseError, err)
	}
	if _, err := q.ExecContext(ctx, `
		INSERT INTO files_trgm (rowid, title, authors, tags)
		VALUES (?, ?, ?, ?)`,
		rowid, title, authors, tags); err != nil {
		return fmt.Errorf("%w: reproject trigram insert: %v", tberr.ErrDatabaseError, err)
	}
	return nil
}

// joinedColumn runs a single-column query and joins the results with
// spaces, the shape FTS expects for multi-valued projected columns.
func joinedColumn(ctx context.Context, q Queryer, query, arg string) (string, error) {
	rows, err := q.QueryContext(ctx, query, arg)
	if err != nil {
		return "", fmt.Errorf("%w: projection query: %v", tberr.ErrDatabaseError, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return "", fmt.Errorf("%w: projection scan: %v", tberr.ErrDatabaseError, err)
		}
		values = append(values, v)
	}
	return strings.Join(values, " "), rows.Err()
}

// HasFTSRow reports whether the projection row for a file exists. Used by
// tests and the validator to check the projection invariant.
func (s *Store) HasFTSRow(ctx context.Context, fileID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM files_fts
		WHERE rowid = (SELECT rowid FROM files WHERE id = ?)`, fileID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("%w: fts row check: %v", tberr.ErrDatabaseError, err)
	}
	return n > 0, nil
}
