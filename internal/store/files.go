// files.go implements typed reads and writes on the files table.
//
// Writes that participate in a larger unit of work (import, edit) take a
// Queryer so they compose into the caller's transaction; reads run on the
// pool directly.

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

// fileColumns is the SELECT list shared by every files read. Order must
// match scanFile.
const fileColumns = `id, initial_hash, current_hash, relative_path, filename, title, size,
	year, publisher, source_url, category1, category2, category3,
	summary, full_text, file_metadata, type_metadata,
	created_at, updated_at, is_deleted, deleted_at`

// scanFile extracts a FileEntry from a database row, handling nullable fields.
func scanFile(sc scanner) (FileEntry, error) {
	var f FileEntry
	var year sql.NullInt64
	var deletedAt sql.NullInt64
	var isDeleted int64

	err := sc.Scan(&f.ID, &f.InitialHash, &f.CurrentHash, &f.RelativePath, &f.Filename,
		&f.Title, &f.Size, &year, &f.Publisher, &f.SourceURL,
		&f.Category1, &f.Category2, &f.Category3,
		&f.Summary, &f.FullText, &f.FileMetadata, &f.TypeMetadata,
		&f.CreatedAt, &f.UpdatedAt, &isDeleted, &deletedAt)
	if err != nil {
		return f, err
	}

	if year.Valid {
		y := int(year.Int64)
		f.Year = &y
	}
	if deletedAt.Valid {
		f.DeletedAt = &deletedAt.Int64
	}
	f.IsDeleted = isDeleted != 0
	return f, nil
}

// InsertFile writes a new files row inside the caller's transaction.
// Timestamps are stamped here; the caller provides everything else.
// A UNIQUE violation on initial_hash surfaces as DuplicateHashError so
// the importer's duplicate check holds even under concurrent imports.
func (s *Store) InsertFile(ctx context.Context, q Queryer, f *FileEntry) error {
	now := time.Now().Unix()
	f.CreatedAt = now
	f.UpdatedAt = now

	var year any
	if f.Year != nil {
		year = *f.Year
	}
	if f.FileMetadata == "" {
		f.FileMetadata = "{}"
	}
	if f.TypeMetadata == "" {
		f.TypeMetadata = "{}"
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO files (id, initial_hash, current_hash, relative_path, filename, title, size,
			year, publisher, source_url, category1, category2, category3,
			summary, full_text, file_metadata, type_metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.InitialHash, f.CurrentHash, f.RelativePath, f.Filename, f.Title, f.Size,
		year, f.Publisher, f.SourceURL, f.Category1, f.Category2, f.Category3,
		f.Summary, f.FullText, f.FileMetadata, f.TypeMetadata, now, now)
	if err != nil {
		if strings.Contains(err.Error(), "initial_hash") {
			return &tberr.DuplicateHashError{Hash: f.InitialHash}
		}
		return fmt.Errorf("%w: insert file: %v", tberr.ErrDatabaseError, err)
	}
	return nil
}

// GetFile returns one file by id, with authors and tag paths hydrated.
// Returns tberr.ErrFileNotFound if the id is unknown.
func (s *Store) GetFile(ctx context.Context, id string) (*FileEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE id = ?`, id)
	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", tberr.ErrFileNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get file: %v", tberr.ErrDatabaseError, err)
	}
	if err := s.hydrateRelations(ctx, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// FileByInitialHash returns the file (live or deleted) with the given
// initial_hash, or nil if none exists. Used by the importer's duplicate
// check, which must see deleted rows too.
func (s *Store) FileByInitialHash(ctx context.Context, hash string) (*FileEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE initial_hash = ?`, hash)
	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: file by hash: %v", tberr.ErrDatabaseError, err)
	}
	return &f, nil
}

// RelativePathExists reports whether a live row already occupies the path.
func (s *Store) RelativePathExists(ctx context.Context, relPath string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM files WHERE relative_path = ? AND is_deleted = 0`, relPath).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("%w: path exists: %v", tberr.ErrDatabaseError, err)
	}
	return n > 0, nil
}

// ListFiles returns a page of files plus the total count disregarding
// offset/limit. Sort columns are whitelisted; anything unrecognized
// falls back to updated_at. Final tiebreaker is always id ascending so
// paging is stable.
func (s *Store) ListFiles(ctx context.Context, opts ListOptions) ([]FileEntry, int64, error) {
	where := "is_deleted = 0"
	if opts.IncludeDeleted {
		where = "1 = 1"
	}

	var total int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM files WHERE `+where).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%w: count files: %v", tberr.ErrDatabaseError, err)
	}

	order := orderClause(opts)
	query := `SELECT ` + fileColumns + ` FROM files WHERE ` + where + order
	args := []any{}
	if opts.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: list files: %v", tberr.ErrDatabaseError, err)
	}
	defer rows.Close()

	files, err := s.collectFiles(ctx, rows)
	if err != nil {
		return nil, 0, err
	}
	return files, total, nil
}

// orderClause translates ListOptions into an ORDER BY over whitelisted
// columns. An unset SortBy means updated_at descending; SortRank is
// meaningless without an FTS match and degrades to the same (the search
// planner handles rank ordering itself). Final tiebreaker is id ascending.
func orderClause(opts ListOptions) string {
	col := "updated_at"
	dir := " DESC"
	if opts.SortBy != "" && opts.SortBy != SortRank {
		if opts.SortDescending {
			dir = " DESC"
		} else {
			dir = " ASC"
		}
		switch opts.SortBy {
		case SortImportedAt:
			col = "created_at"
		case SortUpdatedAt:
			col = "updated_at"
		case SortTitle:
			col = "title"
		case SortYear:
			col = "year"
		case SortAccessCount:
			col = "(SELECT COALESCE(MAX(access_count), 0) FROM file_access_stats WHERE file_id = files.id)"
		default:
			col, dir = "updated_at", " DESC"
		}
	}
	return " ORDER BY " + col + dir + ", id ASC"
}

// collectFiles drains rows and hydrates relations for each entry.
func (s *Store) collectFiles(ctx context.Context, rows *sql.Rows) ([]FileEntry, error) {
	var files []FileEntry
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan file: %v", tberr.ErrDatabaseError, err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate files: %v", tberr.ErrDatabaseError, err)
	}
	for i := range files {
		if err := s.hydrateRelations(ctx, &files[i]); err != nil {
			return nil, err
		}
	}
	return files, nil
}

// hydrateRelations fills Authors and Tags from the relation tables.
func (s *Store) hydrateRelations(ctx context.Context, f *FileEntry) error {
	authors, err := s.FileAuthors(ctx, f.ID)
	if err != nil {
		return err
	}
	f.Authors = authors

	tags, err := s.FileTagPaths(ctx, f.ID)
	if err != nil {
		return err
	}
	f.Tags = tags
	return nil
}

// FileUpdate names the mutable metadata fields of a file. Nil pointers
// leave the column untouched; ClearYear removes the year entirely since
// a nil Year cannot express that.
type FileUpdate struct {
	Title        *string `json:"title,omitempty"`
	Year         *int    `json:"year,omitempty"`
	ClearYear    bool    `json:"clear_year,omitempty"`
	Publisher    *string `json:"publisher,omitempty"`
	SourceURL    *string `json:"source_url,omitempty"`
	Category1    *string `json:"category1,omitempty"`
	Category2    *string `json:"category2,omitempty"`
	Category3    *string `json:"category3,omitempty"`
	Summary      *string `json:"summary,omitempty"`
	FullText     *string `json:"full_text,omitempty"`
	FileMetadata *string `json:"file_metadata,omitempty"`
	TypeMetadata *string `json:"type_metadata,omitempty"`

	// Relation replacements; nil leaves the set unchanged, empty
	// non-nil clears it.
	Authors []string `json:"authors,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

// TouchesProjection reports whether applying the update requires an FTS
// reprojection (title, summary, full_text, author set or tag set changed).
func (u *FileUpdate) TouchesProjection() bool {
	return u.Title != nil || u.Summary != nil || u.FullText != nil ||
		u.Authors != nil || u.Tags != nil
}

// UpdateFileRow applies the column-level part of a FileUpdate inside the
// caller's transaction and bumps updated_at. Relation replacements are
// applied separately by the author/tag helpers.
func (s *Store) UpdateFileRow(ctx context.Context, q Queryer, id string, u *FileUpdate) error {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().Unix()}

	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if u.Title != nil {
		if strings.TrimSpace(*u.Title) == "" {
			return fmt.Errorf("%w: title must not be empty", tberr.ErrConfigError)
		}
		add("title", *u.Title)
	}
	if u.ClearYear {
		sets = append(sets, "year = NULL")
	} else if u.Year != nil {
		add("year", *u.Year)
	}
	if u.Publisher != nil {
		add("publisher", *u.Publisher)
	}
	if u.SourceURL != nil {
		add("source_url", *u.SourceURL)
	}
	if u.Category1 != nil {
		add("category1", *u.Category1)
	}
	if u.Category2 != nil {
		add("category2", *u.Category2)
	}
	if u.Category3 != nil {
		add("category3", *u.Category3)
	}
	if u.Summary != nil {
		add("summary", *u.Summary)
	}
	if u.FullText != nil {
		add("full_text", *u.FullText)
	}
	if u.FileMetadata != nil {
		add("file_metadata", *u.FileMetadata)
	}
	if u.TypeMetadata != nil {
		add("type_metadata", *u.TypeMetadata)
	}

	args = append(args, id)
	res, err := q.ExecContext(ctx,
		`UPDATE files SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("%w: update file: %v", tberr.ErrDatabaseError, err)
	}
	return requireAffected(res, id)
}

// SetFilePath rewrites relative_path and filename after a move or rebuild.
func (s *Store) SetFilePath(ctx context.Context, q Queryer, id, relPath, filename string) error {
	res, err := q.ExecContext(ctx,
		`UPDATE files SET relative_path = ?, filename = ?, updated_at = ? WHERE id = ?`,
		relPath, filename, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("%w: set file path: %v", tberr.ErrDatabaseError, err)
	}
	return requireAffected(res, id)
}

// SetCurrentHash rewrites current_hash and size. initial_hash is immutable
// and deliberately has no setter anywhere in this package.
func (s *Store) SetCurrentHash(ctx context.Context, q Queryer, id, hash string, size int64) error {
	res, err := q.ExecContext(ctx,
		`UPDATE files SET current_hash = ?, size = ?, updated_at = ? WHERE id = ?`,
		hash, size, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("%w: set current hash: %v", tberr.ErrDatabaseError, err)
	}
	return requireAffected(res, id)
}

// SetDeleted toggles the soft-delete flag. The caller is responsible for
// the matching FTS projection change and history row.
func (s *Store) SetDeleted(ctx context.Context, q Queryer, id string, deleted bool) error {
	var res sql.Result
	var err error
	now := time.Now().Unix()
	if deleted {
		res, err = q.ExecContext(ctx,
			`UPDATE files SET is_deleted = 1, deleted_at = ?, updated_at = ? WHERE id = ?`,
			now, now, id)
	} else {
		res, err = q.ExecContext(ctx,
			`UPDATE files SET is_deleted = 0, deleted_at = NULL, updated_at = ? WHERE id = ?`,
			now, id)
	}
	if err != nil {
		return fmt.Errorf("%w: set deleted: %v", tberr.ErrDatabaseError, err)
	}
	return requireAffected(res, id)
}

// FileRowID returns the SQLite rowid for a file, which keys its FTS row.
func (s *Store) FileRowID(ctx context.Context, q Queryer, id string) (int64, error) {
	var rowid int64
	err := q.QueryRowContext(ctx, `SELECT rowid FROM files WHERE id = ?`, id).Scan(&rowid)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", tberr.ErrFileNotFound, id)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: file rowid: %v", tberr.ErrDatabaseError, err)
	}
	return rowid, nil
}

// CountFiles returns the number of live files (or all files when
// includeDeleted is set).
func (s *Store) CountFiles(ctx context.Context, includeDeleted bool) (int64, error) {
	query := `SELECT COUNT(*) FROM files WHERE is_deleted = 0`
	if includeDeleted {
		query = `SELECT COUNT(*) FROM files`
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count files: %v", tberr.ErrDatabaseError, err)
	}
	return n, nil
}

// ListFilesUnderPath returns live files whose relative_path falls under
// the given prefix ("" for all). Used by the validator and rebuild, which
// walk the library rather than page through it.
func (s *Store) ListFilesUnderPath(ctx context.Context, prefix string, recursive bool) ([]FileEntry, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE is_deleted = 0`
	args := []any{}
	if prefix != "" {
		query += ` AND (relative_path = ? OR relative_path LIKE ?)`
		args = append(args, prefix, prefix+"/%")
	}
	query += ` ORDER BY relative_path`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list files under path: %v", tberr.ErrDatabaseError, err)
	}
	defer rows.Close()

	var files []FileEntry
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan file: %v", tberr.ErrDatabaseError, err)
		}
		if !recursive && prefix != "" {
			rest := strings.TrimPrefix(f.RelativePath, prefix+"/")
			if strings.Contains(rest, "/") {
				continue
			}
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// requireAffected converts a zero-rows-affected update into FileNotFound.
func requireAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %v", tberr.ErrDatabaseError, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", tberr.ErrFileNotFound, id)
	}
	return nil
}
