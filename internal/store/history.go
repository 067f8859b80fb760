// history.go implements the append-only file_history ledger and the
// per-file access counters. History rows are only ever inserted; there is
// deliberately no update or delete helper here.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tagbox/core/internal/tberr"
)

// AppendHistory writes one ledger row inside the caller's transaction.
// ChangedAt is stamped here unless the caller set it.
func (s *Store) AppendHistory(ctx context.Context, q Queryer, h *HistoryEntry) error {
	if h.ChangedAt == 0 {
		h.ChangedAt = time.Now().Unix()
	}
	var oldSize, newSize any
	if h.OldSize != nil {
		oldSize = *h.OldSize
	}
	if h.NewSize != nil {
		newSize = *h.NewSize
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO file_history (file_id, operation, old_hash, new_hash,
			old_path, new_path, old_size, new_size, changed_at, changed_by, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.FileID, h.Operation, h.OldHash, h.NewHash,
		h.OldPath, h.NewPath, oldSize, newSize, h.ChangedAt, h.ChangedBy, h.Reason)
	if err != nil {
		return fmt.Errorf("%w: append history: %v", tberr.ErrDatabaseError, err)
	}
	if id, err := res.LastInsertId(); err == nil {
		h.ID = id
	}
	return nil
}

// FileHistory returns a file's ledger, newest first. limit 0 means all.
func (s *Store) FileHistory(ctx context.Context, fileID string, limit int) ([]HistoryEntry, error) {
	query := `
		SELECT id, file_id, operation, old_hash, new_hash, old_path, new_path,
		       old_size, new_size, changed_at, changed_by, reason
		FROM file_history WHERE file_id = ? ORDER BY id DESC`
	args := []any{fileID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: file history: %v", tberr.ErrDatabaseError, err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		var oldSize, newSize sql.NullInt64
		err := rows.Scan(&h.ID, &h.FileID, &h.Operation, &h.OldHash, &h.NewHash,
			&h.OldPath, &h.NewPath, &oldSize, &newSize, &h.ChangedAt, &h.ChangedBy, &h.Reason)
		if err != nil {
			return nil, fmt.Errorf("%w: scan history: %v", tberr.ErrDatabaseError, err)
		}
		if oldSize.Valid {
			h.OldSize = &oldSize.Int64
		}
		if newSize.Valid {
			h.NewSize = &newSize.Int64
		}
		entries = append(entries, h)
	}
	return entries, rows.Err()
}

// CountHistory returns the number of ledger rows of one operation kind
// for a file. Used by invariant checks (access_count bookkeeping).
func (s *Store) CountHistory(ctx context.Context, fileID, operation string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM file_history WHERE file_id = ? AND operation = ?`,
		fileID, operation).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: count history: %v", tberr.ErrDatabaseError, err)
	}
	return n, nil
}

// BumpAccess increments the access counter and stamps last_accessed_at.
func (s *Store) BumpAccess(ctx context.Context, q Queryer, fileID string) error {
	now := time.Now().Unix()
	_, err := q.ExecContext(ctx, `
		INSERT INTO file_access_stats (file_id, access_count, last_accessed_at)
		VALUES (?, 1, ?)
		ON CONFLICT(file_id) DO UPDATE SET
			access_count = access_count + 1,
			last_accessed_at = excluded.last_accessed_at`,
		fileID, now)
	if err != nil {
		return fmt.Errorf("%w: bump access: %v", tberr.ErrDatabaseError, err)
	}
	return nil
}

// Access returns a file's access stats. A file that has never been
// accessed yields a zero-count row rather than an error.
func (s *Store) Access(ctx context.Context, fileID string) (*AccessStats, error) {
	var a AccessStats
	err := s.db.QueryRowContext(ctx,
		`SELECT file_id, access_count, last_accessed_at FROM file_access_stats WHERE file_id = ?`,
		fileID).Scan(&a.FileID, &a.AccessCount, &a.LastAccessedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &AccessStats{FileID: fileID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: access stats: %v", tberr.ErrDatabaseError, err)
	}
	return &a, nil
}
