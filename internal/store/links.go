// links.go implements the file_links relation: directed, labelled edges
// between files. The link manager builds idempotence on top of these
// helpers; here a duplicate insert is simply ignored and a missing delete
// affects zero rows.

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/tagbox/core/internal/tberr"
)

// InsertLink records source -> target with the given relation label.
// Inserting an edge that already exists is a no-op.
func (s *Store) InsertLink(ctx context.Context, q Queryer, l *Link) error {
	if l.SourceID == l.TargetID {
		return fmt.Errorf("%w: self-links are not allowed (%s)", tberr.ErrConfigError, l.SourceID)
	}
	if l.Relation == "" {
		return fmt.Errorf("%w: link relation must not be empty", tberr.ErrConfigError)
	}
	l.CreatedAt = time.Now().Unix()
	_, err := q.ExecContext(ctx, `
		INSERT OR IGNORE INTO file_links (source_id, target_id, relation, comment, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		l.SourceID, l.TargetID, l.Relation, l.Comment, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: insert link: %v", tberr.ErrDatabaseError, err)
	}
	return nil
}

// DeleteLink removes the edges between source and target. With relation
// "" every relation between the pair is removed. Returns the number of
// edges removed; zero is not an error.
func (s *Store) DeleteLink(ctx context.Context, q Queryer, source, target, relation string) (int64, error) {
	query := `DELETE FROM file_links WHERE source_id = ? AND target_id = ?`
	args := []any{source, target}
	if relation != "" {
		query += ` AND relation = ?`
		args = append(args, relation)
	}
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%w: delete link: %v", tberr.ErrDatabaseError, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: rows affected: %v", tberr.ErrDatabaseError, err)
	}
	return n, nil
}

// OutgoingLinks returns every edge whose source is the given file.
func (s *Store) OutgoingLinks(ctx context.Context, fileID string) ([]Link, error) {
	return s.queryLinks(ctx,
		`SELECT source_id, target_id, relation, comment, created_at
		 FROM file_links WHERE source_id = ?
		 ORDER BY target_id, relation`, fileID)
}

// IncomingLinks returns every edge whose target is the given file.
func (s *Store) IncomingLinks(ctx context.Context, fileID string) ([]Link, error) {
	return s.queryLinks(ctx,
		`SELECT source_id, target_id, relation, comment, created_at
		 FROM file_links WHERE target_id = ?
		 ORDER BY source_id, relation`, fileID)
}

func (s *Store) queryLinks(ctx context.Context, query string, args ...any) ([]Link, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query links: %v", tberr.ErrDatabaseError, err)
	}
	defer rows.Close()

	var links []Link
	for rows.Next() {
		var l Link
		if err := rows.Scan(&l.SourceID, &l.TargetID, &l.Relation, &l.Comment, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan link: %v", tberr.ErrDatabaseError, err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}
