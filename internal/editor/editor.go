// Package editor mutates existing files: metadata updates, soft deletion
// and restore, on-disk moves, access tracking, rehashing and rebuild.
// Together with the importer it is the only mutator of file state.
//
// Every operation is one store transaction. Filesystem side effects
// either happen before commit with a compensating restore on rollback
// (move), or are recorded as repair_needed when they fail after commit.
package editor

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/tagbox/core/internal/author"
	"github.com/tagbox/core/internal/config"
	"github.com/tagbox/core/internal/hash"
	"github.com/tagbox/core/internal/history"
	"github.com/tagbox/core/internal/log"
	"github.com/tagbox/core/internal/pathgen"
	"github.com/tagbox/core/internal/store"
	"github.com/tagbox/core/internal/tberr"
)

// Editor applies mutations to files in one store under one config.
type Editor struct {
	store   *store.Store
	cfg     *config.Config
	authors *author.Registry
}

// New creates an editor over the given store and config.
func New(s *store.Store, cfg *config.Config) *Editor {
	return &Editor{store: s, cfg: cfg, authors: author.New(s)}
}

// Update applies a field-level update request: validates, updates the
// row and relation sets, refreshes the FTS projection when a projected
// attribute changed, and appends an update history row.
func (e *Editor) Update(ctx context.Context, id string, u *store.FileUpdate) (err error) {
	defer func() { log.Event("editor:update", "update").FileID(id).Write(err) }()

	if u.Category1 != nil && strings.Contains(*u.Category1, "/") ||
		u.Category2 != nil && strings.Contains(*u.Category2, "/") ||
		u.Category3 != nil && strings.Contains(*u.Category3, "/") {
		return fmt.Errorf("%w: category columns take single segments", tberr.ErrConfigError)
	}

	// The reason column carries a compact diff when the summary changed,
	// so the ledger says what an update actually did.
	reason := ""
	if u.Summary != nil {
		if old, gerr := e.store.GetFile(ctx, id); gerr == nil {
			reason = history.SummaryChange(old.Summary, *u.Summary)
		}
	}

	return e.store.Tx(ctx, func(tx *sql.Tx) error {
		if err := e.store.UpdateFileRow(ctx, tx, id, u); err != nil {
			return err
		}
		if u.Authors != nil {
			if err := e.store.ClearFileAuthors(ctx, tx, id); err != nil {
				return err
			}
			for _, name := range u.Authors {
				authorID, err := e.authors.EnsureIn(ctx, tx, name)
				if err != nil {
					return err
				}
				if err := e.store.LinkFileAuthor(ctx, tx, id, authorID); err != nil {
					return err
				}
			}
		}
		if u.Tags != nil {
			if err := e.store.ClearFileTags(ctx, tx, id); err != nil {
				return err
			}
			for _, tagPath := range u.Tags {
				tagID, err := e.store.UpsertTagChain(ctx, tx, tagPath)
				if err != nil {
					return err
				}
				if err := e.store.LinkFileTag(ctx, tx, id, tagID); err != nil {
					return err
				}
			}
		}
		if u.TouchesProjection() {
			if err := e.store.Reproject(ctx, tx, id); err != nil {
				return err
			}
		}
		return e.store.AppendHistory(ctx, tx, &store.HistoryEntry{
			FileID:    id,
			Operation: store.OpUpdate,
			ChangedBy: "editor",
			Reason:    reason,
		})
	})
}

// UpdateField is the single-field convenience form of Update.
func (e *Editor) UpdateField(ctx context.Context, id, field, value string) error {
	u := &store.FileUpdate{}
	switch field {
	case "title":
		u.Title = &value
	case "publisher":
		u.Publisher = &value
	case "source_url":
		u.SourceURL = &value
	case "category1":
		u.Category1 = &value
	case "category2":
		u.Category2 = &value
	case "category3":
		u.Category3 = &value
	case "summary":
		u.Summary = &value
	case "full_text":
		u.FullText = &value
	case "file_metadata":
		u.FileMetadata = &value
	case "type_metadata":
		u.TypeMetadata = &value
	case "year":
		if value == "" {
			u.ClearYear = true
			break
		}
		var y int
		if _, err := fmt.Sscanf(value, "%d", &y); err != nil {
			return fmt.Errorf("%w: year %q is not a number", tberr.ErrConfigError, value)
		}
		u.Year = &y
	case "authors":
		u.Authors = splitList(value)
	case "tags":
		u.Tags = splitList(value)
	default:
		return fmt.Errorf("%w: unknown field %q", tberr.ErrConfigError, field)
	}
	return e.Update(ctx, id, u)
}

// splitList breaks a comma/semicolon separated value into entries.
func splitList(value string) []string {
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ';'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// SoftDelete flags a file deleted, drops its FTS row and appends a
// delete history row. The on-disk file is left in place for restore.
func (e *Editor) SoftDelete(ctx context.Context, id, reason string) (err error) {
	defer func() { log.Event("editor:delete", "delete").FileID(id).Write(err) }()

	return e.store.Tx(ctx, func(tx *sql.Tx) error {
		if err := e.store.SetDeleted(ctx, tx, id, true); err != nil {
			return err
		}
		if err := e.store.Reproject(ctx, tx, id); err != nil {
			return err
		}
		return e.store.AppendHistory(ctx, tx, &store.HistoryEntry{
			FileID:    id,
			Operation: store.OpDelete,
			ChangedBy: "editor",
			Reason:    reason,
		})
	})
}

// Restore un-deletes a file and re-creates its FTS row, returning it to
// the prior searchable state.
func (e *Editor) Restore(ctx context.Context, id string) (err error) {
	defer func() { log.Event("editor:restore", "restore").FileID(id).Write(err) }()

	return e.store.Tx(ctx, func(tx *sql.Tx) error {
		if err := e.store.SetDeleted(ctx, tx, id, false); err != nil {
			return err
		}
		if err := e.store.Reproject(ctx, tx, id); err != nil {
			return err
		}
		return e.store.AppendHistory(ctx, tx, &store.HistoryEntry{
			FileID:    id,
			Operation: store.OpUpdate,
			ChangedBy: "editor",
			Reason:    "restored",
		})
	})
}

// MoveFile recomputes the file's path from its current metadata and the
// current templates, moves the on-disk file, and records the move. The
// on-disk rename runs before the database transaction; if the
// transaction fails, the file is renamed back, and a failed rename-back
// is recorded as a repair-needed history row.
func (e *Editor) MoveFile(ctx context.Context, id string) (err error) {
	defer func() { log.Event("editor:move", "move").FileID(id).Write(err) }()

	f, err := e.store.GetFile(ctx, id)
	if err != nil {
		return err
	}
	newRel, err := e.targetPath(ctx, f)
	if err != nil {
		return err
	}
	if newRel == f.RelativePath {
		return nil
	}
	return e.applyMove(ctx, f, newRel)
}

// targetPath renders the destination for a file from current metadata,
// resolving collisions against other live rows by fingerprint suffix.
func (e *Editor) targetPath(ctx context.Context, f *store.FileEntry) (string, error) {
	ext := filepath.Ext(f.Filename)
	values := pathgen.Values{
		Title:     f.Title,
		Authors:   f.Authors,
		Year:      f.Year,
		Publisher: f.Publisher,
		Category1: f.Category1,
		Category2: f.Category2,
		Category3: f.Category3,
		Filename:  strings.TrimSuffix(f.Filename, ext),
		Ext:       ext,
	}
	rel, err := pathgen.Generate(values, e.cfg)
	if err != nil {
		return "", err
	}
	if rel == f.RelativePath {
		return rel, nil
	}
	taken, err := e.store.RelativePathExists(ctx, rel)
	if err != nil {
		return "", err
	}
	if taken {
		rel = pathgen.WithSuffix(rel, f.InitialHash)
	}
	return rel, nil
}

// applyMove performs the disk rename and the database update as one
// unit, undoing the rename if the transaction fails.
func (e *Editor) applyMove(ctx context.Context, f *store.FileEntry, newRel string) error {
	oldAbs := filepath.Join(e.cfg.LibraryPath(), filepath.FromSlash(f.RelativePath))
	newAbs := filepath.Join(e.cfg.LibraryPath(), filepath.FromSlash(newRel))

	moved := false
	if _, statErr := os.Stat(oldAbs); statErr == nil {
		if err := os.MkdirAll(filepath.Dir(newAbs), 0755); err != nil {
			return &tberr.IOFailureError{Path: newAbs, Err: err}
		}
		if err := os.Rename(oldAbs, newAbs); err != nil {
			return &tberr.IOFailureError{Path: oldAbs, Err: err}
		}
		moved = true
	}

	err := e.store.Tx(ctx, func(tx *sql.Tx) error {
		if err := e.store.SetFilePath(ctx, tx, f.ID, newRel, filepath.Base(newRel)); err != nil {
			return err
		}
		return e.store.AppendHistory(ctx, tx, &store.HistoryEntry{
			FileID:    f.ID,
			Operation: store.OpMove,
			OldPath:   f.RelativePath,
			NewPath:   newRel,
			ChangedBy: "editor",
		})
	})
	if err != nil && moved {
		// Best-effort compensation: put the file back where the
		// database still says it is.
		if rbErr := os.Rename(newAbs, oldAbs); rbErr != nil {
			_ = e.store.Tx(ctx, func(tx *sql.Tx) error {
				return e.store.AppendHistory(ctx, tx, &store.HistoryEntry{
					FileID:    f.ID,
					Operation: store.OpRepairNeeded,
					OldPath:   f.RelativePath,
					NewPath:   newRel,
					ChangedBy: "editor",
					Reason:    rbErr.Error(),
				})
			})
		}
	}
	return err
}

// RecordAccess bumps the access counter and appends an access history
// row in one transaction, so the counter always equals the number of
// access rows in the ledger.
func (e *Editor) RecordAccess(ctx context.Context, id string) error {
	return e.store.Tx(ctx, func(tx *sql.Tx) error {
		if _, err := e.store.FileRowID(ctx, tx, id); err != nil {
			return err
		}
		if err := e.store.BumpAccess(ctx, tx, id); err != nil {
			return err
		}
		return e.store.AppendHistory(ctx, tx, &store.HistoryEntry{
			FileID:    id,
			Operation: store.OpAccess,
			ChangedBy: "editor",
		})
	})
}

// UpdateFileHash rehashes the on-disk file and records the drift when
// the content changed. initial_hash is never touched.
func (e *Editor) UpdateFileHash(ctx context.Context, id string) (err error) {
	defer func() { log.Event("editor:rehash", "rehash").FileID(id).Write(err) }()

	f, err := e.store.GetFile(ctx, id)
	if err != nil {
		return err
	}
	abs := filepath.Join(e.cfg.LibraryPath(), filepath.FromSlash(f.RelativePath))
	newHash, err := hash.File(abs, e.cfg.HashAlgorithm())
	if err != nil {
		return err
	}
	if newHash == f.CurrentHash {
		return nil
	}
	info, err := os.Stat(abs)
	if err != nil {
		return &tberr.IOFailureError{Path: abs, Err: err}
	}

	return e.store.Tx(ctx, func(tx *sql.Tx) error {
		if err := e.store.SetCurrentHash(ctx, tx, id, newHash, info.Size()); err != nil {
			return err
		}
		size := info.Size()
		return e.store.AppendHistory(ctx, tx, &store.HistoryEntry{
			FileID:    id,
			Operation: store.OpUpdate,
			OldHash:   f.CurrentHash,
			NewHash:   newHash,
			NewSize:   &size,
			ChangedBy: "editor",
			Reason:    "content drift",
		})
	})
}

// PlannedMove is one entry of a rebuild report.
type PlannedMove struct {
	FileID string `json:"file_id"`
	From   string `json:"from"`
	To     string `json:"to"`
	Err    error  `json:"-"`
}

// Rebuild recomputes paths for one file (id != "") or the whole library
// from current metadata and templates. With apply false it only reports
// the moves; with apply true it performs them. Path rendering fans out
// across workers; moves themselves are applied sequentially since each
// is a store transaction.
func (e *Editor) Rebuild(ctx context.Context, id string, apply bool, workers int) ([]PlannedMove, error) {
	var files []store.FileEntry
	if id != "" {
		f, err := e.store.GetFile(ctx, id)
		if err != nil {
			return nil, err
		}
		files = []store.FileEntry{*f}
	} else {
		var err error
		files, err = e.store.ListFilesUnderPath(ctx, "", true)
		if err != nil {
			return nil, err
		}
	}

	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(files) {
		workers = len(files)
	}
	if workers < 1 {
		workers = 1
	}

	planned := make([]PlannedMove, len(files))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				f := files[i]
				rel, err := e.targetPath(ctx, &f)
				planned[i] = PlannedMove{FileID: f.ID, From: f.RelativePath, To: rel, Err: err}
			}
		}()
	}
	for i := range files {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	var moves []PlannedMove
	for i := range planned {
		if planned[i].Err != nil || planned[i].From != planned[i].To {
			moves = append(moves, planned[i])
		}
	}
	if !apply {
		return moves, nil
	}

	for i := range moves {
		if moves[i].Err != nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			moves[i].Err = fmt.Errorf("%w: %v", tberr.ErrCancelled, err)
			continue
		}
		f := findFile(files, moves[i].FileID)
		moves[i].Err = e.applyMove(ctx, f, moves[i].To)
	}
	return moves, nil
}

func findFile(files []store.FileEntry, id string) *store.FileEntry {
	for i := range files {
		if files[i].ID == id {
			return &files[i]
		}
	}
	return nil
}
