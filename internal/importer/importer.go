// Package importer orchestrates the import pipeline: hash, extract
// metadata, generate the destination path, insert transactionally, then
// place the file into the library.
//
// The database is the source of truth. The filesystem step runs after the
// transaction commits; if it fails, a repair_needed history row is
// appended instead of leaving the database and disk silently divergent,
// and the validator reconciles later.
package importer

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/tagbox/core/internal/author"
	"github.com/tagbox/core/internal/config"
	"github.com/tagbox/core/internal/hash"
	"github.com/tagbox/core/internal/log"
	"github.com/tagbox/core/internal/metainfo"
	"github.com/tagbox/core/internal/pathgen"
	"github.com/tagbox/core/internal/progress"
	"github.com/tagbox/core/internal/store"
	"github.com/tagbox/core/internal/tberr"
)

// Importer runs the import pipeline against one store and config.
type Importer struct {
	store   *store.Store
	cfg     *config.Config
	authors *author.Registry
}

// New creates an importer over the given store and config.
func New(s *store.Store, cfg *config.Config) *Importer {
	return &Importer{store: s, cfg: cfg, authors: author.New(s)}
}

// Result is the per-file outcome of a batch import. Exactly one of Entry
// and Err is set.
type Result struct {
	Path  string           `json:"path"`
	Entry *store.FileEntry `json:"entry,omitempty"`
	Err   error            `json:"-"`
}

// ExtractMetainfo exposes the metadata extractor under the importer's
// public surface.
func (im *Importer) ExtractMetainfo(path string) (*metainfo.ImportMetadata, error) {
	return metainfo.Extract(path, im.cfg)
}

// ImportFile runs the full pipeline for a single file. A nil or empty
// meta argument makes the importer extract metadata itself; a non-empty
// one is merged over the extraction with the argument winning.
func (im *Importer) ImportFile(ctx context.Context, path string, meta *metainfo.ImportMetadata) (*store.FileEntry, error) {
	initialHash, err := hash.File(path, im.cfg.HashAlgorithm())
	if err != nil {
		return nil, err
	}
	return im.importHashed(ctx, path, initialHash, meta)
}

// ImportFiles imports a batch in two phases: hashing and extraction fan
// out across a worker pool sized by the CPU count, then writes run
// sequentially against the single-writer store. Per-file failures land in
// the matching Result; the batch itself never fails.
func (im *Importer) ImportFiles(ctx context.Context, paths []string) []Result {
	type prepared struct {
		hash string
		meta *metainfo.ImportMetadata
		err  error
	}
	prep := make([]prepared, len(paths))

	workers := runtime.NumCPU()
	if workers > len(paths) {
		workers = len(paths)
	}
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if err := ctx.Err(); err != nil {
					prep[i].err = fmt.Errorf("%w: %v", tberr.ErrCancelled, err)
					continue
				}
				h, err := hash.File(paths[i], im.cfg.HashAlgorithm())
				if err != nil {
					prep[i].err = err
					continue
				}
				m, err := metainfo.Extract(paths[i], im.cfg)
				if err != nil {
					prep[i].err = err
					continue
				}
				prep[i].hash, prep[i].meta = h, m
			}
		}()
	}
	for i := range paths {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	p := progress.New("Importing", len(paths))
	results := make([]Result, len(paths))
	for i, path := range paths {
		results[i].Path = path
		if prep[i].err != nil {
			results[i].Err = prep[i].err
		} else if err := ctx.Err(); err != nil {
			results[i].Err = fmt.Errorf("%w: %v", tberr.ErrCancelled, err)
		} else {
			entry, err := im.importHashed(ctx, path, prep[i].hash, prep[i].meta)
			results[i].Entry, results[i].Err = entry, err
		}
		p.Increment()
		p.Print()
	}
	p.Done()
	return results
}

// importHashed is the write half of the pipeline, entered with the
// initial hash already computed.
func (im *Importer) importHashed(ctx context.Context, path, initialHash string, meta *metainfo.ImportMetadata) (entry *store.FileEntry, err error) {
	defer func() {
		log.Event("importer:import", "import").Path(path).Write(err)
	}()

	// Duplicate check against live and deleted rows alike: initial_hash
	// is globally unique.
	existing, err := im.store.FileByInitialHash(ctx, initialHash)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &tberr.DuplicateHashError{Hash: initialHash}
	}

	extracted, err := metainfo.Extract(path, im.cfg)
	if err != nil {
		return nil, err
	}
	meta = metainfo.Merge(extracted, meta)

	cats, err := splitCategory(meta.Category)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, &tberr.IOFailureError{Path: path, Err: err}
	}

	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(filepath.Base(path), ext)
	values := pathgen.Values{
		Title:     meta.Title,
		Authors:   meta.Authors,
		Year:      meta.Year,
		Publisher: meta.Publisher,
		Category1: cats[0],
		Category2: cats[1],
		Category3: cats[2],
		Filename:  stem,
		Ext:       ext,
	}
	relPath, err := pathgen.Generate(values, im.cfg)
	if err != nil {
		return nil, err
	}
	relPath, err = im.resolveCollision(ctx, relPath, initialHash)
	if err != nil {
		return nil, err
	}

	id, err := store.GenID()
	if err != nil {
		return nil, err
	}

	fileMeta := "{}"
	if len(meta.FileMetadata) > 0 {
		if b, merr := json.Marshal(meta.FileMetadata); merr == nil {
			fileMeta = string(b)
		}
	}

	entry = &store.FileEntry{
		ID:           id,
		InitialHash:  initialHash,
		CurrentHash:  initialHash,
		RelativePath: relPath,
		Filename:     filepath.Base(relPath),
		Title:        meta.Title,
		Size:         info.Size(),
		Year:         meta.Year,
		Publisher:    meta.Publisher,
		SourceURL:    meta.SourceURL,
		Category1:    cats[0],
		Category2:    cats[1],
		Category3:    cats[2],
		Summary:      meta.Summary,
		FullText:     meta.FullText,
		FileMetadata: fileMeta,
	}

	err = im.store.Tx(ctx, func(tx *sql.Tx) error {
		if err := im.store.InsertFile(ctx, tx, entry); err != nil {
			return err
		}
		for _, name := range meta.Authors {
			authorID, err := im.authors.EnsureIn(ctx, tx, name)
			if err != nil {
				return err
			}
			if err := im.store.LinkFileAuthor(ctx, tx, id, authorID); err != nil {
				return err
			}
		}
		for _, tagPath := range meta.Tags {
			tagID, err := im.store.UpsertTagChain(ctx, tx, tagPath)
			if err != nil {
				return err
			}
			if err := im.store.LinkFileTag(ctx, tx, id, tagID); err != nil {
				return err
			}
		}
		if err := im.store.Reproject(ctx, tx, id); err != nil {
			return err
		}
		size := info.Size()
		return im.store.AppendHistory(ctx, tx, &store.HistoryEntry{
			FileID:    id,
			Operation: store.OpCreate,
			NewHash:   initialHash,
			NewPath:   relPath,
			NewSize:   &size,
			ChangedBy: "importer",
		})
	})
	if err != nil {
		return nil, err
	}

	// Filesystem placement happens after commit. A failure here appends
	// repair_needed rather than unwinding the committed import.
	if perr := im.placeFile(path, relPath, initialHash); perr != nil {
		_ = im.store.Tx(ctx, func(tx *sql.Tx) error {
			return im.store.AppendHistory(ctx, tx, &store.HistoryEntry{
				FileID:    id,
				Operation: store.OpRepairNeeded,
				NewPath:   relPath,
				ChangedBy: "importer",
				Reason:    perr.Error(),
			})
		})
		return entry, nil
	}

	hydrated, err := im.store.GetFile(ctx, id)
	if err != nil {
		return entry, nil
	}
	return hydrated, nil
}

// resolveCollision appends a short fingerprint suffix when the generated
// path is already taken in the database or on disk.
func (im *Importer) resolveCollision(ctx context.Context, relPath, initialHash string) (string, error) {
	taken, err := im.store.RelativePathExists(ctx, relPath)
	if err != nil {
		return "", err
	}
	if !taken {
		if _, err := os.Stat(filepath.Join(im.cfg.LibraryPath(), filepath.FromSlash(relPath))); err == nil {
			taken = true
		}
	}
	if taken {
		relPath = pathgen.WithSuffix(relPath, initialHash)
	}
	return relPath, nil
}

// placeFile copies, moves or symlinks the source into the library per
// import.copy_mode, then verifies and mirrors per config.
func (im *Importer) placeFile(src, relPath, wantHash string) error {
	dst := filepath.Join(im.cfg.LibraryPath(), filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return &tberr.IOFailureError{Path: dst, Err: err}
	}

	switch im.cfg.CopyModeOrDefault() {
	case config.CopyModeMove:
		if err := moveFile(src, dst); err != nil {
			return err
		}
	case config.CopyModeLink:
		abs, err := filepath.Abs(src)
		if err != nil {
			return &tberr.IOFailureError{Path: src, Err: err}
		}
		if err := os.Symlink(abs, dst); err != nil {
			return &tberr.IOFailureError{Path: dst, Err: err}
		}
	default: // copy
		if err := copyFile(src, dst); err != nil {
			return err
		}
	}

	if im.cfg.VerifyOnImport() {
		got, err := hash.File(dst, im.cfg.HashAlgorithm())
		if err != nil {
			return err
		}
		if got != wantHash {
			return fmt.Errorf("%w: %s hashed %s, expected %s", tberr.ErrIntegrityDrift, dst, got, wantHash)
		}
	}

	if im.cfg.BackupEnabled() && im.cfg.Storage.BackupPath != "" {
		backup := filepath.Join(im.cfg.Storage.BackupPath, filepath.FromSlash(relPath))
		if err := os.MkdirAll(filepath.Dir(backup), 0755); err != nil {
			return &tberr.IOFailureError{Path: backup, Err: err}
		}
		if err := copyFile(dst, backup); err != nil {
			return err
		}
	}
	return nil
}

// splitCategory breaks "a/b/c" into the three denormalized category
// columns. Four or more segments is a ConfigError at import time.
func splitCategory(category string) ([3]string, error) {
	var out [3]string
	if category == "" {
		return out, nil
	}
	segs := store.SplitTagPath(category)
	if len(segs) > 3 {
		return out, fmt.Errorf("%w: category %q has more than three segments", tberr.ErrConfigError, category)
	}
	copy(out[:], segs)
	return out, nil
}

// copyFile streams src into dst, fsyncing before close.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return &tberr.IOFailureError{Path: src, Err: err}
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return &tberr.IOFailureError{Path: dst, Err: err}
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return &tberr.IOFailureError{Path: dst, Err: err}
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return &tberr.IOFailureError{Path: dst, Err: err}
	}
	if err := out.Close(); err != nil {
		return &tberr.IOFailureError{Path: dst, Err: err}
	}
	return nil
}

// moveFile renames when possible, degrading to copy+remove across
// filesystem boundaries.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	if err := os.Remove(src); err != nil {
		return &tberr.IOFailureError{Path: src, Err: err}
	}
	return nil
}
