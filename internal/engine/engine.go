// Package engine wires the store and every component into one concrete
// implementation of service.Service. An Engine is an instance (nothing
// but the audit logger is process-global) and all collaborators receive
// it explicitly. Two engines over the same library are not supported.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/tagbox/core/internal/author"
	"github.com/tagbox/core/internal/config"
	"github.com/tagbox/core/internal/editor"
	"github.com/tagbox/core/internal/history"
	"github.com/tagbox/core/internal/importer"
	"github.com/tagbox/core/internal/link"
	"github.com/tagbox/core/internal/log"
	"github.com/tagbox/core/internal/metainfo"
	"github.com/tagbox/core/internal/search"
	"github.com/tagbox/core/internal/service"
	"github.com/tagbox/core/internal/store"
	"github.com/tagbox/core/internal/tberr"
	"github.com/tagbox/core/internal/validate"
)

// Engine is the concrete service.Service over one library.
type Engine struct {
	cfg       *config.Config
	store     *store.Store
	importer  *importer.Importer
	editor    *editor.Editor
	searcher  *search.Searcher
	links     *link.Manager
	authors   *author.Registry
	validator *validate.Validator
}

// Compile-time interface compliance check: a missing or mis-signed
// method fails the build rather than a runtime call.
var _ service.Service = (*Engine)(nil)

// New opens (or initializes) the library named by the config and returns
// a ready engine. The configuration is validated first, the database is
// bootstrapped idempotently, and on first initialization the
// compatibility-relevant settings are recorded into system_config.
func New(cfg *config.Config) (*Engine, error) {
	// Config sentinels are bridged into the taxonomy here so every
	// caller, the RPC surface included, sees ConfigError.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", tberr.ErrConfigError, err)
	}

	s, err := store.Open(cfg.DatabasePath(), store.Options{
		JournalMode:    cfg.Database.JournalMode,
		SyncMode:       cfg.Database.SyncMode,
		MaxConnections: cfg.MaxConnections(),
		BusyTimeout:    cfg.BusyTimeoutMillis(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", tberr.ErrDatabaseError, err)
	}

	ctx := context.Background()
	fresh, err := s.Bootstrap(ctx)
	if err != nil {
		s.Close()
		return nil, err
	}
	if fresh {
		if err := validate.RecordConfig(ctx, s, cfg); err != nil {
			s.Close()
			return nil, err
		}
	}

	if abs, aerr := filepath.Abs(cfg.LibraryPath()); aerr == nil {
		log.SetLibrary(abs)
	}

	return &Engine{
		cfg:       cfg,
		store:     s,
		importer:  importer.New(s, cfg),
		editor:    editor.New(s, cfg),
		searcher:  search.New(s, cfg),
		links:     link.New(s),
		authors:   author.New(s),
		validator: validate.New(s, cfg),
	}, nil
}

// InitDatabase bootstraps a library database at the given path without
// keeping an engine open. Idempotent on an already-initialized database.
func InitDatabase(path string, cfg *config.Config) error {
	override := *cfg
	override.Database.Path = path
	e, err := New(&override)
	if err != nil {
		return err
	}
	return e.Close()
}

// Close checkpoints the WAL and closes the database connection.
func (e *Engine) Close() error {
	if err := e.store.Checkpoint(context.Background()); err != nil {
		log.Event("engine:close", "checkpoint").Detail("error", err.Error()).Write(err)
	}
	return e.store.Close()
}

// Config returns the configuration the engine was opened with.
func (e *Engine) Config() *config.Config { return e.cfg }

// DB returns the underlying SQLite connection.
func (e *Engine) DB() *sql.DB { return e.store.DB() }

// Store exposes the typed store for tests and extensions.
func (e *Engine) Store() *store.Store { return e.store }

func (e *Engine) ExtractMetainfo(path string) (*metainfo.ImportMetadata, error) {
	return e.importer.ExtractMetainfo(path)
}

func (e *Engine) ImportFile(ctx context.Context, path string, meta *metainfo.ImportMetadata) (*store.FileEntry, error) {
	return e.importer.ImportFile(ctx, path, meta)
}

func (e *Engine) ImportFiles(ctx context.Context, paths []string) []importer.Result {
	return e.importer.ImportFiles(ctx, paths)
}

func (e *Engine) Search(ctx context.Context, query string, opts store.ListOptions) (*search.Result, error) {
	return e.searcher.Search(ctx, query, opts)
}

func (e *Engine) FuzzySearch(ctx context.Context, partial string, opts store.ListOptions) (*search.Result, error) {
	return e.searcher.FuzzySearch(ctx, partial, opts)
}

func (e *Engine) QueryDebug(ctx context.Context, query string) (*search.Debug, error) {
	return e.searcher.QueryDebug(ctx, query)
}

func (e *Engine) GetFile(ctx context.Context, id string) (*store.FileEntry, error) {
	return e.store.GetFile(ctx, id)
}

// GetFilePath returns the absolute on-disk location of a file.
func (e *Engine) GetFilePath(ctx context.Context, id string) (string, error) {
	f, err := e.store.GetFile(ctx, id)
	if err != nil {
		return "", err
	}
	return filepath.Abs(filepath.Join(e.cfg.LibraryPath(), filepath.FromSlash(f.RelativePath)))
}

func (e *Engine) List(ctx context.Context, opts store.ListOptions) ([]store.FileEntry, int64, error) {
	if opts.Limit <= 0 {
		opts.Limit = e.cfg.SearchLimit()
	}
	return e.store.ListFiles(ctx, opts)
}

func (e *Engine) UpdateFile(ctx context.Context, id string, u *store.FileUpdate) error {
	return e.editor.Update(ctx, id, u)
}

func (e *Engine) UpdateField(ctx context.Context, id, field, value string) error {
	return e.editor.UpdateField(ctx, id, field, value)
}

func (e *Engine) MoveFile(ctx context.Context, id string) error {
	return e.editor.MoveFile(ctx, id)
}

func (e *Engine) SoftDelete(ctx context.Context, id, reason string) error {
	return e.editor.SoftDelete(ctx, id, reason)
}

func (e *Engine) Restore(ctx context.Context, id string) error {
	return e.editor.Restore(ctx, id)
}

func (e *Engine) RecordAccess(ctx context.Context, id string) error {
	return e.editor.RecordAccess(ctx, id)
}

func (e *Engine) UpdateFileHash(ctx context.Context, id string) error {
	return e.editor.UpdateFileHash(ctx, id)
}

func (e *Engine) Rebuild(ctx context.Context, id string, apply bool, workers int) ([]editor.PlannedMove, error) {
	return e.editor.Rebuild(ctx, id, apply, workers)
}

func (e *Engine) History(ctx context.Context, id string, limit int) ([]store.HistoryEntry, error) {
	return history.List(ctx, e.store, id, limit)
}

func (e *Engine) LinkFiles(ctx context.Context, source, target, relation string) error {
	return e.links.Link(ctx, source, target, relation, "")
}

func (e *Engine) UnlinkFiles(ctx context.Context, source, target string) error {
	return e.links.Unlink(ctx, source, target, "")
}

func (e *Engine) OutgoingLinks(ctx context.Context, id string) ([]store.Link, error) {
	return e.links.Outgoing(ctx, id)
}

func (e *Engine) IncomingLinks(ctx context.Context, id string) ([]store.Link, error) {
	return e.links.Incoming(ctx, id)
}

func (e *Engine) AddAuthor(ctx context.Context, name string) (*store.Author, error) {
	return e.authors.Add(ctx, name)
}

func (e *Engine) RemoveAuthor(ctx context.Context, id string) error {
	return e.authors.Remove(ctx, id)
}

func (e *Engine) MergeAuthors(ctx context.Context, from, to string) error {
	return e.authors.Merge(ctx, from, to)
}

func (e *Engine) ResolveAuthor(ctx context.Context, name string) (*store.Author, error) {
	return e.authors.Resolve(ctx, name)
}

func (e *Engine) ValidateFilesInPath(ctx context.Context, root string, recursive bool, mode validate.DriftMode) (*validate.Report, error) {
	return e.validator.ValidateFilesInPath(ctx, root, recursive, mode)
}

func (e *Engine) CheckConfigCompatibility(ctx context.Context) error {
	return e.validator.CheckConfigCompatibility(ctx)
}

func (e *Engine) AccessStats(ctx context.Context, id string) (*store.AccessStats, error) {
	return e.store.Access(ctx, id)
}
