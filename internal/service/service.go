// Package service defines the shared interface for library operations,
// the public API facade. The CLI driver, the stdio RPC loop and the MCP
// tools all depend on this interface rather than concrete
// implementations, enabling testing with mocks and future backend
// changes.
package service

import (
	"context"
	"database/sql"

	"github.com/tagbox/core/internal/config"
	"github.com/tagbox/core/internal/editor"
	"github.com/tagbox/core/internal/importer"
	"github.com/tagbox/core/internal/metainfo"
	"github.com/tagbox/core/internal/search"
	"github.com/tagbox/core/internal/store"
	"github.com/tagbox/core/internal/validate"
)

// Service exposes every public library operation.
//
// Obtain an implementation with engine.New() and always call Close()
// when done (use defer):
//
//	svc, err := engine.New(cfg)
//	if err != nil {
//	    return err
//	}
//	defer svc.Close()
//	entry, err := svc.ImportFile(ctx, "/tmp/intro.pdf", nil)
type Service interface {
	// Close releases database resources. Always defer this after New().
	Close() error

	// Config returns the configuration the engine was opened with.
	Config() *config.Config

	// ExtractMetainfo runs the metadata extractor without importing.
	ExtractMetainfo(path string) (*metainfo.ImportMetadata, error)

	// ImportFile runs the full import pipeline for one file. A nil meta
	// lets the extractor populate everything; a non-empty one wins over
	// extraction field by field.
	ImportFile(ctx context.Context, path string, meta *metainfo.ImportMetadata) (*store.FileEntry, error)

	// ImportFiles imports a batch: hashing and extraction in parallel,
	// writes sequential. Per-file outcomes; the batch never fails whole.
	ImportFiles(ctx context.Context, paths []string) []importer.Result

	// Search executes a DSL query. Empty query matches all live files.
	Search(ctx context.Context, query string, opts store.ListOptions) (*search.Result, error)

	// FuzzySearch prefix-matches a partial input across title, authors
	// and tags, for autocomplete.
	FuzzySearch(ctx context.Context, partial string, opts store.ListOptions) (*search.Result, error)

	// QueryDebug returns the SQL, parameters and estimated row count for
	// a DSL query without executing the page query.
	QueryDebug(ctx context.Context, query string) (*search.Debug, error)

	// GetFile returns one file with authors and tags hydrated.
	GetFile(ctx context.Context, id string) (*store.FileEntry, error)

	// GetFilePath returns the absolute on-disk path of a file.
	GetFilePath(ctx context.Context, id string) (string, error)

	// List returns a page of files plus the total count.
	List(ctx context.Context, opts store.ListOptions) ([]store.FileEntry, int64, error)

	// UpdateFile applies a field-level update request.
	UpdateFile(ctx context.Context, id string, u *store.FileUpdate) error

	// UpdateField updates one named field from its string form.
	UpdateField(ctx context.Context, id, field, value string) error

	// MoveFile recomputes the file's path from current metadata and
	// moves it on disk.
	MoveFile(ctx context.Context, id string) error

	// SoftDelete flags a file deleted; it drops out of search until
	// restored.
	SoftDelete(ctx context.Context, id, reason string) error

	// Restore un-deletes a soft-deleted file.
	Restore(ctx context.Context, id string) error

	// RecordAccess bumps the access counter and appends an access
	// history row.
	RecordAccess(ctx context.Context, id string) error

	// UpdateFileHash rehashes the on-disk file and records drift.
	UpdateFileHash(ctx context.Context, id string) error

	// Rebuild recomputes paths for one file (id != "") or the whole
	// library; apply false only reports the moves.
	Rebuild(ctx context.Context, id string, apply bool, workers int) ([]editor.PlannedMove, error)

	// History returns a file's ledger, newest first. limit 0 means all.
	History(ctx context.Context, id string, limit int) ([]store.HistoryEntry, error)

	// LinkFiles records source -> target under a relation label.
	LinkFiles(ctx context.Context, source, target, relation string) error

	// UnlinkFiles removes every edge between the pair, whatever its relation.
	UnlinkFiles(ctx context.Context, source, target string) error

	// OutgoingLinks returns edges whose source is the file.
	OutgoingLinks(ctx context.Context, id string) ([]store.Link, error)

	// IncomingLinks returns edges whose target is the file.
	IncomingLinks(ctx context.Context, id string) ([]store.Link, error)

	// AddAuthor creates a new author.
	AddAuthor(ctx context.Context, name string) (*store.Author, error)

	// RemoveAuthor soft-deletes an author and detaches its files.
	RemoveAuthor(ctx context.Context, id string) error

	// MergeAuthors records from as an alias of to and re-points files.
	MergeAuthors(ctx context.Context, from, to string) error

	// ResolveAuthor resolves a name to its canonical author, or nil.
	ResolveAuthor(ctx context.Context, name string) (*store.Author, error)

	// ValidateFilesInPath checks database rows under root against disk.
	ValidateFilesInPath(ctx context.Context, root string, recursive bool, mode validate.DriftMode) (*validate.Report, error)

	// CheckConfigCompatibility compares config against stored system
	// config; mismatches surface as ConfigDrift.
	CheckConfigCompatibility(ctx context.Context) error

	// AccessStats returns a file's access counters.
	AccessStats(ctx context.Context, id string) (*store.AccessStats, error)

	// DB returns the underlying SQLite connection for callers that need
	// raw access. Do not close it directly; use Service.Close().
	DB() *sql.DB
}
