// Package log provides centralised audit logging for engine operations.
// Logs are stored in ~/.tagbox/log/tagbox-log.db and track every
// state-changing operation across libraries, distinct from the per-file
// domain history in the library database itself.
//
// # Fluent API
//
// Use the fluent builder API to construct and write log entries:
//
//	log.Event("importer:import", "import").
//		Path(src).
//		FileID(entry.ID).
//		Write(err)
//
//	log.Event("rpc:search", "search").
//		Detail("query", query).
//		Detail("count", len(result.Entries)).
//		Write(err)
//
// The source parameter follows the format "{component}:{operation}" for
// engine operations or "rpc:{cmd}" for stdio RPC calls.
package log

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

var (
	global *Logger
	mu     sync.Mutex
)

// Entry represents a single audit log entry.
type Entry struct {
	Source string // e.g., "importer:import", "rpc:search"
	Actor  string // who performed the action (cli user, "rpc", ...)
	Action string // verb: import, update, delete, search, move, ...
	Path   string // input: filesystem path or relative library path
	FileID string // the file the operation targeted, once known

	// Timing
	Start int64 // unix timestamp when Event() called
	End   int64 // unix timestamp when Write() called

	Success bool           // whether operation succeeded
	Error   string         // error message if failed
	Detail  map[string]any // additional operation-specific data
}

// Builder constructs a log entry using a fluent API.
// Create with [Event], chain methods to set fields, then call
// [Builder.Write] to write the entry.
type Builder struct {
	entry Entry
}

// Event creates a new log entry builder for an operation.
//
// The source identifies where the operation originated:
//   - engine components: "{component}:{operation}" (e.g., "importer:import", "editor:move")
//   - stdio RPC: "rpc:{cmd}" (e.g., "rpc:import_file")
//
// The action describes what was performed: "import", "update", "delete",
// "restore", "move", "merge", "validate", etc.
func Event(source, action string) *Builder {
	return &Builder{
		entry: Entry{
			Source: source,
			Action: action,
			Start:  time.Now().Unix(),
		},
	}
}

// Actor sets who performed the operation.
func (b *Builder) Actor(actor string) *Builder {
	b.entry.Actor = actor
	return b
}

// Path sets the filesystem or library path this operation affects.
func (b *Builder) Path(path string) *Builder {
	b.entry.Path = path
	return b
}

// FileID sets the id of the file the operation targeted.
func (b *Builder) FileID(id string) *Builder {
	b.entry.FileID = id
	return b
}

// Detail adds a key-value pair to the log entry's detail map.
// Can be called multiple times to add multiple details.
func (b *Builder) Detail(key string, value any) *Builder {
	if b.entry.Detail == nil {
		b.entry.Detail = make(map[string]any)
	}
	b.entry.Detail[key] = value
	return b
}

// Write writes the log entry to the database, deriving success/failure
// from err. This is the standard way to complete a log entry after an
// operation:
//
//	entry, err := importer.ImportFile(ctx, path, meta)
//	log.Event("importer:import", "import").Path(path).Write(err)
func (b *Builder) Write(err error) {
	b.entry.End = time.Now().Unix()
	b.entry.Success = err == nil
	if err != nil {
		b.entry.Error = err.Error()
	}
	Log(b.entry)
}

// Open initialises the global logger. Safe to call multiple times.
// Errors are returned but callers may choose to ignore them
// (best-effort logging).
func Open() error {
	mu.Lock()
	defer mu.Unlock()

	if global != nil {
		return nil
	}

	p := dbPath()
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return err
	}

	db, err := sql.Open("sqlite", p)
	if err != nil {
		return err
	}

	if err := migrate(db); err != nil {
		db.Close()
		return err
	}

	global = &Logger{db: db}
	return nil
}

// SetLibrary sets the library identifier for subsequent log entries.
// The dir should be the absolute path to the library root.
func SetLibrary(dir string) {
	mu.Lock()
	defer mu.Unlock()
	if global != nil {
		global.library = hash(dir)
	}
}

// Log writes an entry. Safe to call if logger not initialised (no-op).
func Log(e Entry) {
	mu.Lock()
	l := global
	mu.Unlock()

	if l == nil {
		return
	}
	l.log(e)
}

// Close closes the global logger.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if global != nil {
		global.db.Close()
		global = nil
	}
}
