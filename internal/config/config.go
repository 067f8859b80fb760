// Package config loads and validates tagbox-core's declarative
// configuration. Supports both global (~/.tagbox/config.yaml) and local
// (.tagbox/config.yaml) scopes.
// Reading: uses local if it exists, otherwise global.
// Writing: defaults to global, use --local for local.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tagbox/core/internal/hash"
)

var (
	// ErrNoConfigPath is returned when the config path cannot be determined.
	ErrNoConfigPath = errors.New("cannot determine config path")
	// ErrUnknownKey is returned when getting/setting an unknown config key.
	ErrUnknownKey = errors.New("unknown config key")
	// ErrInvalidValue is returned when a config value is invalid.
	ErrInvalidValue = errors.New("invalid config value")
)

// Scope represents the configuration scope (global or local).
type Scope int

const (
	// ScopeGlobal is user-wide config in ~/.tagbox/config.yaml (default)
	ScopeGlobal Scope = iota
	// ScopeLocal is library-specific config in .tagbox/config.yaml
	ScopeLocal
)

// CopyMode selects how the importer places source files into the library.
type CopyMode string

const (
	CopyModeCopy CopyMode = "copy"
	CopyModeMove CopyMode = "move"
	CopyModeLink CopyMode = "link"
)

// Database holds store connection settings.
type Database struct {
	Path           string `yaml:"path,omitempty"`
	JournalMode    string `yaml:"journal_mode,omitempty"`
	SyncMode       string `yaml:"sync_mode,omitempty"`
	MaxConnections *int   `yaml:"max_connections,omitempty"`
	BusyTimeout    *int   `yaml:"busy_timeout,omitempty"`
}

// Storage holds the library root and backup settings.
type Storage struct {
	LibraryPath   string `yaml:"library_path,omitempty"`
	BackupEnabled *bool  `yaml:"backup_enabled,omitempty"`
	BackupPath    string `yaml:"backup_path,omitempty"`
}

// ImportPaths holds the path templates consumed by the path generator.
type ImportPaths struct {
	StorageDir       string `yaml:"storage_dir,omitempty"`
	RenameTemplate   string `yaml:"rename_template,omitempty"`
	ClassifyTemplate string `yaml:"classify_template,omitempty"`
}

// ImportMetadata holds the metadata extractor's resolution toggles.
type ImportMetadata struct {
	PreferJSON      *bool  `yaml:"prefer_json,omitempty"`
	FallbackPDF     *bool  `yaml:"fallback_pdf,omitempty"`
	DefaultCategory string `yaml:"default_category,omitempty"`
}

// Import holds every import-related option, the flat
// auto_rename/naming_template/copy_mode trio alongside the structured
// paths.* templates.
type Import struct {
	AutoRename     *bool          `yaml:"auto_rename,omitempty"`
	NamingTemplate string         `yaml:"naming_template,omitempty"`
	CopyMode       CopyMode       `yaml:"copy_mode,omitempty"`
	Paths          ImportPaths    `yaml:"paths,omitempty"`
	Metadata       ImportMetadata `yaml:"metadata,omitempty"`
}

// Search holds the search component's options.
type Search struct {
	DefaultLimit       *int   `yaml:"default_limit,omitempty"`
	EnableFTS          *bool  `yaml:"enable_fts,omitempty"`
	FTSLanguage        string `yaml:"fts_language,omitempty"`
	FuzzySearchEnabled *bool  `yaml:"fuzzy_search_enabled,omitempty"`
}

// Hash holds the hashing component's options.
type Hash struct {
	Algorithm      string `yaml:"algorithm,omitempty"`
	VerifyOnImport *bool  `yaml:"verify_on_import,omitempty"`
}

// Defaults applied when the corresponding pointer or string field is unset.
const (
	DefaultMaxConnections    = 8
	DefaultBusyTimeoutMillis = 5000
	DefaultSearchLimit       = 50
	DefaultFTSLanguage       = "simple"
	DefaultHashAlgorithm     = hash.Blake3
	DefaultRenameTemplate    = "{title}_{authors}_{year}"
	DefaultClassifyTemplate  = "{category1}/{filename}"
	DefaultDatabasePath      = "./tagbox_data/meta.db"
	DefaultLibraryPath       = "./tagbox_data/files"
	DefaultCategory          = "uncategorized"
)

// Config contains configuration for the engine.
type Config struct {
	Database Database `yaml:"database,omitempty"`
	Storage  Storage  `yaml:"storage,omitempty"`
	Import   Import   `yaml:"import,omitempty"`
	Search   Search   `yaml:"search,omitempty"`
	Hash     Hash     `yaml:"hash,omitempty"`

	// path is the file this config was loaded from (for Save)
	path  string
	scope Scope
}

// Validate checks that configured values are coherent. Placeholder
// validity is checked here, once, rather than at import time.
func (c *Config) Validate() error {
	rename := c.Import.Paths.RenameTemplate
	if rename == "" {
		rename = DefaultRenameTemplate
	}
	if !strings.Contains(rename, "{title}") {
		return fmt.Errorf("%w: import.paths.rename_template must contain {title}", ErrInvalidValue)
	}
	if err := validatePlaceholders(rename); err != nil {
		return err
	}

	classify := c.Import.Paths.ClassifyTemplate
	if classify == "" {
		classify = DefaultClassifyTemplate
	}
	if !strings.Contains(classify, "{filename}") {
		return fmt.Errorf("%w: import.paths.classify_template must contain {filename}", ErrInvalidValue)
	}
	if err := validatePlaceholders(classify); err != nil {
		return err
	}

	switch c.Import.CopyMode {
	case "", CopyModeCopy, CopyModeMove, CopyModeLink:
	default:
		return fmt.Errorf("%w: import.copy_mode %q", ErrInvalidValue, c.Import.CopyMode)
	}
	if c.Import.CopyMode == CopyModeLink && c.BackupEnabled() {
		return fmt.Errorf("%w: import.copy_mode=link is incompatible with storage.backup_enabled=true", ErrInvalidValue)
	}

	algo := c.Hash.Algorithm
	if algo == "" {
		algo = DefaultHashAlgorithm
	}
	if !hash.Valid(algo) {
		return fmt.Errorf("%w: hash.algorithm %q", ErrInvalidValue, algo)
	}

	if c.Database.MaxConnections != nil && *c.Database.MaxConnections < 1 {
		return fmt.Errorf("%w: database.max_connections must be >= 1", ErrInvalidValue)
	}
	if c.Search.DefaultLimit != nil && *c.Search.DefaultLimit < 1 {
		return fmt.Errorf("%w: search.default_limit must be >= 1", ErrInvalidValue)
	}
	return nil
}

var knownPlaceholders = map[string]bool{
	"title": true, "authors": true, "year": true, "publisher": true,
	"category1": true, "category2": true, "category3": true, "filename": true,
}

func validatePlaceholders(template string) error {
	i := 0
	for i < len(template) {
		if template[i] != '{' {
			i++
			continue
		}
		end := strings.IndexByte(template[i:], '}')
		if end < 0 {
			return fmt.Errorf("%w: unterminated placeholder in %q", ErrInvalidValue, template)
		}
		name := template[i+1 : i+end]
		if !knownPlaceholders[name] {
			return fmt.Errorf("%w: unknown placeholder {%s} in %q", ErrInvalidValue, name, template)
		}
		i += end + 1
	}
	return nil
}

// MaxConnections returns the configured pool size (defaults to DefaultMaxConnections).
func (c *Config) MaxConnections() int {
	if c.Database.MaxConnections == nil {
		return DefaultMaxConnections
	}
	return *c.Database.MaxConnections
}

// BusyTimeoutMillis returns the configured busy_timeout (defaults to DefaultBusyTimeoutMillis).
func (c *Config) BusyTimeoutMillis() int {
	if c.Database.BusyTimeout == nil {
		return DefaultBusyTimeoutMillis
	}
	return *c.Database.BusyTimeout
}

// DatabasePath returns the configured database path (defaults to DefaultDatabasePath).
func (c *Config) DatabasePath() string {
	if c.Database.Path == "" {
		return DefaultDatabasePath
	}
	return c.Database.Path
}

// LibraryPath returns the configured storage root (defaults to DefaultLibraryPath).
func (c *Config) LibraryPath() string {
	if c.Storage.LibraryPath == "" {
		return DefaultLibraryPath
	}
	return c.Storage.LibraryPath
}

// BackupEnabled reports whether a mirrored backup copy is maintained (defaults to false).
func (c *Config) BackupEnabled() bool {
	return c.Storage.BackupEnabled != nil && *c.Storage.BackupEnabled
}

// AutoRename reports whether the importer renames files per the templates (defaults to true).
func (c *Config) AutoRename() bool {
	if c.Import.AutoRename == nil {
		return true
	}
	return *c.Import.AutoRename
}

// RenameTemplate returns the configured rename template, falling back to
// the flat naming_template and finally the built-in default.
func (c *Config) RenameTemplate() string {
	if c.Import.Paths.RenameTemplate != "" {
		return c.Import.Paths.RenameTemplate
	}
	if c.Import.NamingTemplate != "" {
		return c.Import.NamingTemplate
	}
	return DefaultRenameTemplate
}

// ClassifyTemplate returns the configured classification template.
func (c *Config) ClassifyTemplate() string {
	if c.Import.Paths.ClassifyTemplate == "" {
		return DefaultClassifyTemplate
	}
	return c.Import.Paths.ClassifyTemplate
}

// CopyModeOrDefault returns the configured copy mode (defaults to copy).
func (c *Config) CopyModeOrDefault() CopyMode {
	if c.Import.CopyMode == "" {
		return CopyModeCopy
	}
	return c.Import.CopyMode
}

// PreferJSON reports whether sibling-JSON metadata takes priority (defaults to true).
func (c *Config) PreferJSON() bool {
	if c.Import.Metadata.PreferJSON == nil {
		return true
	}
	return *c.Import.Metadata.PreferJSON
}

// FallbackPDF reports whether PDF/EPUB extraction is enabled (defaults to true).
func (c *Config) FallbackPDF() bool {
	if c.Import.Metadata.FallbackPDF == nil {
		return true
	}
	return *c.Import.Metadata.FallbackPDF
}

// DefaultCategoryOrFallback returns the category assigned when extraction
// yields none (defaults to DefaultCategory).
func (c *Config) DefaultCategoryOrFallback() string {
	if c.Import.Metadata.DefaultCategory == "" {
		return DefaultCategory
	}
	return c.Import.Metadata.DefaultCategory
}

// SearchLimit returns the default result-page size (defaults to DefaultSearchLimit).
func (c *Config) SearchLimit() int {
	if c.Search.DefaultLimit == nil {
		return DefaultSearchLimit
	}
	return *c.Search.DefaultLimit
}

// EnableFTS reports whether full-text search is enabled (defaults to true).
func (c *Config) EnableFTS() bool {
	if c.Search.EnableFTS == nil {
		return true
	}
	return *c.Search.EnableFTS
}

// FTSLanguageOrDefault returns the configured FTS tokenizer language hint.
func (c *Config) FTSLanguageOrDefault() string {
	if c.Search.FTSLanguage == "" {
		return DefaultFTSLanguage
	}
	return c.Search.FTSLanguage
}

// FuzzySearchEnabled reports whether fuzzy matching is enabled (defaults to true).
func (c *Config) FuzzySearchEnabled() bool {
	if c.Search.FuzzySearchEnabled == nil {
		return true
	}
	return *c.Search.FuzzySearchEnabled
}

// HashAlgorithm returns the configured hash algorithm (defaults to DefaultHashAlgorithm).
func (c *Config) HashAlgorithm() string {
	if c.Hash.Algorithm == "" {
		return DefaultHashAlgorithm
	}
	return c.Hash.Algorithm
}

// VerifyOnImport reports whether the importer re-hashes after placing the
// file (defaults to true).
func (c *Config) VerifyOnImport() bool {
	if c.Hash.VerifyOnImport == nil {
		return true
	}
	return *c.Hash.VerifyOnImport
}

// LocalPath returns the path to the local (library) config file.
func LocalPath() string {
	return filepath.Join(".tagbox", "config.yaml")
}

// GlobalPath returns the path to the global (user) config file: ~/.tagbox/config.yaml
func GlobalPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".tagbox", "config.yaml")
}

// Path returns the local config path (for backwards compatibility).
func Path() string {
	return LocalPath()
}

// Load reads configuration: uses local if it exists, otherwise global.
func Load() (*Config, error) {
	if _, err := os.Stat(LocalPath()); err == nil {
		return LoadScope(ScopeLocal)
	}
	return LoadScope(ScopeGlobal)
}

// LoadScope reads configuration from a specific scope.
func LoadScope(scope Scope) (*Config, error) {
	path := pathForScope(scope)
	if path == "" {
		return &Config{scope: scope}, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg := &Config{path: path, scope: scope}
		return cfg, cfg.Validate()
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("malformed config file %s: %w\n\nTo fix: edit the file to correct the YAML syntax, or delete it to use defaults", path, err)
	}
	cfg.path = path
	cfg.scope = scope

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadFile reads configuration from an explicit path, bypassing the
// local/global discovery order. The file must exist.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("malformed config file %s: %w", path, err)
	}
	cfg.path = path
	cfg.scope = ScopeLocal

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return &cfg, nil
}

// Scope returns which scope this config was loaded from.
func (c *Config) Scope() Scope {
	return c.scope
}

// Save writes the configuration to its original location.
func (c *Config) Save() error {
	if c.path == "" {
		c.path = pathForScope(c.scope)
	}
	if c.path == "" {
		return ErrNoConfigPath
	}
	return c.saveToPath(c.path)
}

// SaveScope writes the configuration to the specified scope.
func (c *Config) SaveScope(scope Scope) error {
	path := pathForScope(scope)
	if path == "" {
		return ErrNoConfigPath
	}
	return c.saveToPath(path)
}

// saveToPath writes configuration to a specific filesystem path.
// Creates parent directories as needed with mode 0755.
func (c *Config) saveToPath(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// pathForScope returns the filesystem path for a given scope.
func pathForScope(scope Scope) string {
	switch scope {
	case ScopeLocal:
		return LocalPath()
	case ScopeGlobal:
		return GlobalPath()
	default:
		return ""
	}
}
