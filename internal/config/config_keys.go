// config_keys.go provides key-value access to configuration settings.
//
// Separated from config.go to isolate the key enumeration and string-based
// get/set logic. This separation allows config.go to focus on YAML structure
// and loading, while this file handles the RPC and CLI interface where config
// is accessed by string keys (e.g., "hash.algorithm").
//
// Design: Pointers are used for optional fields so we can distinguish between
// "not set" (nil) and "explicitly set to zero/false". This enables proper
// defaulting - we only apply defaults when the user hasn't set a value.

package config

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// ValidKeys returns all valid configuration keys.
func ValidKeys() []string {
	return []string{
		"database.path", "database.journal_mode", "database.sync_mode",
		"database.max_connections", "database.busy_timeout",
		"storage.library_path", "storage.backup_enabled", "storage.backup_path",
		"import.auto_rename", "import.naming_template", "import.copy_mode",
		"import.paths.storage_dir", "import.paths.rename_template", "import.paths.classify_template",
		"import.metadata.prefer_json", "import.metadata.fallback_pdf", "import.metadata.default_category",
		"search.default_limit", "search.enable_fts", "search.fts_language", "search.fuzzy_search_enabled",
		"hash.algorithm", "hash.verify_on_import",
	}
}

// IsValidKey returns true if the key is a valid configuration key.
func IsValidKey(key string) bool {
	return slices.Contains(ValidKeys(), key)
}

// Get returns the value of a configuration key as a string.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "database.path":
		return c.DatabasePath(), nil
	case "database.journal_mode":
		return c.Database.JournalMode, nil
	case "database.sync_mode":
		return c.Database.SyncMode, nil
	case "database.max_connections":
		return strconv.Itoa(c.MaxConnections()), nil
	case "database.busy_timeout":
		return strconv.Itoa(c.BusyTimeoutMillis()), nil
	case "storage.library_path":
		return c.LibraryPath(), nil
	case "storage.backup_enabled":
		return strconv.FormatBool(c.BackupEnabled()), nil
	case "storage.backup_path":
		return c.Storage.BackupPath, nil
	case "import.auto_rename":
		return strconv.FormatBool(c.AutoRename()), nil
	case "import.naming_template":
		return c.Import.NamingTemplate, nil
	case "import.copy_mode":
		return string(c.CopyModeOrDefault()), nil
	case "import.paths.storage_dir":
		return c.Import.Paths.StorageDir, nil
	case "import.paths.rename_template":
		return c.RenameTemplate(), nil
	case "import.paths.classify_template":
		return c.ClassifyTemplate(), nil
	case "import.metadata.prefer_json":
		return strconv.FormatBool(c.PreferJSON()), nil
	case "import.metadata.fallback_pdf":
		return strconv.FormatBool(c.FallbackPDF()), nil
	case "import.metadata.default_category":
		return c.DefaultCategoryOrFallback(), nil
	case "search.default_limit":
		return strconv.Itoa(c.SearchLimit()), nil
	case "search.enable_fts":
		return strconv.FormatBool(c.EnableFTS()), nil
	case "search.fts_language":
		return c.FTSLanguageOrDefault(), nil
	case "search.fuzzy_search_enabled":
		return strconv.FormatBool(c.FuzzySearchEnabled()), nil
	case "hash.algorithm":
		return c.HashAlgorithm(), nil
	case "hash.verify_on_import":
		return strconv.FormatBool(c.VerifyOnImport()), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
}

// Set sets the value of a configuration key, then re-validates the whole
// config, rolling back the assignment on failure.
func (c *Config) Set(key, value string) error {
	before := *c
	if err := c.setRaw(key, value); err != nil {
		*c = before
		return err
	}
	if err := c.Validate(); err != nil {
		*c = before
		return err
	}
	return nil
}

func (c *Config) setRaw(key, value string) error {
	switch key {
	case "database.path":
		c.Database.Path = value
	case "database.journal_mode":
		c.Database.JournalMode = value
	case "database.sync_mode":
		c.Database.SyncMode = value
	case "database.max_connections":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("%w: database.max_connections must be a positive integer", ErrInvalidValue)
		}
		c.Database.MaxConnections = &n
	case "database.busy_timeout":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("%w: database.busy_timeout must be a non-negative integer", ErrInvalidValue)
		}
		c.Database.BusyTimeout = &n
	case "storage.library_path":
		c.Storage.LibraryPath = value
	case "storage.backup_enabled":
		b, err := parseBool(value)
		if err != nil {
			return fmt.Errorf("%w: storage.backup_enabled must be true or false", ErrInvalidValue)
		}
		c.Storage.BackupEnabled = &b
	case "storage.backup_path":
		c.Storage.BackupPath = value
	case "import.auto_rename":
		b, err := parseBool(value)
		if err != nil {
			return fmt.Errorf("%w: import.auto_rename must be true or false", ErrInvalidValue)
		}
		c.Import.AutoRename = &b
	case "import.naming_template":
		c.Import.NamingTemplate = value
	case "import.copy_mode":
		c.Import.CopyMode = CopyMode(value)
	case "import.paths.storage_dir":
		c.Import.Paths.StorageDir = value
	case "import.paths.rename_template":
		c.Import.Paths.RenameTemplate = value
	case "import.paths.classify_template":
		c.Import.Paths.ClassifyTemplate = value
	case "import.metadata.prefer_json":
		b, err := parseBool(value)
		if err != nil {
			return fmt.Errorf("%w: import.metadata.prefer_json must be true or false", ErrInvalidValue)
		}
		c.Import.Metadata.PreferJSON = &b
	case "import.metadata.fallback_pdf":
		b, err := parseBool(value)
		if err != nil {
			return fmt.Errorf("%w: import.metadata.fallback_pdf must be true or false", ErrInvalidValue)
		}
		c.Import.Metadata.FallbackPDF = &b
	case "import.metadata.default_category":
		c.Import.Metadata.DefaultCategory = value
	case "search.default_limit":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("%w: search.default_limit must be a positive integer", ErrInvalidValue)
		}
		c.Search.DefaultLimit = &n
	case "search.enable_fts":
		b, err := parseBool(value)
		if err != nil {
			return fmt.Errorf("%w: search.enable_fts must be true or false", ErrInvalidValue)
		}
		c.Search.EnableFTS = &b
	case "search.fts_language":
		c.Search.FTSLanguage = value
	case "search.fuzzy_search_enabled":
		b, err := parseBool(value)
		if err != nil {
			return fmt.Errorf("%w: search.fuzzy_search_enabled must be true or false", ErrInvalidValue)
		}
		c.Search.FuzzySearchEnabled = &b
	case "hash.algorithm":
		c.Hash.Algorithm = value
	case "hash.verify_on_import":
		b, err := parseBool(value)
		if err != nil {
			return fmt.Errorf("%w: hash.verify_on_import must be true or false", ErrInvalidValue)
		}
		c.Hash.VerifyOnImport = &b
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return nil
}

func parseBool(value string) (bool, error) {
	v := strings.ToLower(value)
	if v != "true" && v != "false" {
		return false, fmt.Errorf("not a bool: %s", value)
	}
	return v == "true", nil
}

// All returns all configuration values as a map.
func (c *Config) All() map[string]string {
	out := make(map[string]string, len(ValidKeys()))
	for _, k := range ValidKeys() {
		v, _ := c.Get(k)
		out[k] = v
	}
	return out
}

// IsSet returns true if the key has an explicit value (not just defaults).
func (c *Config) IsSet(key string) bool {
	switch key {
	case "database.path":
		return c.Database.Path != ""
	case "database.journal_mode":
		return c.Database.JournalMode != ""
	case "database.sync_mode":
		return c.Database.SyncMode != ""
	case "database.max_connections":
		return c.Database.MaxConnections != nil
	case "database.busy_timeout":
		return c.Database.BusyTimeout != nil
	case "storage.library_path":
		return c.Storage.LibraryPath != ""
	case "storage.backup_enabled":
		return c.Storage.BackupEnabled != nil
	case "storage.backup_path":
		return c.Storage.BackupPath != ""
	case "import.auto_rename":
		return c.Import.AutoRename != nil
	case "import.naming_template":
		return c.Import.NamingTemplate != ""
	case "import.copy_mode":
		return c.Import.CopyMode != ""
	case "import.paths.storage_dir":
		return c.Import.Paths.StorageDir != ""
	case "import.paths.rename_template":
		return c.Import.Paths.RenameTemplate != ""
	case "import.paths.classify_template":
		return c.Import.Paths.ClassifyTemplate != ""
	case "import.metadata.prefer_json":
		return c.Import.Metadata.PreferJSON != nil
	case "import.metadata.fallback_pdf":
		return c.Import.Metadata.FallbackPDF != nil
	case "import.metadata.default_category":
		return c.Import.Metadata.DefaultCategory != ""
	case "search.default_limit":
		return c.Search.DefaultLimit != nil
	case "search.enable_fts":
		return c.Search.EnableFTS != nil
	case "search.fts_language":
		return c.Search.FTSLanguage != ""
	case "search.fuzzy_search_enabled":
		return c.Search.FuzzySearchEnabled != nil
	case "hash.algorithm":
		return c.Hash.Algorithm != ""
	case "hash.verify_on_import":
		return c.Hash.VerifyOnImport != nil
	default:
		return false
	}
}
