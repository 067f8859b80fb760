// sysconfig.go implements the system_config key-value table and database
// bootstrap. schema_version gates migrations: bootstrap is idempotent on
// an empty or current database and refuses to open a newer one.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tagbox/core/internal/tberr"
)

// SchemaVersion is the schema this build writes and understands.
const SchemaVersion = "1.0.0"

// Well-known system_config keys.
const (
	KeySchemaVersion = "schema_version"
	KeyInitializedAt = "initialized_at"
	KeyHashAlgorithm = "hash_algorithm"
	KeyLibraryPath   = "library_path"
	KeyRenameTmpl    = "rename_template"
	KeyClassifyTmpl  = "classify_template"
)

// GetSystemConfig returns the value for a key, or "" if unset.
func (s *Store) GetSystemConfig(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM system_config WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: get system config: %v", tberr.ErrDatabaseError, err)
	}
	return v, nil
}

// SetSystemConfig upserts a key, preserving created_at on update.
func (s *Store) SetSystemConfig(ctx context.Context, key, value, description string) error {
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO system_config (key, value, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			description = CASE WHEN excluded.description <> '' THEN excluded.description ELSE system_config.description END,
			updated_at = excluded.updated_at`,
		key, value, description, now, now)
	if err != nil {
		return fmt.Errorf("%w: set system config: %v", tberr.ErrDatabaseError, err)
	}
	return nil
}

// Bootstrap creates the schema on an empty database and records the
// schema version, or verifies the version on an existing one. A database
// written by a newer build is refused rather than downgraded. Returns
// true when this call initialized the database for the first time.
func (s *Store) Bootstrap(ctx context.Context) (bool, error) {
	if err := s.Init(); err != nil {
		return false, fmt.Errorf("%w: init schema: %v", tberr.ErrDatabaseError, err)
	}

	stored, err := s.GetSystemConfig(ctx, KeySchemaVersion)
	if err != nil {
		return false, err
	}
	switch {
	case stored == "":
		if err := s.SetSystemConfig(ctx, KeySchemaVersion, SchemaVersion,
			"database schema version"); err != nil {
			return false, err
		}
		return true, s.SetSystemConfig(ctx, KeyInitializedAt,
			strconv.FormatInt(time.Now().Unix(), 10), "first initialization time")
	case compareVersions(stored, SchemaVersion) > 0:
		return false, fmt.Errorf("%w: database schema %s is newer than supported %s",
			tberr.ErrConfigError, stored, SchemaVersion)
	case compareVersions(stored, SchemaVersion) < 0:
		// Forward migration. Schema files are idempotent, so re-running
		// them applies any additive changes; the version bump records it.
		if err := s.SetSystemConfig(ctx, KeySchemaVersion, SchemaVersion,
			"database schema version"); err != nil {
			return false, err
		}
		return false, s.SetSystemConfig(ctx, KeyInitializedAt,
			strconv.FormatInt(time.Now().Unix(), 10), "migrated at")
	default:
		return false, nil
	}
}

// compareVersions compares dotted numeric versions: -1, 0 or 1.
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var av, bv int
		if i < len(as) {
			av, _ = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			bv, _ = strconv.Atoi(bs[i])
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}
