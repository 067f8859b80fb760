// compat.go checks the running configuration against the values recorded
// in system_config when the library was initialized. A library hashed
// with blake3 cannot be validated with sha256 settings; surfacing the
// mismatch as ConfigDrift beats silently reporting every file as drifted.

package validate

import (
	"context"

	"github.com/tagbox/core/internal/config"
	"github.com/tagbox/core/internal/store"
	"github.com/tagbox/core/internal/tberr"
)

// RecordConfig writes the compatibility-relevant configuration into
// system_config. Called once at library initialization; later runs
// compare against these values.
func RecordConfig(ctx context.Context, s *store.Store, cfg *config.Config) error {
	pairs := []struct{ key, value, desc string }{
		{store.KeyHashAlgorithm, cfg.HashAlgorithm(), "hash algorithm the library was initialized with"},
		{store.KeyLibraryPath, cfg.LibraryPath(), "library root recorded at initialization"},
		{store.KeyRenameTmpl, cfg.RenameTemplate(), "rename template recorded at initialization"},
		{store.KeyClassifyTmpl, cfg.ClassifyTemplate(), "classify template recorded at initialization"},
	}
	for _, p := range pairs {
		if err := s.SetSystemConfig(ctx, p.key, p.value, p.desc); err != nil {
			return err
		}
	}
	return nil
}

// CheckConfigCompatibility compares the configured hash algorithm and
// library root against the recorded values. The first mismatch is
// returned as ConfigDrift; an empty recorded value (a library initialized
// before the key existed) is accepted.
//
// Templates are not checked here: templates legitimately change ahead of
// a rebuild, and their drift is reported separately by TemplateDrift.
func (v *Validator) CheckConfigCompatibility(ctx context.Context) error {
	hard := []struct{ key, configured string }{
		{store.KeyHashAlgorithm, v.cfg.HashAlgorithm()},
		{store.KeyLibraryPath, v.cfg.LibraryPath()},
	}
	for _, h := range hard {
		stored, err := v.store.GetSystemConfig(ctx, h.key)
		if err != nil {
			return err
		}
		if stored != "" && stored != h.configured {
			return &tberr.ConfigDriftError{Key: h.key, Stored: stored, Configured: h.configured}
		}
	}
	return nil
}

// TemplateDrift reports template keys whose configured value differs
// from the recorded one, the signal that a rebuild is pending.
func (v *Validator) TemplateDrift(ctx context.Context) ([]tberr.ConfigDriftError, error) {
	templates := []struct{ key, configured string }{
		{store.KeyRenameTmpl, v.cfg.RenameTemplate()},
		{store.KeyClassifyTmpl, v.cfg.ClassifyTemplate()},
	}
	var drifts []tberr.ConfigDriftError
	for _, t := range templates {
		stored, err := v.store.GetSystemConfig(ctx, t.key)
		if err != nil {
			return nil, err
		}
		if stored != "" && stored != t.configured {
			drifts = append(drifts, tberr.ConfigDriftError{
				Key: t.key, Stored: stored, Configured: t.configured,
			})
		}
	}
	return drifts, nil
}
