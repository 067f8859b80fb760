// Package metainfo extracts import metadata from files ahead of import.
//
// Resolution order, per config's import.metadata toggles:
//
//  1. A sibling JSON file with the same stem ("intro.pdf" + "intro.json"),
//     when prefer_json is enabled.
//  2. A format-specific extractor for structured documents (PDF, EPUB),
//     when fallback_pdf is enabled.
//  3. Title derived from the filename stem, everything else empty.
//
// Malformed structured input never fails the extraction outright: the
// extractor falls back to filename derivation and records a non-fatal
// diagnostic on the result. Collections come back empty, never nil.
package metainfo

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tagbox/core/internal/config"
	"github.com/tagbox/core/internal/tberr"
)

// ImportMetadata is the extractor's proposal for a file about to be
// imported. The importer merges it with caller-supplied metadata
// (caller wins) before inserting.
type ImportMetadata struct {
	Title     string   `json:"title"`
	Authors   []string `json:"authors"`
	Year      *int     `json:"year,omitempty"`
	Publisher string   `json:"publisher,omitempty"`
	Tags      []string `json:"tags"`
	Category  string   `json:"category,omitempty"` // up to three '/'-separated segments
	Summary   string   `json:"summary,omitempty"`
	FullText  string   `json:"full_text,omitempty"`
	SourceURL string   `json:"source_url,omitempty"`

	// FileMetadata holds format-specific leftovers (page counts, EPUB
	// identifiers) that persist into the files.file_metadata JSON blob.
	FileMetadata map[string]any `json:"file_metadata,omitempty"`

	// Diagnostics records non-fatal extraction problems, such as a
	// malformed sibling JSON that forced a fallback.
	Diagnostics []string `json:"diagnostics,omitempty"`

	// Source names which resolution step produced the metadata:
	// "json", "pdf", "epub" or "filename".
	Source string `json:"source,omitempty"`
}

// IsEmpty reports whether the metadata carries nothing beyond zero
// values, which makes the importer run extraction itself.
func (m *ImportMetadata) IsEmpty() bool {
	return m == nil || (m.Title == "" && len(m.Authors) == 0 && m.Year == nil &&
		m.Publisher == "" && len(m.Tags) == 0 && m.Summary == "" && m.FullText == "")
}

// Merge overlays the argument metadata over the extracted metadata:
// any field the caller set wins, anything left unset keeps the
// extracted value.
func Merge(extracted, arg *ImportMetadata) *ImportMetadata {
	if arg == nil {
		return extracted
	}
	if extracted == nil {
		return arg
	}
	out := *extracted
	if arg.Title != "" {
		out.Title = arg.Title
	}
	if len(arg.Authors) > 0 {
		out.Authors = arg.Authors
	}
	if arg.Year != nil {
		out.Year = arg.Year
	}
	if arg.Publisher != "" {
		out.Publisher = arg.Publisher
	}
	if len(arg.Tags) > 0 {
		out.Tags = arg.Tags
	}
	if arg.Category != "" {
		out.Category = arg.Category
	}
	if arg.Summary != "" {
		out.Summary = arg.Summary
	}
	if arg.FullText != "" {
		out.FullText = arg.FullText
	}
	if arg.SourceURL != "" {
		out.SourceURL = arg.SourceURL
	}
	if len(arg.FileMetadata) > 0 {
		out.FileMetadata = arg.FileMetadata
	}
	return &out
}

// Extract pulls metadata for the file at path per the configured
// resolution order. The returned metadata always has a non-empty Title
// and non-nil collections.
func Extract(path string, cfg *config.Config) (*ImportMetadata, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &tberr.IOFailureError{Path: path, Err: err}
	}

	var meta *ImportMetadata
	var diags []string

	if cfg.PreferJSON() {
		m, err := fromSiblingJSON(path)
		if err != nil {
			diags = append(diags, fmt.Sprintf("sibling json: %v", err))
		} else if m != nil {
			m.Source = "json"
			meta = m
		}
	}

	if meta == nil && cfg.FallbackPDF() {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".pdf":
			m, err := fromPDF(path)
			if err != nil {
				diags = append(diags, fmt.Sprintf("pdf extractor: %v", err))
			} else {
				m.Source = "pdf"
				meta = m
			}
		case ".epub":
			m, err := fromEPUB(path)
			if err != nil {
				diags = append(diags, fmt.Sprintf("epub extractor: %v", err))
			} else {
				m.Source = "epub"
				meta = m
			}
		}
	}

	if meta == nil {
		meta = &ImportMetadata{
			Title:  titleFromStem(path),
			Source: "filename",
		}
	}
	if meta.Title == "" {
		meta.Title = titleFromStem(path)
	}
	if meta.Category == "" {
		meta.Category = cfg.DefaultCategoryOrFallback()
	}

	meta.Authors = cleanList(meta.Authors)
	meta.Tags = cleanList(meta.Tags)
	meta.Diagnostics = append(meta.Diagnostics, diags...)
	return meta, nil
}

// SplitAuthors breaks a free-form author field on commas and semicolons,
// trimming whitespace and dropping empties.
func SplitAuthors(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';'
	})
	return cleanList(fields)
}

// cleanList trims entries and drops empties, always returning a non-nil
// slice.
func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// titleFromStem derives a human title from the filename: extension
// stripped, separators turned into spaces.
func titleFromStem(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	stem = strings.NewReplacer("_", " ", "-", " ").Replace(stem)
	stem = strings.Join(strings.Fields(stem), " ")
	if stem == "" {
		return filepath.Base(path)
	}
	return stem
}

// siblingMeta is the sidecar JSON shape. Authors accepts either a JSON
// array or a single comma/semicolon separated string.
type siblingMeta struct {
	Title     string          `json:"title"`
	Authors   json.RawMessage `json:"authors"`
	Year      *int            `json:"year"`
	Publisher string          `json:"publisher"`
	Tags      []string        `json:"tags"`
	Category  string          `json:"category"`
	Summary   string          `json:"summary"`
	FullText  string          `json:"full_text"`
	SourceURL string          `json:"source_url"`
}

// fromSiblingJSON parses <stem>.json next to the file. Returns (nil, nil)
// when no sidecar exists, and an error (for the diagnostics trail) when
// one exists but cannot be parsed.
func fromSiblingJSON(path string) (*ImportMetadata, error) {
	sidecar := strings.TrimSuffix(path, filepath.Ext(path)) + ".json"
	if sidecar == path {
		return nil, nil
	}
	data, err := os.ReadFile(sidecar)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var raw siblingMeta
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(sidecar), err)
	}

	meta := &ImportMetadata{
		Title:     strings.TrimSpace(raw.Title),
		Year:      raw.Year,
		Publisher: strings.TrimSpace(raw.Publisher),
		Tags:      raw.Tags,
		Category:  strings.TrimSpace(raw.Category),
		Summary:   raw.Summary,
		FullText:  raw.FullText,
		SourceURL: strings.TrimSpace(raw.SourceURL),
	}
	meta.Authors = decodeAuthors(raw.Authors)
	return meta, nil
}

// decodeAuthors accepts ["A", "B"], "A, B" or absent.
func decodeAuthors(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return cleanList(list)
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return SplitAuthors(single)
	}
	return nil
}
