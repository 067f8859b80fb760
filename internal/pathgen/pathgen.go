// Package pathgen renders library-relative destination paths from file
// metadata via the configured templates.
//
// Two templates drive generation: the classify template produces the
// directory prefix and the rename template produces the file stem. The
// placeholder set is closed ({title}, {authors}, {year}, {publisher},
// {category1..3}, {filename}) and validated at config load time, so an
// unknown placeholder never survives to import.
//
// Every rendered segment is sanitised for cross-filesystem safety:
// characters forbidden on any supported filesystem are replaced by the
// sentinel, path traversal components are rejected, and segments are
// clamped to a conservative byte length.
package pathgen

import (
	"fmt"
	"strings"

	"github.com/tagbox/core/internal/config"
	"github.com/tagbox/core/internal/tberr"
)

// Values carries the metadata a template render draws from. Filename is
// the original stem without extension; Ext keeps its leading dot ("" for
// extensionless files).
type Values struct {
	Title     string
	Authors   []string
	Year      *int
	Publisher string
	Category1 string
	Category2 string
	Category3 string
	Filename  string
	Ext       string
}

// AuthorSeparator joins multi-author lists inside a rendered {authors}
// placeholder.
const AuthorSeparator = ", "

// maxSegment is the per-segment byte clamp. 200 leaves headroom under
// every mainstream filesystem's 255-byte component limit for the
// extension and a collision suffix.
const maxSegment = 200

// sentinel replaces characters that any supported filesystem forbids.
const sentinel = "_"

// forbidden covers the union of Windows, macOS and Linux restrictions.
// '/' is excluded here since it is the template's own separator and is
// handled structurally.
const forbidden = `<>:"\|?*`

// Generate renders the full relative path for a file: classify template
// expansion as the directory prefix, rename template expansion as the
// stem, original extension appended. With auto_rename disabled, the
// original filename is kept and only the classify prefix applies.
func Generate(v Values, cfg *config.Config) (string, error) {
	dir, err := Render(cfg.ClassifyTemplate(), v)
	if err != nil {
		return "", err
	}

	stem := v.Filename
	if cfg.AutoRename() {
		stem, err = Render(cfg.RenameTemplate(), v)
		if err != nil {
			return "", err
		}
		stem = sanitizeSegment(stem)
	} else {
		stem = sanitizeSegment(stem)
	}
	if stem == "" {
		stem = "untitled"
	}

	rel := stem + v.Ext
	if dir != "" {
		rel = dir + "/" + rel
	}
	if storage := cfg.Import.Paths.StorageDir; storage != "" {
		rel = sanitizeSegment(storage) + "/" + rel
	}
	return rel, nil
}

// WithSuffix derives a collision-resolving variant of a generated path by
// splicing the first 8 characters of the file's initial hash in front of
// the extension: "a/b/title.pdf" -> "a/b/title_1a2b3c4d.pdf".
func WithSuffix(relPath, initialHash string) string {
	suffix := initialHash
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	dot := strings.LastIndexByte(relPath, '.')
	slash := strings.LastIndexByte(relPath, '/')
	if dot <= slash {
		return relPath + "_" + suffix
	}
	return relPath[:dot] + "_" + suffix + relPath[dot:]
}

// Render expands one template against the values. Directory separators
// produced by the template itself are kept; separators smuggled in by
// metadata values are sanitised away, so a title containing '/' cannot
// create extra nesting.
func Render(template string, v Values) (string, error) {
	var b strings.Builder
	i := 0
	for i < len(template) {
		c := template[i]
		if c != '{' {
			b.WriteByte(c)
			i++
			continue
		}
		end := strings.IndexByte(template[i:], '}')
		if end < 0 {
			return "", fmt.Errorf("%w: unterminated placeholder in %q", tberr.ErrConfigError, template)
		}
		name := template[i+1 : i+end]
		val, err := placeholderValue(name, v)
		if err != nil {
			return "", err
		}
		b.WriteString(sanitizeSegment(val))
		i += end + 1
	}

	// Collapse artifacts of empty placeholders: doubled separators and
	// dangling ones at either end.
	out := b.String()
	for strings.Contains(out, "//") {
		out = strings.ReplaceAll(out, "//", "/")
	}
	out = strings.Trim(out, "/")

	var segs []string
	for _, seg := range strings.Split(out, "/") {
		seg = strings.TrimSpace(seg)
		if seg != "" {
			segs = append(segs, seg)
		}
	}
	return strings.Join(segs, "/"), nil
}

func placeholderValue(name string, v Values) (string, error) {
	switch name {
	case "title":
		return v.Title, nil
	case "authors":
		return strings.Join(v.Authors, AuthorSeparator), nil
	case "year":
		if v.Year == nil {
			return "", nil
		}
		return fmt.Sprintf("%d", *v.Year), nil
	case "publisher":
		return v.Publisher, nil
	case "category1":
		return v.Category1, nil
	case "category2":
		return v.Category2, nil
	case "category3":
		return v.Category3, nil
	case "filename":
		return v.Filename, nil
	default:
		return "", fmt.Errorf("%w: unknown placeholder {%s}", tberr.ErrConfigError, name)
	}
}

// sanitizeSegment makes one path segment safe on every supported
// filesystem: forbidden characters and separators become the sentinel,
// control characters are dropped, traversal names are neutralised, and
// the result is clamped to maxSegment bytes.
func sanitizeSegment(seg string) string {
	var b strings.Builder
	for _, r := range seg {
		switch {
		case r < 0x20:
			// drop control characters
		case strings.ContainsRune(forbidden, r), r == '/':
			b.WriteString(sentinel)
		default:
			b.WriteRune(r)
		}
	}
	out := strings.TrimSpace(b.String())
	out = strings.Trim(out, ".") // "." / ".." and Windows-hostile trailing dots
	if len(out) > maxSegment {
		out = clampUTF8(out, maxSegment)
	}
	return out
}

// clampUTF8 cuts s to at most n bytes without splitting a rune.
func clampUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n]
}
