// pdf.go implements the PDF fallback extractor.
//
// Text extraction is capped: full_text feeds the FTS index, and the first
// megabyte of plain text is plenty for search while keeping the database
// row bounded on very large documents.

package metainfo

import (
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// maxFullText caps extracted body text fed into the FTS projection.
const maxFullText = 1 << 20

// fromPDF extracts title, author and body text from a PDF. The underlying
// parser panics on some malformed inputs, so the whole extraction runs
// under a recover that converts panics into ordinary errors for the
// diagnostics trail.
func fromPDF(path string) (meta *ImportMetadata, err error) {
	defer func() {
		if r := recover(); r != nil {
			meta, err = nil, fmt.Errorf("pdf parser: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	meta = &ImportMetadata{
		FileMetadata: map[string]any{"pages": r.NumPage()},
	}

	// Document information dictionary, when present.
	if info := r.Trailer().Key("Info"); !info.IsNull() {
		if t := info.Key("Title"); t.Kind() == pdf.String {
			meta.Title = strings.TrimSpace(t.Text())
		}
		if a := info.Key("Author"); a.Kind() == pdf.String {
			meta.Authors = SplitAuthors(a.Text())
		}
	}

	body, err := r.GetPlainText()
	if err != nil {
		// Metadata without body text is still useful; record and move on.
		meta.Diagnostics = append(meta.Diagnostics, fmt.Sprintf("pdf text: %v", err))
		return meta, nil
	}
	text, err := io.ReadAll(io.LimitReader(body, maxFullText))
	if err != nil {
		meta.Diagnostics = append(meta.Diagnostics, fmt.Sprintf("pdf text read: %v", err))
		return meta, nil
	}
	meta.FullText = strings.TrimSpace(string(text))
	return meta, nil
}
