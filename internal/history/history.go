// Package history reads the per-file ledger for presentation: the CLI
// driver and the stdio RPC both consume it rather than querying the
// store directly.
package history

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/tagbox/core/internal/diff"
	"github.com/tagbox/core/internal/store"
)

// SummaryChange renders a compact diff of a summary edit, suitable for
// the reason column of an update history row. Empty when nothing
// actually changed.
func SummaryChange(oldSummary, newSummary string) string {
	r := diff.Compute(oldSummary, newSummary, "summary", "summary")
	if r.Empty() {
		return ""
	}
	return "summary changed:\n" + r.Diff
}

// List returns a file's ledger, newest first. limit 0 means all.
func List(ctx context.Context, s *store.Store, fileID string, limit int) ([]store.HistoryEntry, error) {
	return s.FileHistory(ctx, fileID, limit)
}

// Render writes the ledger in a one-line-per-entry form.
func Render(w io.Writer, entries []store.HistoryEntry) {
	for _, h := range entries {
		ts := time.Unix(h.ChangedAt, 0).Format("2006-01-02 15:04:05")
		line := fmt.Sprintf("%s  %-13s", ts, h.Operation)
		switch {
		case h.OldPath != "" && h.NewPath != "" && h.OldPath != h.NewPath:
			line += fmt.Sprintf("  %s -> %s", h.OldPath, h.NewPath)
		case h.NewPath != "":
			line += "  " + h.NewPath
		}
		if h.OldHash != "" && h.NewHash != "" && h.OldHash != h.NewHash {
			line += fmt.Sprintf("  %.8s -> %.8s", h.OldHash, h.NewHash)
		}
		if h.Reason != "" {
			line += "  (" + firstLine(h.Reason) + ")"
		}
		fmt.Fprintln(w, line)
	}
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
