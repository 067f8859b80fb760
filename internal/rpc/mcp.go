// mcp.go exposes the public library surface as MCP tools, so LLM clients
// can import, search and curate a library through a standardised
// protocol. Handlers delegate to service.Service exactly like the stdio
// loop; tool failures come back as tool results, never protocol errors.

package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/tagbox/core/internal/log"
	"github.com/tagbox/core/internal/service"
	"github.com/tagbox/core/internal/store"
	"github.com/tagbox/core/internal/tberr"
	"github.com/tagbox/core/internal/validate"
	"github.com/tagbox/core/internal/version"
)

// ServeMCP starts the MCP server over stdio. Blocks until the client
// disconnects or the context ends.
func ServeMCP(svc service.Service) error {
	// Log to stderr; stdout is reserved for MCP JSON-RPC messages
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	h := &handlers{svc: svc}

	s := server.NewMCPServer(
		"tagbox",
		version.Version,
		server.WithToolCapabilities(true),
	)
	registerTools(s, h)

	slog.Info("tagbox MCP server ready", "version", version.Version, "transport", "stdio")

	err := server.ServeStdio(s)
	if errors.Is(err, context.Canceled) {
		slog.Info("server stopped")
		return nil
	}
	return err
}

// handlers provides MCP request handlers with access to the engine.
type handlers struct {
	svc service.Service
}

func registerTools(s *server.MCPServer, h *handlers) {
	s.AddTool(
		mcp.NewTool("tagbox_import",
			mcp.WithDescription("Import a file into the library: hash, extract metadata, file it under the configured layout."),
			mcp.WithString("path", mcp.Required(), mcp.Description("Filesystem path of the file to import")),
			mcp.WithString("title", mcp.Description("Override the extracted title")),
			mcp.WithString("authors", mcp.Description("Override authors, comma or semicolon separated")),
			mcp.WithString("tags", mcp.Description("Tag paths to attach, comma separated (e.g. tech/rust)")),
		),
		h.importFile,
	)
	s.AddTool(
		mcp.NewTool("tagbox_search",
			mcp.WithDescription("Search the library with the query DSL (key:value clauses, quoted phrases, AND/OR, negation with -)."),
			mcp.WithString("query", mcp.Required(), mcp.Description("DSL query; empty matches all live files")),
			mcp.WithNumber("limit", mcp.Description("Maximum entries to return")),
			mcp.WithBoolean("include_deleted", mcp.Description("Include soft-deleted files")),
		),
		h.search,
	)
	s.AddTool(
		mcp.NewTool("tagbox_fuzzy_search",
			mcp.WithDescription("Prefix-match a partial input across titles, authors and tags, for autocomplete."),
			mcp.WithString("partial", mcp.Required(), mcp.Description("Partial term")),
		),
		h.fuzzySearch,
	)
	s.AddTool(
		mcp.NewTool("tagbox_get",
			mcp.WithDescription("Fetch one file entry by id, authors and tags included."),
			mcp.WithString("id", mcp.Required(), mcp.Description("File id")),
		),
		h.getFile,
	)
	s.AddTool(
		mcp.NewTool("tagbox_update_field",
			mcp.WithDescription("Update a single metadata field of a file (title, year, summary, authors, tags, ...)."),
			mcp.WithString("id", mcp.Required(), mcp.Description("File id")),
			mcp.WithString("field", mcp.Required(), mcp.Description("Field name")),
			mcp.WithString("value", mcp.Required(), mcp.Description("New value; lists are comma separated")),
		),
		h.updateField,
	)
	s.AddTool(
		mcp.NewTool("tagbox_delete",
			mcp.WithDescription("Soft-delete a file. It drops out of search until restored."),
			mcp.WithString("id", mcp.Required(), mcp.Description("File id")),
			mcp.WithString("reason", mcp.Description("Why the file is being deleted")),
		),
		h.softDelete,
	)
	s.AddTool(
		mcp.NewTool("tagbox_restore",
			mcp.WithDescription("Restore a soft-deleted file to its prior searchable state."),
			mcp.WithString("id", mcp.Required(), mcp.Description("File id")),
		),
		h.restore,
	)
	s.AddTool(
		mcp.NewTool("tagbox_link",
			mcp.WithDescription("Create a typed directed link between two files."),
			mcp.WithString("source", mcp.Required(), mcp.Description("Source file id")),
			mcp.WithString("target", mcp.Required(), mcp.Description("Target file id")),
			mcp.WithString("relation", mcp.Required(), mcp.Description("Relation label, e.g. references, derived_from")),
		),
		h.link,
	)
	s.AddTool(
		mcp.NewTool("tagbox_links",
			mcp.WithDescription("List a file's outgoing and incoming links."),
			mcp.WithString("id", mcp.Required(), mcp.Description("File id")),
		),
		h.links,
	)
	s.AddTool(
		mcp.NewTool("tagbox_history",
			mcp.WithDescription("Read a file's history ledger, newest first."),
			mcp.WithString("id", mcp.Required(), mcp.Description("File id")),
			mcp.WithNumber("limit", mcp.Description("Maximum rows (0 = all)")),
		),
		h.history,
	)
	s.AddTool(
		mcp.NewTool("tagbox_validate",
			mcp.WithDescription("Check database rows against the on-disk library: missing files, content drift."),
			mcp.WithString("root", mcp.Description("Library-relative root to check ('' = everything)")),
			mcp.WithBoolean("repair", mcp.Description("Update current_hash for drifted files")),
		),
		h.validateFiles,
	)
	s.AddTool(
		mcp.NewTool("tagbox_query_debug",
			mcp.WithDescription("Show the SQL, parameters and estimated row count a DSL query translates to."),
			mcp.WithString("dsl", mcp.Required(), mcp.Description("DSL query")),
		),
		h.queryDebug,
	)
}

func (h *handlers) importFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError("path is required"), nil //nolint:nilerr
	}

	args := map[string]any{"path": path}
	meta := map[string]any{}
	if t := req.GetString("title", ""); t != "" {
		meta["title"] = t
	}
	if a := req.GetString("authors", ""); a != "" {
		meta["authors"] = splitCommaList(a)
	}
	if tg := req.GetString("tags", ""); tg != "" {
		meta["tags"] = splitCommaList(tg)
	}
	if len(meta) > 0 {
		args["metadata"] = meta
	}
	return h.dispatch(ctx, "import_file", args)
}

func (h *handlers) search(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	opts := store.ListOptions{
		Limit:          req.GetInt("limit", 0),
		IncludeDeleted: req.GetBool("include_deleted", false),
	}
	result, err := h.svc.Search(ctx, query, opts)
	log.Event("mcp:search", "search").Actor("mcp").Detail("query", query).Write(err)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(result)
}

func (h *handlers) fuzzySearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	partial, err := req.RequireString("partial")
	if err != nil {
		return mcp.NewToolResultError("partial is required"), nil //nolint:nilerr
	}
	result, err := h.svc.FuzzySearch(ctx, partial, store.ListOptions{})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(result)
}

func (h *handlers) getFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.idTool(ctx, req, "get_file")
}

func (h *handlers) updateField(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id is required"), nil //nolint:nilerr
	}
	field, err := req.RequireString("field")
	if err != nil {
		return mcp.NewToolResultError("field is required"), nil //nolint:nilerr
	}
	value := req.GetString("value", "")

	uerr := h.svc.UpdateField(ctx, id, field, value)
	log.Event("mcp:update_field", "update").Actor("mcp").FileID(id).Detail("field", field).Write(uerr)
	if uerr != nil {
		return mcp.NewToolResultError(uerr.Error()), nil
	}
	return jsonResult(map[string]bool{"ok": true})
}

func (h *handlers) softDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id is required"), nil //nolint:nilerr
	}
	return h.dispatch(ctx, "soft_delete", map[string]any{
		"id": id, "reason": req.GetString("reason", ""),
	})
}

func (h *handlers) restore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.idTool(ctx, req, "restore")
}

func (h *handlers) link(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError("source is required"), nil //nolint:nilerr
	}
	target, err := req.RequireString("target")
	if err != nil {
		return mcp.NewToolResultError("target is required"), nil //nolint:nilerr
	}
	relation := req.GetString("relation", "")
	return h.dispatch(ctx, "link_files", map[string]any{
		"a": source, "b": target, "relation": relation,
	})
}

func (h *handlers) links(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id is required"), nil //nolint:nilerr
	}
	out, oerr := h.svc.OutgoingLinks(ctx, id)
	if oerr != nil {
		return mcp.NewToolResultError(oerr.Error()), nil
	}
	in, ierr := h.svc.IncomingLinks(ctx, id)
	if ierr != nil {
		return mcp.NewToolResultError(ierr.Error()), nil
	}
	return jsonResult(map[string]any{"outgoing": out, "incoming": in})
}

func (h *handlers) history(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id is required"), nil //nolint:nilerr
	}
	entries, herr := h.svc.History(ctx, id, req.GetInt("limit", 0))
	if herr != nil {
		return mcp.NewToolResultError(herr.Error()), nil
	}
	return jsonResult(entries)
}

func (h *handlers) validateFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	mode := validate.ModeReportOnly
	if req.GetBool("repair", false) {
		mode = validate.ModeRepair
	}
	report, verr := h.svc.ValidateFilesInPath(ctx, req.GetString("root", ""), true, mode)
	log.Event("mcp:validate", "validate").Actor("mcp").Write(verr)
	if verr != nil {
		return mcp.NewToolResultError(verr.Error()), nil
	}
	return jsonResult(report)
}

func (h *handlers) queryDebug(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dsl, err := req.RequireString("dsl")
	if err != nil {
		return mcp.NewToolResultError("dsl is required"), nil //nolint:nilerr
	}
	dbg, derr := h.svc.QueryDebug(ctx, dsl)
	if derr != nil {
		return mcp.NewToolResultError(derr.Error()), nil
	}
	return jsonResult(dbg)
}

// idTool runs a Dispatch cmd whose only argument is the file id.
func (h *handlers) idTool(ctx context.Context, req mcp.CallToolRequest, cmd string) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id is required"), nil //nolint:nilerr
	}
	return h.dispatch(ctx, cmd, map[string]any{"id": id})
}

// dispatch reuses the stdio Dispatch table so MCP tools and stdio frames
// stay behaviourally identical, and surfaces the taxonomy code in the
// error text.
func (h *handlers) dispatch(ctx context.Context, cmd string, args map[string]any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result, derr := Dispatch(ctx, h.svc, cmd, raw)
	log.Event("mcp:"+cmd, "rpc").Actor("mcp").Write(derr)
	if derr != nil {
		return mcp.NewToolResultError(string(tberr.CodeOf(derr)) + ": " + derr.Error()), nil
	}
	return jsonResult(result)
}

// jsonResult marshals a value into a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

// splitCommaList breaks a comma/semicolon separated string into a slice
// for metadata overrides.
func splitCommaList(s string) []any {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';'
	})
	var out []any
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
