// Package rpc exposes the public library surface to front-ends over two
// transports: newline-delimited JSON request/response frames on
// stdin/stdout (this file), and MCP tools for clients that speak the
// Model Context Protocol (mcp.go). Both are thin adapters over
// service.Service; no domain logic lives here.
package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/tagbox/core/internal/config"
	"github.com/tagbox/core/internal/editor"
	"github.com/tagbox/core/internal/engine"
	"github.com/tagbox/core/internal/importer"
	"github.com/tagbox/core/internal/log"
	"github.com/tagbox/core/internal/metainfo"
	"github.com/tagbox/core/internal/service"
	"github.com/tagbox/core/internal/store"
	"github.com/tagbox/core/internal/tberr"
	"github.com/tagbox/core/internal/validate"
)

// Request is one inbound frame. The jsonrpc and id members are optional;
// cmd names a public-surface operation and args carries its named
// parameters.
type Request struct {
	JSONRPC string          `json:"jsonrpc,omitempty"`
	ID      any             `json:"id,omitempty"`
	Cmd     string          `json:"cmd"`
	Args    json.RawMessage `json:"args,omitempty"`
}

// Response is one outbound frame. Exactly one of Result and Error is set.
type Response struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id,omitempty"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

// RPCError carries the taxonomy name as the machine-readable code and a
// human message.
type RPCError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Serve reads frames from r and writes one response per request to w
// until EOF. A malformed frame produces an InvalidQuery-coded error
// response rather than terminating the loop; only transport failure
// ends it.
func Serve(ctx context.Context, svc service.Service, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	enc := json.NewEncoder(w)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", tberr.ErrCancelled, err)
		}

		var req Request
		resp := Response{JSONRPC: "2.0"}
		if err := json.Unmarshal(line, &req); err != nil {
			resp.Error = &RPCError{Code: string(tberr.KindInvalidQuery), Message: "malformed frame: " + err.Error()}
		} else {
			resp.ID = req.ID
			result, derr := Dispatch(ctx, svc, req.Cmd, req.Args)
			if derr != nil {
				resp.Error = &RPCError{Code: string(tberr.CodeOf(derr)), Message: derr.Error()}
			} else {
				resp.Result = result
			}
			log.Event("rpc:"+req.Cmd, "rpc").Write(derr)
		}
		if err := enc.Encode(&resp); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// Dispatch maps one cmd to its service operation. Shared by the stdio
// loop and the MCP tool handlers so both transports behave identically.
func Dispatch(ctx context.Context, svc service.Service, cmd string, args json.RawMessage) (any, error) {
	decode := func(into any) error {
		if len(args) == 0 {
			return nil
		}
		if err := json.Unmarshal(args, into); err != nil {
			return fmt.Errorf("%w: bad args for %s: %v", tberr.ErrConfigError, cmd, err)
		}
		return nil
	}

	switch cmd {
	case "extract_metainfo":
		var a struct {
			Path string `json:"path"`
		}
		if err := decode(&a); err != nil {
			return nil, err
		}
		return svc.ExtractMetainfo(a.Path)

	case "import_file":
		var a struct {
			Path     string                   `json:"path"`
			Metadata *metainfo.ImportMetadata `json:"metadata,omitempty"`
		}
		if err := decode(&a); err != nil {
			return nil, err
		}
		return svc.ImportFile(ctx, a.Path, a.Metadata)

	case "import_files":
		var a struct {
			Paths []string `json:"paths"`
		}
		if err := decode(&a); err != nil {
			return nil, err
		}
		results := svc.ImportFiles(ctx, a.Paths)
		return marshalImportResults(results), nil

	case "search":
		var a struct {
			Query   string            `json:"query"`
			Options store.ListOptions `json:"options,omitempty"`
		}
		if err := decode(&a); err != nil {
			return nil, err
		}
		return svc.Search(ctx, a.Query, a.Options)

	case "fuzzy_search":
		var a struct {
			Partial string            `json:"partial"`
			Options store.ListOptions `json:"options,omitempty"`
		}
		if err := decode(&a); err != nil {
			return nil, err
		}
		return svc.FuzzySearch(ctx, a.Partial, a.Options)

	case "query_debug":
		var a struct {
			DSL string `json:"dsl"`
		}
		if err := decode(&a); err != nil {
			return nil, err
		}
		return svc.QueryDebug(ctx, a.DSL)

	case "get_file":
		var a idArgs
		if err := decode(&a); err != nil {
			return nil, err
		}
		return svc.GetFile(ctx, a.ID)

	case "get_file_path":
		var a idArgs
		if err := decode(&a); err != nil {
			return nil, err
		}
		path, err := svc.GetFilePath(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		return map[string]string{"path": path}, nil

	case "list":
		var a struct {
			Options store.ListOptions `json:"options,omitempty"`
		}
		if err := decode(&a); err != nil {
			return nil, err
		}
		entries, total, err := svc.List(ctx, a.Options)
		if err != nil {
			return nil, err
		}
		return map[string]any{"entries": entries, "total_count": total}, nil

	case "update_file":
		var a struct {
			ID      string            `json:"id"`
			Request *store.FileUpdate `json:"request"`
		}
		if err := decode(&a); err != nil {
			return nil, err
		}
		if a.Request == nil {
			return nil, fmt.Errorf("%w: update_file needs a request", tberr.ErrConfigError)
		}
		return okResult(svc.UpdateFile(ctx, a.ID, a.Request))

	case "move_file":
		var a idArgs
		if err := decode(&a); err != nil {
			return nil, err
		}
		return okResult(svc.MoveFile(ctx, a.ID))

	case "soft_delete":
		var a struct {
			ID     string `json:"id"`
			Reason string `json:"reason,omitempty"`
		}
		if err := decode(&a); err != nil {
			return nil, err
		}
		return okResult(svc.SoftDelete(ctx, a.ID, a.Reason))

	case "restore":
		var a idArgs
		if err := decode(&a); err != nil {
			return nil, err
		}
		return okResult(svc.Restore(ctx, a.ID))

	case "record_access":
		var a idArgs
		if err := decode(&a); err != nil {
			return nil, err
		}
		return okResult(svc.RecordAccess(ctx, a.ID))

	case "update_file_hash":
		var a idArgs
		if err := decode(&a); err != nil {
			return nil, err
		}
		return okResult(svc.UpdateFileHash(ctx, a.ID))

	case "rebuild":
		var a struct {
			ID      string `json:"id,omitempty"`
			Apply   bool   `json:"apply"`
			Workers int    `json:"workers,omitempty"`
		}
		if err := decode(&a); err != nil {
			return nil, err
		}
		moves, err := svc.Rebuild(ctx, a.ID, a.Apply, a.Workers)
		if err != nil {
			return nil, err
		}
		return marshalMoves(moves), nil

	case "history":
		var a struct {
			ID    string `json:"id"`
			Limit int    `json:"limit,omitempty"`
		}
		if err := decode(&a); err != nil {
			return nil, err
		}
		return svc.History(ctx, a.ID, a.Limit)

	case "link_files":
		var a struct {
			A        string `json:"a"`
			B        string `json:"b"`
			Relation string `json:"relation"`
		}
		if err := decode(&a); err != nil {
			return nil, err
		}
		return okResult(svc.LinkFiles(ctx, a.A, a.B, a.Relation))

	case "unlink_files":
		var a struct {
			A string `json:"a"`
			B string `json:"b"`
		}
		if err := decode(&a); err != nil {
			return nil, err
		}
		return okResult(svc.UnlinkFiles(ctx, a.A, a.B))

	case "outgoing_links":
		var a idArgs
		if err := decode(&a); err != nil {
			return nil, err
		}
		return svc.OutgoingLinks(ctx, a.ID)

	case "incoming_links":
		var a idArgs
		if err := decode(&a); err != nil {
			return nil, err
		}
		return svc.IncomingLinks(ctx, a.ID)

	case "add_author":
		var a struct {
			Name string `json:"name"`
		}
		if err := decode(&a); err != nil {
			return nil, err
		}
		return svc.AddAuthor(ctx, a.Name)

	case "remove_author":
		var a idArgs
		if err := decode(&a); err != nil {
			return nil, err
		}
		return okResult(svc.RemoveAuthor(ctx, a.ID))

	case "merge_authors":
		var a struct {
			From string `json:"from"`
			To   string `json:"to"`
		}
		if err := decode(&a); err != nil {
			return nil, err
		}
		return okResult(svc.MergeAuthors(ctx, a.From, a.To))

	case "resolve_author":
		var a struct {
			Name string `json:"name"`
		}
		if err := decode(&a); err != nil {
			return nil, err
		}
		return svc.ResolveAuthor(ctx, a.Name)

	case "validate_files_in_path":
		var a struct {
			Root      string `json:"root,omitempty"`
			Recursive bool   `json:"recursive"`
			Mode      string `json:"mode,omitempty"`
		}
		if err := decode(&a); err != nil {
			return nil, err
		}
		mode := validate.ModeReportOnly
		if a.Mode == string(validate.ModeRepair) {
			mode = validate.ModeRepair
		}
		return svc.ValidateFilesInPath(ctx, a.Root, a.Recursive, mode)

	case "check_config_compatibility":
		return okResult(svc.CheckConfigCompatibility(ctx))

	case "validate_config":
		// config's own sentinels sit outside the taxonomy; bridge them
		// so error.code reads ConfigError, not DatabaseError.
		if err := svc.Config().Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", tberr.ErrConfigError, err)
		}
		return map[string]bool{"ok": true}, nil

	case "load_config":
		var a struct {
			Path string `json:"path"`
		}
		if err := decode(&a); err != nil {
			return nil, err
		}
		cfg, err := config.LoadFile(a.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", tberr.ErrConfigError, err)
		}
		return cfg.All(), nil

	case "init_database":
		var a struct {
			Path string `json:"path"`
		}
		if err := decode(&a); err != nil {
			return nil, err
		}
		path := a.Path
		if path == "" {
			path = svc.Config().DatabasePath()
		}
		return okResult(engine.InitDatabase(path, svc.Config()))

	default:
		return nil, fmt.Errorf("%w: unknown cmd %q", tberr.ErrConfigError, cmd)
	}
}

type idArgs struct {
	ID string `json:"id"`
}

// okResult collapses an error-only operation into {"ok": true}.
func okResult(err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

// marshalImportResults flattens batch results so the error half is
// JSON-visible (errors don't marshal themselves).
func marshalImportResults(results []importer.Result) []map[string]any {
	out := make([]map[string]any, len(results))
	for i, r := range results {
		m := map[string]any{"path": r.Path}
		if r.Err != nil {
			m["error"] = &RPCError{Code: string(tberr.CodeOf(r.Err)), Message: r.Err.Error()}
		} else {
			m["entry"] = r.Entry
		}
		out[i] = m
	}
	return out
}

// marshalMoves flattens rebuild reports the same way.
func marshalMoves(moves []editor.PlannedMove) []map[string]any {
	out := make([]map[string]any, len(moves))
	for i, m := range moves {
		entry := map[string]any{"file_id": m.FileID, "from": m.From, "to": m.To}
		if m.Err != nil {
			entry["error"] = &RPCError{Code: string(tberr.CodeOf(m.Err)), Message: m.Err.Error()}
		}
		out[i] = entry
	}
	return out
}
