// Command blz-mcp is a minimal stdio JSON-RPC front end over pkg/blz,
// proving the library surface is usable without the full CLI (spec §9
// Open Question 3, supplemented in SPEC_FULL.md §12). It deliberately
// does not depend on a full MCP SDK: the pack's only MCP SDK is wired
// nowhere else in blz's scope (SPEC_FULL.md §11), so this front end
// speaks the minimum JSON-RPC 2.0 subset needed to expose
// search/get/list/toc, one request per line on stdin, one response per
// line on stdout.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/outfitter-dev/blz/internal/blzerrors"
	"github.com/outfitter-dev/blz/internal/config"
	"github.com/outfitter-dev/blz/internal/types"
	"github.com/outfitter-dev/blz/pkg/blz"
)

// defaultSearchLimit mirrors config.Default().Search.DefaultLimit for
// callers that omit limit entirely (JSON-RPC has no flag-default
// concept the way the CLI does).
const defaultSearchLimit = 20

type request struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type response struct {
	ID     json.RawMessage `json:"id"`
	Result any             `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "blz-mcp: config load failed:", err)
		os.Exit(2)
	}
	engine := blz.Open(cfg, nil)

	if err := serve(context.Background(), engine, os.Stdin, os.Stdout); err != nil && err != io.EOF {
		fmt.Fprintln(os.Stderr, "blz-mcp:", err)
		os.Exit(2)
	}
}

func serve(ctx context.Context, engine *blz.Engine, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	enc := json.NewEncoder(out)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			_ = enc.Encode(response{Error: &rpcError{Code: -32700, Message: "parse error"}})
			continue
		}
		_ = enc.Encode(dispatch(ctx, engine, req))
	}
	return scanner.Err()
}

func dispatch(ctx context.Context, engine *blz.Engine, req request) response {
	resp := response{ID: req.ID}
	result, err := call(ctx, engine, req.Method, req.Params)
	if err != nil {
		resp.Error = &rpcError{Code: rpcCode(err), Message: err.Error()}
		return resp
	}
	resp.Result = result
	return resp
}

// rpcCode maps the engine's error taxonomy onto JSON-RPC's custom
// error code range, mirroring the CLI's exit-code split (spec §6/§7):
// user errors at -32001..-32003, operational failures at -32000.
func rpcCode(err error) int {
	kinder, ok := err.(interface{ Kind() blzerrors.Kind })
	if !ok {
		return -32000
	}
	switch kinder.Kind() {
	case blzerrors.KindNotFound:
		return -32001
	case blzerrors.KindInvalid:
		return -32002
	case blzerrors.KindExists:
		return -32003
	default:
		return -32000
	}
}

func call(ctx context.Context, engine *blz.Engine, method string, params json.RawMessage) (any, error) {
	switch method {
	case "search":
		var p struct {
			Query   string   `json:"query"`
			Sources []string `json:"sources"`
			Page    int      `json:"page"`
			Limit   int      `json:"limit"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, blzerrors.NewInvalidError("params", string(params), err.Error())
		}
		if p.Page == 0 {
			p.Page = 1
		}
		if p.Limit == 0 {
			p.Limit = defaultSearchLimit
		}
		return engine.Search(ctx, p.Query, p.Sources, p.Page, p.Limit)

	case "get":
		var p struct {
			Source string `json:"source"`
			Start  int    `json:"start"`
			End    int    `json:"end"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, blzerrors.NewInvalidError("params", string(params), err.Error())
		}
		return engine.Get(p.Source, types.LineRange{Start: p.Start, End: p.End})

	case "list":
		return engine.List()

	case "toc":
		var p struct {
			Source string `json:"source"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, blzerrors.NewInvalidError("params", string(params), err.Error())
		}
		return engine.TOC(p.Source)

	default:
		return nil, blzerrors.NewInvalidError("method", method, "unknown method")
	}
}
