package tools

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/buildhub/erp-mcp/internal/gateway"
)

// GetHandler returns the MCP tool handler for "erp-get": a read against a
// named endpoint, going through the full gateway pipeline (cache included
// when enabled).
func GetHandler(client *gateway.Client) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if ctx.Err() != nil {
			return mcp.NewToolResultError(ctx.Err().Error()), nil
		}
		name, err := req.RequireString("endpoint")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		path, err := gateway.Endpoint(name, pathArgs(req.GetString("path_args", ""))...)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		params, err := queryParams(req.GetString("params", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		raw, err := client.Get(ctx, path, params)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(pretty(raw)), nil
	}
}

// MutateHandler returns the MCP tool handler for "erp-mutate": a write
// (POST/PUT/PATCH/DELETE) with an optional JSON body.
func MutateHandler(client *gateway.Client) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if ctx.Err() != nil {
			return mcp.NewToolResultError(ctx.Err().Error()), nil
		}
		name, err := req.RequireString("endpoint")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		method := strings.ToUpper(req.GetString("method", "POST"))
		path, err := gateway.Endpoint(name, pathArgs(req.GetString("path_args", ""))...)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var body any
		if b := req.GetString("body", ""); b != "" {
			if err := json.Unmarshal([]byte(b), &body); err != nil {
				return mcp.NewToolResultError("body is not valid JSON: " + err.Error()), nil
			}
		}

		var raw json.RawMessage
		switch method {
		case "POST":
			raw, err = client.Post(ctx, path, body)
		case "PUT":
			raw, err = client.Put(ctx, path, body)
		case "PATCH":
			raw, err = client.Patch(ctx, path, body)
		case "DELETE":
			raw, err = client.Delete(ctx, path)
		default:
			return mcp.NewToolResultError("unsupported method " + method), nil
		}
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(pretty(raw)), nil
	}
}

// pathArgs splits a comma-separated path-argument list; empty input means
// no args.
func pathArgs(s string) []any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	args := make([]any, len(parts))
	for i, p := range parts {
		args[i] = strings.TrimSpace(p)
	}
	return args
}

// queryParams decodes a flat JSON object of query parameters.
func queryParams(s string) (url.Values, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	v := url.Values{}
	for k, val := range m {
		v.Set(k, val)
	}
	return v, nil
}

func pretty(raw json.RawMessage) string {
	var buf map[string]any
	if err := json.Unmarshal(raw, &buf); err == nil {
		if out, err := json.MarshalIndent(buf, "", "  "); err == nil {
			return string(out)
		}
	}
	var arr []any
	if err := json.Unmarshal(raw, &arr); err == nil {
		if out, err := json.MarshalIndent(arr, "", "  "); err == nil {
			return string(out)
		}
	}
	return string(raw)
}
