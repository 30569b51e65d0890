package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/buildhub/erp-mcp/internal/gateway"
	"github.com/buildhub/erp-mcp/internal/logger"
)

// loginResponse is the auth payload after envelope unwrap.
type loginResponse struct {
	Token     string          `json:"token"`
	ExpiresIn int64           `json:"expiresIn,omitempty"` // seconds
	User      json.RawMessage `json:"user"`
}

// LoginHandler returns the MCP tool handler for "erp-login". On success the
// credentials land in the shared session store, so every other tool (and
// any other process on the same daemon) is authenticated from then on.
func LoginHandler(client *gateway.Client) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if ctx.Err() != nil {
			return mcp.NewToolResultError(ctx.Err().Error()), nil
		}
		email, err := req.RequireString("email")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		password, err := req.RequireString("password")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		path, _ := gateway.Endpoint("login")
		raw, err := client.Post(ctx, path, map[string]string{"email": email, "password": password})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		resp, err := gateway.Decode[loginResponse](raw)
		if err != nil || resp.Token == "" {
			return mcp.NewToolResultError("login succeeded but response carried no token"), nil
		}

		ttl := time.Duration(resp.ExpiresIn) * time.Second
		sess := client.Session()
		if err := sess.SetToken(resp.Token, ttl); err != nil {
			return mcp.NewToolResultError("storing token: " + err.Error()), nil
		}
		if len(resp.User) > 0 {
			if err := sess.SetUser(resp.User); err != nil {
				return mcp.NewToolResultError("storing user: " + err.Error()), nil
			}
		}
		client.ResetAuthState()
		logger.Infof("logged in as %s", email)
		return mcp.NewToolResultText("logged in as " + email), nil
	}
}
