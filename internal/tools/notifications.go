package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/buildhub/erp-mcp/internal/gateway"
	"github.com/buildhub/erp-mcp/internal/notify"
)

// NotificationsHandler returns the MCP tool handler for
// "erp-notifications": fetches the caller's notifications and renders the
// HTML bodies to markdown.
func NotificationsHandler(client *gateway.Client) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if ctx.Err() != nil {
			return mcp.NewToolResultError(ctx.Err().Error()), nil
		}
		path, _ := gateway.Endpoint("notifications")
		raw, err := client.Get(ctx, path, nil)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		items, err := gateway.Decode[[]notify.Notification](raw)
		if err != nil {
			return mcp.NewToolResultError("decoding notifications: " + err.Error()), nil
		}
		if len(items) == 0 {
			return mcp.NewToolResultText("no notifications"), nil
		}
		out, err := notify.RenderList(items)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(out), nil
	}
}
