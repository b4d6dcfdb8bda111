package mcp

import (
	"context"
	"encoding/json"
	"net/http"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/szaher/agentbus/internal/tools"
)

// ServerName is the implementation name announced to MCP clients.
const ServerName = "agentbus"

// NewServer creates an MCP server exposing every tool in the handler's
// catalog. Argument validation is left to the handler so that MCP and JSON
// callers see the same error text.
func NewServer(h *tools.Handler, version string) *mcpsdk.Server {
	server := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    ServerName,
		Version: version,
	}, nil)

	for _, t := range h.Catalog() {
		name := t.Name
		server.AddTool(&mcpsdk.Tool{
			Name:        name,
			Description: t.Description,
			InputSchema: t.InputSchema(),
		}, func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
			args := make(map[string]any)
			if req.Params != nil && len(req.Params.Arguments) > 0 {
				if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
					return textResult("arguments must be a JSON object", true), nil
				}
			}
			res := h.Call(ctx, name, args)
			return textResult(res.Text, res.IsError), nil
		})
	}
	return server
}

func textResult(text string, isError bool) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}},
		IsError: isError,
	}
}

// NewHandler serves server over the streamable HTTP transport.
func NewHandler(server *mcpsdk.Server) http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server {
		return server
	}, nil)
}
