// Package mcp exposes the agentbus tool catalog over the Model Context
// Protocol and provides the client used by the command line.
package mcp

import (
	"context"
	"fmt"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// ToolInfo describes a tool available on an MCP server.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CallResult is the text and error flag returned by a tool call.
type CallResult struct {
	Text    string
	IsError bool
}

// Client wraps the MCP SDK client for a single streamable HTTP endpoint.
type Client struct {
	url     string
	version string
	client  *mcpsdk.Client
	session *mcpsdk.ClientSession
}

// NewClient creates a new MCP client for the endpoint at url.
func NewClient(url, version string) *Client {
	return &Client{url: url, version: version}
}

// Connect establishes a connection to the MCP server.
func (c *Client) Connect(ctx context.Context) error {
	impl := &mcpsdk.Implementation{
		Name:    "agentbus-cli",
		Version: c.version,
	}
	c.client = mcpsdk.NewClient(impl, nil)

	transport := &mcpsdk.StreamableClientTransport{Endpoint: c.url}
	session, err := c.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("mcp connect to %s: %w", c.url, err)
	}
	c.session = session
	return nil
}

// ListTools returns all tools available on the server.
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	if c.session == nil {
		return nil, fmt.Errorf("mcp client not connected")
	}

	var tools []ToolInfo
	for tool, err := range c.session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("mcp list tools: %w", err)
		}
		tools = append(tools, ToolInfo{
			Name:        tool.Name,
			Description: tool.Description,
		})
	}
	return tools, nil
}

// CallTool invokes a tool on the MCP server. A tool-level failure is
// reported in the result, not as an error.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (CallResult, error) {
	if c.session == nil {
		return CallResult{}, fmt.Errorf("mcp client not connected")
	}

	result, err := c.session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return CallResult{}, fmt.Errorf("mcp call tool %s: %w", name, err)
	}

	var parts []string
	for _, content := range result.Content {
		if tc, ok := content.(*mcpsdk.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return CallResult{Text: strings.Join(parts, "\n"), IsError: result.IsError}, nil
}

// Close gracefully closes the MCP connection.
func (c *Client) Close() error {
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}
