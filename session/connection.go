package session

import (
	"context"
	"sync"

	"github.com/petal-labs/mcpchat/mcp"
)

// Client is the subset of *mcp.Client a Connection needs.
type Client interface {
	Initialize(ctx context.Context) (mcp.InitializeResult, error)
	ListTools(ctx context.Context) (mcp.ToolsListResult, error)
	ListPrompts(ctx context.Context) (mcp.PromptsListResult, error)
	ListResources(ctx context.Context) (mcp.ResourcesListResult, error)
	ListResourceTemplates(ctx context.Context) (mcp.ResourceTemplatesListResult, error)
	CallTool(ctx context.Context, params mcp.ToolsCallParams) (mcp.ToolsCallResult, error)
	GetPrompt(ctx context.Context, params mcp.PromptsGetParams) (mcp.PromptsGetResult, error)
	ReadResource(ctx context.Context, params mcp.ResourcesReadParams) (mcp.ResourcesReadResult, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

var _ Client = (*mcp.Client)(nil)

// ServerDefinition is how to launch one MCP server.
type ServerDefinition struct {
	Command string            `json:"command" yaml:"command"`
	Args    []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
}

// Connection is an open, initialized session with one server. Calls on a
// connection never interleave.
type Connection struct {
	name   string
	info   mcp.ServerInfo
	client Client

	mu     sync.Mutex
	closed bool
}

func newConnection(name string, info mcp.ServerInfo, client Client) *Connection {
	return &Connection{name: name, info: info, client: client}
}

// Name returns the server name from the definition file.
func (c *Connection) Name() string { return c.name }

// ServerInfo returns what the server reported during initialize.
func (c *Connection) ServerInfo() mcp.ServerInfo { return c.info }

// CallTool invokes a tool on this server.
func (c *Connection) CallTool(ctx context.Context, name string, args map[string]any) (mcp.ToolsCallResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client.CallTool(ctx, mcp.ToolsCallParams{Name: name, Arguments: args})
}

// GetPrompt resolves a prompt on this server.
func (c *Connection) GetPrompt(ctx context.Context, name string, args map[string]string) (mcp.PromptsGetResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client.GetPrompt(ctx, mcp.PromptsGetParams{Name: name, Arguments: args})
}

// ReadResource reads a resource from this server.
func (c *Connection) ReadResource(ctx context.Context, uri string) (mcp.ResourcesReadResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client.ReadResource(ctx, mcp.ResourcesReadParams{URI: uri})
}

// Ping checks the server is alive.
func (c *Connection) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client.Ping(ctx)
}

// Close shuts the server down. Closing twice is a no-op.
func (c *Connection) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.client.Close(ctx)
}
