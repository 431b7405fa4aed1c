package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
)

const (
	defaultProtocolVersion = "2025-06-18"
	defaultClientName      = "mcpchat"
	defaultClientVersion   = "dev"

	// maxListPages bounds cursor pagination against servers that never stop
	// returning a cursor.
	maxListPages = 100

	codeMethodNotFound = -32601
)

// Transport carries JSON-RPC messages between the client and one server.
type Transport interface {
	Send(ctx context.Context, message Message) error
	Receive(ctx context.Context) (Message, error)
	Close(ctx context.Context) error
}

// Options configures client identity and capabilities.
type Options struct {
	ProtocolVersion string
	ClientInfo      ClientInfo
	Capabilities    map[string]any
}

// Client is a JSON-RPC MCP client. One request is in flight at a time:
// a call holds the client until its response arrives, answering any
// requests the server makes in the meantime.
type Client struct {
	transport Transport
	options   Options

	inflight sync.Mutex
	lastID   atomic.Int64

	mu      sync.Mutex
	session *InitializeResult
}

// NewClient returns a client speaking over transport.
func NewClient(transport Transport, options Options) *Client {
	if options.ProtocolVersion == "" {
		options.ProtocolVersion = defaultProtocolVersion
	}
	if options.ClientInfo.Name == "" {
		options.ClientInfo.Name = defaultClientName
	}
	if options.ClientInfo.Version == "" {
		options.ClientInfo.Version = defaultClientVersion
	}
	return &Client{transport: transport, options: options}
}

// Initialize opens the MCP session: it sends initialize, then the
// notifications/initialized notification. Later calls return the result of
// the first successful handshake without contacting the server.
func (c *Client) Initialize(ctx context.Context) (InitializeResult, error) {
	if c == nil {
		return InitializeResult{}, errors.New("mcp: client is nil")
	}
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session != nil {
		return *session, nil
	}

	capabilities := maps.Clone(c.options.Capabilities)
	if capabilities == nil {
		capabilities = map[string]any{}
	}

	var result InitializeResult
	err := c.call(ctx, "initialize", InitializeParams{
		ProtocolVersion: c.options.ProtocolVersion,
		Capabilities:    capabilities,
		ClientInfo:      c.options.ClientInfo,
	}, &result)
	if err != nil {
		return InitializeResult{}, err
	}
	if err := c.notify(ctx, "notifications/initialized"); err != nil {
		return InitializeResult{}, err
	}

	c.mu.Lock()
	c.session = &result
	c.mu.Unlock()
	return result, nil
}

// ListTools returns every tool the server offers, following cursors.
func (c *Client) ListTools(ctx context.Context) (ToolsListResult, error) {
	tools, err := collect(ctx, c, "tools/list", func(page ToolsListResult) ([]Tool, string) {
		return page.Tools, page.NextCursor
	})
	return ToolsListResult{Tools: tools}, err
}

// ListPrompts returns every prompt the server offers.
func (c *Client) ListPrompts(ctx context.Context) (PromptsListResult, error) {
	prompts, err := collect(ctx, c, "prompts/list", func(page PromptsListResult) ([]Prompt, string) {
		return page.Prompts, page.NextCursor
	})
	return PromptsListResult{Prompts: prompts}, err
}

// ListResources returns every concrete resource the server offers.
func (c *Client) ListResources(ctx context.Context) (ResourcesListResult, error) {
	resources, err := collect(ctx, c, "resources/list", func(page ResourcesListResult) ([]Resource, string) {
		return page.Resources, page.NextCursor
	})
	return ResourcesListResult{Resources: resources}, err
}

// ListResourceTemplates returns every resource template the server offers.
func (c *Client) ListResourceTemplates(ctx context.Context) (ResourceTemplatesListResult, error) {
	templates, err := collect(ctx, c, "resources/templates/list", func(page ResourceTemplatesListResult) ([]ResourceTemplate, string) {
		return page.ResourceTemplates, page.NextCursor
	})
	return ResourceTemplatesListResult{ResourceTemplates: templates}, err
}

// CallTool invokes a tool. A tool that ran but failed is reported through
// the result's IsError flag, not as an error.
func (c *Client) CallTool(ctx context.Context, params ToolsCallParams) (ToolsCallResult, error) {
	var result ToolsCallResult
	err := c.call(ctx, "tools/call", params, &result)
	return result, err
}

// GetPrompt renders a prompt with string arguments.
func (c *Client) GetPrompt(ctx context.Context, params PromptsGetParams) (PromptsGetResult, error) {
	var result PromptsGetResult
	err := c.call(ctx, "prompts/get", params, &result)
	return result, err
}

// ReadResource fetches the contents behind a resource URI.
func (c *Client) ReadResource(ctx context.Context, params ResourcesReadParams) (ResourcesReadResult, error) {
	var result ResourcesReadResult
	err := c.call(ctx, "resources/read", params, &result)
	return result, err
}

// Ping checks that the server still answers.
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, "ping", struct{}{}, nil)
}

// Close shuts down the transport and the server behind it.
func (c *Client) Close(ctx context.Context) error {
	if c == nil || c.transport == nil {
		return nil
	}
	return c.transport.Close(ctx)
}

// collect pages through a */list method. page extracts the items and the
// next cursor from one decoded page.
func collect[P, I any](ctx context.Context, c *Client, method string, page func(P) ([]I, string)) ([]I, error) {
	var (
		items  []I
		cursor string
	)
	for range maxListPages {
		var decoded P
		if err := c.call(ctx, method, ListParams{Cursor: cursor}, &decoded); err != nil {
			return nil, err
		}
		more, next := page(decoded)
		items = append(items, more...)
		if next == "" || next == cursor {
			return items, nil
		}
		cursor = next
	}
	return nil, &RequestError{Method: method, Err: fmt.Errorf("more than %d pages", maxListPages)}
}

// call sends one request and waits for the response carrying its id.
// Notifications and stale responses are dropped; server requests are
// answered so the server is never left waiting on the client.
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	if c == nil || c.transport == nil {
		return &RequestError{Method: method, Err: errors.New("no transport")}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return &RequestError{Method: method, Err: fmt.Errorf("encode params: %w", err)}
	}

	c.inflight.Lock()
	defer c.inflight.Unlock()

	id := IntID(c.lastID.Add(1))
	request := Message{JSONRPC: jsonRPCVersion, ID: id, Method: method, Params: raw}
	if err := c.transport.Send(ctx, request); err != nil {
		return &RequestError{Method: method, Err: err}
	}

	for {
		message, err := c.transport.Receive(ctx)
		if err != nil {
			return &RequestError{Method: method, Err: err}
		}
		if message.JSONRPC != "" && message.JSONRPC != jsonRPCVersion {
			return &RequestError{Method: method, Err: fmt.Errorf("unsupported jsonrpc version %q", message.JSONRPC)}
		}

		switch {
		case message.Method != "" && message.ID.IsSet():
			if err := c.answer(ctx, message); err != nil {
				return &RequestError{Method: method, Err: err}
			}
			continue
		case message.Method != "", message.ID != id:
			continue
		}

		if message.Error != nil {
			return &RequestError{Method: method, Err: message.Error}
		}
		if out == nil || len(message.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(message.Result, out); err != nil {
			return &RequestError{Method: method, Err: fmt.Errorf("decode result: %w", err)}
		}
		return nil
	}
}

// answer replies to a request the server sent mid-call. Only ping is
// supported; anything else gets method-not-found.
func (c *Client) answer(ctx context.Context, request Message) error {
	reply := Message{JSONRPC: jsonRPCVersion, ID: request.ID}
	if request.Method == "ping" {
		reply.Result = json.RawMessage(`{}`)
	} else {
		reply.Error = &RPCError{
			Code:    codeMethodNotFound,
			Message: fmt.Sprintf("method %q is not supported by this client", request.Method),
		}
	}
	return c.transport.Send(ctx, reply)
}

func (c *Client) notify(ctx context.Context, method string) error {
	return c.transport.Send(ctx, Message{JSONRPC: jsonRPCVersion, Method: method, Params: json.RawMessage(`{}`)})
}
