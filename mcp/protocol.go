package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const (
	jsonRPCVersion = "2.0"
)

// RequestID is a JSON-RPC id kept in its wire form, so ids chosen by the
// server (strings included) are echoed back unchanged. The zero value means
// the id is absent; a JSON null id also decodes to zero.
type RequestID struct {
	raw string
}

// IntID returns a numeric id.
func IntID(n int64) RequestID {
	return RequestID{raw: strconv.FormatInt(n, 10)}
}

// StringID returns a string id.
func StringID(s string) RequestID {
	data, _ := json.Marshal(s)
	return RequestID{raw: string(data)}
}

// IsSet reports whether the message carried an id.
func (id RequestID) IsSet() bool {
	return id.raw != ""
}

func (id RequestID) String() string {
	return id.raw
}

// MarshalJSON writes the id as received, or null when unset.
func (id RequestID) MarshalJSON() ([]byte, error) {
	if id.raw == "" {
		return []byte("null"), nil
	}
	return []byte(id.raw), nil
}

// UnmarshalJSON accepts any JSON value so that an unexpected id never
// breaks the read loop.
func (id *RequestID) UnmarshalJSON(data []byte) error {
	var compact bytes.Buffer
	if err := json.Compact(&compact, data); err != nil {
		return err
	}
	if compact.String() == "null" {
		*id = RequestID{}
		return nil
	}
	*id = RequestID{raw: compact.String()}
	return nil
}

// Message is a JSON-RPC 2.0 envelope.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      RequestID       `json:"id,omitzero"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the JSON-RPC error object.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("mcp: rpc error %d: %s", e.Code, e.Message)
}

// RequestError wraps transport and decode failures of a single request.
type RequestError struct {
	Method string
	Err    error
}

func (e *RequestError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("mcp: request %q failed: %v", e.Method, e.Err)
}

func (e *RequestError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ClientInfo identifies this client when opening an MCP session.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// ServerInfo describes the connected MCP server.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// InitializeParams is sent in the MCP initialize request.
type InitializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      ClientInfo     `json:"clientInfo"`
}

// InitializeResult is returned by the MCP initialize request.
type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities,omitempty"`
	ServerInfo      ServerInfo     `json:"serverInfo"`
	Instructions    string         `json:"instructions,omitempty"`
}

// HasCapability reports whether the server advertised the named capability
// (tools, prompts, resources). A server that advertises nothing at all is
// treated as supporting everything.
func (r InitializeResult) HasCapability(name string) bool {
	if len(r.Capabilities) == 0 {
		return true
	}
	_, ok := r.Capabilities[name]
	return ok
}

// ListParams carries the pagination cursor of the */list methods.
type ListParams struct {
	Cursor string `json:"cursor,omitempty"`
}

// Tool describes an MCP tool.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// ToolsListResult is returned by tools/list.
type ToolsListResult struct {
	Tools      []Tool `json:"tools"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// ToolsCallParams is sent to tools/call.
type ToolsCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ContentBlock is a single item of tool or prompt content.
type ContentBlock struct {
	Type     string            `json:"type"`
	Text     string            `json:"text,omitempty"`
	Data     string            `json:"data,omitempty"`
	MimeType string            `json:"mimeType,omitempty"`
	URI      string            `json:"uri,omitempty"`
	Resource *ResourceContents `json:"resource,omitempty"`
}

// ToolsCallResult is returned by tools/call.
type ToolsCallResult struct {
	Content           []ContentBlock `json:"content,omitempty"`
	StructuredContent map[string]any `json:"structuredContent,omitempty"`
	IsError           bool           `json:"isError,omitempty"`
}

// PromptArgument describes one named argument of a prompt.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// Prompt describes an MCP prompt template.
type Prompt struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

// PromptsListResult is returned by prompts/list.
type PromptsListResult struct {
	Prompts    []Prompt `json:"prompts"`
	NextCursor string   `json:"nextCursor,omitempty"`
}

// PromptsGetParams is sent to prompts/get.
type PromptsGetParams struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

// PromptMessage is one message of a resolved prompt.
type PromptMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// PromptsGetResult is returned by prompts/get.
type PromptsGetResult struct {
	Description string          `json:"description,omitempty"`
	Messages    []PromptMessage `json:"messages"`
}

// Resource describes a concrete resource URI.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ResourcesListResult is returned by resources/list.
type ResourcesListResult struct {
	Resources  []Resource `json:"resources"`
	NextCursor string     `json:"nextCursor,omitempty"`
}

// ResourceTemplate describes a parameterised resource URI.
type ResourceTemplate struct {
	URITemplate string `json:"uriTemplate"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ResourceTemplatesListResult is returned by resources/templates/list.
type ResourceTemplatesListResult struct {
	ResourceTemplates []ResourceTemplate `json:"resourceTemplates"`
	NextCursor        string             `json:"nextCursor,omitempty"`
}

// ResourcesReadParams is sent to resources/read.
type ResourcesReadParams struct {
	URI string `json:"uri"`
}

// ResourceContents is the body of a read resource.
type ResourceContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

// ResourcesReadResult is returned by resources/read.
type ResourcesReadResult struct {
	Contents []ResourceContents `json:"contents"`
}

// PromptContent is the decoded content of a prompt message. It is either
// PlainContent or ItemsContent.
type PromptContent interface {
	Text() string
	promptContent()
}

// PlainContent is prompt content sent as a bare JSON string.
type PlainContent struct {
	Value string
}

// Text returns the string unchanged.
func (c PlainContent) Text() string { return c.Value }

func (PlainContent) promptContent() {}

// ItemsContent is prompt content sent as one content object or a list of them.
type ItemsContent struct {
	Items []ContentBlock
}

// Text joins the item texts with a single space. Non-text items render as
// their type in brackets.
func (c ItemsContent) Text() string {
	parts := make([]string, 0, len(c.Items))
	for _, item := range c.Items {
		if item.Type == "" || item.Type == "text" {
			parts = append(parts, item.Text)
			continue
		}
		parts = append(parts, "["+item.Type+"]")
	}
	return strings.Join(parts, " ")
}

func (ItemsContent) promptContent() {}

// DecodePromptContent decodes raw prompt message content.
func DecodePromptContent(raw json.RawMessage) (PromptContent, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return PlainContent{}, nil
	}
	switch trimmed[0] {
	case '"':
		var value string
		if err := json.Unmarshal(trimmed, &value); err != nil {
			return nil, fmt.Errorf("mcp: decode prompt content: %w", err)
		}
		return PlainContent{Value: value}, nil
	case '[':
		var items []ContentBlock
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("mcp: decode prompt content: %w", err)
		}
		return ItemsContent{Items: items}, nil
	case '{':
		var item ContentBlock
		if err := json.Unmarshal(trimmed, &item); err != nil {
			return nil, fmt.Errorf("mcp: decode prompt content: %w", err)
		}
		return ItemsContent{Items: []ContentBlock{item}}, nil
	default:
		return nil, fmt.Errorf("mcp: unsupported prompt content %s", trimmed)
	}
}
