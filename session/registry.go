package session

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/petal-labs/mcpchat/core"
	"github.com/petal-labs/mcpchat/mcp"
)

// Registry maps tool names, prompt names and resource URIs to the connection
// that serves them. A later registration of an existing name replaces the
// earlier mapping.
type Registry struct {
	logger *slog.Logger

	mu         sync.RWMutex
	tools      map[string]*Connection
	toolList   []core.ToolDescriptor
	prompts    map[string]*Connection
	promptList []core.PromptDescriptor
	resources  map[string]*Connection
	templates  []mcp.ResourceTemplate
	schemes    map[string]*Connection
}

// NewRegistry creates an empty registry. A nil logger discards output.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		logger:    logger,
		tools:     make(map[string]*Connection),
		prompts:   make(map[string]*Connection),
		resources: make(map[string]*Connection),
		schemes:   make(map[string]*Connection),
	}
}

// RegisterTool maps a tool name to conn and adds its descriptor to the list
// offered to the model.
func (r *Registry) RegisterTool(conn *Connection, desc core.ToolDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.tools[desc.Name]; ok {
		r.logger.Warn("tool registered by more than one server; keeping the latest",
			"tool", desc.Name, "previous", prev.Name(), "server", conn.Name())
		idx := slices.IndexFunc(r.toolList, func(d core.ToolDescriptor) bool { return d.Name == desc.Name })
		if idx >= 0 {
			r.toolList[idx] = desc
		}
	} else {
		r.toolList = append(r.toolList, desc)
	}
	r.tools[desc.Name] = conn
}

// RegisterPrompt maps a prompt name to conn.
func (r *Registry) RegisterPrompt(conn *Connection, desc core.PromptDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.prompts[desc.Name]; ok {
		r.logger.Warn("prompt registered by more than one server; keeping the latest",
			"prompt", desc.Name, "previous", prev.Name(), "server", conn.Name())
		idx := slices.IndexFunc(r.promptList, func(d core.PromptDescriptor) bool { return d.Name == desc.Name })
		if idx >= 0 {
			r.promptList[idx] = desc
		}
	} else {
		r.promptList = append(r.promptList, desc)
	}
	r.prompts[desc.Name] = conn
}

// RegisterResource maps a concrete resource URI to conn.
func (r *Registry) RegisterResource(conn *Connection, uri string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.resources[uri]; ok {
		r.logger.Warn("resource registered by more than one server; keeping the latest",
			"uri", uri, "previous", prev.Name(), "server", conn.Name())
	}
	r.resources[uri] = conn
	r.claimScheme(conn, uri)
}

// RegisterResourceTemplate records a URI template served by conn. Templates
// only take part in scheme fallback.
func (r *Registry) RegisterResourceTemplate(conn *Connection, tmpl mcp.ResourceTemplate) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.templates = append(r.templates, tmpl)
	r.claimScheme(conn, tmpl.URITemplate)
}

// claimScheme records conn as the fallback for the URI's scheme unless an
// earlier registration already did. Callers hold r.mu.
func (r *Registry) claimScheme(conn *Connection, uri string) {
	scheme, ok := Scheme(uri)
	if !ok {
		return
	}
	if _, taken := r.schemes[scheme]; !taken {
		r.schemes[scheme] = conn
	}
}

// Tools returns the registered tool descriptors in registration order.
func (r *Registry) Tools() []core.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.toolList)
}

// Prompts returns the registered prompt descriptors in registration order.
func (r *Registry) Prompts() []core.PromptDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.promptList)
}

// Resources returns the registered concrete resource URIs, sorted.
func (r *Registry) Resources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.resources))
	for uri := range r.resources {
		out = append(out, uri)
	}
	slices.Sort(out)
	return out
}

// Templates returns the registered resource templates in registration order.
func (r *Registry) Templates() []mcp.ResourceTemplate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.templates)
}

// LookupTool returns the connection serving a tool.
func (r *Registry) LookupTool(name string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.tools[name]
	return conn, ok
}

// LookupPrompt returns the connection serving a prompt.
func (r *Registry) LookupPrompt(name string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.prompts[name]
	return conn, ok
}

// LookupResource returns the connection serving uri. An unregistered URI
// falls back to the first connection that registered anything under the
// same scheme.
func (r *Registry) LookupResource(uri string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if conn, ok := r.resources[uri]; ok {
		return conn, true
	}
	scheme, ok := Scheme(uri)
	if !ok {
		return nil, false
	}
	conn, ok := r.schemes[scheme]
	return conn, ok
}

// CallTool dispatches a tools/call to the owning connection.
func (r *Registry) CallTool(ctx context.Context, name string, args map[string]any) (mcp.ToolsCallResult, error) {
	conn, ok := r.LookupTool(name)
	if !ok {
		err := &NotFoundError{Kind: KindTool, Name: name}
		core.ActiveObserver().ObserveToolCall(core.ToolCallObservation{
			ToolName:  name,
			ErrorCode: core.ErrorCode(err),
		})
		return mcp.ToolsCallResult{}, err
	}

	started := time.Now()
	result, err := conn.CallTool(ctx, name, args)
	core.ActiveObserver().ObserveToolCall(core.ToolCallObservation{
		Server:     conn.Name(),
		ToolName:   name,
		DurationMS: time.Since(started).Milliseconds(),
		Success:    err == nil,
		IsError:    result.IsError,
		ErrorCode:  core.ErrorCode(err),
	})
	return result, err
}

// GetPrompt dispatches a prompts/get to the owning connection.
func (r *Registry) GetPrompt(ctx context.Context, name string, args map[string]string) (mcp.PromptsGetResult, error) {
	conn, ok := r.LookupPrompt(name)
	if !ok {
		return mcp.PromptsGetResult{}, &NotFoundError{Kind: KindPrompt, Name: name}
	}
	return conn.GetPrompt(ctx, name, args)
}

// ReadResource dispatches a resources/read to the owning connection.
func (r *Registry) ReadResource(ctx context.Context, uri string) (mcp.ResourcesReadResult, error) {
	conn, ok := r.LookupResource(uri)
	if !ok {
		return mcp.ResourcesReadResult{}, &NotFoundError{Kind: KindResource, Name: uri}
	}
	return conn.ReadResource(ctx, uri)
}

// Scheme returns the part of uri before "://".
func Scheme(uri string) (string, bool) {
	scheme, _, ok := strings.Cut(uri, "://")
	if !ok || scheme == "" {
		return "", false
	}
	return scheme, true
}
