package session

import (
	"context"
	"errors"
	"sync"

	"github.com/petal-labs/mcpchat/mcp"
)

type fakeClient struct {
	mu sync.Mutex

	initErr      error
	capabilities map[string]any
	tools        []mcp.Tool
	toolsErr     error
	prompts      []mcp.Prompt
	resources    []mcp.Resource
	templates    []mcp.ResourceTemplate
	pingErr      error
	closeErr     error

	callTool     func(params mcp.ToolsCallParams) (mcp.ToolsCallResult, error)
	readResource func(uri string) (mcp.ResourcesReadResult, error)

	calls  []string
	closed int
}

func (f *fakeClient) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeClient) Initialize(ctx context.Context) (mcp.InitializeResult, error) {
	f.record("initialize")
	if f.initErr != nil {
		return mcp.InitializeResult{}, f.initErr
	}
	return mcp.InitializeResult{
		ProtocolVersion: "2025-06-18",
		Capabilities:    f.capabilities,
		ServerInfo:      mcp.ServerInfo{Name: "fake"},
	}, nil
}

func (f *fakeClient) ListTools(ctx context.Context) (mcp.ToolsListResult, error) {
	f.record("tools/list")
	return mcp.ToolsListResult{Tools: f.tools}, f.toolsErr
}

func (f *fakeClient) ListPrompts(ctx context.Context) (mcp.PromptsListResult, error) {
	f.record("prompts/list")
	return mcp.PromptsListResult{Prompts: f.prompts}, nil
}

func (f *fakeClient) ListResources(ctx context.Context) (mcp.ResourcesListResult, error) {
	f.record("resources/list")
	return mcp.ResourcesListResult{Resources: f.resources}, nil
}

func (f *fakeClient) ListResourceTemplates(ctx context.Context) (mcp.ResourceTemplatesListResult, error) {
	f.record("resources/templates/list")
	return mcp.ResourceTemplatesListResult{ResourceTemplates: f.templates}, nil
}

func (f *fakeClient) CallTool(ctx context.Context, params mcp.ToolsCallParams) (mcp.ToolsCallResult, error) {
	f.record("tools/call:" + params.Name)
	if f.callTool != nil {
		return f.callTool(params)
	}
	return mcp.ToolsCallResult{Content: []mcp.ContentBlock{{Type: "text", Text: "ok"}}}, nil
}

func (f *fakeClient) GetPrompt(ctx context.Context, params mcp.PromptsGetParams) (mcp.PromptsGetResult, error) {
	f.record("prompts/get:" + params.Name)
	return mcp.PromptsGetResult{}, nil
}

func (f *fakeClient) ReadResource(ctx context.Context, params mcp.ResourcesReadParams) (mcp.ResourcesReadResult, error) {
	f.record("resources/read:" + params.URI)
	if f.readResource != nil {
		return f.readResource(params.URI)
	}
	return mcp.ResourcesReadResult{Contents: []mcp.ResourceContents{{URI: params.URI, Text: "body"}}}, nil
}

func (f *fakeClient) Ping(ctx context.Context) error {
	f.record("ping")
	return f.pingErr
}

func (f *fakeClient) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return f.closeErr
}

func (f *fakeClient) callCount(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

var errDialFailed = errors.New("dial failed")
