package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/petal-labs/mcpchat/core"
	"github.com/petal-labs/mcpchat/mcp"
	"github.com/petal-labs/mcpchat/session"
)

// scriptedLLM replays canned responses in order and records every request.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []core.ModelResponse
	err       error
	requests  []core.ModelRequest
}

func (s *scriptedLLM) Complete(_ context.Context, req core.ModelRequest) (core.ModelResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return core.ModelResponse{}, s.err
	}
	if len(s.responses) == 0 {
		return core.ModelResponse{}, errors.New("scriptedLLM: no response left")
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

func (s *scriptedLLM) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func textResponse(text string) core.ModelResponse {
	return core.ModelResponse{
		Content:    []core.ContentBlock{core.TextBlock{Text: text}},
		StopReason: "end_turn",
	}
}

func toolResponse(text string, uses ...core.ToolUseBlock) core.ModelResponse {
	var blocks []core.ContentBlock
	if text != "" {
		blocks = append(blocks, core.TextBlock{Text: text})
	}
	for _, use := range uses {
		blocks = append(blocks, use)
	}
	return core.ModelResponse{Content: blocks, StopReason: "tool_use"}
}

type toolCall struct {
	name string
	args map[string]any
}

// fakeDispatcher serves tools, prompts and resources from maps.
type fakeDispatcher struct {
	tools     map[string]mcp.ToolsCallResult
	toolErr   error
	prompts   []core.PromptDescriptor
	rendered  map[string]mcp.PromptsGetResult
	resources map[string]mcp.ResourcesReadResult

	calls       []toolCall
	promptCalls []map[string]string
}

func (f *fakeDispatcher) Tools() []core.ToolDescriptor {
	out := make([]core.ToolDescriptor, 0, len(f.tools))
	for name := range f.tools {
		out = append(out, core.ToolDescriptor{Name: name})
	}
	return out
}

func (f *fakeDispatcher) CallTool(_ context.Context, name string, args map[string]any) (mcp.ToolsCallResult, error) {
	f.calls = append(f.calls, toolCall{name: name, args: args})
	if f.toolErr != nil {
		return mcp.ToolsCallResult{}, f.toolErr
	}
	result, ok := f.tools[name]
	if !ok {
		return mcp.ToolsCallResult{}, &session.NotFoundError{Kind: session.KindTool, Name: name}
	}
	return result, nil
}

func (f *fakeDispatcher) Prompts() []core.PromptDescriptor {
	return f.prompts
}

func (f *fakeDispatcher) GetPrompt(_ context.Context, name string, args map[string]string) (mcp.PromptsGetResult, error) {
	f.promptCalls = append(f.promptCalls, args)
	result, ok := f.rendered[name]
	if !ok {
		return mcp.PromptsGetResult{}, &session.NotFoundError{Kind: session.KindPrompt, Name: name}
	}
	return result, nil
}

func (f *fakeDispatcher) ReadResource(_ context.Context, uri string) (mcp.ResourcesReadResult, error) {
	result, ok := f.resources[uri]
	if !ok {
		return mcp.ResourcesReadResult{}, &session.NotFoundError{Kind: session.KindResource, Name: uri}
	}
	return result, nil
}

func textResult(text string) mcp.ToolsCallResult {
	return mcp.ToolsCallResult{Content: []mcp.ContentBlock{{Type: "text", Text: text}}}
}

// memoryRecorder keeps recorded transcripts per session.
type memoryRecorder struct {
	records map[string][]core.Message
	err     error
}

func (r *memoryRecorder) Record(_ context.Context, sessionID string, messages []core.Message) error {
	if r.err != nil {
		return r.err
	}
	if r.records == nil {
		r.records = make(map[string][]core.Message)
	}
	r.records[sessionID] = append(r.records[sessionID], messages...)
	return nil
}

func toolUse(i int, name string, input map[string]any) core.ToolUseBlock {
	return core.ToolUseBlock{ID: fmt.Sprintf("toolu_%d", i), Name: name, Input: input}
}
