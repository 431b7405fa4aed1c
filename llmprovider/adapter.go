// Package llmprovider bridges iris LLM providers to mcpchat's core.LLMClient interface.
package llmprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	iriscore "github.com/petal-labs/iris/core"
	iristools "github.com/petal-labs/iris/tools"

	"github.com/petal-labs/mcpchat/core"
	"github.com/petal-labs/mcpchat/mcp"
)

// irisAdapter wraps an iris Provider to implement core.LLMClient.
type irisAdapter struct {
	provider iriscore.Provider
}

// Complete sends a synchronous completion request via the iris provider.
func (a *irisAdapter) Complete(ctx context.Context, req core.ModelRequest) (core.ModelResponse, error) {
	chatReq := a.toRequest(req)

	started := time.Now()
	chatResp, err := a.provider.Chat(ctx, chatReq)
	observation := core.ModelCallObservation{
		Provider:   a.provider.ID(),
		Model:      req.Model,
		DurationMS: time.Since(started).Milliseconds(),
		Success:    err == nil,
		ErrorCode:  core.ErrorCode(err),
	}
	if err != nil {
		core.ActiveObserver().ObserveModelCall(observation)
		return core.ModelResponse{}, fmt.Errorf("llmprovider: provider chat failed: %w", err)
	}

	resp, err := a.fromResponse(chatResp)
	if err != nil {
		observation.Success = false
		observation.ErrorCode = core.ErrorCode(err)
		core.ActiveObserver().ObserveModelCall(observation)
		return core.ModelResponse{}, err
	}
	observation.InputTokens = resp.Usage.InputTokens
	observation.OutputTokens = resp.Usage.OutputTokens
	observation.ToolUses = len(chatResp.ToolCalls)
	core.ActiveObserver().ObserveModelCall(observation)
	return resp, nil
}

// toRequest converts a core.ModelRequest to an iris ChatRequest.
func (a *irisAdapter) toRequest(req core.ModelRequest) *iriscore.ChatRequest {
	messages := make([]iriscore.Message, 0, len(req.Messages)+1)

	if req.System != "" {
		messages = append(messages, iriscore.Message{
			Role:    iriscore.RoleSystem,
			Content: req.System,
		})
	}

	for _, m := range req.Messages {
		messages = append(messages, toIrisMessages(m)...)
	}

	chatReq := &iriscore.ChatRequest{
		Model:    iriscore.ModelID(req.Model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		maxTokens := req.MaxTokens
		chatReq.MaxTokens = &maxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = make([]iriscore.Tool, 0, len(req.Tools))
		for _, desc := range req.Tools {
			chatReq.Tools = append(chatReq.Tools, descriptorTool{desc: desc})
		}
	}

	return chatReq
}

// toIrisMessages maps one conversation message. Tool results travel in a
// tool-role message; text and tool calls keep the message's own role.
func toIrisMessages(m core.Message) []iriscore.Message {
	var (
		text    strings.Builder
		calls   []iriscore.ToolCall
		results []iriscore.ToolResult
	)
	for _, block := range m.Content {
		switch b := block.(type) {
		case core.TextBlock:
			text.WriteString(b.Text)
		case core.ToolUseBlock:
			calls = append(calls, iriscore.ToolCall{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: core.MarshalInput(b.Input),
			})
		case core.ToolResultBlock:
			results = append(results, iriscore.ToolResult{
				CallID:  b.ToolUseID,
				Content: resultText(b.Content),
				IsError: b.IsError,
			})
		}
	}

	var out []iriscore.Message
	if text.Len() > 0 || len(calls) > 0 {
		out = append(out, iriscore.Message{
			Role:      toIrisRole(m.Role),
			Content:   text.String(),
			ToolCalls: calls,
		})
	}
	if len(results) > 0 {
		out = append(out, iriscore.Message{
			Role:        iriscore.RoleTool,
			ToolResults: results,
		})
	}
	return out
}

// MalformedToolCallError reports tool call arguments that are not a JSON object.
type MalformedToolCallError struct {
	CallID string
	Tool   string
	Err    error
}

func (e *MalformedToolCallError) Error() string {
	return fmt.Sprintf("llmprovider: tool call %s (%s) has malformed arguments: %v", e.CallID, e.Tool, e.Err)
}

func (e *MalformedToolCallError) Unwrap() error { return e.Err }

// Code labels the failure for telemetry.
func (e *MalformedToolCallError) Code() string { return "malformed_response" }

// fromResponse converts an iris ChatResponse to a core.ModelResponse. iris
// reports text and tool calls separately, so text is placed first.
func (a *irisAdapter) fromResponse(resp *iriscore.ChatResponse) (core.ModelResponse, error) {
	result := core.ModelResponse{
		StopReason: resp.Status,
		Usage: core.TokenUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}

	if resp.Output != "" {
		result.Content = append(result.Content, core.TextBlock{Text: resp.Output})
	}
	for _, tc := range resp.ToolCalls {
		args := make(map[string]any)
		if len(tc.Arguments) > 0 {
			if err := json.Unmarshal(tc.Arguments, &args); err != nil {
				return core.ModelResponse{}, &MalformedToolCallError{CallID: tc.ID, Tool: tc.Name, Err: err}
			}
		}
		result.Content = append(result.Content, core.ToolUseBlock{
			ID:    tc.ID,
			Name:  tc.Name,
			Input: args,
		})
	}
	if result.StopReason == "" && len(resp.ToolCalls) > 0 {
		result.StopReason = "tool_use"
	}

	return result, nil
}

// resultText flattens tool result content for providers that accept a
// single string per tool result.
func resultText(content []mcp.ContentBlock) string {
	parts := make([]string, 0, len(content))
	for _, item := range content {
		switch {
		case item.Text != "":
			parts = append(parts, item.Text)
		case item.Resource != nil && item.Resource.Text != "":
			parts = append(parts, item.Resource.Text)
		default:
			parts = append(parts, "["+item.Type+"]")
		}
	}
	return strings.Join(parts, "\n")
}

// toIrisRole converts a conversation role to an iris Role constant.
func toIrisRole(role core.Role) iriscore.Role {
	switch role {
	case core.RoleAssistant:
		return iriscore.RoleAssistant
	default:
		return iriscore.RoleUser
	}
}

// descriptorTool exposes a registered MCP tool to iris. It is schema only:
// the chat driver dispatches calls itself.
type descriptorTool struct {
	desc core.ToolDescriptor
}

func (t descriptorTool) Name() string        { return t.desc.Name }
func (t descriptorTool) Description() string { return t.desc.Description }

func (t descriptorTool) Schema() iristools.ToolSchema {
	schema := t.desc.InputSchema
	if schema == nil {
		schema = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		raw = json.RawMessage(`{"type":"object"}`)
	}
	return iristools.ToolSchema{JSONSchema: raw}
}

// Compile-time interface check.
var _ core.LLMClient = (*irisAdapter)(nil)
