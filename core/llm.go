package core

import "context"

// =============================================================================
// LLM Client Interface
// =============================================================================

// LLMClient abstracts a single provider/model backend.
// Implementations adapt provider SDKs to this common interface.
type LLMClient interface {
	Complete(ctx context.Context, req ModelRequest) (ModelResponse, error)
}

// ModelRequest is one round-trip to the model.
type ModelRequest struct {
	Model     string
	System    string // optional system prompt
	MaxTokens int
	Messages  []Message
	Tools     []ToolDescriptor
}

// ModelResponse is the model's reply. Content holds only TextBlock and
// ToolUseBlock values, in the order the model produced them.
type ModelResponse struct {
	Content    []ContentBlock
	StopReason string
	Usage      TokenUsage
}

// ToolUses returns the tool_use blocks of the response in order.
func (r ModelResponse) ToolUses() []ToolUseBlock {
	var out []ToolUseBlock
	for _, block := range r.Content {
		if use, ok := block.(ToolUseBlock); ok {
			out = append(out, use)
		}
	}
	return out
}

// LLMClientFunc adapts a function to LLMClient.
type LLMClientFunc func(ctx context.Context, req ModelRequest) (ModelResponse, error)

// Complete calls f.
func (f LLMClientFunc) Complete(ctx context.Context, req ModelRequest) (ModelResponse, error) {
	return f(ctx, req)
}

// Ensure interface compliance at compile time.
var _ LLMClient = LLMClientFunc(nil)
