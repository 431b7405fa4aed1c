// Package core provides the foundational types and interfaces for mcpchat.
//
// This package contains:
//   - Conversation types: Role, Message, ContentBlock, Conversation
//   - Descriptors: ToolDescriptor, PromptDescriptor
//   - Interfaces: LLMClient, Observer
package core

import (
	"encoding/json"
	"time"

	"github.com/petal-labs/mcpchat/mcp"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the Role.
func (r Role) String() string {
	return string(r)
}

// =============================================================================
// Content Blocks
// =============================================================================

// ContentBlock is one element of a message. The concrete type is one of
// TextBlock, ToolUseBlock or ToolResultBlock.
type ContentBlock interface {
	// BlockType returns the wire discriminator: "text", "tool_use" or "tool_result".
	BlockType() string
	contentBlock()
}

// TextBlock is plain model or user text.
type TextBlock struct {
	Text string
}

// ToolUseBlock is a tool invocation requested by the model.
type ToolUseBlock struct {
	ID    string         // call id, echoed back in the ToolResultBlock
	Name  string         // tool name as registered
	Input map[string]any // arguments as decoded from the model
}

// ToolResultBlock carries a tool's raw result back to the model.
type ToolResultBlock struct {
	ToolUseID string
	Content   []mcp.ContentBlock
	IsError   bool
}

func (TextBlock) BlockType() string       { return "text" }
func (ToolUseBlock) BlockType() string    { return "tool_use" }
func (ToolResultBlock) BlockType() string { return "tool_result" }

func (TextBlock) contentBlock()       {}
func (ToolUseBlock) contentBlock()    {}
func (ToolResultBlock) contentBlock() {}

// Text returns the concatenated text of every TextBlock in blocks.
func Text(blocks []ContentBlock) string {
	var out []byte
	for _, block := range blocks {
		if text, ok := block.(TextBlock); ok {
			out = append(out, text.Text...)
		}
	}
	return string(out)
}

// =============================================================================
// Conversation
// =============================================================================

// Message is one entry of a conversation.
type Message struct {
	Role    Role
	Content []ContentBlock
}

// NewUserText builds a user message holding a single text block.
func NewUserText(text string) Message {
	return Message{Role: RoleUser, Content: []ContentBlock{TextBlock{Text: text}}}
}

// Conversation is the ordered message history sent to the model.
type Conversation struct {
	ID       string
	Messages []Message
}

// Append adds messages to the end of the conversation.
func (c *Conversation) Append(messages ...Message) {
	c.Messages = append(c.Messages, messages...)
}

// Reset drops every message but keeps the conversation ID.
func (c *Conversation) Reset() {
	c.Messages = nil
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	return len(c.Messages)
}

// =============================================================================
// Descriptors
// =============================================================================

// ToolDescriptor describes a tool exposed to the model. Immutable once registered.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// PromptArgument is a named argument accepted by a prompt.
type PromptArgument struct {
	Name        string
	Description string
	Required    bool
}

// PromptDescriptor describes a server prompt template.
type PromptDescriptor struct {
	Name        string
	Description string
	Arguments   []PromptArgument
}

// ArgumentNames returns the argument names in declaration order.
func (p PromptDescriptor) ArgumentNames() []string {
	names := make([]string, 0, len(p.Arguments))
	for _, arg := range p.Arguments {
		names = append(names, arg.Name)
	}
	return names
}

// =============================================================================
// Retry
// =============================================================================

// RetryPolicy configures retry behavior for operations that reach external
// processes.
type RetryPolicy struct {
	MaxAttempts int           // maximum number of attempts (1 = no retries)
	Backoff     time.Duration // fixed delay between attempts
}

// DefaultRetryPolicy returns the connect retry policy: 3 attempts, 1s apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     time.Second,
	}
}

// TokenUsage tracks token consumption of model calls.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Add combines two TokenUsage values.
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
		TotalTokens:  u.TotalTokens + other.TotalTokens,
	}
}

// MarshalInput encodes tool input for display and transport. Nil input
// encodes as an empty object.
func MarshalInput(input map[string]any) json.RawMessage {
	if input == nil {
		return json.RawMessage(`{}`)
	}
	data, err := json.Marshal(input)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}
