package core

import (
	"encoding/json"
	"fmt"

	"github.com/petal-labs/mcpchat/mcp"
)

// wireBlock is the JSON shape shared by all content blocks.
type wireBlock struct {
	Type      string             `json:"type"`
	Text      string             `json:"text,omitempty"`
	ID        string             `json:"id,omitempty"`
	Name      string             `json:"name,omitempty"`
	Input     json.RawMessage    `json:"input,omitempty"`
	ToolUseID string             `json:"tool_use_id,omitempty"`
	Content   []mcp.ContentBlock `json:"content,omitempty"`
	IsError   bool               `json:"is_error,omitempty"`
}

type wireMessage struct {
	Role    Role        `json:"role"`
	Content []wireBlock `json:"content"`
}

// MarshalJSON encodes the message with a "type" discriminator per block.
func (m Message) MarshalJSON() ([]byte, error) {
	out := wireMessage{Role: m.Role, Content: make([]wireBlock, 0, len(m.Content))}
	for _, block := range m.Content {
		switch b := block.(type) {
		case TextBlock:
			out.Content = append(out.Content, wireBlock{Type: b.BlockType(), Text: b.Text})
		case ToolUseBlock:
			out.Content = append(out.Content, wireBlock{Type: b.BlockType(), ID: b.ID, Name: b.Name, Input: MarshalInput(b.Input)})
		case ToolResultBlock:
			out.Content = append(out.Content, wireBlock{Type: b.BlockType(), ToolUseID: b.ToolUseID, Content: b.Content, IsError: b.IsError})
		default:
			return nil, fmt.Errorf("core: unsupported content block %T", block)
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a message written by MarshalJSON.
func (m *Message) UnmarshalJSON(data []byte) error {
	var in wireMessage
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	blocks := make([]ContentBlock, 0, len(in.Content))
	for _, b := range in.Content {
		switch b.Type {
		case "text":
			blocks = append(blocks, TextBlock{Text: b.Text})
		case "tool_use":
			var input map[string]any
			if len(b.Input) > 0 {
				if err := json.Unmarshal(b.Input, &input); err != nil {
					return fmt.Errorf("core: decode tool_use input: %w", err)
				}
			}
			blocks = append(blocks, ToolUseBlock{ID: b.ID, Name: b.Name, Input: input})
		case "tool_result":
			blocks = append(blocks, ToolResultBlock{ToolUseID: b.ToolUseID, Content: b.Content, IsError: b.IsError})
		default:
			return fmt.Errorf("core: unknown content block type %q", b.Type)
		}
	}
	m.Role = in.Role
	m.Content = blocks
	return nil
}
