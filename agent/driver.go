// Package agent drives queries through the model and dispatches the tool
// calls it requests to the connected MCP servers.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/petal-labs/mcpchat/core"
	"github.com/petal-labs/mcpchat/mcp"
	"github.com/petal-labs/mcpchat/session"
)

const (
	defaultModel     = "claude-3-7-sonnet-20250219"
	defaultMaxTokens = 2024
)

// ToolDispatcher lists the tools offered to the model and invokes them.
type ToolDispatcher interface {
	Tools() []core.ToolDescriptor
	CallTool(ctx context.Context, name string, args map[string]any) (mcp.ToolsCallResult, error)
}

// DriverConfig configures a Driver.
type DriverConfig struct {
	Model     string
	System    string
	MaxTokens int

	// MaxIterations caps model calls per query. Zero means no cap.
	MaxIterations int

	Logger *slog.Logger
}

// TurnResult summarises one query.
type TurnResult struct {
	ModelCalls int
	ToolCalls  int
	Usage      core.TokenUsage
	// Truncated is set when MaxIterations ended the turn early.
	Truncated bool
}

// Driver runs the model/tool loop for one query at a time.
type Driver struct {
	llm    core.LLMClient
	tools  ToolDispatcher
	out    io.Writer
	cfg    DriverConfig
	logger *slog.Logger
}

// NewDriver creates a driver writing user-facing output to out.
func NewDriver(llm core.LLMClient, tools ToolDispatcher, out io.Writer, cfg DriverConfig) *Driver {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if out == nil {
		out = io.Discard
	}
	return &Driver{
		llm:    llm,
		tools:  tools,
		out:    out,
		cfg:    cfg,
		logger: cfg.Logger,
	}
}

// Run appends query to conv and calls the model until it answers without
// requesting a tool. Text blocks are printed as they are processed. Each
// tool_use block adds the assistant blocks since the previous tool_use and
// the tool's result to conv. The final answer is appended as an assistant
// message.
func (d *Driver) Run(ctx context.Context, conv *core.Conversation, query string) (TurnResult, error) {
	var result TurnResult
	conv.Append(core.NewUserText(query))

	for {
		if d.cfg.MaxIterations > 0 && result.ModelCalls >= d.cfg.MaxIterations {
			d.logger.Warn("model iteration limit reached; ending turn",
				"limit", d.cfg.MaxIterations, "conversation", conv.ID)
			result.Truncated = true
			return result, nil
		}

		resp, err := d.llm.Complete(ctx, core.ModelRequest{
			Model:     d.cfg.Model,
			System:    d.cfg.System,
			MaxTokens: d.cfg.MaxTokens,
			Messages:  slices.Clone(conv.Messages),
			Tools:     d.tools.Tools(),
		})
		if err != nil {
			return result, fmt.Errorf("agent: model call: %w", err)
		}
		result.ModelCalls++
		result.Usage = result.Usage.Add(resp.Usage)

		var pending []core.ContentBlock
		toolUsed := false
		for _, block := range resp.Content {
			switch b := block.(type) {
			case core.TextBlock:
				fmt.Fprintln(d.out, b.Text)
				pending = append(pending, b)
			case core.ToolUseBlock:
				toolUsed = true
				pending = append(pending, b)
				conv.Append(core.Message{Role: core.RoleAssistant, Content: pending})
				pending = nil

				found, err := d.dispatch(ctx, conv, b)
				if err != nil {
					return result, err
				}
				if !found {
					return result, nil
				}
				result.ToolCalls++
			}
		}

		if !toolUsed {
			if len(pending) > 0 {
				conv.Append(core.Message{Role: core.RoleAssistant, Content: pending})
			}
			return result, nil
		}
		if len(pending) > 0 {
			d.logger.Debug("dropping text that followed the last tool call", "blocks", len(pending))
		}
	}
}

// dispatch runs one tool call and appends its result. It reports false when
// the tool is unknown; the unknown call is answered with an error result so
// a retained conversation stays well formed.
func (d *Driver) dispatch(ctx context.Context, conv *core.Conversation, use core.ToolUseBlock) (bool, error) {
	if start, ok := use.Input["start_index"]; ok {
		fmt.Fprintf(d.out, "Fetching next chunk starting at index %v\n", start)
	}
	fmt.Fprintf(d.out, "Calling tool %s with arguments %s\n", use.Name, core.MarshalInput(use.Input))

	called, err := d.tools.CallTool(ctx, use.Name, use.Input)
	if errors.Is(err, session.ErrNotFound) {
		message := fmt.Sprintf("Tool '%s' not found.", use.Name)
		fmt.Fprintln(d.out, message)
		conv.Append(core.Message{Role: core.RoleUser, Content: []core.ContentBlock{
			core.ToolResultBlock{
				ToolUseID: use.ID,
				Content:   []mcp.ContentBlock{{Type: "text", Text: message}},
				IsError:   true,
			},
		}})
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("agent: call tool %q: %w", use.Name, err)
	}

	conv.Append(core.Message{Role: core.RoleUser, Content: []core.ContentBlock{
		core.ToolResultBlock{
			ToolUseID: use.ID,
			Content:   called.Content,
			IsError:   called.IsError,
		},
	}})
	return true, nil
}
