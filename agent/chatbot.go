package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/petal-labs/mcpchat/core"
	"github.com/petal-labs/mcpchat/mcp"
	"github.com/petal-labs/mcpchat/session"
)

// HistoryMode controls how long a conversation is kept.
type HistoryMode string

const (
	// HistoryPerQuery starts every top-level query with an empty conversation.
	HistoryPerQuery HistoryMode = "query"
	// HistorySession keeps one conversation for the whole shell session.
	HistorySession HistoryMode = "session"
)

// ParseHistoryMode validates a configured history mode. Empty means per query.
func ParseHistoryMode(s string) (HistoryMode, error) {
	switch HistoryMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", HistoryPerQuery:
		return HistoryPerQuery, nil
	case HistorySession:
		return HistorySession, nil
	default:
		return "", fmt.Errorf("agent: unknown history mode %q", s)
	}
}

// Dispatcher is everything the chatbot needs from the registry.
type Dispatcher interface {
	ToolDispatcher
	Prompts() []core.PromptDescriptor
	GetPrompt(ctx context.Context, name string, args map[string]string) (mcp.PromptsGetResult, error)
	ReadResource(ctx context.Context, uri string) (mcp.ResourcesReadResult, error)
}

var _ Dispatcher = (*session.Registry)(nil)

// Recorder persists the messages a turn added to a conversation.
type Recorder interface {
	Record(ctx context.Context, sessionID string, messages []core.Message) error
}

// ChatbotConfig configures a Chatbot.
type ChatbotConfig struct {
	Driver   DriverConfig
	History  HistoryMode
	Recorder Recorder
	Logger   *slog.Logger
}

// Chatbot is the facade the shell talks to: free-text queries, prompt
// execution, resource display and prompt listing.
type Chatbot struct {
	driver     *Driver
	dispatcher Dispatcher
	out        io.Writer
	history    HistoryMode
	recorder   Recorder
	logger     *slog.Logger

	sessionID string
	conv      core.Conversation
}

// NewChatbot wires a driver over dispatcher. User-facing output goes to out.
func NewChatbot(llm core.LLMClient, dispatcher Dispatcher, out io.Writer, cfg ChatbotConfig) *Chatbot {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Driver.Logger == nil {
		cfg.Driver.Logger = cfg.Logger
	}
	if cfg.History == "" {
		cfg.History = HistoryPerQuery
	}
	if out == nil {
		out = io.Discard
	}
	sessionID := uuid.NewString()
	return &Chatbot{
		driver:     NewDriver(llm, dispatcher, out, cfg.Driver),
		dispatcher: dispatcher,
		out:        out,
		history:    cfg.History,
		recorder:   cfg.Recorder,
		logger:     cfg.Logger.With("session", sessionID),
		sessionID:  sessionID,
		conv:       core.Conversation{ID: sessionID},
	}
}

// SessionID identifies this chat session in recorded transcripts.
func (c *Chatbot) SessionID() string {
	return c.sessionID
}

// Conversation returns a copy of the retained conversation.
func (c *Chatbot) Conversation() core.Conversation {
	out := core.Conversation{ID: c.conv.ID}
	out.Append(c.conv.Messages...)
	return out
}

// Query runs one free-text query through the driver.
func (c *Chatbot) Query(ctx context.Context, query string) error {
	if c.history == HistoryPerQuery {
		c.conv.Reset()
	}
	before := c.conv.Len()

	result, err := c.driver.Run(ctx, &c.conv, query)
	if err != nil {
		// Drop the partial turn so a retained conversation never holds an
		// unanswered tool call.
		c.conv.Messages = c.conv.Messages[:before]
		return err
	}
	c.logger.Debug("turn complete",
		"model_calls", result.ModelCalls,
		"tool_calls", result.ToolCalls,
		"input_tokens", result.Usage.InputTokens,
		"output_tokens", result.Usage.OutputTokens)

	if c.recorder != nil {
		added := c.conv.Messages[before:]
		if err := c.recorder.Record(ctx, c.sessionID, added); err != nil {
			c.logger.Warn("recording transcript failed", "error", err)
		}
	}
	return nil
}

// Clear empties the retained conversation.
func (c *Chatbot) Clear() {
	c.conv.Reset()
}

// ListPrompts prints every registered prompt with its argument names.
func (c *Chatbot) ListPrompts() {
	prompts := c.dispatcher.Prompts()
	if len(prompts) == 0 {
		fmt.Fprintln(c.out, "No prompts available.")
		return
	}
	fmt.Fprintln(c.out, "\nAvailable prompts:")
	for _, prompt := range prompts {
		fmt.Fprintf(c.out, "- %s: %s\n", prompt.Name, prompt.Description)
		if len(prompt.Arguments) == 0 {
			continue
		}
		fmt.Fprintln(c.out, "Prompt Arguments:")
		for _, name := range prompt.ArgumentNames() {
			fmt.Fprintf(c.out, "    - %s\n", name)
		}
	}
}

// ExecutePrompt resolves a prompt and runs its first message as a query.
// An unknown prompt is reported to the user and is not an error.
func (c *Chatbot) ExecutePrompt(ctx context.Context, name string, args map[string]string) error {
	result, err := c.dispatcher.GetPrompt(ctx, name, args)
	if errors.Is(err, session.ErrNotFound) {
		fmt.Fprintf(c.out, "Prompt '%s' not found.\n", name)
		return nil
	}
	if err != nil {
		return fmt.Errorf("agent: execute prompt %q: %w", name, err)
	}
	if len(result.Messages) == 0 {
		fmt.Fprintf(c.out, "Prompt '%s' returned no messages.\n", name)
		return nil
	}

	content, err := mcp.DecodePromptContent(result.Messages[0].Content)
	if err != nil {
		return fmt.Errorf("agent: execute prompt %q: %w", name, err)
	}

	fmt.Fprintf(c.out, "\nExecuting prompt '%s'...\n", name)
	return c.Query(ctx, content.Text())
}

// ReadResource prints the first content of a resource. An unknown resource
// is reported to the user and is not an error.
func (c *Chatbot) ReadResource(ctx context.Context, uri string) error {
	result, err := c.dispatcher.ReadResource(ctx, uri)
	if errors.Is(err, session.ErrNotFound) {
		fmt.Fprintf(c.out, "Resource %s not found.\n", uri)
		return nil
	}
	if err != nil {
		return fmt.Errorf("agent: read resource %q: %w", uri, err)
	}
	if len(result.Contents) == 0 {
		fmt.Fprintln(c.out, "No content available.")
		return nil
	}

	fmt.Fprintf(c.out, "\nResource: %s\n", uri)
	fmt.Fprintln(c.out, "Content:")
	fmt.Fprintln(c.out, result.Contents[0].Text)
	return nil
}
