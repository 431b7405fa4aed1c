package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/petal-labs/mcpchat/core"
	"github.com/petal-labs/mcpchat/mcp"
)

func TestParseHistoryMode(t *testing.T) {
	tests := []struct {
		in      string
		want    HistoryMode
		wantErr bool
	}{
		{in: "", want: HistoryPerQuery},
		{in: "query", want: HistoryPerQuery},
		{in: " Session ", want: HistorySession},
		{in: "forever", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseHistoryMode(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseHistoryMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("ParseHistoryMode(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestChatbotPerQueryHistoryStartsFresh(t *testing.T) {
	llm := &scriptedLLM{responses: []core.ModelResponse{textResponse("one"), textResponse("two")}}
	bot := NewChatbot(llm, &fakeDispatcher{}, nil, ChatbotConfig{})

	ctx := context.Background()
	if err := bot.Query(ctx, "first"); err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if err := bot.Query(ctx, "second"); err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if got := len(llm.requests[1].Messages); got != 1 {
		t.Fatalf("second request carried %d messages, want 1", got)
	}
	if len(bot.Conversation().Messages) != 2 {
		t.Errorf("conversation length = %d, want 2", len(bot.Conversation().Messages))
	}
}

func TestChatbotSessionHistoryCarriesOver(t *testing.T) {
	llm := &scriptedLLM{responses: []core.ModelResponse{textResponse("one"), textResponse("two")}}
	bot := NewChatbot(llm, &fakeDispatcher{}, nil, ChatbotConfig{History: HistorySession})

	ctx := context.Background()
	_ = bot.Query(ctx, "first")
	_ = bot.Query(ctx, "second")
	if got := len(llm.requests[1].Messages); got != 3 {
		t.Fatalf("second request carried %d messages, want 3", got)
	}

	bot.Clear()
	if len(bot.Conversation().Messages) != 0 {
		t.Fatalf("conversation length after Clear = %d", len(bot.Conversation().Messages))
	}
}

func TestChatbotRollsBackFailedTurn(t *testing.T) {
	llm := &scriptedLLM{responses: []core.ModelResponse{
		textResponse("one"),
		toolResponse("", toolUse(1, "search_papers", nil)),
	}}
	tools := &fakeDispatcher{tools: map[string]mcp.ToolsCallResult{"search_papers": textResult("x")}}
	bot := NewChatbot(llm, tools, nil, ChatbotConfig{History: HistorySession})

	ctx := context.Background()
	if err := bot.Query(ctx, "first"); err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	tools.toolErr = errors.New("server gone")
	if err := bot.Query(ctx, "second"); err == nil {
		t.Fatal("expected error from failed tool call")
	}
	if got := len(bot.Conversation().Messages); got != 2 {
		t.Fatalf("conversation length = %d, want 2 after rollback", got)
	}
}

func TestChatbotRecordsTurn(t *testing.T) {
	llm := &scriptedLLM{responses: []core.ModelResponse{
		toolResponse("", toolUse(1, "search_papers", nil)),
		textResponse("found it"),
	}}
	tools := &fakeDispatcher{tools: map[string]mcp.ToolsCallResult{"search_papers": textResult("x")}}
	recorder := &memoryRecorder{}
	bot := NewChatbot(llm, tools, nil, ChatbotConfig{Recorder: recorder})

	if bot.SessionID() == "" {
		t.Fatal("SessionID() is empty")
	}
	if err := bot.Query(context.Background(), "search"); err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	recorded := recorder.records[bot.SessionID()]
	if len(recorded) != 4 {
		t.Fatalf("recorded %d messages, want 4", len(recorded))
	}
}

func TestChatbotRecorderFailureIsNotFatal(t *testing.T) {
	llm := &scriptedLLM{responses: []core.ModelResponse{textResponse("ok")}}
	bot := NewChatbot(llm, &fakeDispatcher{}, nil, ChatbotConfig{Recorder: &memoryRecorder{err: errors.New("disk full")}})
	if err := bot.Query(context.Background(), "hi"); err != nil {
		t.Fatalf("Query() error = %v, want recorder failure to be swallowed", err)
	}
}

func TestChatbotListPrompts(t *testing.T) {
	dispatcher := &fakeDispatcher{prompts: []core.PromptDescriptor{
		{
			Name:        "generate_search_prompt",
			Description: "Generate a prompt to find papers",
			Arguments: []core.PromptArgument{
				{Name: "topic", Required: true},
				{Name: "num_papers"},
			},
		},
		{Name: "hello", Description: "Say hello"},
	}}
	var out bytes.Buffer
	bot := NewChatbot(&scriptedLLM{}, dispatcher, &out, ChatbotConfig{})

	bot.ListPrompts()
	want := "\nAvailable prompts:\n" +
		"- generate_search_prompt: Generate a prompt to find papers\n" +
		"Prompt Arguments:\n" +
		"    - topic\n" +
		"    - num_papers\n" +
		"- hello: Say hello\n"
	if out.String() != want {
		t.Fatalf("output = %q, want %q", out.String(), want)
	}
}

func TestChatbotListPromptsEmpty(t *testing.T) {
	var out bytes.Buffer
	bot := NewChatbot(&scriptedLLM{}, &fakeDispatcher{}, &out, ChatbotConfig{})
	bot.ListPrompts()
	if out.String() != "No prompts available.\n" {
		t.Fatalf("output = %q", out.String())
	}
}

func TestChatbotExecutePrompt(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "text object",
			content: `{"type":"text","text":"Search for 3 papers about llms"}`,
			want:    "Search for 3 papers about llms",
		},
		{
			name:    "plain string",
			content: `"Search for 3 papers about llms"`,
			want:    "Search for 3 papers about llms",
		},
		{
			name:    "item list",
			content: `[{"type":"text","text":"Search for"},{"type":"text","text":"3 papers"}]`,
			want:    "Search for 3 papers",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dispatcher := &fakeDispatcher{rendered: map[string]mcp.PromptsGetResult{
				"generate_search_prompt": {Messages: []mcp.PromptMessage{
					{Role: "user", Content: json.RawMessage(tt.content)},
				}},
			}}
			llm := &scriptedLLM{responses: []core.ModelResponse{textResponse("ok")}}
			var out bytes.Buffer
			bot := NewChatbot(llm, dispatcher, &out, ChatbotConfig{})

			args := map[string]string{"topic": "llms", "num_papers": "3"}
			if err := bot.ExecutePrompt(context.Background(), "generate_search_prompt", args); err != nil {
				t.Fatalf("ExecutePrompt() error = %v", err)
			}
			if got := dispatcher.promptCalls[0]; got["topic"] != "llms" || got["num_papers"] != "3" {
				t.Errorf("prompt args = %v", got)
			}
			if llm.calls() != 1 {
				t.Fatalf("model calls = %d, want 1", llm.calls())
			}
			query := core.Text(llm.requests[0].Messages[0].Content)
			if query != tt.want {
				t.Errorf("query = %q, want %q", query, tt.want)
			}
			if !strings.HasPrefix(out.String(), "\nExecuting prompt 'generate_search_prompt'...\n") {
				t.Errorf("output = %q", out.String())
			}
		})
	}
}

func TestChatbotExecuteUnknownPrompt(t *testing.T) {
	llm := &scriptedLLM{}
	var out bytes.Buffer
	bot := NewChatbot(llm, &fakeDispatcher{}, &out, ChatbotConfig{})

	if err := bot.ExecutePrompt(context.Background(), "nope", nil); err != nil {
		t.Fatalf("ExecutePrompt() error = %v", err)
	}
	if out.String() != "Prompt 'nope' not found.\n" {
		t.Errorf("output = %q", out.String())
	}
	if llm.calls() != 0 {
		t.Errorf("model calls = %d, want 0", llm.calls())
	}
}

func TestChatbotReadResource(t *testing.T) {
	dispatcher := &fakeDispatcher{resources: map[string]mcp.ResourcesReadResult{
		"papers://folders": {Contents: []mcp.ResourceContents{{URI: "papers://folders", Text: "# Folders\n- llms"}}},
		"papers://empty":   {},
	}}
	var out bytes.Buffer
	bot := NewChatbot(&scriptedLLM{}, dispatcher, &out, ChatbotConfig{})
	ctx := context.Background()

	if err := bot.ReadResource(ctx, "papers://folders"); err != nil {
		t.Fatalf("ReadResource() error = %v", err)
	}
	if want := "\nResource: papers://folders\nContent:\n# Folders\n- llms\n"; out.String() != want {
		t.Fatalf("output = %q, want %q", out.String(), want)
	}

	out.Reset()
	_ = bot.ReadResource(ctx, "papers://empty")
	if out.String() != "No content available.\n" {
		t.Errorf("empty output = %q", out.String())
	}

	out.Reset()
	_ = bot.ReadResource(ctx, "notes://x")
	if out.String() != "Resource notes://x not found.\n" {
		t.Errorf("missing output = %q", out.String())
	}
}
