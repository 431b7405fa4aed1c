package shell

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type call struct {
	method string
	arg    string
	args   map[string]string
}

type fakeChatbot struct {
	calls    []call
	queryErr error
}

func (f *fakeChatbot) Query(_ context.Context, query string) error {
	f.calls = append(f.calls, call{method: "query", arg: query})
	return f.queryErr
}

func (f *fakeChatbot) ExecutePrompt(_ context.Context, name string, args map[string]string) error {
	f.calls = append(f.calls, call{method: "prompt", arg: name, args: args})
	return nil
}

func (f *fakeChatbot) ReadResource(_ context.Context, uri string) error {
	f.calls = append(f.calls, call{method: "resource", arg: uri})
	return nil
}

func (f *fakeChatbot) ListPrompts() { f.calls = append(f.calls, call{method: "prompts"}) }
func (f *fakeChatbot) Clear()       { f.calls = append(f.calls, call{method: "clear"}) }

func runShell(t *testing.T, bot Chatbot, input string) string {
	t.Helper()
	var out bytes.Buffer
	sh := New(bot, strings.NewReader(input), &out, Config{})
	if err := sh.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return out.String()
}

func TestShellDispatchesCommands(t *testing.T) {
	bot := &fakeChatbot{}
	input := strings.Join([]string{
		"",
		"@folders",
		"/prompts",
		"/prompt generate_search_prompt topic=llms num_papers=3",
		"/prompt",
		"/bogus",
		"/clear",
		"find papers",
		"exit",
		"never read",
	}, "\n")

	out := runShell(t, bot, input)

	want := []call{
		{method: "resource", arg: "papers://folders"},
		{method: "prompts"},
		{method: "prompt", arg: "generate_search_prompt", args: map[string]string{"topic": "llms", "num_papers": "3"}},
		{method: "clear"},
		{method: "query", arg: "find papers"},
	}
	if len(bot.calls) != len(want) {
		t.Fatalf("calls = %+v, want %d calls", bot.calls, len(want))
	}
	for i := range want {
		if bot.calls[i].method != want[i].method || bot.calls[i].arg != want[i].arg {
			t.Errorf("calls[%d] = %+v, want %+v", i, bot.calls[i], want[i])
		}
	}
	if got := bot.calls[2].args; got["topic"] != "llms" || got["num_papers"] != "3" {
		t.Errorf("prompt args = %v", got)
	}

	for _, text := range []string{
		"MCP ChatBot Started!",
		"Type 'exit' to end the chat.",
		"\nQuery: ",
		"Usage: /prompt <prompt_name> <arg1=value1>...",
		"Unknown command: /bogus",
		"Thank you for using MCP ChatBot! ^_^ Goodbye and see you soon!",
	} {
		if !strings.Contains(out, text) {
			t.Errorf("output missing %q", text)
		}
	}
}

func TestShellReportsErrorsAndContinues(t *testing.T) {
	bot := &fakeChatbot{queryErr: errors.New("agent: model call: overloaded")}
	out := runShell(t, bot, "first\nsecond\n")

	if len(bot.calls) != 2 {
		t.Fatalf("calls = %+v, want both queries to run", bot.calls)
	}
	if strings.Count(out, "\nError: agent: model call: overloaded\n") != 2 {
		t.Errorf("output = %q", out)
	}
	if !strings.Contains(out, "\nPlease try again.\n") {
		t.Errorf("output missing retry hint")
	}
}

func TestShellEndOfInputSaysGoodbye(t *testing.T) {
	out := runShell(t, &fakeChatbot{}, "")
	if !strings.Contains(out, "Goodbye") {
		t.Fatalf("output = %q", out)
	}
}

// blockingReader never returns data.
type blockingReader struct{ done chan struct{} }

func (r blockingReader) Read([]byte) (int, error) {
	<-r.done
	return 0, errors.New("closed")
}

func TestShellStopsOnContextCancel(t *testing.T) {
	reader := blockingReader{done: make(chan struct{})}
	defer close(reader.done)

	ctx, cancel := context.WithCancel(context.Background())
	var out bytes.Buffer
	sh := New(&fakeChatbot{}, reader, &out, Config{})

	errCh := make(chan error, 1)
	go func() { errCh <- sh.Run(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
