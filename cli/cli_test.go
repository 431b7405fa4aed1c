package cli

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/petal-labs/mcpchat/core"
	"github.com/petal-labs/mcpchat/llmprovider"
)

// executeCommand runs a cobra command with the given args and stdin and
// captures stdout/stderr.
func executeCommand(root *cobra.Command, stdin string, args ...string) (stdout, stderr string, err error) {
	var outBuf, errBuf bytes.Buffer
	root.SetOut(&outBuf)
	root.SetErr(&errBuf)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err = root.Execute()
	return outBuf.String(), errBuf.String(), err
}

// writeTestFile creates a file with the given content in dir and returns its path.
func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// stubLLM replaces the model client factory for one test.
func stubLLM(t *testing.T, fn core.LLMClientFunc) {
	t.Helper()
	previous := newLLMClient
	newLLMClient = func(llmprovider.Config) (core.LLMClient, error) { return fn, nil }
	t.Cleanup(func() { newLLMClient = previous })
}

func testConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	writeTestFile(t, dir, "servers.json", `{"mcpServers": {}}`)
	return writeTestFile(t, dir, "mcpchat.yaml", `
servers:
  file: servers.json
  connect_attempts: 1
  retry_delay: 1ms
history:
  store: `+filepath.Join(dir, "history.db")+`
`+extra)
}

func TestChatRecordsTranscript(t *testing.T) {
	stubLLM(t, func(_ context.Context, req core.ModelRequest) (core.ModelResponse, error) {
		if req.Model != "claude-3-7-sonnet-20250219" {
			return core.ModelResponse{}, errors.New("unexpected model " + req.Model)
		}
		return core.ModelResponse{Content: []core.ContentBlock{core.TextBlock{Text: "Hello there"}}}, nil
	})
	configPath := testConfig(t, "")

	stdout, _, err := executeCommand(NewRootCmd("test"), "hi\nexit\n", "--config", configPath, "--quiet")
	if err != nil {
		t.Fatalf("chat error = %v", err)
	}
	for _, want := range []string{"MCP ChatBot Started!", "Hello there\n", "Goodbye", "MCP ChatBot Stopped!"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stdout missing %q:\n%s", want, stdout)
		}
	}

	listOut, _, err := executeCommand(NewRootCmd("test"), "", "history", "list", "--config", configPath)
	if err != nil {
		t.Fatalf("history list error = %v", err)
	}
	fields := strings.Fields(listOut)
	if len(fields) == 0 || !strings.Contains(listOut, "2 message(s)") {
		t.Fatalf("history list output = %q", listOut)
	}

	showOut, _, err := executeCommand(NewRootCmd("test"), "", "history", "show", fields[0], "--config", configPath)
	if err != nil {
		t.Fatalf("history show error = %v", err)
	}
	if want := "[1] user: hi\n[2] assistant: Hello there\n"; showOut != want {
		t.Fatalf("history show output = %q, want %q", showOut, want)
	}
}

func TestChatReportsModelErrors(t *testing.T) {
	stubLLM(t, func(context.Context, core.ModelRequest) (core.ModelResponse, error) {
		return core.ModelResponse{}, errors.New("overloaded")
	})
	configPath := testConfig(t, "")

	stdout, _, err := executeCommand(NewRootCmd("test"), "hi\n", "--config", configPath, "--quiet")
	if err != nil {
		t.Fatalf("chat error = %v", err)
	}
	if !strings.Contains(stdout, "Error: agent: model call: overloaded") || !strings.Contains(stdout, "Please try again.") {
		t.Fatalf("stdout = %q", stdout)
	}
}

func TestChatMissingServerFileStillRuns(t *testing.T) {
	stubLLM(t, func(context.Context, core.ModelRequest) (core.ModelResponse, error) {
		return core.ModelResponse{Content: []core.ContentBlock{core.TextBlock{Text: "ok"}}}, nil
	})
	dir := t.TempDir()
	configPath := writeTestFile(t, dir, "mcpchat.yaml", "servers:\n  file: missing.json\n")

	stdout, stderr, err := executeCommand(NewRootCmd("test"), "hello\n", "chat", "--config", configPath)
	if err != nil {
		t.Fatalf("chat error = %v", err)
	}
	if !strings.Contains(stdout, "ok\n") {
		t.Errorf("stdout = %q", stdout)
	}
	if !strings.Contains(stderr, "loading server config failed") {
		t.Errorf("stderr = %q, want server config error logged", stderr)
	}
}

func TestChatProviderErrorIsReportedPerQuery(t *testing.T) {
	previous := newLLMClient
	newLLMClient = func(llmprovider.Config) (core.LLMClient, error) { return nil, errors.New("missing key") }
	t.Cleanup(func() { newLLMClient = previous })

	stdout, _, err := executeCommand(NewRootCmd("test"), "hello\nexit\n", "--config", testConfig(t, ""))
	if err != nil {
		t.Fatalf("chat error = %v, want the shell to start without a model client", err)
	}
	for _, want := range []string{
		"MCP ChatBot Started!",
		"Error: agent: model call: model client unavailable: missing key",
		"Please try again.",
		"Goodbye",
	} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stdout missing %q:\n%s", want, stdout)
		}
	}
}

func TestInvalidConfig(t *testing.T) {
	configPath := writeTestFile(t, t.TempDir(), "mcpchat.yaml", "history:\n  mode: forever\n")
	_, _, err := executeCommand(NewRootCmd("test"), "", "--config", configPath)
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != exitConfig {
		t.Fatalf("error = %v, want config ExitError", err)
	}
}

func TestHistoryRequiresStore(t *testing.T) {
	configPath := writeTestFile(t, t.TempDir(), "mcpchat.yaml", "model: {}\n")
	_, _, err := executeCommand(NewRootCmd("test"), "", "history", "list", "--config", configPath)
	if err == nil || !strings.Contains(err.Error(), "history.store") {
		t.Fatalf("error = %v, want missing store error", err)
	}
}

func TestHistoryShowUnknownSession(t *testing.T) {
	_, _, err := executeCommand(NewRootCmd("test"), "", "history", "show", "nope", "--config", testConfig(t, ""))
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != exitNotFound {
		t.Fatalf("error = %v, want not-found ExitError", err)
	}
}

func TestServersWithNoConnections(t *testing.T) {
	_, _, err := executeCommand(NewRootCmd("test"), "", "servers", "--config", testConfig(t, ""), "--quiet")
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != exitNotFound {
		t.Fatalf("error = %v, want not-found ExitError", err)
	}
}

func TestNewLoggerLevels(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer

	quiet := newLoggerTo(&buf, false, true)
	if quiet.Enabled(ctx, slog.LevelWarn) || !quiet.Enabled(ctx, slog.LevelError) {
		t.Error("quiet logger should only enable errors")
	}
	verbose := newLoggerTo(&buf, true, false)
	if !verbose.Enabled(ctx, slog.LevelDebug) {
		t.Error("verbose logger should enable debug")
	}
}
