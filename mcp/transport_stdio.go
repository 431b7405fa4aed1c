package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"time"
)

const (
	// maxLineSize bounds a single newline-delimited message from the server.
	maxLineSize = 8 << 20

	defaultStopGrace = 2 * time.Second
)

// ErrTransportClosed is returned by Send and Receive after Close.
var ErrTransportClosed = errors.New("mcp: stdio transport is closed")

// StdioTransportConfig describes the server process to launch.
type StdioTransportConfig struct {
	Command string
	Args    []string
	// Env is merged over the parent environment.
	Env map[string]string

	// StopGrace is how long Close waits for the server to exit after its
	// stdin is closed before killing it. Defaults to 2s.
	StopGrace time.Duration

	// Logger receives server stderr lines and skipped stdout lines at
	// debug level. Nil discards them.
	Logger *slog.Logger
}

// StdioTransport speaks newline-delimited JSON-RPC with a server process
// over its stdin and stdout. The process is owned by the transport and
// lives until Close, independent of the context used to start it.
type StdioTransport struct {
	cfg    StdioTransportConfig
	logger *slog.Logger

	cmd   *exec.Cmd
	stdin io.WriteCloser

	writeMu sync.Mutex

	incoming chan Message
	// stop is closed by Close; exited once the process has been reaped.
	stop   chan struct{}
	exited chan struct{}

	mu      sync.Mutex
	readErr error
	closed  bool
}

// NewStdioTransport launches the configured command and starts reading
// its output.
func NewStdioTransport(ctx context.Context, cfg StdioTransportConfig) (*StdioTransport, error) {
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, errors.New("mcp: stdio command is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = defaultStopGrace
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	// #nosec G204 -- command and args come from the local server definition file.
	cmd := exec.Command(cfg.Command, slices.Clone(cfg.Args)...)
	cmd.Env = mergeEnv(os.Environ(), cfg.Env)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp: stdio pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp: stdio pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp: stdio pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("mcp: launch %q: %w", cfg.Command, err)
	}

	t := &StdioTransport{
		cfg:      cfg,
		logger:   logger.With("command", cfg.Command),
		cmd:      cmd,
		stdin:    stdin,
		incoming: make(chan Message, 64),
		stop:     make(chan struct{}),
		exited:   make(chan struct{}),
	}

	var pipes sync.WaitGroup
	pipes.Add(2)
	go func() {
		defer pipes.Done()
		t.readMessages(stdout)
	}()
	go func() {
		defer pipes.Done()
		t.logStderr(stderr)
	}()
	go t.reap(&pipes)

	return t, nil
}

// readMessages decodes one message per stdout line. Lines that are not
// JSON-RPC envelopes are logged and skipped.
func (t *StdioTransport) readMessages(stdout io.Reader) {
	defer close(t.incoming)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var message Message
		if err := json.Unmarshal(line, &message); err != nil {
			t.logger.Debug("skipping non-JSON-RPC output", "line", string(line), "error", err)
			continue
		}
		select {
		case t.incoming <- message:
		case <-t.stop:
			// Keep draining so the process can be reaped.
		}
	}

	err := scanner.Err()
	if err == nil {
		err = errors.New("server closed its output")
	}
	t.fail(fmt.Errorf("mcp: stdio read: %w", err))
}

func (t *StdioTransport) logStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		t.logger.Debug("mcp server stderr", "line", scanner.Text())
	}
	_, _ = io.Copy(io.Discard, stderr)
}

// reap waits for both pipes to drain before calling Wait, as os/exec requires.
func (t *StdioTransport) reap(pipes *sync.WaitGroup) {
	pipes.Wait()
	err := t.cmd.Wait()
	if err != nil {
		t.fail(fmt.Errorf("mcp: server process exited: %w", err))
	}
	close(t.exited)
}

// fail records the first terminal read error.
func (t *StdioTransport) fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.readErr == nil {
		t.readErr = err
	}
}

func (t *StdioTransport) err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTransportClosed
	}
	if t.readErr != nil {
		return t.readErr
	}
	return errors.New("mcp: stdio read: server closed its output")
}

// Send writes message as one line on the server's stdin.
func (t *StdioTransport) Send(_ context.Context, message Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("mcp: encode message: %w", err)
	}
	data = append(data, '\n')

	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return ErrTransportClosed
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.stdin.Write(data); err != nil {
		return fmt.Errorf("mcp: stdio write: %w", err)
	}
	return nil
}

// Receive returns the next message from the server. Messages already read
// are delivered before a read failure is reported.
func (t *StdioTransport) Receive(ctx context.Context) (Message, error) {
	select {
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case message, ok := <-t.incoming:
		if !ok {
			return Message{}, t.err()
		}
		return message, nil
	}
}

// Close closes the server's stdin, gives it StopGrace to exit and then
// kills it. Calling Close more than once is a no-op.
func (t *StdioTransport) Close(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	close(t.stop)
	_ = t.stdin.Close()

	grace := time.NewTimer(t.cfg.StopGrace)
	defer grace.Stop()
	select {
	case <-t.exited:
		return nil
	case <-grace.C:
	case <-ctx.Done():
	}

	if t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
	}
	// Grandchildren can hold the pipes open after a kill.
	grace.Reset(t.cfg.StopGrace)
	select {
	case <-t.exited:
		return nil
	case <-grace.C:
		return fmt.Errorf("mcp: %q did not exit after kill", t.cfg.Command)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// mergeEnv overlays extra onto base, replacing variables of the same name.
func mergeEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}
	out := make([]string, 0, len(base)+len(extra))
	for _, kv := range base {
		name, _, _ := strings.Cut(kv, "=")
		if _, ok := extra[name]; ok {
			continue
		}
		out = append(out, kv)
	}
	names := make([]string, 0, len(extra))
	for name := range extra {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		out = append(out, name+"="+extra[name])
	}
	return out
}
