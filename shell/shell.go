package shell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Chatbot is the behaviour the shell drives.
type Chatbot interface {
	Query(ctx context.Context, query string) error
	ExecutePrompt(ctx context.Context, name string, args map[string]string) error
	ReadResource(ctx context.Context, uri string) error
	ListPrompts()
	Clear()
}

// Config configures a Shell.
type Config struct {
	ResourceScheme string
	Logger         *slog.Logger
}

// Shell reads one line at a time and dispatches it to the chatbot. One
// line is fully processed before the next is read.
type Shell struct {
	bot    Chatbot
	in     io.Reader
	out    io.Writer
	scheme string
	logger *slog.Logger
}

// New creates a shell reading from in and writing to out.
func New(bot Chatbot, in io.Reader, out io.Writer, cfg Config) *Shell {
	if cfg.ResourceScheme == "" {
		cfg.ResourceScheme = "papers"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Shell{
		bot:    bot,
		in:     in,
		out:    out,
		scheme: cfg.ResourceScheme,
		logger: cfg.Logger,
	}
}

var banner = []string{
	"\nMCP ChatBot Started!",
	"Type your queries and start your research",
	"Use @folders to see available topics",
	"Use @<topic> to search for papers on a specific topic",
	"Use /prompts to list available prompts",
	"Use /prompt <prompt_name> <arg1=value1> to execute a prompt",
}

// Run loops until exit, end of input or ctx cancellation. Errors from a
// single line are printed and the loop continues; only a failure to read
// input is returned.
func (s *Shell) Run(ctx context.Context) error {
	for _, line := range banner {
		fmt.Fprintln(s.out, line)
	}
	fmt.Fprintln(s.out, "\nType 'exit' to end the chat.")

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(s.in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				readErr <- nil
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		fmt.Fprint(s.out, "\nQuery: ")

		var (
			line string
			ok   bool
		)
		select {
		case <-ctx.Done():
			fmt.Fprintln(s.out)
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			fmt.Fprintln(s.out)
			if err := <-readErr; err != nil {
				return fmt.Errorf("shell: read input: %w", err)
			}
			s.farewell()
			return nil
		}

		if done := s.handle(ctx, Parse(line, s.scheme)); done {
			return nil
		}
	}
}

// handle runs one command and reports whether the loop should stop.
func (s *Shell) handle(ctx context.Context, cmd Command) bool {
	var err error
	switch c := cmd.(type) {
	case Empty:
		return false
	case Exit:
		s.farewell()
		return true
	case ReadResource:
		err = s.bot.ReadResource(ctx, c.URI)
	case ListPrompts:
		s.bot.ListPrompts()
	case PromptUsage:
		fmt.Fprintln(s.out, "Usage: /prompt <prompt_name> <arg1=value1>...")
	case RunPrompt:
		err = s.bot.ExecutePrompt(ctx, c.Name, c.Args)
	case Clear:
		s.bot.Clear()
		fmt.Fprintln(s.out, "Conversation cleared.")
	case Unknown:
		fmt.Fprintf(s.out, "Unknown command: %s\n", c.Name)
	case Query:
		err = s.bot.Query(ctx, c.Text)
	}

	if err != nil {
		s.logger.Debug("shell command failed", "error", err)
		fmt.Fprintf(s.out, "\nError: %s\n", strings.TrimSpace(err.Error()))
		fmt.Fprintln(s.out, "\nPlease try again.")
	}
	return false
}

func (s *Shell) farewell() {
	fmt.Fprintln(s.out, "\nThank you for using MCP ChatBot! ^_^ Goodbye and see you soon!")
}
