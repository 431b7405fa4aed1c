// Package shell implements the interactive read-eval loop over stdin.
package shell

import (
	"strings"
)

// Command is one parsed input line.
type Command interface {
	command()
}

// Empty is a blank line.
type Empty struct{}

// Exit ends the session.
type Exit struct{}

// ReadResource shows a resource. It comes from @folders or @<topic>.
type ReadResource struct {
	URI string
}

// ListPrompts lists the available prompts.
type ListPrompts struct{}

// RunPrompt executes a prompt with string arguments.
type RunPrompt struct {
	Name string
	Args map[string]string
}

// PromptUsage is /prompt without a name.
type PromptUsage struct{}

// Clear resets the retained conversation.
type Clear struct{}

// Unknown is an unrecognised slash command.
type Unknown struct {
	Name string
}

// Query is free text for the model.
type Query struct {
	Text string
}

func (Empty) command()        {}
func (Exit) command()         {}
func (ReadResource) command() {}
func (ListPrompts) command()  {}
func (RunPrompt) command()    {}
func (PromptUsage) command()  {}
func (Clear) command()        {}
func (Unknown) command()      {}
func (Query) command()        {}

// Parse classifies one input line. scheme is the URI scheme @-references
// resolve to.
func Parse(line, scheme string) Command {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return Empty{}
	case strings.EqualFold(line, "exit"):
		return Exit{}
	case strings.HasPrefix(line, "@"):
		return ReadResource{URI: scheme + "://" + line[1:]}
	case strings.HasPrefix(line, "/"):
		return parseSlash(strings.Fields(line))
	default:
		return Query{Text: line}
	}
}

func parseSlash(fields []string) Command {
	name := strings.ToLower(fields[0])
	switch name {
	case "/prompts":
		return ListPrompts{}
	case "/prompt":
		if len(fields) < 2 {
			return PromptUsage{}
		}
		return RunPrompt{Name: fields[1], Args: parseArgs(fields[2:])}
	case "/clear":
		return Clear{}
	default:
		return Unknown{Name: name}
	}
}

// parseArgs splits k=v tokens on the first '='. Tokens without '=' are
// ignored and later keys win.
func parseArgs(tokens []string) map[string]string {
	args := make(map[string]string, len(tokens))
	for _, token := range tokens {
		key, value, ok := strings.Cut(token, "=")
		if !ok {
			continue
		}
		args[key] = value
	}
	return args
}
