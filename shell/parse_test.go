package shell

import (
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Command
	}{
		{name: "empty", line: "", want: Empty{}},
		{name: "whitespace", line: "   \t", want: Empty{}},
		{name: "exit", line: "exit", want: Exit{}},
		{name: "exit any case", line: "  EXIT ", want: Exit{}},
		{name: "folders", line: "@folders", want: ReadResource{URI: "papers://folders"}},
		{name: "topic", line: "@quantum_computing", want: ReadResource{URI: "papers://quantum_computing"}},
		{name: "list prompts", line: "/prompts", want: ListPrompts{}},
		{name: "prompt usage", line: "/prompt", want: PromptUsage{}},
		{
			name: "prompt with args",
			line: "/prompt generate_search_prompt topic=llms num_papers=3",
			want: RunPrompt{Name: "generate_search_prompt", Args: map[string]string{"topic": "llms", "num_papers": "3"}},
		},
		{
			name: "value keeps later equals signs",
			line: "/prompt p filter=a=b",
			want: RunPrompt{Name: "p", Args: map[string]string{"filter": "a=b"}},
		},
		{
			name: "tokens without equals are ignored",
			line: "/prompt p stray topic=llms",
			want: RunPrompt{Name: "p", Args: map[string]string{"topic": "llms"}},
		},
		{name: "prompt without args", line: "/prompt hello", want: RunPrompt{Name: "hello", Args: map[string]string{}}},
		{name: "clear", line: "/clear", want: Clear{}},
		{name: "unknown command", line: "/Help me", want: Unknown{Name: "/help"}},
		{name: "query", line: "  find papers on llms  ", want: Query{Text: "find papers on llms"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.line, "papers")
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Parse(%q) = %#v, want %#v", tt.line, got, tt.want)
			}
		})
	}
}

func TestParseCustomScheme(t *testing.T) {
	got := Parse("@notes", "docs")
	if want := (ReadResource{URI: "docs://notes"}); got != want {
		t.Fatalf("Parse() = %#v, want %#v", got, want)
	}
}
