package mcp

import (
	"encoding/json"
	"testing"
)

func TestMessageIDs(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want RequestID
	}{
		{name: "numeric", raw: `{"jsonrpc":"2.0","id":42,"result":{}}`, want: IntID(42)},
		{name: "zero", raw: `{"jsonrpc":"2.0","id":0,"method":"ping"}`, want: IntID(0)},
		{name: "string", raw: `{"jsonrpc":"2.0","id":"abc","method":"roots/list"}`, want: StringID("abc")},
		{name: "null", raw: `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"parse error"}}`},
		{name: "absent", raw: `{"jsonrpc":"2.0","method":"notifications/message"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var msg Message
			if err := json.Unmarshal([]byte(tc.raw), &msg); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if msg.ID != tc.want {
				t.Fatalf("ID = %q, want %q", msg.ID, tc.want)
			}
		})
	}
}

func TestMessageIDRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{name: "zero id kept", msg: Message{JSONRPC: "2.0", ID: IntID(0), Result: json.RawMessage(`{}`)}, want: `{"jsonrpc":"2.0","id":0,"result":{}}`},
		{name: "string id", msg: Message{JSONRPC: "2.0", ID: StringID("srv-1"), Result: json.RawMessage(`{}`)}, want: `{"jsonrpc":"2.0","id":"srv-1","result":{}}`},
		{name: "notification", msg: Message{JSONRPC: "2.0", Method: "notifications/initialized"}, want: `{"jsonrpc":"2.0","method":"notifications/initialized"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data, err := json.Marshal(tc.msg)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if string(data) != tc.want {
				t.Fatalf("Marshal() = %s, want %s", data, tc.want)
			}
		})
	}
}

func TestDecodePromptContent(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantText string
		wantKind string
	}{
		{
			name:     "plain string",
			raw:      `"Search for papers about llms"`,
			wantText: "Search for papers about llms",
			wantKind: "plain",
		},
		{
			name:     "single object",
			raw:      `{"type":"text","text":"Search for 3 papers"}`,
			wantText: "Search for 3 papers",
			wantKind: "items",
		},
		{
			name:     "list of objects",
			raw:      `[{"type":"text","text":"first"},{"type":"image","data":"AA=="},{"type":"text","text":"second"}]`,
			wantText: "first [image] second",
			wantKind: "items",
		},
		{
			name:     "empty",
			raw:      `null`,
			wantText: "",
			wantKind: "plain",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			content, err := DecodePromptContent(json.RawMessage(tc.raw))
			if err != nil {
				t.Fatalf("DecodePromptContent() error = %v", err)
			}
			kind := ""
			switch content.(type) {
			case PlainContent:
				kind = "plain"
			case ItemsContent:
				kind = "items"
			}
			if kind != tc.wantKind {
				t.Fatalf("kind = %q, want %q", kind, tc.wantKind)
			}
			if got := content.Text(); got != tc.wantText {
				t.Fatalf("Text() = %q, want %q", got, tc.wantText)
			}
		})
	}
}

func TestDecodePromptContentRejectsScalars(t *testing.T) {
	if _, err := DecodePromptContent(json.RawMessage(`42`)); err == nil {
		t.Fatal("DecodePromptContent(42) error = nil, want non-nil")
	}
}

func TestHasCapabilityWithoutAdvertisement(t *testing.T) {
	var result InitializeResult
	if !result.HasCapability("resources") {
		t.Fatal("HasCapability() = false, want true when nothing is advertised")
	}
}
