package normalize

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestNormalizeLooseShapes(t *testing.T) {
	tests := []struct {
		name     string
		raw      any
		wantText string
		wantKind Kind
		sentinel bool
	}{
		{"plain text", "Get structure of aspirin", "Get structure of aspirin", KindText, false},
		{"text is trimmed", "  hello  ", "hello", KindText, false},
		{"mapping with input", map[string]any{"input": "search pubmed for cancer"}, "search pubmed for cancer", KindMapping, false},
		{"mapping with prompt", map[string]any{"prompt": "hi", "temperature": 0.2}, "hi", KindMapping, false},
		{"mapping with message", map[string]string{"message": "deploy", "user": "u1"}, "deploy", KindMapping, false},
		{"input wins over prompt", map[string]any{"prompt": "b", "input": "a"}, "a", KindMapping, false},
		{"mapping without key", map[string]any{"foo": "bar"}, `{"foo":"bar"}`, KindOther, false},
		{"sequence of strings", []string{"first", "last"}, "last", KindSequence, false},
		{"chat history", []any{
			map[string]any{"role": "user", "content": "old"},
			map[string]any{"role": "user", "content": "new question"},
		}, "new question", KindSequence, false},
		{"number", 42, "42", KindOther, false},
		{"bool", true, "true", KindOther, false},
		{"nil", nil, "NO_INPUT_FOUND", KindEmpty, true},
		{"blank", "   ", "NO_INPUT_FOUND", KindEmpty, true},
		{"empty sequence", []any{}, "NO_INPUT_FOUND", KindEmpty, true},
		{"empty mapping", map[string]any{}, "NO_INPUT_FOUND", KindEmpty, true},
		{"mapping with empty input", map[string]any{"input": ""}, "NO_INPUT_FOUND", KindEmpty, true},
		{"blank input falls through to prompt", map[string]any{"input": "", "prompt": "search pubmed for cancer"}, "search pubmed for cancer", KindMapping, false},
		{"null prompt falls through to message", map[string]any{"prompt": nil, "message": "Get structure of aspirin"}, "Get structure of aspirin", KindMapping, false},
		{"all primary fields blank", map[string]any{"input": " ", "prompt": ""}, "NO_INPUT_FOUND", KindEmpty, true},
		{"json bytes", []byte(`{"input":"from bytes"}`), "from bytes", KindMapping, false},
		{"raw json string", json.RawMessage(`"quoted"`), "quoted", KindText, false},
		{"non-json bytes", []byte("plain bytes"), "plain bytes", KindText, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := Normalize(tt.raw)
			if q.Text != tt.wantText {
				t.Errorf("Expected text %q, got %q", tt.wantText, q.Text)
			}
			if q.Kind != tt.wantKind {
				t.Errorf("Expected kind %s, got %s", tt.wantKind, q.Kind)
			}
			if q.Sentinel != tt.sentinel {
				t.Errorf("Expected sentinel %v, got %v", tt.sentinel, q.Sentinel)
			}
			if q.Text == "" {
				t.Error("Query text must never be empty")
			}
		})
	}
}

func TestNormalizePreservesMetadata(t *testing.T) {
	q := Normalize(map[string]any{
		"input":      "hello",
		"session_id": "abc",
		"extra":      map[string]any{"nested": true},
	})

	if q.Text != "hello" {
		t.Fatalf("Expected text hello, got %q", q.Text)
	}
	if len(q.Metadata) != 2 {
		t.Fatalf("Expected 2 metadata entries, got %d", len(q.Metadata))
	}
	if q.Metadata["session_id"] != "abc" {
		t.Errorf("Expected session_id metadata, got %v", q.Metadata["session_id"])
	}
	if _, ok := q.Metadata["input"]; ok {
		t.Error("Primary key must not be copied into metadata")
	}
}

func TestNormalizeStrict(t *testing.T) {
	n := New(true)

	rejected := []any{
		nil,
		"",
		"  ",
		[]any{},
		map[string]any{"foo": "bar"},
		map[string]any{"input": " "},
		map[string]any{"input": "", "prompt": "  "},
	}
	for _, raw := range rejected {
		_, err := n.Normalize(raw)
		if err == nil {
			t.Errorf("Expected ValidationError for %#v", raw)
			continue
		}
		if !errors.Is(err, ErrValidation) {
			t.Errorf("Expected error to wrap ErrValidation, got %v", err)
		}
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("Expected *ValidationError, got %T", err)
		}
	}

	q, err := n.Normalize(map[string]any{"prompt": "ok", "other": 1})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if q.Text != "ok" {
		t.Errorf("Expected text ok, got %q", q.Text)
	}
}

func TestNormalizeStrictBlankPrimaryFallsThrough(t *testing.T) {
	q, err := New(true).Normalize(map[string]any{"input": "", "prompt": "search pubmed for cancer"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if q.Text != "search pubmed for cancer" {
		t.Errorf("Expected prompt text, got %q", q.Text)
	}
	if _, ok := q.Metadata["prompt"]; ok {
		t.Error("Resolved primary key must not be copied into metadata")
	}
}

func TestNormalizeStrictMissingKeyNamesKeys(t *testing.T) {
	_, err := New(true).Normalize(map[string]any{"foo": "bar"})
	if err == nil {
		t.Fatal("Expected error")
	}
	if !strings.Contains(err.Error(), "input") {
		t.Errorf("Expected error to list primary keys, got %v", err)
	}
}

func TestNormalizeCustomPrimaryKeys(t *testing.T) {
	n := &Normalizer{PrimaryKeys: []string{"question"}}
	q, err := n.Normalize(map[string]any{"question": "why", "input": "ignored"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if q.Text != "why" {
		t.Errorf("Expected text why, got %q", q.Text)
	}
}

func TestNormalizeDeepNesting(t *testing.T) {
	var raw any = "bottom"
	for i := 0; i < 20; i++ {
		raw = map[string]any{"input": raw}
	}
	q := Normalize(raw)
	if q.Text == "" {
		t.Error("Expected non-empty text for deeply nested input")
	}
}

func TestQueryLower(t *testing.T) {
	q := Query{Text: "Search PubMed"}
	if q.Lower() != "search pubmed" {
		t.Errorf("Expected lowercased text, got %q", q.Lower())
	}
}
