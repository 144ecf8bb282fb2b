package anyllm

import (
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/signflow/pkg/provider/llm"
)

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		backend string
		model   string
	}{
		{name: "empty backend", backend: "", model: "llama3.2"},
		{name: "empty model", backend: "ollama", model: ""},
		{name: "unknown backend", backend: "carrier-pigeon", model: "coo"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := New(tc.backend, tc.model); err == nil {
				t.Fatalf("New(%q, %q) expected error", tc.backend, tc.model)
			}
		})
	}
}

func TestBuildParams(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "gpt-4o-mini"}
	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "Only use listed words.",
		Messages:     []llm.Message{{Role: "user", Content: "Hello there"}},
		Temperature:  0.3,
		MaxTokens:    100,
	})

	if params.Model != "gpt-4o-mini" {
		t.Errorf("Model = %q, want gpt-4o-mini", params.Model)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(params.Messages))
	}
	if params.Messages[0].Role != anyllmlib.RoleSystem {
		t.Errorf("first role = %q, want system", params.Messages[0].Role)
	}
	if params.Messages[1].ContentString() != "Hello there" {
		t.Errorf("user content = %q", params.Messages[1].ContentString())
	}
	if params.Temperature == nil || *params.Temperature != 0.3 {
		t.Errorf("Temperature = %v, want 0.3", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 100 {
		t.Errorf("MaxTokens = %v, want 100", params.MaxTokens)
	}
}

func TestBuildParams_ZeroValuesLeaveDefaults(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "m"}
	params := p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "x"}},
	})
	if params.Temperature != nil {
		t.Error("Temperature should be nil when zero")
	}
	if params.MaxTokens != nil {
		t.Error("MaxTokens should be nil when zero")
	}
	if len(params.Messages) != 1 {
		t.Errorf("got %d messages, want 1 (no system prompt)", len(params.Messages))
	}
}
