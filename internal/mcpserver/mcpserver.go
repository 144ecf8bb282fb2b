// Package mcpserver publishes the sign vocabulary as Model Context Protocol
// tools so that assistants can translate text into signs and inspect the
// vocabulary.
//
// Tools:
//
//   - translate_to_signs: rephrase a sentence into playable signs.
//   - lookup_sign: check a single word and suggest near matches.
//   - list_signs: list vocabulary words, optionally by prefix.
package mcpserver

import (
	"context"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/signflow/internal/observe"
	"github.com/MrWong99/signflow/internal/signs"
)

const (
	implementationName = "signflow"
	defaultSuggestions = 5
	maxSuggestions     = 25
)

// Option configures the server built by [New].
type Option func(*config)

type config struct {
	version string
	metrics *observe.Metrics
}

// WithVersion sets the implementation version announced to clients.
func WithVersion(v string) Option {
	return func(c *config) { c.version = v }
}

// WithMetrics records tool calls on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// TranslateInput is the argument of translate_to_signs.
type TranslateInput struct {
	Text string `json:"text" jsonschema:"the sentence to translate"`
}

// LookupInput is the argument of lookup_sign.
type LookupInput struct {
	Word  string `json:"word" jsonschema:"the word to look up"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of suggestions for unknown words"`
}

// ListInput is the argument of list_signs.
type ListInput struct {
	Prefix string `json:"prefix,omitempty" jsonschema:"only list words starting with this prefix"`
}

// ListOutput is the result of list_signs.
type ListOutput struct {
	Count int      `json:"count"`
	Words []string `json:"words"`
}

type tools struct {
	svc     *signs.Service
	metrics *observe.Metrics
}

// New builds an MCP server exposing svc.
func New(svc *signs.Service, opts ...Option) *mcp.Server {
	cfg := config{version: "dev"}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.metrics == nil {
		cfg.metrics = observe.DefaultMetrics()
	}
	t := &tools{svc: svc, metrics: cfg.metrics}

	srv := mcp.NewServer(&mcp.Implementation{Name: implementationName, Version: cfg.version}, nil)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "translate_to_signs",
		Description: "Rephrase a sentence using only words that have a sign animation and return the signs in playback order.",
	}, t.translate)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "lookup_sign",
		Description: "Check whether a word has a sign animation. Unknown words come with similar-looking or similar-sounding suggestions.",
	}, t.lookup)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_signs",
		Description: "List the words that have a sign animation.",
	}, t.list)
	return srv
}

// Handler serves srv over the streamable HTTP transport.
func Handler(srv *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil)
}

func (t *tools) translate(ctx context.Context, _ *mcp.CallToolRequest, in TranslateInput) (*mcp.CallToolResult, signs.Translation, error) {
	out, err := t.svc.Translate(ctx, in.Text)
	t.record(ctx, "translate_to_signs", err)
	if err != nil {
		return nil, signs.Translation{}, err
	}
	return nil, out, nil
}

func (t *tools) lookup(ctx context.Context, _ *mcp.CallToolRequest, in LookupInput) (*mcp.CallToolResult, signs.Lookup, error) {
	n := in.Limit
	if n <= 0 {
		n = defaultSuggestions
	}
	out := t.svc.Lookup(in.Word, min(n, maxSuggestions))
	t.record(ctx, "lookup_sign", nil)
	return nil, out, nil
}

func (t *tools) list(ctx context.Context, _ *mcp.CallToolRequest, in ListInput) (*mcp.CallToolResult, ListOutput, error) {
	prefix := strings.ToUpper(strings.TrimSpace(in.Prefix))
	words := t.svc.Store().Words()
	if prefix != "" {
		filtered := words[:0]
		for _, w := range words {
			if strings.HasPrefix(w, prefix) {
				filtered = append(filtered, w)
			}
		}
		words = filtered
	}
	if words == nil {
		words = []string{}
	}
	t.record(ctx, "list_signs", nil)
	return nil, ListOutput{Count: len(words), Words: words}, nil
}

func (t *tools) record(ctx context.Context, tool string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		observe.Logger(ctx).Debug("mcp tool failed", "tool", tool, "err", err)
	}
	t.metrics.RecordToolCall(ctx, tool, status)
}
