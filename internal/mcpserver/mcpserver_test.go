package mcpserver_test

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/signflow/internal/mcpserver"
	"github.com/MrWong99/signflow/internal/observe"
	"github.com/MrWong99/signflow/internal/rephrase"
	"github.com/MrWong99/signflow/internal/signs"
	"github.com/MrWong99/signflow/internal/vocab"
)

func connect(t *testing.T) (*mcp.ClientSession, *sdkmetric.ManualReader) {
	t.Helper()
	ctx := context.Background()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	store, err := vocab.Default()
	if err != nil {
		t.Fatalf("vocab.Default: %v", err)
	}
	store = store.WithBaseURL("https://cdn.test/")
	svc := signs.New(rephrase.New(store, rephrase.WithMetrics(m)), store)
	srv := mcpserver.New(svc, mcpserver.WithMetrics(m), mcpserver.WithVersion("test"))

	serverT, clientT := mcp.NewInMemoryTransports()
	ss, err := srv.Connect(ctx, serverT, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { _ = cs.Close() })
	return cs, reader
}

// callTool invokes name and decodes the text result into out.
func callTool(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any, out any) *mcp.CallToolResult {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if out != nil && !res.IsError {
		var sb strings.Builder
		for _, c := range res.Content {
			if tc, ok := c.(*mcp.TextContent); ok {
				sb.WriteString(tc.Text)
			}
		}
		if err := json.Unmarshal([]byte(sb.String()), out); err != nil {
			t.Fatalf("decode %s result %q: %v", name, sb.String(), err)
		}
	}
	return res
}

func TestListTools(t *testing.T) {
	t.Parallel()
	cs, _ := connect(t)

	var names []string
	for tool, err := range cs.Tools(context.Background(), nil) {
		if err != nil {
			t.Fatalf("list tools: %v", err)
		}
		names = append(names, tool.Name)
	}
	slices.Sort(names)
	want := []string{"list_signs", "lookup_sign", "translate_to_signs"}
	if !slices.Equal(names, want) {
		t.Errorf("tools: got %v, want %v", names, want)
	}
}

func TestTranslateToSigns(t *testing.T) {
	t.Parallel()
	cs, reader := connect(t)

	var out signs.Translation
	res := callTool(t, cs, "translate_to_signs", map[string]any{"text": "Hello world"}, &out)
	if res.IsError {
		t.Fatalf("unexpected tool error: %+v", res.Content)
	}
	if !slices.Equal(out.Words, []string{"HELLO", "WORLD"}) {
		t.Errorf("words: got %v", out.Words)
	}
	if !out.Fallback {
		t.Error("fallback: got false, want true without a rephrase service")
	}
	if len(out.Media) != 2 || out.Media[0].URL != "https://cdn.test/hello.gif" {
		t.Errorf("media: got %+v", out.Media)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}
	if got := toolCalls(rm, "translate_to_signs", "ok"); got != 1 {
		t.Errorf("tool call metric: got %d, want 1", got)
	}
}

func TestTranslateToSigns_EmptyText(t *testing.T) {
	t.Parallel()
	cs, reader := connect(t)

	res := callTool(t, cs, "translate_to_signs", map[string]any{"text": "  "}, nil)
	if !res.IsError {
		t.Fatal("expected a tool error for blank text")
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}
	if got := toolCalls(rm, "translate_to_signs", "error"); got != 1 {
		t.Errorf("tool error metric: got %d, want 1", got)
	}
}

func TestLookupSign(t *testing.T) {
	t.Parallel()
	cs, _ := connect(t)

	tests := []struct {
		name      string
		word      string
		wantKnown bool
		wantURL   string
		wantFirst string
	}{
		{name: "known", word: "hello", wantKnown: true, wantURL: "https://cdn.test/hello.gif"},
		{name: "misspelled", word: "helo", wantFirst: "HELLO"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out signs.Lookup
			callTool(t, cs, "lookup_sign", map[string]any{"word": tt.word, "limit": 3}, &out)
			if out.Known != tt.wantKnown {
				t.Errorf("known: got %v, want %v", out.Known, tt.wantKnown)
			}
			if out.URL != tt.wantURL {
				t.Errorf("url: got %q, want %q", out.URL, tt.wantURL)
			}
			if tt.wantFirst != "" && (len(out.Suggestions) == 0 || out.Suggestions[0].Word != tt.wantFirst) {
				t.Errorf("suggestions: got %+v, want first %q", out.Suggestions, tt.wantFirst)
			}
			if len(out.Suggestions) > 3 {
				t.Errorf("limit ignored: got %d suggestions", len(out.Suggestions))
			}
		})
	}
}

func TestListSigns(t *testing.T) {
	t.Parallel()
	cs, _ := connect(t)

	var out mcpserver.ListOutput
	callTool(t, cs, "list_signs", map[string]any{"prefix": "he"}, &out)
	if out.Count != len(out.Words) || out.Count == 0 {
		t.Fatalf("count: got %d for %v", out.Count, out.Words)
	}
	for _, w := range out.Words {
		if !strings.HasPrefix(w, "HE") {
			t.Errorf("word %q does not match prefix", w)
		}
	}
	if !slices.Contains(out.Words, "HELLO") {
		t.Errorf("words: got %v, want HELLO included", out.Words)
	}
}

func toolCalls(rm metricdata.ResourceMetrics, tool, status string) int64 {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "signflow.tool.calls" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				return 0
			}
			for _, dp := range sum.DataPoints {
				tv, _ := dp.Attributes.Value(attribute.Key("tool"))
				sv, _ := dp.Attributes.Value(attribute.Key("status"))
				if tv.AsString() == tool && sv.AsString() == status {
					return dp.Value
				}
			}
		}
	}
	return 0
}
