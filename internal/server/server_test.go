package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/signflow/internal/health"
	"github.com/MrWong99/signflow/internal/media"
	"github.com/MrWong99/signflow/internal/observe"
	"github.com/MrWong99/signflow/internal/playback"
	"github.com/MrWong99/signflow/internal/rephrase"
	"github.com/MrWong99/signflow/internal/server"
	"github.com/MrWong99/signflow/internal/signs"
	"github.com/MrWong99/signflow/internal/vocab"
	"github.com/MrWong99/signflow/pkg/provider/llm"
	"github.com/MrWong99/signflow/pkg/provider/llm/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

// sizeFetcher reports the same asset size for every URL.
type sizeFetcher int64

func (f sizeFetcher) Size(context.Context, string) (int64, error) { return int64(f), nil }

// frozenClock never fires, so playback stays on the word it started.
type frozenClock struct{}

type frozenTimer struct{}

func (frozenTimer) Stop() bool { return true }

func (frozenClock) AfterFunc(time.Duration, func()) playback.Timer { return frozenTimer{} }

type serviceFunc func(ctx context.Context, req rephrase.Request) (*rephrase.Response, error)

func (f serviceFunc) Rephrase(ctx context.Context, req rephrase.Request) (*rephrase.Response, error) {
	return f(ctx, req)
}

type fixture struct {
	srv   *server.Server
	ts    *httptest.Server
	store *vocab.Store
}

func newFixture(t *testing.T, rephraserOpts []rephrase.Option, opts ...server.Option) *fixture {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	store, err := vocab.Default()
	if err != nil {
		t.Fatalf("vocab.Default: %v", err)
	}
	store = store.WithBaseURL("https://cdn.test/signs/")

	reph := rephrase.New(store, append([]rephrase.Option{rephrase.WithMetrics(m)}, rephraserOpts...)...)
	// 50 KiB assets classify as short animations.
	res := media.NewResolver(store, sizeFetcher(50<<10), media.WithMetrics(m))
	sv := signs.New(reph, store, signs.WithDurations(res, time.Second))

	base := []server.Option{server.WithMetrics(m), server.WithClock(frozenClock{})}
	srv := server.New(sv, reph, res, append(base, opts...)...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return &fixture{srv: srv, ts: ts, store: store}
}

func postJSON(t *testing.T, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, out
}

func getJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

// ── /api/rephrase ────────────────────────────────────────────────────────────

func TestRephrase_StatusMapping(t *testing.T) {
	t.Parallel()

	words := []string{"ENVIRONMENT", "VERY", "GOOD"}
	tests := []struct {
		name       string
		svc        rephrase.Service
		body       any
		wantStatus int
		wantKey    string
		wantValue  string
	}{
		{
			name:       "success",
			svc:        rephrase.NewLLMService(&mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "ENVIRONMENT VERY GOOD"}}),
			body:       rephrase.Request{Sentence: "The environment is very nice.", AvailableWords: words},
			wantStatus: http.StatusOK,
			wantKey:    "rephrased",
			wantValue:  "ENVIRONMENT VERY GOOD",
		},
		{
			name:       "filtered answer carries warning",
			svc:        rephrase.NewLLMService(&mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "THE ENVIRONMENT IS GOOD"}}),
			body:       rephrase.Request{Sentence: "The environment is nice.", AvailableWords: words},
			wantStatus: http.StatusOK,
			wantKey:    "warning",
			wantValue:  rephrase.FilteredWarning,
		},
		{
			name:       "missing sentence",
			svc:        serviceFunc(func(context.Context, rephrase.Request) (*rephrase.Response, error) { return nil, nil }),
			body:       map[string]any{"availableWords": words},
			wantStatus: http.StatusBadRequest,
			wantKey:    "error",
			wantValue:  "Missing sentence or availableWords",
		},
		{
			name:       "missing word list",
			svc:        serviceFunc(func(context.Context, rephrase.Request) (*rephrase.Response, error) { return nil, nil }),
			body:       map[string]any{"sentence": "hello"},
			wantStatus: http.StatusBadRequest,
			wantKey:    "error",
			wantValue:  "Missing sentence or availableWords",
		},
		{
			name:       "no backend",
			svc:        nil,
			body:       rephrase.Request{Sentence: "hello", AvailableWords: words},
			wantStatus: http.StatusServiceUnavailable,
			wantKey:    "error",
			wantValue:  "assisted rephrasing not configured",
		},
		{
			name:       "backend not configured",
			svc:        rephrase.NewLLMService(nil),
			body:       rephrase.Request{Sentence: "hello", AvailableWords: words},
			wantStatus: http.StatusServiceUnavailable,
			wantKey:    "error",
			wantValue:  "assisted rephrasing not configured",
		},
		{
			name:       "upstream failure",
			svc:        rephrase.NewLLMService(&mock.Provider{CompleteErr: errors.New("rate limited")}),
			body:       rephrase.Request{Sentence: "hello", AvailableWords: words},
			wantStatus: http.StatusBadGateway,
			wantKey:    "error",
			wantValue:  "Failed to rephrase sentence",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var opts []server.Option
			if tt.svc != nil {
				opts = append(opts, server.WithRephraseService(tt.svc))
			}
			f := newFixture(t, nil, opts...)
			resp, body := postJSON(t, f.ts.URL+"/api/rephrase", tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status: got %d, want %d (body %v)", resp.StatusCode, tt.wantStatus, body)
			}
			if got, _ := body[tt.wantKey].(string); got != tt.wantValue {
				t.Errorf("%s: got %q, want %q", tt.wantKey, got, tt.wantValue)
			}
		})
	}
}

func TestRephrase_InvalidJSON(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	resp, err := http.Post(f.ts.URL+"/api/rephrase", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
}

// ── /api/translate ───────────────────────────────────────────────────────────

func TestTranslate_Fallback(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	resp, err := http.Post(f.ts.URL+"/api/translate", "application/json", strings.NewReader(`{"text":"Hello, world!"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	var out signs.Translation
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(out.Words, []string{"HELLO", "WORLD"}) {
		t.Errorf("words: got %v, want [HELLO WORLD]", out.Words)
	}
	if !out.Fallback || out.Reason != string(rephrase.ReasonNotConfigured) {
		t.Errorf("fallback/reason: got %v/%q", out.Fallback, out.Reason)
	}
	if len(out.Media) != 2 {
		t.Fatalf("media: got %d entries, want 2", len(out.Media))
	}
	if out.Media[0].URL != "https://cdn.test/signs/hello.gif" {
		t.Errorf("media[0].url: got %q", out.Media[0].URL)
	}
	if out.Media[1].DurationMS != 2000 {
		t.Errorf("media[1].duration_ms: got %d, want 2000", out.Media[1].DurationMS)
	}
}

func TestTranslate_Assisted(t *testing.T) {
	t.Parallel()
	svc := serviceFunc(func(_ context.Context, req rephrase.Request) (*rephrase.Response, error) {
		return &rephrase.Response{Rephrased: "ENVIRONMENT VERY GOOD"}, nil
	})
	f := newFixture(t, []rephrase.Option{rephrase.WithService(svc)})

	resp, body := postJSON(t, f.ts.URL+"/api/translate", map[string]string{"text": "The environment is very nice."})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	if fb, _ := body["fallback"].(bool); fb {
		t.Error("fallback: got true, want false")
	}
	words, _ := body["words"].([]any)
	if len(words) != 3 || words[0] != "ENVIRONMENT" || words[2] != "GOOD" {
		t.Errorf("words: got %v", words)
	}
}

func TestTranslate_EmptyText(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	resp, body := postJSON(t, f.ts.URL+"/api/translate", map[string]string{"text": "   "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
	if body["error"] != "text is required" {
		t.Errorf("error: got %v", body["error"])
	}
}

// ── /api/vocabulary ──────────────────────────────────────────────────────────

func TestVocabulary(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	var out struct {
		Count int      `json:"count"`
		Words []string `json:"words"`
	}
	resp := getJSON(t, f.ts.URL+"/api/vocabulary", &out)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	if out.Count != f.store.Len() || len(out.Words) != out.Count {
		t.Errorf("count: got %d (%d words), want %d", out.Count, len(out.Words), f.store.Len())
	}
	if !slices.IsSorted(out.Words) {
		t.Error("words are not sorted")
	}
}

func TestSuggest(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantKnown  bool
		wantFirst  string
	}{
		{name: "known word", query: "?word=hello", wantStatus: http.StatusOK, wantKnown: true, wantFirst: "HELLO"},
		{name: "misspelling", query: "?word=HELO", wantStatus: http.StatusOK, wantFirst: "HELLO"},
		{name: "missing word", query: "", wantStatus: http.StatusBadRequest},
		{name: "bad limit", query: "?word=helo&limit=zero", wantStatus: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var out struct {
				Word        string             `json:"word"`
				Known       bool               `json:"known"`
				Suggestions []vocab.Suggestion `json:"suggestions"`
			}
			resp := getJSON(t, f.ts.URL+"/api/vocabulary/suggest"+tt.query, &out)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status: got %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			if out.Known != tt.wantKnown {
				t.Errorf("known: got %v, want %v", out.Known, tt.wantKnown)
			}
			if len(out.Suggestions) == 0 || out.Suggestions[0].Word != tt.wantFirst {
				t.Errorf("suggestions: got %v, want first %q", out.Suggestions, tt.wantFirst)
			}
		})
	}
}

// ── optional routes ──────────────────────────────────────────────────────────

func TestOptionalRoutes(t *testing.T) {
	t.Parallel()
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics\n"))
	})
	mcpHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	f := newFixture(t, nil,
		server.WithHealth(health.New()),
		server.WithMetricsHandler(metricsHandler),
		server.WithMCPHandler(mcpHandler),
	)

	tests := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/readyz", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodPost, "/mcp", http.StatusTeapot},
	}
	for _, tt := range tests {
		req, _ := http.NewRequest(tt.method, f.ts.URL+tt.path, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s %s: %v", tt.method, tt.path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.want {
			t.Errorf("%s %s: got %d, want %d", tt.method, tt.path, resp.StatusCode, tt.want)
		}
	}
}

func TestOptionalRoutes_AbsentByDefault(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	for _, path := range []string{"/metrics", "/healthz", "/mcp"} {
		resp, err := http.Get(f.ts.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("GET %s: got %d, want 404", path, resp.StatusCode)
		}
	}
}
