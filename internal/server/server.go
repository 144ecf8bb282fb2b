// Package server exposes Signflow over HTTP.
//
// Routes:
//
//	POST /api/rephrase              assisted rephrase service
//	POST /api/translate             one-shot translation with media
//	GET  /api/vocabulary            sorted vocabulary words
//	GET  /api/vocabulary/suggest    spelling suggestions for one word
//	GET  /ws                        live signing session (WebSocket)
//	GET  /healthz, /readyz          probes (when configured)
//	GET  /metrics                   Prometheus scrape endpoint (when configured)
//	     /mcp                       MCP streamable HTTP (when configured)
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/signflow/internal/health"
	"github.com/MrWong99/signflow/internal/interpreter"
	"github.com/MrWong99/signflow/internal/observe"
	"github.com/MrWong99/signflow/internal/playback"
	"github.com/MrWong99/signflow/internal/rephrase"
	"github.com/MrWong99/signflow/internal/signs"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Option configures a [Server].
type Option func(*Server)

// WithRephraseService serves /api/rephrase from svc. Without one the route
// answers 503.
func WithRephraseService(svc rephrase.Service) Option {
	return func(s *Server) { s.service = svc }
}

// WithHealth mounts the liveness and readiness probes.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithMCPHandler mounts h at /mcp.
func WithMCPHandler(h http.Handler) Option {
	return func(s *Server) { s.mcpHandler = h }
}

// WithMetrics records on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithPlaybackDefault sets the duration live sessions use for words whose
// duration is unknown.
func WithPlaybackDefault(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.defaultDuration = d
		}
	}
}

// WithPreloadTimeout bounds duration preloading per live translation cycle.
func WithPreloadTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.preloadTimeout = d
		}
	}
}

// WithClock drives live session playback from c. Tests use it to control
// time.
func WithClock(c playback.Clock) Option {
	return func(s *Server) { s.clock = c }
}

// Server is the HTTP front end. Create it with [New] and serve [Server.Handler].
type Server struct {
	signs     *signs.Service
	rephraser interpreter.Translator
	durations interpreter.Durations
	service   rephrase.Service

	health         *health.Handler
	metricsHandler http.Handler
	mcpHandler     http.Handler
	metrics        *observe.Metrics

	defaultDuration time.Duration
	preloadTimeout  time.Duration
	clock           playback.Clock

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*session
}

// New creates a server. tr and durs back live sessions; sv answers the
// one-shot routes.
func New(sv *signs.Service, tr interpreter.Translator, durs interpreter.Durations, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		signs:           sv,
		rephraser:       tr,
		durations:       durs,
		defaultDuration: playback.DefaultDuration,
		preloadTimeout:  5 * time.Second,
		clock:           playback.SystemClock(),
		ctx:             ctx,
		cancel:          cancel,
		sessions:        make(map[string]*session),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Handler returns the instrumented route tree.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/rephrase", s.handleRephrase)
	mux.HandleFunc("POST /api/translate", s.handleTranslate)
	mux.HandleFunc("GET /api/vocabulary", s.handleVocabulary)
	mux.HandleFunc("GET /api/vocabulary/suggest", s.handleSuggest)
	mux.HandleFunc("GET /ws", s.handleWS)
	if s.health != nil {
		s.health.Register(mux)
	}
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}
	if s.mcpHandler != nil {
		mux.Handle("/mcp", s.mcpHandler)
	}
	return observe.Middleware(s.metrics)(mux)
}

// Sessions returns the number of live WebSocket sessions.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close ends every live session and waits for them to finish. It does not
// stop the HTTP listener; shut the [http.Server] down first.
func (s *Server) Close() {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Server) addSession(ss *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	s.sessions[ss.id] = ss
	s.wg.Add(1)
	return true
}

func (s *Server) removeSession(ss *session) {
	s.mu.Lock()
	delete(s.sessions, ss.id)
	s.mu.Unlock()
	s.wg.Done()
}
