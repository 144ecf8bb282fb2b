// Command signflow is the main entry point for the Signflow sign-language
// translation server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"go.opentelemetry.io/otel"

	"github.com/MrWong99/signflow/internal/config"
	"github.com/MrWong99/signflow/internal/health"
	"github.com/MrWong99/signflow/internal/mcpserver"
	"github.com/MrWong99/signflow/internal/media"
	"github.com/MrWong99/signflow/internal/observe"
	"github.com/MrWong99/signflow/internal/rephrase"
	"github.com/MrWong99/signflow/internal/resilience"
	"github.com/MrWong99/signflow/internal/server"
	"github.com/MrWong99/signflow/internal/signs"
	"github.com/MrWong99/signflow/internal/vocab"
	"github.com/MrWong99/signflow/pkg/provider/llm"
	"github.com/MrWong99/signflow/pkg/provider/llm/anyllm"
	"github.com/MrWong99/signflow/pkg/provider/llm/openai"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "signflow: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "signflow: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("signflow starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"rephrase_mode", cfg.Rephrase.Mode,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown failed", "err", err)
		}
	}()
	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Vocabulary ────────────────────────────────────────────────────────────
	store, err := loadVocabulary(cfg.Vocabulary)
	if err != nil {
		slog.Error("failed to load vocabulary", "err", err)
		return 1
	}

	// ── Rephrasing ────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	svc, llmSvc := buildRephraseService(cfg, reg)
	breaker := resilience.New(resilience.Config{
		Name:         "rephrase",
		MaxFailures:  cfg.Rephrase.Breaker.MaxFailures,
		ResetTimeout: cfg.Rephrase.Breaker.ResetTimeout,
	})
	rephraserOpts := []rephrase.Option{
		rephrase.WithBreaker(breaker),
		rephrase.WithTimeout(cfg.Rephrase.Timeout),
		rephrase.WithMetrics(metrics),
	}
	if svc != nil {
		rephraserOpts = append(rephraserOpts, rephrase.WithService(svc))
	}
	rephraser := rephrase.New(store, rephraserOpts...)

	// ── Media ─────────────────────────────────────────────────────────────────
	resolver := media.NewResolver(store, media.NewHTTPFetcher(&http.Client{}),
		media.WithFetchTimeout(cfg.Media.FetchTimeout),
		media.WithConcurrency(cfg.Media.PreloadConcurrency),
		media.WithMetrics(metrics),
	)
	signsSvc := signs.New(rephraser, store, signs.WithDurations(resolver, cfg.Media.PreloadTimeout))

	// ── HTTP server ───────────────────────────────────────────────────────────
	opts := []server.Option{
		server.WithMetrics(metrics),
		server.WithMetricsHandler(tel.MetricsHandler),
		server.WithHealth(health.New(
			health.Vocabulary(store.Len),
			health.Rephrase(rephraser.Status),
		)),
		server.WithPlaybackDefault(cfg.Playback.DefaultDuration),
		server.WithPreloadTimeout(cfg.Media.PreloadTimeout),
	}
	if llmSvc != nil {
		opts = append(opts, server.WithRephraseService(llmSvc))
	}
	if cfg.MCP.Enabled {
		mcpSrv := mcpserver.New(signsSvc, mcpserver.WithMetrics(metrics), mcpserver.WithVersion(version))
		opts = append(opts, server.WithMCPHandler(mcpserver.Handler(mcpSrv)))
	}
	srv := server.New(signsSvc, rephraser, resolver, opts...)

	httpSrv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	printStartupSummary(cfg, store)

	serveErr := make(chan error, 1)
	go func() {
		var err error
		if tls := cfg.Server.TLS; tls != nil {
			err = httpSrv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = httpSrv.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	slog.Info("server ready, press Ctrl+C to shut down", "addr", cfg.Server.ListenAddr)

	exitCode := 0
	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			slog.Error("http server failed", "err", err)
			exitCode = 1
		}
	}

	// ── Shutdown ──────────────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown error", "err", err)
	}
	srv.Close()

	slog.Info("goodbye")
	return exitCode
}

// ── Wiring ────────────────────────────────────────────────────────────────────

// loadVocabulary reads the configured vocabulary file, or the built-in one
// when no path is set.
func loadVocabulary(cfg config.VocabularyConfig) (*vocab.Store, error) {
	var (
		store *vocab.Store
		err   error
	)
	if cfg.Path != "" {
		store, err = vocab.Load(cfg.Path)
	} else {
		store, err = vocab.Default()
	}
	if err != nil {
		return nil, err
	}
	if cfg.BaseURL != "" {
		store = store.WithBaseURL(cfg.BaseURL)
	}
	slog.Info("vocabulary loaded", "words", store.Len(), "path", cfg.Path)
	return store, nil
}

// buildRephraseService returns the assisted backend for the configured mode.
// In llm mode the same service also answers /api/rephrase, returned as the
// second value. A provider that cannot be built leaves the LLM service
// unconfigured so that callers see "not configured" and fall back.
func buildRephraseService(cfg *config.Config, reg *config.Registry) (rephrase.Service, *rephrase.LLMService) {
	switch cfg.Rephrase.Mode {
	case config.ModeLLM:
		p, err := buildLLM(cfg, reg)
		if err != nil {
			slog.Error("LLM provider unavailable; assisted rephrasing disabled",
				"provider", cfg.Providers.LLM.Name,
				"err", err,
			)
			p = nil
		}
		svc := rephrase.NewLLMService(p,
			rephrase.WithTemperature(cfg.Rephrase.Temperature),
			rephrase.WithMaxTokens(cfg.Rephrase.MaxTokens),
		)
		return svc, svc
	case config.ModeRemote:
		client := rephrase.NewClient(cfg.Rephrase.RemoteURL,
			rephrase.WithHTTPClient(&http.Client{Timeout: cfg.Rephrase.Timeout}),
		)
		return client, nil
	default:
		return nil, nil
	}
}

// buildLLM creates the configured LLM provider. When fallbacks are listed the
// result fails over between them, each behind its own breaker. A fallback that
// cannot be created is skipped.
func buildLLM(cfg *config.Config, reg *config.Registry) (llm.Provider, error) {
	primary, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		return nil, err
	}
	if len(cfg.Providers.LLMFallbacks) == 0 {
		return primary, nil
	}
	fb := resilience.NewLLMFallback(primary, cfg.Providers.LLM.Name, resilience.Config{
		MaxFailures:  cfg.Rephrase.Breaker.MaxFailures,
		ResetTimeout: cfg.Rephrase.Breaker.ResetTimeout,
	})
	for _, entry := range cfg.Providers.LLMFallbacks {
		p, err := reg.CreateLLM(entry)
		if err != nil {
			slog.Warn("skipping LLM fallback", "provider", entry.Name, "err", err)
			continue
		}
		fb.AddFallback(entry.Name, p)
	}
	slog.Info("LLM failover configured", "order", fb.Backends())
	return fb, nil
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the LLM provider factories into reg.
// "openai" uses the native OpenAI client; every other backend goes through
// any-llm-go.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	slog.Debug("registered LLM providers", "names", reg.LLMNames())
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, store *vocab.Store) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        Signflow  startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Rephrase", string(cfg.Rephrase.Mode))
	llmValue := "(not configured)"
	if cfg.Providers.LLM.Name != "" {
		llmValue = cfg.Providers.LLM.Name
		if cfg.Providers.LLM.Model != "" {
			llmValue += " / " + cfg.Providers.LLM.Model
		}
	}
	printRow("LLM", llmValue)
	printRow("Vocabulary", fmt.Sprintf("%d words", store.Len()))
	if cfg.MCP.Enabled {
		printRow("MCP", "/mcp")
	} else {
		printRow("MCP", "(disabled)")
	}
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "..."
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
