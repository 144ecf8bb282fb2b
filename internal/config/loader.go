package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [ApplyDefaults] to zero-valued fields.
const (
	DefaultListenAddr         = ":8080"
	DefaultRephraseTimeout    = 10 * time.Second
	DefaultTemperature        = 0.3
	DefaultMaxTokens          = 100
	DefaultBreakerFailures    = 5
	DefaultBreakerReset       = 30 * time.Second
	DefaultFetchTimeout       = 5 * time.Second
	DefaultPreloadTimeout     = 5 * time.Second
	DefaultPreloadConcurrency = 8
	DefaultPlaybackDuration   = 3 * time.Second
)

// APIKeyEnv is consulted when providers.llm.api_key is empty.
const APIKeyEnv = "SIGNFLOW_LLM_API_KEY"

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
}

// providerKeyEnv maps LLM provider names to the environment variable their
// own SDKs read the API key from.
var providerKeyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"gemini":    "GEMINI_API_KEY",
	"deepseek":  "DEEPSEEK_API_KEY",
	"mistral":   "MISTRAL_API_KEY",
	"groq":      "GROQ_API_KEY",
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills in defaults and
// validates the result. An empty document yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields of cfg with their defaults and
// resolves the LLM API key from the environment when it is not set.
func ApplyDefaults(cfg *Config) {
	applyDefaults(cfg, os.Getenv)
}

func applyDefaults(cfg *Config, getenv func(string) string) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	llmEntry := &cfg.Providers.LLM
	applyKeyFromEnv(llmEntry, getenv)
	for i := range cfg.Providers.LLMFallbacks {
		applyKeyFromEnv(&cfg.Providers.LLMFallbacks[i], getenv)
	}

	rp := &cfg.Rephrase
	if rp.Mode == "" {
		switch {
		case rp.RemoteURL != "":
			rp.Mode = ModeRemote
		case llmEntry.Name != "":
			rp.Mode = ModeLLM
		default:
			rp.Mode = ModeRules
		}
	}
	if rp.Timeout == 0 {
		rp.Timeout = DefaultRephraseTimeout
	}
	if rp.Temperature == 0 {
		rp.Temperature = DefaultTemperature
	}
	if rp.MaxTokens == 0 {
		rp.MaxTokens = DefaultMaxTokens
	}
	if rp.Breaker.MaxFailures == 0 {
		rp.Breaker.MaxFailures = DefaultBreakerFailures
	}
	if rp.Breaker.ResetTimeout == 0 {
		rp.Breaker.ResetTimeout = DefaultBreakerReset
	}

	if cfg.Media.FetchTimeout == 0 {
		cfg.Media.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.Media.PreloadTimeout == 0 {
		cfg.Media.PreloadTimeout = DefaultPreloadTimeout
	}
	if cfg.Media.PreloadConcurrency == 0 {
		cfg.Media.PreloadConcurrency = DefaultPreloadConcurrency
	}
	if cfg.Playback.DefaultDuration == 0 {
		cfg.Playback.DefaultDuration = DefaultPlaybackDuration
	}
}

// applyKeyFromEnv fills an empty API key from [APIKeyEnv], then from the
// provider's conventional variable.
func applyKeyFromEnv(entry *ProviderEntry, getenv func(string) string) {
	if entry.Name == "" || entry.APIKey != "" {
		return
	}
	entry.APIKey = getenv(APIKeyEnv)
	if entry.APIKey == "" {
		if env, ok := providerKeyEnv[entry.Name]; ok {
			entry.APIKey = getenv(env)
		}
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	validateProviderName("llm", cfg.Providers.LLM.Name)
	for i, fb := range cfg.Providers.LLMFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.llm_fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("llm", fb.Name)
	}
	if len(cfg.Providers.LLMFallbacks) > 0 && cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm_fallbacks requires providers.llm to be configured"))
	}

	// Rephrase
	rp := cfg.Rephrase
	switch {
	case rp.Mode != "" && !rp.Mode.IsValid():
		errs = append(errs, fmt.Errorf("rephrase.mode %q is invalid; valid values: llm, remote, rules", rp.Mode))
	case rp.Mode == ModeLLM && cfg.Providers.LLM.Name == "":
		errs = append(errs, errors.New("rephrase.mode \"llm\" requires providers.llm to be configured"))
	case rp.Mode == ModeRemote && rp.RemoteURL == "":
		errs = append(errs, errors.New("rephrase.remote_url is required when mode is remote"))
	case rp.Mode == ModeRemote:
		if u, err := url.Parse(rp.RemoteURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("rephrase.remote_url %q is not an absolute URL", rp.RemoteURL))
		}
	}
	if rp.Mode == ModeLLM && cfg.Providers.LLM.Name != "" && cfg.Providers.LLM.Name != "ollama" && cfg.Providers.LLM.APIKey == "" {
		slog.Warn("providers.llm.api_key is empty; assisted rephrasing will likely fail",
			"provider", cfg.Providers.LLM.Name,
			"env", APIKeyEnv,
		)
	}
	if rp.Timeout < 0 {
		errs = append(errs, fmt.Errorf("rephrase.timeout %s must not be negative", rp.Timeout))
	}
	if rp.Temperature < 0 || rp.Temperature > 2 {
		errs = append(errs, fmt.Errorf("rephrase.temperature %.2f is out of range [0, 2]", rp.Temperature))
	}
	if rp.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("rephrase.max_tokens %d must not be negative", rp.MaxTokens))
	}
	if rp.Breaker.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("rephrase.breaker.max_failures %d must not be negative", rp.Breaker.MaxFailures))
	}
	if rp.Breaker.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("rephrase.breaker.reset_timeout %s must not be negative", rp.Breaker.ResetTimeout))
	}

	// Vocabulary
	if cfg.Vocabulary.BaseURL != "" {
		if _, err := url.Parse(cfg.Vocabulary.BaseURL); err != nil {
			errs = append(errs, fmt.Errorf("vocabulary.base_url %q is invalid: %w", cfg.Vocabulary.BaseURL, err))
		}
	}

	// Media and playback
	if cfg.Media.FetchTimeout < 0 {
		errs = append(errs, fmt.Errorf("media.fetch_timeout %s must not be negative", cfg.Media.FetchTimeout))
	}
	if cfg.Media.PreloadTimeout < 0 {
		errs = append(errs, fmt.Errorf("media.preload_timeout %s must not be negative", cfg.Media.PreloadTimeout))
	}
	if cfg.Media.PreloadConcurrency < 0 {
		errs = append(errs, fmt.Errorf("media.preload_concurrency %d must not be negative", cfg.Media.PreloadConcurrency))
	}
	if cfg.Playback.DefaultDuration < 0 {
		errs = append(errs, fmt.Errorf("playback.default_duration %s must not be negative", cfg.Playback.DefaultDuration))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
