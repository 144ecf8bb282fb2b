// Package config provides the configuration schema, loader, and provider
// registry for the Signflow translation server.
package config

import "time"

// LogLevel controls log verbosity for the Signflow server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// RephraseMode selects how sentences are turned into vocabulary words.
type RephraseMode string

const (
	// ModeLLM calls the configured LLM provider in-process.
	ModeLLM RephraseMode = "llm"

	// ModeRemote posts to another Signflow instance's /api/rephrase endpoint.
	ModeRemote RephraseMode = "remote"

	// ModeRules uses only the deterministic rule-based reducer.
	ModeRules RephraseMode = "rules"
)

// IsValid reports whether m is a recognised rephrase mode.
func (m RephraseMode) IsValid() bool {
	switch m {
	case ModeLLM, ModeRemote, ModeRules:
		return true
	}
	return false
}

// Config is the root configuration structure for Signflow.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Rephrase   RephraseConfig   `yaml:"rephrase"`
	Vocabulary VocabularyConfig `yaml:"vocabulary"`
	Media      MediaConfig      `yaml:"media"`
	Playback   PlaybackConfig   `yaml:"playback"`
	MCP        MCPConfig        `yaml:"mcp"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProvidersConfig declares which provider implementations back the server.
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`

	// LLMFallbacks are tried in order when LLM fails or its breaker is open.
	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`
}

// ProviderEntry is the configuration block for a provider.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "ollama").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	// When empty it is read from the environment, see [ApplyDefaults].
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o-mini").
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered by the fields above.
	Options map[string]any `yaml:"options"`
}

// RephraseConfig controls the assisted rephrasing path.
type RephraseConfig struct {
	// Mode selects the rephrase backend. Defaults to "llm" when an LLM
	// provider is configured and "rules" otherwise.
	Mode RephraseMode `yaml:"mode"`

	// RemoteURL is the endpoint used in remote mode.
	RemoteURL string `yaml:"remote_url"`

	// Timeout bounds a single rephrase call.
	Timeout time.Duration `yaml:"timeout"`

	// Temperature is passed to the LLM.
	Temperature float64 `yaml:"temperature"`

	// MaxTokens caps the LLM answer length.
	MaxTokens int `yaml:"max_tokens"`

	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes the circuit breaker around the rephrase backend.
type BreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// VocabularyConfig locates the sign vocabulary.
type VocabularyConfig struct {
	// Path to a YAML vocabulary file. Empty uses the built-in vocabulary.
	Path string `yaml:"path"`

	// BaseURL is prepended to relative media references.
	BaseURL string `yaml:"base_url"`
}

// MediaConfig tunes animation metadata lookups.
type MediaConfig struct {
	FetchTimeout       time.Duration `yaml:"fetch_timeout"`
	PreloadTimeout     time.Duration `yaml:"preload_timeout"`
	PreloadConcurrency int           `yaml:"preload_concurrency"`
}

// PlaybackConfig tunes the playback scheduler.
type PlaybackConfig struct {
	// DefaultDuration is used for words whose duration is unknown.
	DefaultDuration time.Duration `yaml:"default_duration"`
}

// MCPConfig controls the Model Context Protocol endpoint.
type MCPConfig struct {
	// Enabled mounts the MCP streamable HTTP handler at /mcp.
	Enabled bool `yaml:"enabled"`
}
