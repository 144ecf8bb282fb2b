// Package signs answers one-shot questions about the sign vocabulary: it
// translates a sentence into playable signs and looks single words up. It
// backs the request/response surfaces (the JSON API and the MCP tools);
// live sessions go through package interpreter instead.
package signs

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrWong99/signflow/internal/rephrase"
	"github.com/MrWong99/signflow/internal/vocab"
)

// ErrEmptyText is returned by [Service.Translate] for blank input.
var ErrEmptyText = errors.New("signs: text is required")

// Translator converts a sentence into vocabulary words.
type Translator interface {
	Rephrase(ctx context.Context, sentence string) rephrase.Result
}

// Durations resolves display durations.
type Durations interface {
	Preload(ctx context.Context, words []string) map[string]time.Duration
}

// Sign is one playable vocabulary word.
type Sign struct {
	Word       string `json:"word"`
	URL        string `json:"url"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

// Translation is the serialisable outcome of [Service.Translate].
type Translation struct {
	Original string   `json:"original"`
	Words    []string `json:"words"`
	Fallback bool     `json:"fallback"`
	Reason   string   `json:"reason,omitempty"`
	Warning  string   `json:"warning,omitempty"`
	Filtered []string `json:"filtered,omitempty"`
	Media    []Sign   `json:"media"`
}

// Lookup is the outcome of [Service.Lookup].
type Lookup struct {
	Word        string             `json:"word"`
	Known       bool               `json:"known"`
	URL         string             `json:"url,omitempty"`
	Suggestions []vocab.Suggestion `json:"suggestions,omitempty"`
}

// Option configures a [Service].
type Option func(*Service)

// WithDurations attaches display durations to translated signs. Lookups are
// bounded by the preload timeout; unresolved words are left without one.
func WithDurations(d Durations, timeout time.Duration) Option {
	return func(s *Service) {
		s.durations = d
		if timeout > 0 {
			s.preloadTimeout = timeout
		}
	}
}

// Service is safe for concurrent use.
type Service struct {
	translator     Translator
	store          *vocab.Store
	durations      Durations
	preloadTimeout time.Duration
}

// New creates a Service over the given translator and vocabulary.
func New(t Translator, store *vocab.Store, opts ...Option) *Service {
	s := &Service{
		translator:     t,
		store:          store,
		preloadTimeout: 5 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Store returns the vocabulary the service answers from.
func (s *Service) Store() *vocab.Store {
	return s.store
}

// Translate rephrases text into vocabulary words and resolves their media.
func (s *Service) Translate(ctx context.Context, text string) (Translation, error) {
	if strings.TrimSpace(text) == "" {
		return Translation{}, ErrEmptyText
	}
	res := s.translator.Rephrase(ctx, text)

	var durs map[string]time.Duration
	if s.durations != nil && len(res.Words) > 0 {
		pctx, cancel := context.WithTimeout(ctx, s.preloadTimeout)
		durs = s.durations.Preload(pctx, res.Words)
		cancel()
	}

	out := Translation{
		Original: res.Original,
		Words:    res.Words,
		Fallback: res.UsedFallback(),
		Reason:   string(res.Reason),
		Warning:  res.Warning,
		Filtered: res.Filtered,
		Media:    make([]Sign, 0, len(res.Words)),
	}
	if out.Words == nil {
		out.Words = []string{}
	}
	for _, w := range res.Words {
		url, _ := s.store.MediaURL(w)
		out.Media = append(out.Media, Sign{
			Word:       w,
			URL:        url,
			DurationMS: durs[w].Milliseconds(),
		})
	}
	return out, nil
}

// Lookup reports whether word has a sign. Unknown words come with up to n
// spelling suggestions.
func (s *Service) Lookup(word string, n int) Lookup {
	norm := vocab.Normalize(word)
	key := strings.Join(norm, " ")
	out := Lookup{Word: key}
	if len(norm) == 1 {
		if url, ok := s.store.MediaURL(key); ok {
			out.Known = true
			out.URL = url
			return out
		}
	}
	if key != "" {
		out.Suggestions = s.store.Suggest(key, n)
	}
	return out
}
