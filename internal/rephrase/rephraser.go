// Package rephrase turns free-form sentences into sequences of vocabulary
// words.
//
// A [Rephraser] first asks an assisted [Service] (a language model, either
// in-process via [LLMService] or remote via [Client]) and validates whatever
// comes back against the vocabulary. When the service is unavailable, fails,
// or returns nothing usable, it falls back to the deterministic [Reducer].
// Callers always get a [Result]; the tagged [Source] tells them which path
// produced it.
package rephrase

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/MrWong99/signflow/internal/observe"
	"github.com/MrWong99/signflow/internal/resilience"
	"github.com/MrWong99/signflow/internal/vocab"
	"go.opentelemetry.io/otel/attribute"
)

// FilteredWarning is the soft warning attached to results from which
// out-of-vocabulary words were removed.
const FilteredWarning = "Some words were filtered out"

var (
	// ErrNotConfigured means the assisted service has no backing model or
	// endpoint. A [Rephraser] that sees it stops asking for its lifetime.
	ErrNotConfigured = errors.New("rephrase: service not configured")

	// ErrBadRequest means the request lacks a sentence or word list.
	ErrBadRequest = errors.New("rephrase: sentence and availableWords are required")

	// ErrEmptyResponse means the service answered without rephrased text.
	ErrEmptyResponse = errors.New("rephrase: empty rephrased text")
)

// Request is the payload sent to a [Service].
type Request struct {
	Sentence       string   `json:"sentence"`
	AvailableWords []string `json:"availableWords"`
}

// Response is a [Service] answer.
type Response struct {
	Rephrased string `json:"rephrased"`
	Warning   string `json:"warning,omitempty"`
}

// Service is an assisted rephrasing backend.
type Service interface {
	Rephrase(ctx context.Context, req Request) (*Response, error)
}

// Source tags which path produced a [Result].
type Source int

const (
	// SourceAssisted results come from a validated service answer.
	SourceAssisted Source = iota

	// SourceFallback results come from the [Reducer].
	SourceFallback
)

func (s Source) String() string {
	if s == SourceAssisted {
		return "assisted"
	}
	return "fallback"
}

// Reason explains why a result fell back.
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonEmptyInput    Reason = "empty_input"
	ReasonNotConfigured Reason = "not_configured"
	ReasonCircuitOpen   Reason = "circuit_open"
	ReasonServiceError  Reason = "service_error"
	ReasonEmptyResponse Reason = "empty_response"
	ReasonNoValidWords  Reason = "no_valid_words"
)

// Result is the outcome of one translation.
type Result struct {
	// Original is the sentence as given.
	Original string

	// Words are vocabulary words in playback order. Every entry is in the
	// vocabulary.
	Words []string

	Source Source

	// Filtered lists tokens of the service answer that were not in the
	// vocabulary and were removed.
	Filtered []string

	// Warning is a soft, human-readable note. It never blocks playback.
	Warning string

	// Reason is set when Source is SourceFallback.
	Reason Reason
}

// UsedFallback reports whether the result came from the rule-based path.
func (r Result) UsedFallback() bool {
	return r.Source == SourceFallback
}

// Text returns Words joined with single spaces.
func (r Result) Text() string {
	return strings.Join(r.Words, " ")
}

// Option configures a [Rephraser].
type Option func(*Rephraser)

// WithService sets the assisted backend. Without one every call falls back
// with [ReasonNotConfigured].
func WithService(s Service) Option {
	return func(r *Rephraser) { r.service = s }
}

// WithBreaker guards service calls with b. While b is open calls fall back
// immediately with [ReasonCircuitOpen].
func WithBreaker(b *resilience.Breaker) Option {
	return func(r *Rephraser) { r.breaker = b }
}

// WithTimeout bounds each service call. Default: 10s.
func WithTimeout(d time.Duration) Option {
	return func(r *Rephraser) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithMetrics records outcomes on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Rephraser) { r.metrics = m }
}

// Rephraser is the assisted rephraser with rule-based fallback. It is safe
// for concurrent use.
type Rephraser struct {
	lex     Lexicon
	reducer *Reducer
	service Service
	breaker *resilience.Breaker
	timeout time.Duration
	metrics *observe.Metrics

	disabled atomic.Bool
}

// New creates a [Rephraser] validating against lex.
func New(lex Lexicon, opts ...Option) *Rephraser {
	r := &Rephraser{
		lex:     lex,
		reducer: NewReducer(lex),
		timeout: 10 * time.Second,
	}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r
}

// Reducer returns the rule-based fallback used by r.
func (r *Rephraser) Reducer() *Reducer {
	return r.reducer
}

// Status returns "" when the assisted path is usable, otherwise a short
// description of why it is not.
func (r *Rephraser) Status() string {
	switch {
	case r.service == nil || r.disabled.Load():
		return "assisted rephrasing not configured"
	case r.breaker != nil && r.breaker.State() == resilience.StateOpen:
		return "circuit open"
	}
	return ""
}

// RephraseText is [Rephraser.Rephrase] returning only the joined words.
func (r *Rephraser) RephraseText(ctx context.Context, sentence string) string {
	return r.Rephrase(ctx, sentence).Text()
}

// Rephrase translates sentence into vocabulary words. It never fails: any
// problem with the assisted path yields the [Reducer] output, tagged
// [SourceFallback] with a [Reason].
func (r *Rephraser) Rephrase(ctx context.Context, sentence string) Result {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "rephrase")
	defer span.End()

	res := r.rephrase(ctx, sentence)

	span.SetAttributes(
		attribute.String("rephrase.source", res.Source.String()),
		attribute.String("rephrase.reason", string(res.Reason)),
		attribute.Int("rephrase.words", len(res.Words)),
	)
	r.metrics.RecordRephrase(ctx, res.Source.String(), string(res.Reason), time.Since(start))
	r.metrics.RecordFiltered(ctx, len(res.Filtered))
	return res
}

func (r *Rephraser) rephrase(ctx context.Context, sentence string) Result {
	if len(vocab.Normalize(sentence)) == 0 {
		return r.fallback(sentence, ReasonEmptyInput)
	}
	if r.service == nil || r.disabled.Load() {
		return r.fallback(sentence, ReasonNotConfigured)
	}

	req := Request{Sentence: sentence, AvailableWords: r.lex.Words()}
	var resp *Response
	call := func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		var err error
		resp, err = r.service.Rephrase(ctx, req)
		if err == nil && (resp == nil || strings.TrimSpace(resp.Rephrased) == "") {
			err = ErrEmptyResponse
		}
		return err
	}

	var err error
	if r.breaker != nil {
		err = r.breaker.Execute(ctx, call)
	} else {
		err = call(ctx)
	}

	log := observe.Logger(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotConfigured):
		if r.disabled.CompareAndSwap(false, true) {
			log.Warn("assisted rephrasing disabled", "err", err)
		}
		return r.fallback(sentence, ReasonNotConfigured)
	case errors.Is(err, resilience.ErrOpen):
		log.Debug("rephrase circuit open, using rules")
		return r.fallback(sentence, ReasonCircuitOpen)
	case errors.Is(err, ErrEmptyResponse):
		log.Warn("rephrase service returned no text, using rules")
		return r.fallback(sentence, ReasonEmptyResponse)
	default:
		log.Warn("rephrase service failed, using rules", "err", err)
		return r.fallback(sentence, ReasonServiceError)
	}

	words, filtered := r.validate(resp.Rephrased)
	if len(words) == 0 {
		log.Warn("rephrase answer had no vocabulary words, using rules", "filtered", filtered)
		return r.fallback(sentence, ReasonNoValidWords)
	}

	res := Result{
		Original: sentence,
		Words:    words,
		Source:   SourceAssisted,
		Filtered: filtered,
		Warning:  resp.Warning,
	}
	if len(filtered) > 0 {
		log.Debug("filtered out-of-vocabulary words", "filtered", filtered)
		res.Warning = FilteredWarning
	}
	return res
}

// validate splits text into normalised tokens and partitions them into
// vocabulary words and rejects.
func (r *Rephraser) validate(text string) (words, filtered []string) {
	for _, tok := range vocab.Normalize(text) {
		if r.lex.Contains(tok) {
			words = append(words, tok)
		} else {
			filtered = append(filtered, tok)
		}
	}
	return words, filtered
}

func (r *Rephraser) fallback(sentence string, reason Reason) Result {
	return Result{
		Original: sentence,
		Words:    r.reducer.Reduce(sentence),
		Source:   SourceFallback,
		Reason:   reason,
	}
}
