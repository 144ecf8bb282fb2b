package rephrase

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrWong99/signflow/internal/vocab"
	"github.com/MrWong99/signflow/pkg/provider/llm"
)

const (
	defaultTemperature = 0.3
	defaultMaxTokens   = 100
)

const systemPrompt = "You are a helpful assistant that rephrases sentences using only words from a provided list. Output only the rephrased sentence without explanations."

// userPromptTemplate takes the sentence, the word count and the
// comma-separated word list.
const userPromptTemplate = `Given a sentence, rephrase it using only words from a provided list. If the exact word is not present, substitute it with words that are almost the same, but only output words that are present in the list. Even conjunctions or nouns other than what present in the list is allowed. Only the words present in the below list. If even the substitute for a word can't be found, then ignore the word. The output should consist only the final sentence. Don't output any word which is not in the list. Always find the comparative closest substitute.

Example Sentence: "The environment is very nice."
Expected rephrase: "ENVIRONMENT VERY GOOD"

Sentence to be converted: "%s"

Word list (%d words):
%s

Output only the rephrased sentence using words from the list above:`

// LLMOption configures an [LLMService].
type LLMOption func(*LLMService)

// WithTemperature sets the sampling temperature. Default: 0.3.
func WithTemperature(t float64) LLMOption {
	return func(s *LLMService) { s.temperature = t }
}

// WithMaxTokens caps the completion length. Default: 100.
func WithMaxTokens(n int) LLMOption {
	return func(s *LLMService) {
		if n > 0 {
			s.maxTokens = n
		}
	}
}

// LLMService is a [Service] backed by an [llm.Provider]. It filters the
// model's answer against the request's word list before returning it, so a
// remote caller never receives words it did not offer.
//
// Model selection follows one provider per model: configure the provider
// with the model you want.
type LLMService struct {
	provider    llm.Provider
	temperature float64
	maxTokens   int
}

// NewLLMService returns a service over p. A nil p yields a service whose
// every call fails with [ErrNotConfigured].
func NewLLMService(p llm.Provider, opts ...LLMOption) *LLMService {
	s := &LLMService{
		provider:    p,
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Rephrase implements [Service].
func (s *LLMService) Rephrase(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.Sentence) == "" || len(req.AvailableWords) == 0 {
		return nil, ErrBadRequest
	}
	if s.provider == nil {
		return nil, ErrNotConfigured
	}

	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: buildPrompt(req)},
		},
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("rephrase: llm complete: %w", err)
	}

	text := stripMarkdown(resp.Content)
	if text == "" {
		return nil, ErrEmptyResponse
	}

	allowed := make(map[string]struct{}, len(req.AvailableWords))
	for _, w := range req.AvailableWords {
		allowed[strings.ToUpper(strings.TrimSpace(w))] = struct{}{}
	}
	tokens := vocab.Normalize(text)
	valid := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, ok := allowed[tok]; ok {
			valid = append(valid, tok)
		}
	}
	if len(valid) == len(tokens) {
		return &Response{Rephrased: text}, nil
	}
	return &Response{
		Rephrased: strings.Join(valid, " "),
		Warning:   FilteredWarning,
	}, nil
}

func buildPrompt(req Request) string {
	return fmt.Sprintf(userPromptTemplate,
		req.Sentence,
		len(req.AvailableWords),
		strings.Join(req.AvailableWords, ", "),
	)
}

// stripMarkdown removes code fences and surrounding quotes some models wrap
// their answer in.
func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```text", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	return strings.TrimSpace(s)
}
