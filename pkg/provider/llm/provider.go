// Package llm defines the Provider interface for the text-completion backends
// that Signflow uses to rephrase sentences into the sign vocabulary.
//
// A provider wraps a remote or local model API (OpenAI, Anthropic, a local
// Ollama instance, ...) behind a single blocking completion call. Signflow
// never streams: a rephrase is a short, bounded completion whose output is
// validated as a whole before it is used.
//
// Implementors must be safe for concurrent use.
package llm

import "context"

// Message is a single message in a completion request.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// Usage holds token accounting information returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// SystemPrompt is an optional high-priority instruction sent before
	// Messages. Providers without a dedicated system slot prepend it as a
	// "system"-role message.
	SystemPrompt string

	// Messages is the ordered conversation. The last message is typically
	// from the "user" role.
	Messages []Message

	// Temperature controls output randomness. Zero leaves the provider default.
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means provider default.
	MaxTokens int
}

// CompletionResponse is the result of [Provider.Complete].
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any text-completion backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// It returns an error when the request fails or ctx is cancelled before
	// the completion arrives.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Model reports the model identifier the provider was configured with.
	Model() string
}
