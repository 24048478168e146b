// Package llm defines the provider-agnostic chat abstraction used by the
// extraction (C8) and entity-resolution (C9) services. Both call sites send
// a single user prompt and expect a single text completion that is then
// parsed against a closed JSON schema (§9 "LLM output parsing" — free text
// is never accepted).
package llm

import "context"

// Message is one turn in a chat completion request.
type Message struct {
	Role    string // "system" | "user" | "assistant"
	Content string
}

// Provider is implemented by each concrete model backend (Anthropic,
// OpenAI). Chat is the only operation C8/C9 need: a single non-streaming
// completion whose text the caller parses as JSON. Only the OpenAI backend
// requests a JSON response format; the Anthropic backend returns plain text.
type Provider interface {
	// Chat sends msgs to model and returns the assistant's text content.
	Chat(ctx context.Context, msgs []Message, model string) (string, error)
}
