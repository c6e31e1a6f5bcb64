package llm

import "context"

// Chat roles understood by downstream providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage models the message format consumed by downstream LLM providers.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams captures LLM generation knobs.
type GenerationParams struct {
	Model       string
	MaxTokens   int
	Temperature float32
	Stop        []string
}

// PartialChunk represents a streaming delta from the provider.
type PartialChunk struct {
	Delta string
	Done  bool
	Err   error
}

// StreamingProvider abstracts a streaming chat completion provider.
type StreamingProvider interface {
	StreamChat(ctx context.Context, messages []ChatMessage, params GenerationParams) (<-chan PartialChunk, error)
}
