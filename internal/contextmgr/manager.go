package contextmgr

import (
	"context"

	"discussion-agent/internal/llm"
	"discussion-agent/internal/prompt"
)

// WindowStats describes how a history was cut down to a context window.
type WindowStats struct {
	Total           int
	WithinBudget    int
	Included        int
	Chars           int
	EstimatedTokens int
}

// TruncationResult contains the final prompt messages and generation parameters after context window management.
type TruncationResult struct {
	Messages []llm.ChatMessage
	Params   llm.GenerationParams
	Stats    WindowStats
}

// Manager is responsible for fitting a built prompt into the target context window.
type Manager interface {
	Truncate(ctx context.Context, built prompt.BuildResult) (TruncationResult, error)
}
