package contextmgr

import (
	"context"
	"unicode/utf8"

	"discussion-agent/internal/llm"
	"discussion-agent/internal/prompt"
)

// DefaultCharBudget is the soft character budget for history included in one prompt.
const DefaultCharBudget = 20000

// CountWithinBudget walks history from newest to oldest and returns how many trailing
// messages fit in budget characters. The scan stops at the first message that would
// overflow; it never skips ahead to smaller, older messages.
func CountWithinBudget(history []llm.ChatMessage, budget int) int {
	used := 0
	count := 0
	for i := len(history) - 1; i >= 0; i-- {
		used += utf8.RuneCountInString(history[i].Content)
		if used > budget {
			break
		}
		count++
	}
	return count
}

// IncludedCount is min(total, max(withinBudget+1, minMessages)). The budget is soft: the floor
// and the extra message may push the window past it, favoring continuity over strict size.
func IncludedCount(total, withinBudget, minMessages int) int {
	return min(total, max(withinBudget+1, minMessages))
}

// Window returns system followed by the most recent history entries selected by the budget
// policy, in chronological order. The input slice is not modified.
func Window(system llm.ChatMessage, history []llm.ChatMessage, budget, minMessages int) ([]llm.ChatMessage, WindowStats) {
	stats := WindowStats{Total: len(history)}
	stats.WithinBudget = CountWithinBudget(history, budget)
	stats.Included = IncludedCount(stats.Total, stats.WithinBudget, minMessages)

	out := make([]llm.ChatMessage, 0, stats.Included+1)
	out = append(out, system)
	out = append(out, history[len(history)-stats.Included:]...)

	for _, msg := range out {
		stats.Chars += utf8.RuneCountInString(msg.Content)
	}
	return out, stats
}

// WindowManager applies the character-budget window to built prompts.
type WindowManager struct {
	budget  int
	counter TokenCounter
}

// WindowOption customizes a WindowManager.
type WindowOption func(*WindowManager)

// WithCharBudget overrides DefaultCharBudget.
func WithCharBudget(budget int) WindowOption {
	return func(m *WindowManager) {
		if budget > 0 {
			m.budget = budget
		}
	}
}

// WithTokenCounter sets the counter used for the EstimatedTokens stat.
func WithTokenCounter(counter TokenCounter) WindowOption {
	return func(m *WindowManager) {
		if counter != nil {
			m.counter = counter
		}
	}
}

// NewWindowManager constructs a WindowManager with the default budget and the tiktoken counter.
func NewWindowManager(opts ...WindowOption) *WindowManager {
	m := &WindowManager{budget: DefaultCharBudget, counter: DefaultTokenCounter()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Truncate selects the history window for built. It never fails.
func (m *WindowManager) Truncate(_ context.Context, built prompt.BuildResult) (TruncationResult, error) {
	messages, stats := Window(built.System, built.History, m.budget, built.MinContextMessages)
	stats.EstimatedTokens = m.counter.CountMessages(messages)
	return TruncationResult{Messages: messages, Params: built.Params, Stats: stats}, nil
}

var _ Manager = (*WindowManager)(nil)
