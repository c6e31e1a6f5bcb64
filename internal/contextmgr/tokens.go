package contextmgr

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"discussion-agent/internal/llm"
)

// perMessageOverhead approximates the role/framing tokens chat APIs add to every message.
const perMessageOverhead = 4

// TokenCounter estimates prompt size in model tokens.
type TokenCounter interface {
	CountMessages(messages []llm.ChatMessage) int
}

type tiktokenCounter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

var defaultCounter = &tiktokenCounter{}

// DefaultTokenCounter returns a shared cl100k_base counter. The encoding is loaded lazily
// on first use; if it cannot be loaded the counter falls back to EstimateTokens.
func DefaultTokenCounter() TokenCounter {
	return defaultCounter
}

func (c *tiktokenCounter) CountMessages(messages []llm.ChatMessage) int {
	c.once.Do(func() {
		if enc, err := tiktoken.GetEncoding("cl100k_base"); err == nil {
			c.enc = enc
		}
	})

	total := 0
	for _, msg := range messages {
		if c.enc != nil {
			total += len(c.enc.Encode(msg.Content, nil, nil))
		} else {
			total += EstimateTokens(msg.Content)
		}
		total += perMessageOverhead
	}
	return total
}

// HeuristicCounter counts with EstimateTokens only. Useful offline and in tests.
type HeuristicCounter struct{}

func (HeuristicCounter) CountMessages(messages []llm.ChatMessage) int {
	total := 0
	for _, msg := range messages {
		total += EstimateTokens(msg.Content) + perMessageOverhead
	}
	return total
}

// EstimateTokens returns max(runes/4, words), at least 1 for non-blank text.
func EstimateTokens(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	estimate := len([]rune(trimmed)) / 4
	if words := len(strings.Fields(trimmed)); estimate < words {
		estimate = words
	}
	return max(estimate, 1)
}
