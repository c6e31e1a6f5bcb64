package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// EchoProvider is an offline StreamingProvider that answers with a short acknowledgement of the
// latest message. It lets the service run end to end without a model endpoint.
type EchoProvider struct {
	name string
}

// NewEchoProvider creates an EchoProvider; name prefixes every reply.
func NewEchoProvider(name string) *EchoProvider {
	if name == "" {
		name = "echo"
	}
	return &EchoProvider{name: name}
}

// StreamChat replies word by word so callers exercise their streaming path.
func (p *EchoProvider) StreamChat(ctx context.Context, messages []ChatMessage, _ GenerationParams) (<-chan PartialChunk, error) {
	if len(messages) == 0 {
		return nil, errors.New("at least one message must be provided")
	}

	last := []rune(messages[len(messages)-1].Content)
	if len(last) > 120 {
		last = append(last[:120], []rune("...")...)
	}
	words := strings.Fields(fmt.Sprintf("[%s] noted: %s", p.name, string(last)))

	ch := make(chan PartialChunk)
	go func() {
		defer close(ch)
		for i, word := range words {
			if i > 0 {
				word = " " + word
			}
			select {
			case <-ctx.Done():
				return
			case ch <- PartialChunk{Delta: word}:
			}
		}
		select {
		case <-ctx.Done():
		case ch <- PartialChunk{Done: true}:
		}
	}()
	return ch, nil
}

var _ StreamingProvider = (*EchoProvider)(nil)
