package conversation

import (
	"context"
	"errors"
	"fmt"

	"discussion-agent/internal/capability"
	"discussion-agent/internal/contextmgr"
	"discussion-agent/internal/discussion"
	"discussion-agent/internal/prompt"
)

// Prompter composes prompt building and context windowing. It is stateless and also serves
// offline previews that have no store or model behind them.
type Prompter struct {
	Builder prompt.Builder
	Window  contextmgr.Manager
	// Capabilities is optional; without it no capability section is rendered.
	Capabilities *capability.Registry
}

// BuildPrompt renders agent's system prompt and history, then applies the window.
func (p Prompter) BuildPrompt(ctx context.Context, agent discussion.AgentProfile, agents []discussion.AgentProfile, hist []discussion.Message) (contextmgr.TruncationResult, error) {
	if p.Builder == nil || p.Window == nil {
		return contextmgr.TruncationResult{}, errors.New("conversation: prompter needs a builder and a window")
	}

	var descs []capability.Descriptor
	if p.Capabilities != nil {
		descs = p.Capabilities.Descriptors(agent.Role)
	}

	built, err := p.Builder.Build(ctx, prompt.BuildContext{
		Agent:        agent,
		Agents:       agents,
		History:      hist,
		Capabilities: descs,
	})
	if err != nil {
		return contextmgr.TruncationResult{}, fmt.Errorf("conversation: build prompt: %w", err)
	}

	result, err := p.Window.Truncate(ctx, built)
	if err != nil {
		return contextmgr.TruncationResult{}, fmt.Errorf("conversation: window prompt: %w", err)
	}
	return result, nil
}
