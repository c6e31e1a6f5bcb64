package prompt

import (
	"context"
	"errors"
	"strings"

	"discussion-agent/internal/discussion"
	"discussion-agent/internal/llm"
)

// DiscussionBuilderConfig defines the generation parameters attached to every prompt.
type DiscussionBuilderConfig struct {
	Model       string
	MaxTokens   int
	Temperature float32
}

// DiscussionBuilder renders an agent's system prompt and role-tagged history.
type DiscussionBuilder struct {
	cfg DiscussionBuilderConfig
}

// NewDiscussionBuilder creates a DiscussionBuilder using the supplied configuration.
func NewDiscussionBuilder(cfg DiscussionBuilderConfig) (*DiscussionBuilder, error) {
	if cfg.Model == "" {
		return nil, errors.New("prompt: model must be provided")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.7
	}
	return &DiscussionBuilder{cfg: cfg}, nil
}

// Build never fails on content: unknown authors and empty history degrade gracefully.
func (b *DiscussionBuilder) Build(_ context.Context, input BuildContext) (BuildResult, error) {
	return BuildResult{
		System:             SystemMessage(input),
		History:            FormatHistory(input.Agent, input.Agents, input.History),
		MinContextMessages: input.Agent.MinContextMessages(),
		Params: llm.GenerationParams{
			Model:       b.cfg.Model,
			MaxTokens:   b.cfg.MaxTokens,
			Temperature: b.cfg.Temperature,
		},
	}, nil
}

// SystemMessage joins the role prompt and, for agents allowed to act, the capability prompt.
func SystemMessage(input BuildContext) llm.ChatMessage {
	segments := []string{RolePrompt(input.Agent, input.Agents)}
	if input.Agent.CanUseActions {
		segments = append(segments, CapabilityPrompt(input.Capabilities, input.Agent.Role))
	}

	nonEmpty := segments[:0]
	for _, s := range segments {
		if s != "" {
			nonEmpty = append(nonEmpty, s)
		}
	}
	return llm.ChatMessage{Role: llm.RoleSystem, Content: strings.Join(nonEmpty, "\n\n")}
}

// FormatHistory converts every message into a role-tagged entry, preserving order.
func FormatHistory(self discussion.AgentProfile, agents []discussion.AgentProfile, history []discussion.Message) []llm.ChatMessage {
	names := make(map[string]string, len(agents))
	for _, agent := range agents {
		names[agent.ID] = agent.DisplayName()
	}

	out := make([]llm.ChatMessage, 0, len(history))
	for _, msg := range history {
		out = append(out, FormatMessage(self, names, msg))
	}
	return out
}

// FormatMessage renders one history message from the perspective of self.
func FormatMessage(self discussion.AgentProfile, names map[string]string, msg discussion.Message) llm.ChatMessage {
	if msg.IsActionResult() {
		return llm.ChatMessage{Role: llm.RoleSystem, Content: FormatActionResults(msg.ActionResults)}
	}
	if msg.AgentID == self.ID {
		return llm.ChatMessage{Role: llm.RoleUser, Content: "You said: " + msg.Content}
	}
	return llm.ChatMessage{Role: llm.RoleUser, Content: resolveName(names, msg.AgentID) + " said: " + msg.Content}
}

func resolveName(names map[string]string, id string) string {
	if name, ok := names[id]; ok {
		return name
	}
	if id == discussion.UserID {
		return "User"
	}
	return id
}

var _ Builder = (*DiscussionBuilder)(nil)
