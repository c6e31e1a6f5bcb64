package prompt

import (
	"context"

	"discussion-agent/internal/capability"
	"discussion-agent/internal/discussion"
	"discussion-agent/internal/llm"
)

// BuildContext captures the information needed to construct an LLM-ready prompt for one agent.
type BuildContext struct {
	Agent        discussion.AgentProfile
	Agents       []discussion.AgentProfile
	History      []discussion.Message
	Capabilities []capability.Descriptor
}

// BuildResult holds the system prompt and every history message formatted for the agent.
// Selecting which history entries fit the context window is left to contextmgr.
type BuildResult struct {
	System             llm.ChatMessage
	History            []llm.ChatMessage
	Params             llm.GenerationParams
	MinContextMessages int
}

// Builder assembles messages into the format required by the LLM provider.
type Builder interface {
	Build(ctx context.Context, input BuildContext) (BuildResult, error)
}
