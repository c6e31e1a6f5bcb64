// Package discussion holds the domain model shared by the prompt, history and
// conversation packages: messages, agent profiles and the roster.
package discussion

import (
	"time"

	"github.com/google/uuid"
)

// UserID is the author sentinel for messages written by the human user.
const UserID = "user"

// DefaultContextMessages is the minimum number of history messages kept in a prompt
// when an agent does not configure its own floor.
const DefaultContextMessages = 10

// MessageType distinguishes plain chat turns from capability results.
type MessageType string

const (
	MessageNormal       MessageType = "normal"
	MessageActionResult MessageType = "action_result"
)

// AgentRole is the role an agent plays in a discussion.
type AgentRole string

const (
	RoleModerator   AgentRole = "moderator"
	RoleParticipant AgentRole = "participant"
)

// ActionStatus reports the outcome of one capability execution.
type ActionStatus string

const (
	ActionSuccess ActionStatus = "success"
	ActionError   ActionStatus = "error"
)

// ActionResult is the structured payload carried by action_result messages.
type ActionResult struct {
	Capability string         `json:"capability"`
	Params     map[string]any `json:"params,omitempty"`
	Status     ActionStatus   `json:"status"`
	Output     string         `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Message is one turn in a discussion.
type Message struct {
	ID            string         `json:"id"`
	AgentID       string         `json:"agent_id"`
	Content       string         `json:"content"`
	Type          MessageType    `json:"type"`
	ActionResults []ActionResult `json:"action_results,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// NewMessage stamps a fresh normal message.
func NewMessage(agentID, content string, now time.Time) Message {
	return Message{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		Content:   content,
		Type:      MessageNormal,
		CreatedAt: now.UTC(),
	}
}

// NewActionResultMessage stamps a message carrying capability results.
func NewActionResultMessage(agentID string, results []ActionResult, now time.Time) Message {
	return Message{
		ID:            uuid.NewString(),
		AgentID:       agentID,
		Type:          MessageActionResult,
		ActionResults: results,
		CreatedAt:     now.UTC(),
	}
}

// IsActionResult reports whether the message carries capability results.
func (m Message) IsActionResult() bool {
	return m.Type == MessageActionResult
}

// ConversationSettings tunes how an agent participates.
type ConversationSettings struct {
	ContextMessages int           `yaml:"context_messages" json:"context_messages"`
	ResponseDelay   time.Duration `yaml:"response_delay" json:"response_delay"`
}

// AgentProfile is the static configuration of a responding agent.
type AgentProfile struct {
	ID            string               `yaml:"id" json:"id"`
	Name          string               `yaml:"name" json:"name"`
	Role          AgentRole            `yaml:"role" json:"role"`
	Personality   string               `yaml:"personality" json:"personality"`
	Expertise     []string             `yaml:"expertise" json:"expertise,omitempty"`
	Bias          string               `yaml:"bias" json:"bias,omitempty"`
	ResponseStyle string               `yaml:"response_style" json:"response_style,omitempty"`
	CanUseActions bool                 `yaml:"can_use_actions" json:"can_use_actions"`
	Conversation  ConversationSettings `yaml:"conversation" json:"conversation"`
}

// MinContextMessages returns the configured floor, falling back to DefaultContextMessages.
func (a AgentProfile) MinContextMessages() int {
	if a.Conversation.ContextMessages <= 0 {
		return DefaultContextMessages
	}
	return a.Conversation.ContextMessages
}

// DisplayName returns the agent's name, or its ID when no name is configured.
func (a AgentProfile) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return a.ID
}

// IsModerator reports whether the agent moderates discussions.
func (a AgentProfile) IsModerator() bool {
	return a.Role == RoleModerator
}
