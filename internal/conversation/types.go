package conversation

import (
	"context"
	"errors"

	"discussion-agent/internal/discussion"
	"discussion-agent/internal/history"
)

var (
	// ErrInvalidRequest wraps request validation failures.
	ErrInvalidRequest = errors.New("conversation: invalid request")
	// ErrUnknownAgent is returned when a request names an agent outside the roster.
	ErrUnknownAgent = errors.New("conversation: unknown agent")
)

// TurnRequest is a normalized user post into a discussion.
type TurnRequest struct {
	Key     history.ConversationKey
	Content string
	// AgentIDs restricts the discussion to a subset of the roster. Empty means every agent.
	AgentIDs []string
}

// ChatChunk is one streaming event returned to the caller. Text chunks carry a delta of an
// agent reply; a Done chunk carries the completed, persisted message.
type ChatChunk struct {
	AgentID   string
	MessageID string
	Text      string
	Done      bool
	Message   *discussion.Message
}

// Stream abstracts the streaming response writer.
type Stream interface {
	SendChunk(ctx context.Context, chunk ChatChunk) error
}

// Manager orchestrates one discussion turn.
type Manager interface {
	HandleMessage(ctx context.Context, req TurnRequest, stream Stream) error
}
