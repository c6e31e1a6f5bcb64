package history

import (
	"context"
	"errors"
	"strings"

	"discussion-agent/internal/discussion"
)

// ConversationKey uniquely identifies a discussion within a tenant.
type ConversationKey struct {
	TenantID     string
	DiscussionID string
}

// Validate reports whether both parts of the key are present.
func (k ConversationKey) Validate() error {
	if strings.TrimSpace(k.TenantID) == "" {
		return errors.New("history: tenant id must be provided")
	}
	if strings.TrimSpace(k.DiscussionID) == "" {
		return errors.New("history: discussion id must be provided")
	}
	return nil
}

// String renders the key for logs and cache indexes.
func (k ConversationKey) String() string {
	return k.TenantID + "/" + k.DiscussionID
}

// MessageBatch is an ordered run of discussion messages.
type MessageBatch []discussion.Message

// ReadOptions configures GetHistory calls.
type ReadOptions struct {
	// LimitMessages keeps only the most recent messages when > 0.
	LimitMessages int
}

// Store defines the abstract interface for discussion history persistence.
type Store interface {
	GetHistory(ctx context.Context, key ConversationKey, opts ReadOptions) (MessageBatch, error)
	AppendMessages(ctx context.Context, key ConversationKey, messages MessageBatch) error
	Clear(ctx context.Context, key ConversationKey) error
}

func applyLimit(messages MessageBatch, opts ReadOptions) MessageBatch {
	if opts.LimitMessages > 0 && len(messages) > opts.LimitMessages {
		return append(MessageBatch{}, messages[len(messages)-opts.LimitMessages:]...)
	}
	return append(MessageBatch{}, messages...)
}
