package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"discussion-agent/internal/discussion"
)

type countingStore struct {
	Store
	reads int
}

func (s *countingStore) GetHistory(ctx context.Context, key ConversationKey, opts ReadOptions) (MessageBatch, error) {
	s.reads++
	return s.Store.GetHistory(ctx, key, opts)
}

func TestCachedStoreBehavesLikeBackingStore(t *testing.T) {
	backing, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	cached, err := NewCachedStore(backing, 4)
	require.NoError(t, err)

	exerciseStore(t, cached)
}

func TestCachedStoreServesRepeatReadsAndInvalidates(t *testing.T) {
	backing, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	counting := &countingStore{Store: backing}
	cached, err := NewCachedStore(counting, 0)
	require.NoError(t, err)

	ctx := context.Background()
	key := ConversationKey{TenantID: "t", DiscussionID: "d"}
	require.NoError(t, cached.AppendMessages(ctx, key, MessageBatch{discussion.NewMessage(discussion.UserID, "one", time.Now())}))

	for i := 0; i < 3; i++ {
		got, err := cached.GetHistory(ctx, key, ReadOptions{})
		require.NoError(t, err)
		require.Len(t, got, 1)
	}
	assert.Equal(t, 1, counting.reads)
	assert.Equal(t, 1, cached.Len())

	got, _ := cached.GetHistory(ctx, key, ReadOptions{})
	got[0].Content = "mutated"
	again, _ := cached.GetHistory(ctx, key, ReadOptions{})
	assert.Equal(t, "one", again[0].Content, "callers must not alias the cached batch")

	require.NoError(t, cached.AppendMessages(ctx, key, MessageBatch{discussion.NewMessage("eco", "two", time.Now())}))
	assert.Equal(t, 0, cached.Len())

	got, err = cached.GetHistory(ctx, key, ReadOptions{LimitMessages: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "two", got[0].Content)
	assert.Equal(t, 2, counting.reads)
}
