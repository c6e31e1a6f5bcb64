package history

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultCacheSize = 256

// CachedStore keeps recently used discussions in memory in front of another Store.
// Appends and clears go to the backing store first and then invalidate the entry.
type CachedStore struct {
	next  Store
	cache *lru.Cache[ConversationKey, MessageBatch]
	// mu orders cache fills against writes so a slow miss cannot re-insert stale history.
	mu sync.Mutex
}

// NewCachedStore wraps next with an LRU of size discussions (defaults to 256).
func NewCachedStore(next Store, size int) (*CachedStore, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New[ConversationKey, MessageBatch](size)
	if err != nil {
		return nil, fmt.Errorf("history: create cache: %w", err)
	}
	return &CachedStore{next: next, cache: cache}, nil
}

// GetHistory serves from the cache when possible. The full history is cached; limits are
// applied on the way out so callers never share the cached slice.
func (s *CachedStore) GetHistory(ctx context.Context, key ConversationKey, opts ReadOptions) (MessageBatch, error) {
	if cached, ok := s.cache.Get(key); ok {
		return applyLimit(cached, opts), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cached, ok := s.cache.Get(key); ok {
		return applyLimit(cached, opts), nil
	}

	full, err := s.next.GetHistory(ctx, key, ReadOptions{})
	if err != nil {
		return nil, err
	}
	s.cache.Add(key, full)
	return applyLimit(full, opts), nil
}

func (s *CachedStore) AppendMessages(ctx context.Context, key ConversationKey, messages MessageBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.cache.Remove(key)
	return s.next.AppendMessages(ctx, key, messages)
}

func (s *CachedStore) Clear(ctx context.Context, key ConversationKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.cache.Remove(key)
	return s.next.Clear(ctx, key)
}

// Len reports the number of cached discussions.
func (s *CachedStore) Len() int {
	return s.cache.Len()
}

var _ Store = (*CachedStore)(nil)
