package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileStore persists discussion history to JSON files on disk, one directory per tenant and
// one file per discussion.
type FileStore struct {
	baseDir string
	mu      sync.Mutex
}

// NewFileStore creates a file-backed history store rooted at the provided directory.
func NewFileStore(baseDir string) (*FileStore, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, errors.New("history: base directory must be provided")
	}

	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("history: create directory: %w", err)
	}

	return &FileStore{baseDir: baseDir}, nil
}

// GetHistory returns the stored discussion history, optionally respecting the read options.
func (s *FileStore) GetHistory(_ context.Context, key ConversationKey, opts ReadOptions) (MessageBatch, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	messages, err := s.readMessages(key)
	if err != nil {
		return nil, err
	}
	return applyLimit(messages, opts), nil
}

// AppendMessages appends the provided messages to the persisted history.
func (s *FileStore) AppendMessages(_ context.Context, key ConversationKey, messages MessageBatch) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.readMessages(key)
	if err != nil {
		return err
	}

	combined := append(existing, messages...)
	return s.writeMessages(key, combined)
}

// Clear removes the history file for the key.
func (s *FileStore) Clear(_ context.Context, key ConversationKey) error {
	if err := key.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.historyPath(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("history: remove: %w", err)
	}
	return nil
}

func (s *FileStore) readMessages(key ConversationKey) (MessageBatch, error) {
	path := s.historyPath(key)
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return MessageBatch{}, nil
		}
		return nil, fmt.Errorf("history: open file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	var messages MessageBatch
	if err := decoder.Decode(&messages); err != nil {
		if errors.Is(err, io.EOF) {
			return MessageBatch{}, nil
		}
		return nil, fmt.Errorf("history: decode: %w", err)
	}

	return messages, nil
}

func (s *FileStore) writeMessages(key ConversationKey, messages MessageBatch) error {
	path := s.historyPath(key)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("history: create tenant directory: %w", err)
	}
	// temp names end in .tmp so they never collide with an escaped discussion file
	tmp, err := os.CreateTemp(dir, ".history-*.tmp")
	if err != nil {
		return fmt.Errorf("history: create temp file: %w", err)
	}

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(messages); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("history: encode: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("history: close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("history: persist: %w", err)
	}

	return nil
}

// historyPath lays files out as <base>/<tenant>/<discussion>.json. Both segments are
// escaped so distinct keys never share a file.
func (s *FileStore) historyPath(key ConversationKey) string {
	return filepath.Join(s.baseDir, escapeSegment(key.TenantID), escapeSegment(key.DiscussionID)+".json")
}

// escapeSegment is url.PathEscape with the dot-only names "." and ".." escaped as well,
// so the result is always a single reversible path component.
func escapeSegment(value string) string {
	escaped := url.PathEscape(value)
	if escaped == "." || escaped == ".." {
		return strings.ReplaceAll(escaped, ".", "%2E")
	}
	return escaped
}

var _ Store = (*FileStore)(nil)
