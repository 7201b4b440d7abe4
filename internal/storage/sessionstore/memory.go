package sessionstore

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// memoryStore keeps snapshot blobs in process memory. Used in tests and in
// single-node deployments that opt out of remote persistence.
type memoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemory creates an in-memory snapshot store.
func NewMemory() Store {
	return &memoryStore{blobs: make(map[string][]byte)}
}

func (s *memoryStore) Exists(_ context.Context, session string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[session]
	return ok, nil
}

func (s *memoryStore) Save(_ context.Context, session, zipPath string) error {
	blob, err := os.ReadFile(zipPath)
	if err != nil {
		return fmt.Errorf("read snapshot file: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[session] = blob
	return nil
}

func (s *memoryStore) Restore(_ context.Context, session, zipPath string) error {
	s.mu.RLock()
	blob, ok := s.blobs[session]
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	return os.WriteFile(zipPath, blob, 0o600)
}

func (s *memoryStore) Delete(_ context.Context, session string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, session)
	return nil
}

func (s *memoryStore) Close() {}
