package memoryStorage

import (
	"context"
	"plugin-store/storage"
	"sync"
)

var _ storage.BlobStore = (*MemoryStore)(nil)

type blob struct {
	content     []byte
	contentType string
}

// MemoryStore keeps blobs in a map. Used for tests and local development.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]blob
}

func New() *MemoryStore {
	return &MemoryStore{
		blobs: make(map[string]blob),
	}
}

func (s *MemoryStore) Store(_ context.Context, name string, content []byte, contentType string) error {
	stored := make([]byte, len(content))
	copy(stored, content)

	s.mu.Lock()
	s.blobs[name] = blob{content: stored, contentType: contentType}
	s.mu.Unlock()

	return nil
}
