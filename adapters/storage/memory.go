package storage

import (
	"context"
	"sync"

	"github.com/ao-agents-hackathon-band-of-the-hawk/voicecore/domain/repositories"
)

// MemoryStore is an in-memory blob store used in tests and local
// development.
type MemoryStore struct {
	maxBytes int
	mu       sync.Mutex
	data     []byte
}

// NewMemoryStore creates a memory store bounded to maxBytes; zero
// means unbounded.
func NewMemoryStore(maxBytes int) *MemoryStore {
	return &MemoryStore{maxBytes: maxBytes}
}

// Load implements repositories.BlobStore.
func (s *MemoryStore) Load(_ context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return nil, nil
	}
	out := make([]byte, len(s.data))
	copy(out, s.data)
	return out, nil
}

// Save implements repositories.BlobStore.
func (s *MemoryStore) Save(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.maxBytes > 0 && len(data) > s.maxBytes {
		return repositories.ErrQuotaExceeded
	}
	s.data = make([]byte, len(data))
	copy(s.data, data)
	return nil
}
