package artifact

import (
	"context"
	"errors"
	"sync"

	"github.com/menta2k/image-editor/pkg/types"
)

// MemoryStore keeps artifacts in a map.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[Handle]types.Artifact
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[Handle]types.Artifact)}
}

// Put stores a copy of a.
func (s *MemoryStore) Put(ctx context.Context, a types.Artifact) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if a.Empty() {
		return "", errors.New("cannot store empty artifact")
	}

	h := HandleFor(a)
	s.mu.Lock()
	s.items[h] = types.Artifact{Data: append([]byte(nil), a.Data...), Format: a.Format}
	s.mu.Unlock()
	return h, nil
}

// Get returns the artifact for h.
func (s *MemoryStore) Get(ctx context.Context, h Handle) (types.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return types.Artifact{}, err
	}

	s.mu.RLock()
	a, ok := s.items[h]
	s.mu.RUnlock()
	if !ok {
		return types.Artifact{}, ErrNotFound
	}
	return a, nil
}

// Delete removes h. Deleting an unknown handle is not an error.
func (s *MemoryStore) Delete(ctx context.Context, h Handle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.items, h)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored artifacts.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Close releases the stored data.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.items = make(map[Handle]types.Artifact)
	s.mu.Unlock()
	return nil
}
