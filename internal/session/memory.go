package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions in a map. Sessions are copied on the way in and
// out so callers never share state with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*GuestSession
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*GuestSession),
	}
}

func (s *MemoryStore) Create(ctx context.Context, data *GuestSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[data.ID]; exists {
		return ErrAlreadyExists
	}
	now := time.Now()
	data.CreatedAt = now
	data.UpdatedAt = now
	data.Version = 1

	s.sessions[data.ID] = data.Clone()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*GuestSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, exists := s.sessions[id]
	if !exists {
		return nil, nil
	}
	return data.Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, data *GuestSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.sessions[data.ID]
	if !exists {
		return ErrNotFound
	}
	if stored.Version != data.Version {
		return ErrVersionConflict
	}

	data.Version++
	data.UpdatedAt = time.Now()

	s.sessions[data.ID] = data.Clone()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = make(map[string]*GuestSession)
	return nil
}
