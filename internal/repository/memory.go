package repository

import (
	"context"
	"sync"

	"github.com/openclaw/imposter-server-go/internal/model"
)

type memoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session
}

// NewMemoryStore returns a process-local store. Sessions are lost on restart.
func NewMemoryStore() SessionStore {
	return &memoryStore{sessions: make(map[string]*model.Session)}
}

func (m *memoryStore) Get(ctx context.Context, id string) (*model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return s.Clone(), nil
}

func (m *memoryStore) Insert(ctx context.Context, s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.ID]; ok {
		return ErrAlreadyExists
	}
	s.Version = 1
	stored := s.Clone()
	orderByRoster(stored)
	m.sessions[s.ID] = stored
	return nil
}

func (m *memoryStore) Update(ctx context.Context, s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.sessions[s.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != s.Version {
		return ErrVersionConflict
	}

	stored := s.Clone()
	stored.Version = s.Version + 1
	stored.Participants = stored.Participants[:0]
	for _, p := range s.Participants {
		if s.InRoster(p.PlayerID) {
			stored.Participants = append(stored.Participants, p)
		}
	}
	orderByRoster(stored)
	m.sessions[s.ID] = stored
	s.Version = stored.Version
	return nil
}

func (m *memoryStore) Delete(ctx context.Context, id string, version int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if current.Version != version {
		return ErrVersionConflict
	}
	delete(m.sessions, id)
	return nil
}

func (m *memoryStore) List(ctx context.Context, filter ListFilter) ([]model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if !filter.matches(s) {
			continue
		}
		c := s.Clone()
		c.Participants = nil
		out = append(out, *c)
	}
	sortNewestFirst(out)
	return out, nil
}

func (m *memoryStore) Ping(ctx context.Context) error {
	return nil
}
