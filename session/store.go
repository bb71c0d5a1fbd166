// Package session persists signed-in sessions as single blobs keyed by id.
package session

import (
	"context"
	"errors"
	"sync"

	"socialsync/models"
)

// ErrNotFound is returned by Load when no session has the given id.
var ErrNotFound = errors.New("session: not found")

// Store reads and writes whole sessions. Concurrent Saves of the same id are
// last-writer-wins.
type Store interface {
	Load(ctx context.Context, id string) (*models.Session, error)
	Save(ctx context.Context, s *models.Session) error
	Delete(ctx context.Context, id string) error
}

// MemoryStore keeps sessions in process memory. It is used when no database
// is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]models.Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]models.Session)}
}

func (m *MemoryStore) Load(_ context.Context, id string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	s.Following = append([]string(nil), s.Following...)
	return &s, nil
}

func (m *MemoryStore) Save(_ context.Context, s *models.Session) error {
	if s == nil || s.ID == "" {
		return errors.New("session: missing id")
	}
	cp := *s
	cp.Following = append([]string(nil), s.Following...)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = cp
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}
