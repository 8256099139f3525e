package chat

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/zhouzirui/astro-tavern/backend/internal/model/chat"
)

// ErrSessionNotFound is returned by lookups that require an existing session.
var ErrSessionNotFound = errors.New("session not found")

// Store owns session lifecycle. Get reports absence through ok rather than an error.
type Store interface {
	Create() string
	Get(ctx context.Context, sessionID string) (chat.Session, bool, error)
	Put(ctx context.Context, sessionID string, session chat.Session) error
	Delete(ctx context.Context, sessionID string) error
	All(ctx context.Context) ([]chat.Session, error)
}

// sessionCounter is implemented by stores that can count without loading sessions.
type sessionCounter interface {
	Count(ctx context.Context) (int, error)
}

func countSessions(ctx context.Context, store Store) (int, error) {
	if counter, ok := store.(sessionCounter); ok {
		return counter.Count(ctx)
	}
	sessions, err := store.All(ctx)
	if err != nil {
		return 0, err
	}
	return len(sessions), nil
}

// MemoryStore keeps sessions in process memory; they are lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]chat.Session
}

// NewMemoryStore bootstraps an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]chat.Session),
	}
}

// Create allocates a fresh session identifier without storing anything.
func (s *MemoryStore) Create() string {
	return uuid.NewString()
}

// Get retrieves a copy of the session.
func (s *MemoryStore) Get(_ context.Context, sessionID string) (chat.Session, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, false, nil
	}
	return session.Clone(), true, nil
}

// Put inserts or replaces the session under sessionID.
func (s *MemoryStore) Put(_ context.Context, sessionID string, session chat.Session) error {
	session = session.Clone()
	session.ID = sessionID

	s.mu.Lock()
	s.sessions[sessionID] = session
	s.mu.Unlock()
	return nil
}

// Delete removes the session; deleting an unknown id is a no-op.
func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	return nil
}

// All returns copies of every stored session.
func (s *MemoryStore) All(_ context.Context) ([]chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]chat.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session.Clone())
	}
	return sessions, nil
}

// Count reports how many sessions are stored.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions), nil
}
