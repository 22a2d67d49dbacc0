package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/geocheckin/geocheckin/internal/domain/session"
)

// SessionRepository implements session.Repository in process memory.
type SessionRepository struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]session.Session
}

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{sessions: make(map[uuid.UUID]session.Session)}
}

func (r *SessionRepository) Create(_ context.Context, s *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.SessionID]; ok {
		return fmt.Errorf("session %s already exists", s.SessionID)
	}
	r.sessions[s.SessionID] = *s
	return nil
}

func (r *SessionRepository) GetByID(_ context.Context, sessionID uuid.UUID) (*session.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r *SessionRepository) Deactivate(_ context.Context, sessionID uuid.UUID) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	s.IsActive = false
	r.sessions[sessionID] = s
	return &s, nil
}
