package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"supermarket/internal/models"

	"github.com/google/uuid"
)

// SessionStore keeps login sessions keyed by opaque token; redisclient.Client satisfies it
type SessionStore interface {
	CreateSession(ctx context.Context, session *models.Session) (string, error)
	GetSession(ctx context.Context, token string) (*models.Session, error)
	DeleteSession(ctx context.Context, token string) error
}

type memorySession struct {
	session   models.Session
	expiresAt time.Time
}

// MemorySessionStore keeps sessions in process memory for single-instance installs
type MemorySessionStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]memorySession
}

// NewMemorySessionStore creates an in-process session store
func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	return &MemorySessionStore{ttl: ttl, sessions: make(map[string]memorySession)}
}

func (m *MemorySessionStore) CreateSession(_ context.Context, session *models.Session) (string, error) {
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}

	token := uuid.New().String()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[token] = memorySession{session: *session, expiresAt: now.Add(m.ttl)}
	return token, nil
}

func (m *MemorySessionStore) GetSession(_ context.Context, token string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[token]
	if !ok || time.Now().After(s.expiresAt) {
		delete(m.sessions, token)
		return nil, fmt.Errorf("%w: session expired or unknown", models.ErrUnauthorized)
	}
	session := s.session
	return &session, nil
}

func (m *MemorySessionStore) DeleteSession(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
	return nil
}

// RevokeUserSessions drops every session of a user
func (m *MemorySessionStore) RevokeUserSessions(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for token, s := range m.sessions {
		if s.session.UserID == userID {
			delete(m.sessions, token)
		}
	}
	return nil
}
