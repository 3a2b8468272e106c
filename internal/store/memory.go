package store

import (
	"context"
	"sync"

	"github.com/support-eye/relay/internal/domain"
	"github.com/support-eye/relay/internal/errs"
)

// Memory is an in-process SessionStore for tests and local development.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
}

func NewMemory() *Memory {
	return &Memory{sessions: make(map[string]*domain.Session)}
}

func (m *Memory) Create(_ context.Context, sess *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sess.Token]; ok {
		return errs.ErrDuplicateToken
	}
	m.sessions[sess.Token] = sess.Clone()
	return nil
}

func (m *Memory) Get(_ context.Context, token string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[token]
	if !ok {
		return nil, errs.ErrUnknownSession
	}
	return sess.Clone(), nil
}

func (m *Memory) UpdateStatus(_ context.Context, token string, status domain.SessionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[token]
	if !ok {
		return errs.ErrUnknownSession
	}
	sess.Status = status
	return nil
}
