// Package threads manages conversation threads on top of the store and keeps
// track of which thread a caller is currently working in.
package threads

import (
	"errors"
	"sync"

	"github.com/thisisharsh7/seeva-ai-assistant/internal/db"
	"github.com/thisisharsh7/seeva-ai-assistant/internal/models"
	"go.uber.org/zap"
)

// DefaultThreadName is used when EnsureThread has to create a thread.
const DefaultThreadName = "New Conversation"

// Session holds the current thread pointer for one caller. It is owned by
// whoever creates it (the HTTP server or a CLI run) and is not persisted.
type Session struct {
	mu      sync.Mutex
	current string
}

func NewSession() *Session {
	return &Session{}
}

// Current returns the current thread ID and whether one is set.
func (s *Session) Current() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.current != ""
}

func (s *Session) set(id string) {
	s.mu.Lock()
	s.current = id
	s.mu.Unlock()
}

// clearIf resets the pointer only when it still refers to id.
func (s *Session) clearIf(id string) {
	s.mu.Lock()
	if s.current == id {
		s.current = ""
	}
	s.mu.Unlock()
}

type Manager struct {
	db     *db.Database
	logger *zap.Logger
}

func NewManager(database *db.Database, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{db: database, logger: logger}
}

// CreateThread creates a thread and makes it the session's current thread.
func (m *Manager) CreateThread(s *Session, name string) (*models.Thread, error) {
	thread, err := m.db.CreateThread(name)
	if err != nil {
		return nil, err
	}
	s.set(thread.ID)
	m.logger.Debug("created thread", zap.String("thread_id", thread.ID), zap.String("name", name))
	return thread, nil
}

func (m *Manager) ListThreads() ([]models.Thread, error) {
	return m.db.ListThreads()
}

func (m *Manager) GetThread(id string) (*models.Thread, error) {
	return m.db.GetThread(id)
}

// SwitchThread points the session at an existing thread.
func (m *Manager) SwitchThread(s *Session, id string) error {
	if _, err := m.db.GetThread(id); err != nil {
		return err
	}
	s.set(id)
	return nil
}

// DeleteThread deletes a thread and clears the session pointer if it
// referenced that thread.
func (m *Manager) DeleteThread(s *Session, id string) error {
	if err := m.db.DeleteThread(id); err != nil {
		return err
	}
	s.clearIf(id)
	m.logger.Debug("deleted thread", zap.String("thread_id", id))
	return nil
}

func (m *Manager) UpdateThreadName(id, name string) error {
	return m.db.UpdateThreadName(id, name)
}

// EnsureThread returns the session's current thread if it still exists,
// otherwise the most recently updated thread, otherwise a new one.
func (m *Manager) EnsureThread(s *Session) (string, error) {
	if id, ok := s.Current(); ok {
		_, err := m.db.GetThread(id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, db.ErrThreadNotFound) {
			return "", err
		}
		s.clearIf(id)
	}

	threads, err := m.db.ListThreads()
	if err != nil {
		return "", err
	}
	if len(threads) > 0 {
		s.set(threads[0].ID)
		return threads[0].ID, nil
	}

	thread, err := m.CreateThread(s, DefaultThreadName)
	if err != nil {
		return "", err
	}
	return thread.ID, nil
}
