package memory

import (
	"context"
	"sync"
	"time"

	"github.com/avvvet/tod-intent/internal/models"
)

// LocalStore keeps sessions in process memory. Used when no Redis URL is
// configured and in tests.
type LocalStore struct {
	mu       sync.Mutex
	sessions map[string]*SessionData
}

func NewLocalStore() *LocalStore {
	return &LocalStore{sessions: make(map[string]*SessionData)}
}

func (s *LocalStore) LoadSession(_ context.Context, sessionID string) (*SessionData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return emptySession(sessionID), nil
	}
	cp := *session
	cp.Messages = append([]models.Message(nil), session.Messages...)
	return &cp, nil
}

func (s *LocalStore) SaveMessage(_ context.Context, sessionID, userID string, msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		session = emptySession(sessionID)
		s.sessions[sessionID] = session
	}
	appendMessage(session, userID, msg)
	return nil
}

func (s *LocalStore) GetMessages(ctx context.Context, sessionID string) ([]models.Message, error) {
	session, err := s.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return session.Messages, nil
}

func (s *LocalStore) ClearSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func (s *LocalStore) SessionExists(_ context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[sessionID]
	return ok, nil
}

func (s *LocalStore) UpdateActivity(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[sessionID]; ok {
		session.Metadata.LastActivity = time.Now()
	}
	return nil
}
