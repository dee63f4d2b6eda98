package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/avvvet/tod-intent/internal/models"
	"go.uber.org/zap"
)

// Manager keeps the live Dialog of every session and writes each turn
// through to the Store.
type Manager struct {
	store    Store
	mu       sync.Mutex
	sessions map[string]*Dialog // In-memory cache
	logger   *zap.Logger
}

// NewManager creates a new memory manager
func NewManager(store Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:    store,
		sessions: make(map[string]*Dialog),
		logger:   logger,
	}
}

// GetOrCreateSession returns the cached dialog for a session, loading its
// history from the store on first use.
func (m *Manager) GetOrCreateSession(ctx context.Context, sessionID, userID string) (*Dialog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d, exists := m.sessions[sessionID]; exists {
		return d, nil
	}

	sessionData, err := m.store.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	d := sessionData.Dialog()
	if d.UserID == "" {
		d.UserID = userID
	}
	m.sessions[sessionID] = d

	m.logger.Info("📚 Loaded session",
		zap.String("session_id", sessionID),
		zap.Int("messages", len(sessionData.Messages)))

	return d, nil
}

// AddMessage appends a turn to the session dialog and persists it.
func (m *Manager) AddMessage(ctx context.Context, sessionID, userID string, msg models.Message) error {
	d, err := m.GetOrCreateSession(ctx, sessionID, userID)
	if err != nil {
		return err
	}

	if err := m.store.SaveMessage(ctx, sessionID, userID, msg); err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}

	m.mu.Lock()
	d.AddMessage(msg)
	m.mu.Unlock()

	m.logger.Debug("💾 Saved message",
		zap.String("session_id", sessionID),
		zap.String("role", msg.Role))

	return nil
}

// GetMessages returns raw messages from the store
func (m *Manager) GetMessages(ctx context.Context, sessionID string) ([]models.Message, error) {
	return m.store.GetMessages(ctx, sessionID)
}

// ClearSession clears a session from both cache and store
func (m *Manager) ClearSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	if err := m.store.ClearSession(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}

	m.logger.Info("🗑️ Cleared session", zap.String("session_id", sessionID))

	return nil
}

// Evict drops the cached dialog of a session. The stored copy is kept and
// reloaded on the next turn.
func (m *Manager) Evict(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}

// SessionExists checks if a session exists in the store
func (m *Manager) SessionExists(ctx context.Context, sessionID string) (bool, error) {
	return m.store.SessionExists(ctx, sessionID)
}

// UpdateActivity updates the last activity timestamp in the store
func (m *Manager) UpdateActivity(ctx context.Context, sessionID string) error {
	return m.store.UpdateActivity(ctx, sessionID)
}

// GetActiveSessionCount returns the number of cached sessions
func (m *Manager) GetActiveSessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Ping checks the store when it supports health checks.
func (m *Manager) Ping(ctx context.Context) error {
	if p, ok := m.store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close closes the underlying store
func (m *Manager) Close() error {
	if closer, ok := m.store.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
