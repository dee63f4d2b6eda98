package memory

import (
	"context"
	"time"

	"github.com/avvvet/tod-intent/internal/models"
)

// SessionData represents all data for a conversation session
type SessionData struct {
	SessionID string           `json:"session_id"`
	UserID    string           `json:"user_id"`
	Messages  []models.Message `json:"messages"`
	Metadata  Metadata         `json:"metadata"`
}

// Dialog rebuilds the short-term memory from the stored turns.
func (s *SessionData) Dialog() *Dialog {
	d := NewDialog(s.UserID)
	for _, msg := range s.Messages {
		d.AddMessage(msg)
	}
	return d
}

// Metadata contains session information
type Metadata struct {
	StartedAt    time.Time `json:"started_at"`
	LastActivity time.Time `json:"last_activity"`
	MessageCount int       `json:"message_count"`
}

// Store defines the interface for conversation storage
// This allows us to swap between Redis, in-memory, etc.
type Store interface {
	// LoadSession loads a session from storage
	LoadSession(ctx context.Context, sessionID string) (*SessionData, error)

	// SaveMessage appends a message to a session
	SaveMessage(ctx context.Context, sessionID, userID string, msg models.Message) error

	// GetMessages retrieves all messages for a session
	GetMessages(ctx context.Context, sessionID string) ([]models.Message, error)

	// ClearSession removes a session from storage
	ClearSession(ctx context.Context, sessionID string) error

	// SessionExists checks if a session exists
	SessionExists(ctx context.Context, sessionID string) (bool, error)

	// UpdateActivity updates the last activity timestamp
	UpdateActivity(ctx context.Context, sessionID string) error
}

func emptySession(sessionID string) *SessionData {
	now := time.Now()
	return &SessionData{
		SessionID: sessionID,
		Messages:  []models.Message{},
		Metadata: Metadata{
			StartedAt:    now,
			LastActivity: now,
		},
	}
}

// appendMessage applies one message to a loaded session.
func appendMessage(session *SessionData, userID string, msg models.Message) {
	if session.UserID == "" {
		session.UserID = userID
	}
	session.Messages = append(session.Messages, msg)
	session.Metadata.LastActivity = time.Now()
	session.Metadata.MessageCount = len(session.Messages)
	if session.Metadata.MessageCount == 1 {
		session.Metadata.StartedAt = msg.Timestamp
	}
}
