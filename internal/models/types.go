package models

import "time"

// Message roles
const (
	RoleUser   = "user"
	RoleBot    = "bot"
	RoleSystem = "system"
)

// Message is one conversation turn. It is created once and appended to a
// dialog; slot values are keyed by canonical slot name.
type Message struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Intent    string         `json:"intent,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Slots     map[string]any `json:"slots,omitempty"`
}

// NewMessage builds a message stamped with the current time.
func NewMessage(role, content string) Message {
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
		Slots:     map[string]any{},
	}
}

// NATS request from backend
type TurnRequest struct {
	SessionID   string `json:"session_id"`
	UserID      string `json:"user_id"`
	UserMessage string `json:"user_message"`
}

// NATS response to backend
type TurnResponse struct {
	SessionID    string         `json:"session_id"`
	Intent       *string        `json:"intent"`
	Intents      []string       `json:"intents"`
	DialogActs   []string       `json:"dialog_acts"`
	Status       string         `json:"status"` // "NEEDS_INFO", "DONE", "BLOCKED", "ERROR"
	Parameters   map[string]any `json:"parameters"`
	Missing      []string       `json:"missing,omitempty"`
	UserMessage  string         `json:"user_message"`
	ErrorCode    *string        `json:"error_code,omitempty"`
	ErrorMessage *string        `json:"error_message,omitempty"`
}

// Status constants
const (
	StatusNeedsInfo = "NEEDS_INFO"
	StatusDone      = "DONE"
	StatusBlocked   = "BLOCKED"
	StatusError     = "ERROR"
)

// Error codes
const (
	ErrorLLMTimeout     = "LLM_API_TIMEOUT"
	ErrorLLMFailed      = "LLM_API_FAILED"
	ErrorParseError     = "PARSE_ERROR"
	ErrorUnknownIntent  = "UNKNOWN_INTENT"
	ErrorIntentFailed   = "INTENT_FAILED"
	ErrorMemoryFailed   = "MEMORY_FAILED"
	ErrorInvalidRequest = "INVALID_REQUEST"
)
