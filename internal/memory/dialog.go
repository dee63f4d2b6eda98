package memory

import (
	"fmt"
	"maps"
	"strings"

	"github.com/avvvet/tod-intent/internal/models"
)

// Dialog is the short-term memory of one conversation: the ordered turns and
// the latest value seen for every slot.
type Dialog struct {
	UserID   string
	Messages []models.Message
	Slots    map[string]any
}

// NewDialog creates an empty dialog for a user.
func NewDialog(userID string) *Dialog {
	return &Dialog{
		UserID: userID,
		Slots:  make(map[string]any),
	}
}

// AddMessage appends msg and merges its slots, last write wins.
func (d *Dialog) AddMessage(msg models.Message) {
	d.Messages = append(d.Messages, msg)
	if d.Slots == nil {
		d.Slots = make(map[string]any)
	}
	for slot, value := range msg.Slots {
		d.Slots[slot] = value
	}
}

// With returns a copy of the dialog with msg appended. The receiver is not
// changed.
func (d *Dialog) With(msg models.Message) *Dialog {
	next := &Dialog{
		UserID:   d.UserID,
		Messages: make([]models.Message, 0, len(d.Messages)+1),
		Slots:    maps.Clone(d.Slots),
	}
	next.Messages = append(next.Messages, d.Messages...)
	next.AddMessage(msg)
	return next
}

// History returns the turns in the order they were added.
func (d *Dialog) History() []models.Message {
	return d.Messages
}

// Summary renders every turn as "<role>: <content>", one per line.
func (d *Dialog) Summary() string {
	return summarize(d.Messages)
}

// LastUserTurn returns the most recent user message and its index, or -1.
func (d *Dialog) LastUserTurn() (models.Message, int) {
	for i := len(d.Messages) - 1; i >= 0; i-- {
		if d.Messages[i].Role == models.RoleUser {
			return d.Messages[i], i
		}
	}
	return models.Message{}, -1
}

// HistoryBeforeLastUserTurn returns the transcript up to and including the
// last bot turn that precedes the last user turn. Without such a bot turn it
// returns everything before the last user turn; without a user turn, "".
func (d *Dialog) HistoryBeforeLastUserTurn() string {
	_, last := d.LastUserTurn()
	if last <= 0 {
		return ""
	}
	for i := last - 1; i >= 0; i-- {
		if d.Messages[i].Role == models.RoleBot {
			return summarize(d.Messages[:i+1])
		}
	}
	return summarize(d.Messages[:last])
}

func (d *Dialog) String() string {
	slots := make([]string, 0, len(d.Slots))
	for name, value := range d.Slots {
		slots = append(slots, fmt.Sprintf("%s: %v", name, value))
	}
	return fmt.Sprintf("User ID: %s messages: %d slots: {%s}", d.UserID, len(d.Messages), strings.Join(slots, ","))
}

func summarize(messages []models.Message) string {
	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		lines = append(lines, fmt.Sprintf("%s: %s", msg.Role, msg.Content))
	}
	return strings.Join(lines, "\n")
}
