package classifier

import (
	"fmt"
	"strings"

	"github.com/avvvet/tod-intent/internal/catalog"
)

// Result is what the classifier recognized in one user turn.
type Result struct {
	Intents     []catalog.Intent
	DialogActs  []catalog.DialogAct
	Slots       map[string]any
	ErrorReason string
}

// NewResult returns an empty result ready to be filled by the parser.
func NewResult() *Result {
	return &Result{
		Intents:    []catalog.Intent{},
		DialogActs: []catalog.DialogAct{},
		Slots:      make(map[string]any),
	}
}

// IsSuccessful reports whether an intent list is present. It does not look at
// ErrorReason: a result carrying only an error reason still reads as successful.
func (r *Result) IsSuccessful() bool {
	return r.Intents != nil
}

// SetError records why classification failed.
func (r *Result) SetError(reason string) *Result {
	r.ErrorReason = reason
	return r
}

// IntentNames returns the recognized intent names in order, duplicates included.
func (r *Result) IntentNames() []string {
	names := make([]string, 0, len(r.Intents))
	for _, in := range r.Intents {
		names = append(names, in.Name)
	}
	return names
}

func (r *Result) DialogActNames() []string {
	names := make([]string, 0, len(r.DialogActs))
	for _, act := range r.DialogActs {
		names = append(names, act.Name)
	}
	return names
}

func (r *Result) String() string {
	slots := make([]string, 0, len(r.Slots))
	for name, value := range r.Slots {
		slots = append(slots, fmt.Sprintf("%s: %v", name, value))
	}
	return fmt.Sprintf("Intents: %v, Dialog Acts: %v, Slots: {%s}, Error: %s",
		r.IntentNames(), r.DialogActNames(), strings.Join(slots, ", "), r.ErrorReason)
}
