package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/avvvet/tod-intent/internal/catalog"
	"github.com/avvvet/tod-intent/internal/prompts"
)

// ErrMalformedOutput is returned when a line of the model output is not a JSON object.
var ErrMalformedOutput = errors.New("malformed classifier output")

// Parse maps JSON-Lines model output onto the catalog. Every non-blank line
// must be a JSON object; one bad line fails the whole response. Within a line,
// a key containing "intent" names an intent, a key containing "dialog_act"
// names a dialog act, and any other key holds a map of slot values. Names not
// in the catalog are dropped.
func Parse(content string, cat *catalog.Catalog) (*Result, error) {
	result := NewResult()

	lines := strings.Split(prompts.StripCodeFence(content), "\n")
	n := 0
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		n++
		err := decodeObject([]byte(line), func(key string, value json.RawMessage) error {
			switch {
			case strings.Contains(key, "intent"):
				if name, ok := stringValue(value); ok {
					if in, found := cat.IntentByName(name); found {
						result.Intents = append(result.Intents, in)
					}
				}
			case strings.Contains(key, "dialog_act"):
				if name, ok := stringValue(value); ok {
					if act, found := cat.DialogActByName(name); found {
						result.DialogActs = append(result.DialogActs, act)
					}
				}
			default:
				parseSlots(value, cat, result.Slots)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedOutput, n, err)
		}
	}
	return result, nil
}

// parseSlots keeps the recognized slots of a {slot: value} object. Values that
// are not objects carry no slots and are skipped.
func parseSlots(raw json.RawMessage, cat *catalog.Catalog, into map[string]any) {
	_ = decodeObject(raw, func(key string, value json.RawMessage) error {
		slot, ok := cat.SlotByName(key)
		if !ok {
			return nil
		}
		var v any
		if err := json.Unmarshal(value, &v); err != nil {
			return err
		}
		into[slot.Name] = v
		return nil
	})
}

// decodeObject walks the members of a JSON object in document order.
func decodeObject(data []byte, member func(key string, value json.RawMessage) error) error {
	dec := json.NewDecoder(strings.NewReader(string(data)))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected JSON object, got %v", tok)
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return err
		}
		if err := member(key, value); err != nil {
			return err
		}
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("unexpected data after JSON object")
	}
	return nil
}

func stringValue(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}
