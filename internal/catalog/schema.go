package catalog

import (
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// JSONSchemaFor maps a slot type tag (str, int, float, bool, datetime,
// list[...]) to a JSON-Schema fragment.
func JSONSchemaFor(s Slot) map[string]any {
	schema := typeSchema(s.Type)
	if s.Description != "" {
		schema["description"] = s.Description
	}
	return schema
}

func typeSchema(tag string) map[string]any {
	tag = strings.TrimSpace(strings.ToLower(tag))
	if strings.HasPrefix(tag, "list[") && strings.HasSuffix(tag, "]") {
		inner := strings.TrimSuffix(strings.TrimPrefix(tag, "list["), "]")
		return map[string]any{"type": "array", "items": typeSchema(inner)}
	}
	switch tag {
	case "int":
		return map[string]any{"type": "integer"}
	case "float":
		return map[string]any{"type": "number"}
	case "bool":
		return map[string]any{"type": "boolean"}
	case "datetime":
		return map[string]any{"type": "string", "format": "date-time"}
	case "date":
		return map[string]any{"type": "string", "format": "date"}
	default:
		return map[string]any{"type": "string"}
	}
}

// ToolSchema describes an intent as a callable function: its input slots
// become properties and its required slots the required list.
func (c *Catalog) ToolSchema(in Intent) llms.Tool {
	properties := map[string]any{}
	for _, name := range append(append([]string{}, in.RequiredSlots...), in.OptionalSlots...) {
		slot, ok := c.SlotByName(name)
		if !ok {
			continue
		}
		properties[slot.Name] = JSONSchemaFor(slot)
	}
	required := append([]string{}, in.RequiredSlots...)

	return llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        in.Name,
			Description: in.Description,
			Parameters: map[string]any{
				"type":       "object",
				"properties": properties,
				"required":   required,
			},
		},
	}
}
