package prompts

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/avvvet/tod-intent/internal/catalog"
	"github.com/avvvet/tod-intent/internal/llm"
	"github.com/tmc/langchaingo/llms"
)

const ClassifierPrompt = `You are a user intent and dialog act classifier for a %s system.
The system has the following intents:
%s
The dialog act can be one of the following:
%s
You also extract entities from the user turn. The entities are:
%s
If entity is a date, it should be in the format YYYY-MM-DD. If entity is a time, it should be in the format HH:MM:SS.
If entity is a datetime, it should be in the format YYYY-MM-DD HH:MM:SS.
If entity was spelled incorrectly or partially spelled, try to correct it. If you are not sure, do not include it in the response.
If there are no entities, do not include them in the response.
Current date and time: %s
Respond in JSONL format. If the user message has multiple intents, create a new line for each intent.
All property names and string values must be enclosed in double quotes. Do not use single quotes. Do not include any text before or after the JSON.
{"intent1": "intent_name1", "dialog_act1": "dialog_act_name1", "entities1": {"entity1": "entity_value1", "entity2": "entity_value2"}}
{"intent2": "intent_name2", "dialog_act2": "dialog_act_name2", "entities2": {"entity3": "entity_value3"}}`

const ClassifierTurn = `Now analyze the conversation history and last user turn to determine the intent and dialog act.
Conversation history:
%s
Last user turn:
%s
Respond in JSONL format:`

const IntentAnswerPrompt = `You are an assistant handling the "%s" request: %s
The following information was gathered from the user:
%s
Answer the user using only this information. If one of the available tools can produce what the user needs, call it instead of guessing.`

const DataAnalystPrompt = `You are a data analyst answering questions about the user's %s company data.
Use the tools to look up table schemas, count rows and fetch data. Always check the row count before fetching user data, select all columns with SELECT * and include an ORDER BY clause.
Gathered information:
%s
When you have enough information, answer the user in plain language.`

const FallbackMessage = "I didn't understand your request clearly. Could you please rephrase what you'd like me to help you with?"

const ClarifyMessage = "I'm not sure I can help with that yet. I can search hotels, show listing details, make, look up or cancel bookings, and answer questions about your company data. What would you like to do?"

// ClassifierMessages builds the system and user messages of one classification call.
func ClassifierMessages(cat *catalog.Catalog, domain, history, userTurn string, now time.Time) []llms.MessageContent {
	system := fmt.Sprintf(ClassifierPrompt,
		domain,
		strings.Join(cat.IntentNames(), ", "),
		strings.Join(cat.DialogActNames(), ", "),
		strings.Join(cat.SlotNames(), ", "),
		now.Format("2006-01-02 15:04:05"),
	)
	return []llms.MessageContent{
		llm.SystemMessage(system),
		llm.UserMessage(fmt.Sprintf(ClassifierTurn, history, userTurn)),
	}
}

var (
	fenceOpen  = regexp.MustCompile("^```[a-zA-Z0-9]*\\n?")
	fenceClose = regexp.MustCompile("```$")
)

// StripCodeFence removes a surrounding Markdown code block, if any.
func StripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = fenceOpen.ReplaceAllString(content, "")
	content = fenceClose.ReplaceAllString(content, "")
	return strings.TrimSpace(content)
}

// MissingSlotsMessage asks the user for the slots an intent still needs.
func MissingSlotsMessage(cat *catalog.Catalog, intent catalog.Intent, missing []string) string {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("To %s I still need a few details:\n", DescribeIntent(intent)))
	for _, name := range missing {
		if slot, ok := cat.SlotByName(name); ok && slot.Description != "" {
			builder.WriteString(fmt.Sprintf("- %s: %s\n", name, slot.Description))
			continue
		}
		builder.WriteString(fmt.Sprintf("- %s\n", name))
	}
	return strings.TrimRight(builder.String(), "\n")
}

// IntentAnswerMessages builds the conversation an LLM-answered intent starts from.
func IntentAnswerMessages(intent catalog.Intent, slots map[string]any, userTurn string) []llms.MessageContent {
	return []llms.MessageContent{
		llm.SystemMessage(fmt.Sprintf(IntentAnswerPrompt, intent.Name, intent.Description, FormatSlots(slots))),
		llm.UserMessage(userTurn),
	}
}

// DataAnalystMessages starts a tool-calling conversation over company data.
func DataAnalystMessages(platform string, slots map[string]any, userTurn string) []llms.MessageContent {
	return []llms.MessageContent{
		llm.SystemMessage(fmt.Sprintf(DataAnalystPrompt, platform, FormatSlots(slots))),
		llm.UserMessage(userTurn),
	}
}

// FormatSlots renders slot values as sorted "name: value" lines.
func FormatSlots(slots map[string]any) string {
	if len(slots) == 0 {
		return "(none)"
	}
	names := make([]string, 0, len(slots))
	for name := range slots {
		names = append(names, name)
	}
	sort.Strings(names)

	var builder strings.Builder
	for _, name := range names {
		builder.WriteString(fmt.Sprintf("%s: %s\n", name, formatValue(slots[name])))
	}
	return strings.TrimRight(builder.String(), "\n")
}

func formatValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// DescribeIntent turns an intent name into words, "book_listing" into "book listing".
func DescribeIntent(intent catalog.Intent) string {
	return strings.ReplaceAll(intent.Name, "_", " ")
}
