package llm

import (
	"strings"
	"sync"

	"github.com/avvvet/tod-intent/internal/metrics"
	"github.com/pkoukk/tiktoken-go"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"
)

// TokenCounter estimates the number of tokens in a text.
type TokenCounter func(text string) int

// IntentUsage aggregates calls and tokens.
type IntentUsage struct {
	Calls        int `json:"llm_calls"`
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Stats is a snapshot of the monitor.
type Stats struct {
	Model         string                 `json:"model"`
	Total         IntentUsage            `json:"total"`
	ByIntent      map[string]IntentUsage `json:"by_intent"`
	EstimatedCost float64                `json:"estimated_cost_usd"`
}

// per-token prices in USD
var tokenPrices = map[string]struct{ input, output float64 }{
	"gpt-4o-mini":             {0.6e-6, 2.4e-6},
	"gpt-4o":                  {5e-6, 20e-6},
	"deepseek-ai/DeepSeek-V3": {0.38e-6, 0.89e-6},
}

// Monitor tracks LLM calls and token usage, overall and per intent.
type Monitor struct {
	mu       sync.Mutex
	model    string
	count    TokenCounter
	total    IntentUsage
	byIntent map[string]*IntentUsage
	metrics  *metrics.Collectors
	logger   *zap.Logger
}

// NewMonitor counts tokens with the tiktoken encoding of model, falling back
// to a character heuristic when no encoding is available.
func NewMonitor(model string, m *metrics.Collectors, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	counter := HeuristicTokens
	if enc, err := tiktoken.EncodingForModel(model); err == nil {
		counter = func(text string) int {
			return len(enc.Encode(text, nil, nil))
		}
	} else {
		logger.Debug("Using heuristic token counting", zap.String("model", model), zap.Error(err))
	}
	return NewMonitorWithCounter(model, counter, m, logger)
}

func NewMonitorWithCounter(model string, counter TokenCounter, m *metrics.Collectors, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		model:    model,
		count:    counter,
		byIntent: make(map[string]*IntentUsage),
		metrics:  m,
		logger:   logger,
	}
}

// Record accounts for one call. Reported usage wins over local counting.
func (m *Monitor) Record(intent string, input []llms.MessageContent, output string, reported *Usage) Usage {
	var usage Usage
	if reported != nil {
		usage = *reported
	} else {
		for _, msg := range input {
			usage.InputTokens += m.CountTokens(MessageText(msg))
		}
		usage.OutputTokens = m.CountTokens(output)
	}

	if intent == "" {
		intent = "classifier"
	}

	m.mu.Lock()
	m.total.Calls++
	m.total.InputTokens += usage.InputTokens
	m.total.OutputTokens += usage.OutputTokens
	per, ok := m.byIntent[intent]
	if !ok {
		per = &IntentUsage{}
		m.byIntent[intent] = per
	}
	per.Calls++
	per.InputTokens += usage.InputTokens
	per.OutputTokens += usage.OutputTokens
	m.mu.Unlock()

	m.metrics.LLMCall(intent, usage.InputTokens, usage.OutputTokens)
	m.logger.Debug("LLM call recorded",
		zap.String("intent", intent),
		zap.Int("input_tokens", usage.InputTokens),
		zap.Int("output_tokens", usage.OutputTokens))

	return usage
}

// CountTokens returns 0 for empty text.
func (m *Monitor) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return m.count(text)
}

func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	by := make(map[string]IntentUsage, len(m.byIntent))
	for k, v := range m.byIntent {
		by[k] = *v
	}
	s := Stats{Model: m.model, Total: m.total, ByIntent: by}
	if price, ok := tokenPrices[m.model]; ok {
		s.EstimatedCost = float64(m.total.InputTokens)*price.input + float64(m.total.OutputTokens)*price.output
	}
	return s
}

// Reset clears all counters.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total = IntentUsage{}
	m.byIntent = make(map[string]*IntentUsage)
}

// HeuristicTokens approximates one token per four characters, discounting
// whitespace and punctuation.
func HeuristicTokens(text string) int {
	if text == "" {
		return 0
	}
	chars := float64(len([]rune(text)))
	whitespace := float64(strings.Count(text, " ") + strings.Count(text, "\n") + strings.Count(text, "\t"))
	punctuation := 0.0
	for _, r := range text {
		if strings.ContainsRune(".,!?;:", r) {
			punctuation++
		}
	}
	adjusted := chars - whitespace*0.5 - punctuation*0.3
	return max(1, int(adjusted/4))
}
