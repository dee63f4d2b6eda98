package classifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avvvet/tod-intent/internal/catalog"
	"github.com/avvvet/tod-intent/internal/llm"
	"github.com/avvvet/tod-intent/internal/memory"
	"github.com/avvvet/tod-intent/internal/metrics"
	"github.com/avvvet/tod-intent/internal/models"
	"github.com/avvvet/tod-intent/internal/prompts"
	"go.uber.org/zap"
)

const DefaultDomain = "hotel booking and company data"

// Classifier turns a conversation snapshot into intents, dialog acts and slots.
type Classifier struct {
	provider llm.Provider
	catalog  *catalog.Catalog
	metrics  *metrics.Collectors
	logger   *zap.Logger

	// Domain names the system in the prompt.
	Domain    string
	MaxTokens int
	now       func() time.Time
}

func New(provider llm.Provider, cat *catalog.Catalog, m *metrics.Collectors, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{
		provider:  provider,
		catalog:   cat,
		metrics:   m,
		logger:    logger,
		Domain:    DefaultDomain,
		MaxTokens: 512,
		now:       time.Now,
	}
}

// Classify asks the model about turn given the dialog so far. The prompt
// carries the history up to the last bot reply before the turn.
//
// When the model call fails the returned Result holds the reason and the
// error is non-nil. Malformed model output returns a nil Result and an error
// wrapping ErrMalformedOutput.
func (c *Classifier) Classify(ctx context.Context, dialog *memory.Dialog, turn models.Message) (*Result, error) {
	history := ""
	if dialog != nil {
		history = dialog.HistoryBeforeLastUserTurn()
	}

	resp, err := c.provider.Generate(ctx, &llm.Request{
		Messages:  prompts.ClassifierMessages(c.catalog, c.Domain, history, turn.Content, c.now()),
		MaxTokens: c.MaxTokens,
	})
	if err != nil {
		c.metrics.Classification("provider_error")
		c.logger.Error("❌ Classification request failed", zap.Error(err))
		return &Result{ErrorReason: err.Error()}, fmt.Errorf("classification request failed: %w", err)
	}

	result, err := Parse(resp.Content, c.catalog)
	if err != nil {
		c.metrics.Classification("malformed")
		c.logger.Warn("⚠️ Could not parse classifier output",
			zap.Error(err),
			zap.String("content", resp.Content))
		return nil, err
	}

	outcome := "recognized"
	if len(result.Intents) == 0 {
		outcome = "no_intent"
	}
	c.metrics.Classification(outcome)
	c.logger.Info("🧭 Classified user turn", zap.Stringer("result", result))

	return result, nil
}

// IsMalformed reports whether err came from unparseable model output.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedOutput)
}
