package handlers

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/avvvet/tod-intent/internal/classifier"
	"github.com/avvvet/tod-intent/internal/intent"
	"github.com/avvvet/tod-intent/internal/memory"
	"github.com/avvvet/tod-intent/internal/metrics"
	"github.com/avvvet/tod-intent/internal/models"
	"github.com/avvvet/tod-intent/internal/prompts"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FallbackIntent serves turns in which no intent was recognized.
const FallbackIntent = "other"

// Classifier recognizes intents in a user turn.
type Classifier interface {
	Classify(ctx context.Context, dialog *memory.Dialog, turn models.Message) (*classifier.Result, error)
}

// TurnHandler runs one user turn end to end: memory, classification and
// dispatch to the session's intent servers.
type TurnHandler struct {
	memory      *memory.Manager
	classifier  Classifier
	newRegistry func() *intent.Registry
	metrics     *metrics.Collectors
	logger      *zap.Logger
	now         func() time.Time

	mu          sync.Mutex
	sessions    map[string]*session
	idleTimeout time.Duration
}

// session is the in-process state of one conversation.
type session struct {
	registry *intent.Registry
	lastSeen time.Time
}

func NewTurnHandler(
	manager *memory.Manager,
	c Classifier,
	newRegistry func() *intent.Registry,
	m *metrics.Collectors,
	logger *zap.Logger,
) *TurnHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TurnHandler{
		memory:      manager,
		classifier:  c,
		newRegistry: newRegistry,
		metrics:     m,
		logger:      logger,
		now:         time.Now,
		sessions:    make(map[string]*session),
	}
}

// WithIdleTimeout forgets the in-process state of sessions without a turn
// for longer than d. Zero keeps sessions until EndSession.
func (h *TurnHandler) WithIdleTimeout(d time.Duration) *TurnHandler {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.idleTimeout = d
	return h
}

// HandleTurn processes a user turn. Failures are reported in the response
// with an error code; the returned error is reserved for a nil request.
func (h *TurnHandler) HandleTurn(ctx context.Context, request *models.TurnRequest) (*models.TurnResponse, error) {
	if request == nil {
		return nil, errors.New("nil turn request")
	}
	if request.SessionID == "" {
		request.SessionID = uuid.NewString()
		h.logger.Debug("Assigned session id", zap.String("session_id", request.SessionID))
	}
	if err := h.validateRequest(request); err != nil {
		return h.errorResponse(request, models.ErrorInvalidRequest, err.Error()), nil
	}

	logger := h.logger.With(zap.String("session_id", request.SessionID), zap.String("user_id", request.UserID))

	registry := h.registry(request.SessionID)
	dialog, err := h.memory.GetOrCreateSession(ctx, request.SessionID, request.UserID)
	if err != nil {
		logger.Error("❌ Failed to load dialog", zap.Error(err))
		return h.errorResponse(request, models.ErrorMemoryFailed, err.Error()), nil
	}

	// The turn is classified against a snapshot and stored once its slots are known.
	pending := models.NewMessage(models.RoleUser, request.UserMessage)
	result, err := h.classifier.Classify(ctx, dialog.With(pending), pending)
	if err != nil {
		code := classificationErrorCode(err)
		logger.Warn("⚠️ Classification failed, asking the user to rephrase",
			zap.String("error_code", code), zap.Error(err))
		if err := h.memory.AddMessage(ctx, request.SessionID, request.UserID, pending); err != nil {
			logger.Error("❌ Failed to store user turn", zap.Error(err))
			return h.errorResponse(request, models.ErrorMemoryFailed, err.Error()), nil
		}
		resp := h.errorResponse(request, code, err.Error())
		h.reply(ctx, request, resp.UserMessage, "", logger)
		return resp, nil
	}

	names := dedupe(result.IntentNames())
	if len(names) == 0 {
		names = []string{FallbackIntent}
	}

	turn := models.Message{
		Role:      pending.Role,
		Content:   pending.Content,
		Intent:    names[0],
		Timestamp: pending.Timestamp,
		Slots:     maps.Clone(result.Slots),
	}
	if turn.Slots == nil {
		turn.Slots = map[string]any{}
	}
	if err := h.memory.AddMessage(ctx, request.SessionID, request.UserID, turn); err != nil {
		logger.Error("❌ Failed to store user turn", zap.Error(err))
		return h.errorResponse(request, models.ErrorMemoryFailed, err.Error()), nil
	}

	input := intent.Input{UserID: request.UserID, Turn: turn, Dialog: dialog}

	var primary *intent.Response
	for i, name := range names {
		server, err := registry.Server(name)
		if err != nil {
			logger.Warn("⚠️ No server for intent", zap.String("intent", name), zap.Error(err))
			if i == 0 {
				resp := h.errorResponse(request, models.ErrorUnknownIntent, err.Error())
				h.reply(ctx, request, resp.UserMessage, name, logger)
				return resp, nil
			}
			continue
		}

		served, err := server.Serve(ctx, input)
		if err != nil {
			logger.Error("❌ Intent failed", zap.String("intent", name), zap.Error(err))
			if i == 0 {
				code := models.ErrorIntentFailed
				if errors.Is(err, context.DeadlineExceeded) {
					code = models.ErrorLLMTimeout
				}
				resp := h.errorResponse(request, code, err.Error())
				h.reply(ctx, request, resp.UserMessage, name, logger)
				return resp, nil
			}
			continue
		}
		if i == 0 {
			primary = served
		}
	}

	resp := h.buildResponse(request, result, names, primary)
	h.reply(ctx, request, resp.UserMessage, names[0], logger)

	logger.Info("✅ Turn handled",
		zap.Strings("intents", names),
		zap.String("status", resp.Status),
		zap.Strings("missing", resp.Missing))

	return resp, nil
}

// EndSession forgets the session's dialog and intent state.
func (h *TurnHandler) EndSession(ctx context.Context, sessionID string) error {
	h.mu.Lock()
	if sess, ok := h.sessions[sessionID]; ok {
		sess.registry.Reset()
		delete(h.sessions, sessionID)
	}
	h.mu.Unlock()

	if err := h.memory.ClearSession(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to end session %s: %w", sessionID, err)
	}
	h.logger.Info("👋 Session ended", zap.String("session_id", sessionID))
	return nil
}

// ActiveSessions returns the number of sessions with live intent servers.
func (h *TurnHandler) ActiveSessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// EvictIdle drops the in-process state of every session idle longer than
// the idle timeout and returns how many were dropped. Stored history is
// left to the store's own expiry.
func (h *TurnHandler) EvictIdle() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.idleTimeout <= 0 {
		return 0
	}
	now := h.now()
	evicted := 0
	for id, sess := range h.sessions {
		if now.Sub(sess.lastSeen) > h.idleTimeout {
			h.evictLocked(id, sess)
			evicted++
		}
	}
	if evicted > 0 {
		h.logger.Info("🧹 Evicted idle sessions", zap.Int("count", evicted), zap.Int("active", len(h.sessions)))
	}
	return evicted
}

// RunJanitor calls EvictIdle every interval until ctx is done.
func (h *TurnHandler) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.EvictIdle()
		}
	}
}

// registry returns the session's intent servers, starting over when the
// session sat idle past the timeout.
func (h *TurnHandler) registry(sessionID string) *intent.Registry {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.now()
	sess, ok := h.sessions[sessionID]
	if ok && h.idleTimeout > 0 && now.Sub(sess.lastSeen) > h.idleTimeout {
		h.evictLocked(sessionID, sess)
		ok = false
	}
	if !ok {
		sess = &session{registry: h.newRegistry()}
		h.sessions[sessionID] = sess
	}
	sess.lastSeen = now
	return sess.registry
}

func (h *TurnHandler) evictLocked(sessionID string, sess *session) {
	sess.registry.Reset()
	delete(h.sessions, sessionID)
	h.memory.Evict(sessionID)
}

func (h *TurnHandler) reply(ctx context.Context, request *models.TurnRequest, text, intentName string, logger *zap.Logger) {
	msg := models.NewMessage(models.RoleBot, text)
	msg.Intent = intentName
	if err := h.memory.AddMessage(ctx, request.SessionID, request.UserID, msg); err != nil {
		logger.Error("❌ Failed to store bot reply", zap.Error(err))
	}
}

func (h *TurnHandler) buildResponse(request *models.TurnRequest, result *classifier.Result, names []string, primary *intent.Response) *models.TurnResponse {
	resp := &models.TurnResponse{
		SessionID:  request.SessionID,
		Intents:    names,
		DialogActs: result.DialogActNames(),
		Parameters: result.Slots,
	}
	if resp.DialogActs == nil {
		resp.DialogActs = []string{}
	}
	if resp.Parameters == nil {
		resp.Parameters = make(map[string]any)
	}
	intentName := primary.Intent
	resp.Intent = &intentName
	resp.UserMessage = primary.Message
	resp.Missing = primary.Missing
	if len(primary.Slots) > 0 {
		resp.Parameters = primary.Slots
	}

	switch primary.State {
	case intent.Gathering:
		resp.Status = models.StatusNeedsInfo
	case intent.Blocked:
		resp.Status = models.StatusBlocked
	default:
		resp.Status = models.StatusDone
	}
	if resp.UserMessage == "" {
		resp.UserMessage = prompts.ClarifyMessage
	}
	h.metrics.Turn(resp.Status)
	return resp
}

func (h *TurnHandler) validateRequest(request *models.TurnRequest) error {
	if request.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if request.UserMessage == "" {
		return fmt.Errorf("user_message is required")
	}
	return nil
}

func (h *TurnHandler) errorResponse(request *models.TurnRequest, errorCode, errorMessage string) *models.TurnResponse {
	h.metrics.Turn(models.StatusError)
	return &models.TurnResponse{
		SessionID:    request.SessionID,
		Intents:      []string{},
		DialogActs:   []string{},
		Status:       models.StatusError,
		Parameters:   make(map[string]any),
		UserMessage:  prompts.FallbackMessage,
		ErrorCode:    &errorCode,
		ErrorMessage: &errorMessage,
	}
}

func classificationErrorCode(err error) string {
	switch {
	case classifier.IsMalformed(err):
		return models.ErrorParseError
	case errors.Is(err, context.DeadlineExceeded):
		return models.ErrorLLMTimeout
	default:
		return models.ErrorLLMFailed
	}
}

// dedupe keeps the first occurrence of every intent name.
func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

