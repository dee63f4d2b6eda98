package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/avvvet/tod-intent/internal/config"
	"github.com/avvvet/tod-intent/internal/models"
	"github.com/avvvet/tod-intent/internal/prompts"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// TurnProcessor handles decoded turn and end-of-session requests.
type TurnProcessor interface {
	HandleTurn(ctx context.Context, request *models.TurnRequest) (*models.TurnResponse, error)
	EndSession(ctx context.Context, sessionID string) error
}

type NATSTransport struct {
	conn    *nats.Conn
	subs    []*nats.Subscription
	config  *config.Config
	handler TurnProcessor
	logger  *zap.Logger
}

func NewNATSTransport(cfg *config.Config, handler TurnProcessor, logger *zap.Logger) (*NATSTransport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, err := nats.Connect(cfg.NatsURL,
		nats.Name(cfg.ServiceName),
		nats.Timeout(cfg.NatsTimeout),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1), // Infinite reconnects
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("⚠️ NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("🔌 NATS reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info("📡 Connected to NATS server", zap.String("url", cfg.NatsURL))

	return &NATSTransport{
		conn:    conn,
		config:  cfg,
		handler: handler,
		logger:  logger,
	}, nil
}

// Start subscribes to the turn subject and, when configured, the
// end-of-session subject.
func (nt *NATSTransport) Start() error {
	handlers := map[string]func(context.Context, []byte) []byte{
		nt.config.NatsRequestSubject: nt.process,
	}
	if nt.config.NatsEndSubject != "" {
		handlers[nt.config.NatsEndSubject] = nt.processEnd
	}

	for subject, handle := range handlers {
		sub, err := nt.conn.Subscribe(subject, nt.respond(handle))
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
		}
		nt.subs = append(nt.subs, sub)
		nt.logger.Info("👂 Subscribed to subject", zap.String("subject", subject))
	}
	return nil
}

func (nt *NATSTransport) respond(handle func(context.Context, []byte) []byte) nats.MsgHandler {
	return func(msg *nats.Msg) {
		ctx, cancel := context.WithTimeout(context.Background(), nt.config.RequestTimeout)
		defer cancel()

		if err := msg.Respond(handle(ctx, msg.Data)); err != nil {
			nt.logger.Error("❌ Failed to send response", zap.Error(err))
		}
	}
}

// processEnd ends the session named by the request. Only session_id is read.
func (nt *NATSTransport) processEnd(ctx context.Context, data []byte) []byte {
	var request models.TurnRequest
	if err := json.Unmarshal(data, &request); err != nil || request.SessionID == "" {
		nt.logger.Warn("⚠️ Invalid end-session request", zap.Error(err), zap.ByteString("data", data))
		return nt.encode(errorResponse(&request, models.ErrorInvalidRequest, "session_id is required"))
	}

	if err := nt.handler.EndSession(ctx, request.SessionID); err != nil {
		nt.logger.Error("❌ Error ending session", zap.String("session_id", request.SessionID), zap.Error(err))
		return nt.encode(errorResponse(&request, models.ErrorMemoryFailed, err.Error()))
	}

	return nt.encode(&models.TurnResponse{
		SessionID:  request.SessionID,
		Intents:    []string{},
		DialogActs: []string{},
		Status:     models.StatusDone,
		Parameters: make(map[string]any),
	})
}

// process decodes a request, runs it and encodes the reply. It always
// produces a TurnResponse body.
func (nt *NATSTransport) process(ctx context.Context, data []byte) []byte {
	var request models.TurnRequest
	if err := json.Unmarshal(data, &request); err != nil {
		nt.logger.Warn("⚠️ Invalid turn request", zap.Error(err), zap.ByteString("data", data))
		return nt.encode(errorResponse(&request, models.ErrorInvalidRequest, "Invalid request format"))
	}

	nt.logger.Info("📨 Processing turn",
		zap.String("session_id", request.SessionID),
		zap.String("user_id", request.UserID))

	response, err := nt.handler.HandleTurn(ctx, &request)
	if err != nil {
		nt.logger.Error("❌ Error processing turn", zap.Error(err))
		return nt.encode(errorResponse(&request, models.ErrorIntentFailed, err.Error()))
	}

	nt.logger.Info("✅ Response ready",
		zap.String("session_id", response.SessionID),
		zap.String("status", response.Status))
	return nt.encode(response)
}

func (nt *NATSTransport) encode(response *models.TurnResponse) []byte {
	data, err := json.Marshal(response)
	if err != nil {
		nt.logger.Error("❌ Failed to marshal response", zap.Error(err))
		data, _ = json.Marshal(errorResponse(&models.TurnRequest{SessionID: response.SessionID},
			models.ErrorIntentFailed, "failed to encode response"))
	}
	return data
}

func errorResponse(request *models.TurnRequest, errorCode, errorMessage string) *models.TurnResponse {
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

func (nt *NATSTransport) Close() error {
	for _, sub := range nt.subs {
		if err := sub.Drain(); err != nil {
			nt.logger.Warn("⚠️ Failed to drain subscription", zap.String("subject", sub.Subject), zap.Error(err))
		}
	}
	if nt.conn != nil {
		nt.conn.Close()
		nt.logger.Info("NATS connection closed")
	}
	return nil
}
