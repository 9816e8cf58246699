package kafka

import (
	"context"
	"encoding/json"

	"EquiSaddles/models"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

type MessageHandler interface {
	Handle(ctx context.Context, message *sarama.ConsumerMessage) error
}

// AuditHandler writes every chat event on the topic to the log.
type AuditHandler struct {
	logger *zap.Logger
}

func NewAuditHandler(logger *zap.Logger) *AuditHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditHandler{logger: logger.Named("audit")}
}

func (h *AuditHandler) Handle(ctx context.Context, message *sarama.ConsumerMessage) error {
	if !fromChat(message) {
		return nil
	}
	var event models.ChatEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return err
	}
	h.logger.Info("chat event",
		zap.String("type", event.Type),
		zap.String("session_id", event.SessionID),
		zap.String("sender", string(event.Sender)),
		zap.Bool("delivered", event.Delivered),
		zap.Int("body_len", len(event.Body)),
		zap.Time("sent_at", event.SentAt),
		zap.Int64("offset", message.Offset))
	return nil
}

func fromChat(message *sarama.ConsumerMessage) bool {
	for _, h := range message.Headers {
		if h != nil && string(h.Key) == headerProducer {
			return string(h.Value) == producerName
		}
	}
	// records without the header predate it
	return true
}
