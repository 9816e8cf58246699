package kafka

import (
	"context"
	"encoding/json"

	"EquiSaddles/models"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// Producer publishes chat events, keyed by session id.
type Producer struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

func NewProducer(brokers []string, config *sarama.Config, topic string, logger *zap.Logger) (*Producer, error) {
	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}
	return NewProducerWith(producer, topic, logger), nil
}

// NewProducerWith wraps an existing sync producer.
func NewProducerWith(producer sarama.SyncProducer, topic string, logger *zap.Logger) *Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Producer{producer: producer, topic: topic, logger: logger.Named("kafka")}
}

func (p *Producer) Publish(ctx context.Context, event models.ChatEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.SessionID),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-type"), Value: []byte(event.Type)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return err
	}
	p.logger.Debug("chat event published",
		zap.String("session_id", event.SessionID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

func (p *Producer) Close() error {
	return p.producer.Close()
}
