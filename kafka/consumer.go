package kafka

import (
	"context"
	"errors"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

type Consumer struct {
	consumerGroup sarama.ConsumerGroup
	topics        []string
	handler       MessageHandler
	logger        *zap.Logger
}

func NewConsumer(brokers []string, groupID string, topics []string,
	config *sarama.Config, handler MessageHandler, logger *zap.Logger) (*Consumer, error) {
	consumerGroup, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{
		consumerGroup: consumerGroup,
		topics:        topics,
		handler:       handler,
		logger:        logger.Named("kafka"),
	}, nil
}

func (c *Consumer) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim marks a message only once it was handled; failed messages are
// logged and redelivered after the next rebalance.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		if err := c.handler.Handle(session.Context(), message); err != nil {
			c.logger.Warn("failed to process message",
				zap.String("topic", message.Topic),
				zap.Int32("partition", message.Partition),
				zap.Int64("offset", message.Offset),
				zap.Error(err))
			continue
		}
		session.MarkMessage(message, "")
	}
	return nil
}

// Start consumes until ctx is done or the group is closed.
func (c *Consumer) Start(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := c.consumerGroup.Consume(ctx, c.topics, c); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			c.logger.Warn("consumer group error", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
	}
}

func (c *Consumer) Close() error {
	return c.consumerGroup.Close()
}
