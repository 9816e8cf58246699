package kafka

import (
	"github.com/IBM/sarama"
)

const (
	headerProducer = "produced-by"
	producerName   = "equisaddles-chat"
)

// ChatEventInterceptor stamps outgoing records with their origin so the
// audit consumer can ignore foreign traffic on a shared topic.
type ChatEventInterceptor struct{}

func NewChatEventInterceptor() *ChatEventInterceptor {
	return &ChatEventInterceptor{}
}

func (i *ChatEventInterceptor) OnSend(msg *sarama.ProducerMessage) {
	for _, h := range msg.Headers {
		if string(h.Key) == headerProducer {
			return
		}
	}
	msg.Headers = append(msg.Headers, sarama.RecordHeader{
		Key:   []byte(headerProducer),
		Value: []byte(producerName),
	})
}
