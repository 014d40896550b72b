package events

import (
	"context"
	"fmt"
	"time"

	"github.com/Opizontas-Studio/dc-license-bot/internal/ports"
	"github.com/segmentio/kafka-go"
)

// KafkaPublisher writes to the topic mapped for an event type, or to
// defaultTopic when none is mapped.
type KafkaPublisher struct {
	writer       *kafka.Writer
	defaultTopic string
	topicByEvent map[string]string
}

func NewKafkaPublisher(brokers []string, defaultTopic string, topicByEvent map[string]string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	if defaultTopic == "" {
		return nil, fmt.Errorf("kafka publisher requires a default topic")
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 50 * time.Millisecond,
		},
		defaultTopic: defaultTopic,
		topicByEvent: topicByEvent,
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error {
	topic := p.defaultTopic
	if mapped, ok := p.topicByEvent[eventType]; ok && mapped != "" {
		topic = mapped
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     []byte(partitionKey),
		Value:   payload,
		Time:    time.Now().UTC(),
		Headers: []kafka.Header{{Key: "event_type", Value: []byte(eventType)}},
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

var _ ports.EventPublisher = (*KafkaPublisher)(nil)
