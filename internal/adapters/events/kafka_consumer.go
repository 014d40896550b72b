package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaConsumer reads thread lifecycle events for one consumer group.
//
// A group with no committed offset starts at LastOffset: threads created before
// the bot first joined are not auto-published retroactively. Offsets are
// committed explicitly once the worker has handled a batch, so events fetched
// during shutdown but never handled are redelivered to the next instance.
type KafkaConsumer struct {
	reader *kafka.Reader
}

func NewKafkaConsumer(brokers []string, groupID string, topics []string) (*KafkaConsumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka consumer requires at least one broker")
	}
	if groupID == "" {
		return nil, fmt.Errorf("kafka consumer requires group id")
	}
	if len(topics) == 0 {
		return nil, fmt.Errorf("kafka consumer requires at least one topic")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		GroupTopics: topics,
		MinBytes:    1,
		MaxBytes:    1e6,
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafka.LastOffset,
	})
	return &KafkaConsumer{reader: reader}, nil
}

// Poll fetches what arrives within a short window, at most max messages,
// without committing them. An empty window is not an error.
func (c *KafkaConsumer) Poll(ctx context.Context, max int) ([]Message, error) {
	if max <= 0 {
		max = 1
	}
	out := make([]Message, 0, max)
	for i := 0; i < max; i++ {
		fetchCtx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
		msg, err := c.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			switch {
			case errors.Is(err, context.DeadlineExceeded):
				return out, nil
			case errors.Is(err, context.Canceled):
				return out, ctx.Err()
			default:
				return out, err
			}
		}
		out = append(out, Message{
			Topic:     msg.Topic,
			Partition: msg.Partition,
			Offset:    msg.Offset,
			Key:       msg.Key,
			Payload:   msg.Value,
		})
	}
	return out, nil
}

// Commit marks msgs as consumed for the group.
func (c *KafkaConsumer) Commit(ctx context.Context, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}
	commits := make([]kafka.Message, 0, len(msgs))
	for _, m := range msgs {
		commits = append(commits, kafka.Message{Topic: m.Topic, Partition: m.Partition, Offset: m.Offset})
	}
	return c.reader.CommitMessages(ctx, commits...)
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
