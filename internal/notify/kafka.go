package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"storefront-backend/internal/domain"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSender publishes messages for a separate delivery worker. Keying by
// recipient keeps one recipient's messages in order.
type KafkaSender struct {
	w messageWriter
}

func NewKafkaSender(brokers []string, topic string) *KafkaSender {
	return &KafkaSender{w: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}}
}

func (s *KafkaSender) Name() string { return "kafka" }

func (s *KafkaSender) Send(ctx context.Context, m domain.Message) error {
	value, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	err = s.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(m.To),
		Value: value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "channel", Value: []byte(m.Channel)},
			{Key: "event", Value: []byte(m.Event)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

func (s *KafkaSender) Close() error { return s.w.Close() }
