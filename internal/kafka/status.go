package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"pagehound/internal/models"
)

// StatusProducer publishes terminal job statuses to the monitor topic.
type StatusProducer struct {
	writer messageWriter
}

// NewStatusProducer creates a producer for the status topic.
func NewStatusProducer(broker, topic string) *StatusProducer {
	return &StatusProducer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(broker),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: false,
		},
	}
}

// NewStatusProducerWithWriter builds a producer using a custom writer (tests).
func NewStatusProducerWithWriter(writer messageWriter) *StatusProducer {
	return &StatusProducer{writer: writer}
}

// Close shuts down the underlying writer.
func (p *StatusProducer) Close() error {
	return p.writer.Close()
}

// Report implements crawler.StatusSink.
func (p *StatusProducer) Report(ctx context.Context, status models.Status) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(status.Identifier),
		Value: payload,
		Time:  time.Now().UTC(),
	}
	return p.writer.WriteMessages(ctx, msg)
}
