package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"pagehound/internal/models"
)

// EdgeProducer publishes discovered page links for the link graph.
type EdgeProducer struct {
	writer messageWriter
}

// NewEdgeProducer creates a producer for the links topic.
func NewEdgeProducer(broker, topic string) *EdgeProducer {
	return &EdgeProducer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(broker),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: false,
		},
	}
}

// NewEdgeProducerWithWriter builds a producer using a custom writer (tests).
func NewEdgeProducerWithWriter(writer messageWriter) *EdgeProducer {
	return &EdgeProducer{writer: writer}
}

// Close shuts down the underlying writer.
func (p *EdgeProducer) Close() error {
	return p.writer.Close()
}

// WriteEdge publishes one link edge, keyed by source URL.
func (p *EdgeProducer) WriteEdge(ctx context.Context, edge models.Edge) error {
	payload, err := json.Marshal(edge)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(edge.FromURL),
		Value: payload,
		Time:  time.Now().UTC(),
	}
	return p.writer.WriteMessages(ctx, msg)
}
