package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"pagehound/internal/models"
)

// JobProducer publishes crawl jobs onto the frontier.
type JobProducer interface {
	WriteJob(ctx context.Context, job *models.Job) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer wraps a Kafka writer for publishing crawl jobs.
type Producer struct {
	writer messageWriter
}

// NewProducer creates a Kafka producer for the given broker and topic.
func NewProducer(broker, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(broker),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: false,
		},
	}
}

// NewProducerWithWriter builds a producer using a custom writer (tests).
func NewProducerWithWriter(writer messageWriter) *Producer {
	return &Producer{writer: writer}
}

// Close shuts down the underlying writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// WriteJob publishes a Job to the frontier, keyed by identifier so
// re-sightings of the same resource land on the same partition.
func (p *Producer) WriteJob(ctx context.Context, job *models.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(job.Identifier),
		Value: payload,
		Time:  time.Now().UTC(),
	}

	return p.writer.WriteMessages(ctx, msg)
}

// Push implements crawler.JobQueue on top of WriteJob.
func (p *Producer) Push(ctx context.Context, job *models.Job) error {
	return p.WriteJob(ctx, job)
}
