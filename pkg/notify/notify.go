// Package notify announces written chunk files on a Kafka topic so that
// importers can pick them up without polling the incoming folder.
package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/segmentio/kafka-go"

	"github.com/siqueiraa/HubSync/pkg/batch"
	"github.com/siqueiraa/HubSync/pkg/config"
)

const defaultBatchTimeout = 10 * time.Millisecond

var jsonFast = jsoniter.ConfigFastest

// Event is the message value of one written chunk file.
type Event struct {
	EntityType string    `json:"entityType"`
	File       string    `json:"file"`
	Count      int       `json:"count"`
	Checksum   string    `json:"checksum"`
	StartedAt  time.Time `json:"startedAt"`
}

// MessageWriter is the part of kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes one message per chunk file, keyed by entity type.
type Publisher struct {
	writer MessageWriter
	topic  string
}

// NewPublisher creates a Kafka publisher for cfg.
func NewPublisher(cfg config.KafkaConfig) *Publisher {
	timeout := cfg.BatchTimeout
	if timeout <= 0 {
		timeout = defaultBatchTimeout
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: timeout,
		RequiredAcks: kafka.RequireAll,
	}
	return NewWithWriter(w, cfg.Topic)
}

// NewWithWriter returns a publisher using w.
func NewWithWriter(w MessageWriter, topic string) *Publisher {
	return &Publisher{writer: w, topic: topic}
}

// FileWritten publishes the event of f.
func (p *Publisher) FileWritten(ctx context.Context, entityType string, startedAt time.Time, f batch.File) error {
	ev := Event{
		EntityType: entityType,
		File:       f.Name,
		Count:      f.Count,
		Checksum:   f.Checksum,
		StartedAt:  startedAt,
	}
	msg, err := p.message(ev)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		log.Printf("[Notify] publish failed topic=%s: %v", p.topic, err)
		return err
	}
	return nil
}

func (p *Publisher) message(ev Event) (kafka.Message, error) {
	payload, err := jsonFast.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("json marshal failed: %w", err)
	}
	return kafka.Message{
		Topic: p.topic,
		Key:   []byte(ev.EntityType),
		Value: payload,
		Time:  time.Now(),
	}, nil
}

// Close flushes pending messages.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
