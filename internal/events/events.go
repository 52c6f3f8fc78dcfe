// Package events carries update records between the API and the indexing worker over Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/k544228/for-news/internal/models"
)

// Publisher announces recorded updates.
type Publisher interface {
	Publish(ctx context.Context, rec models.UpdateRecord) error
	Close() error
}

// MessageWriter is the subset of *kafka.Writer used by KafkaPublisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one message per record, keyed by version.
type KafkaPublisher struct {
	w   MessageWriter
	log *slog.Logger
}

// NewKafkaPublisher connects to brokers and writes to topic.
func NewKafkaPublisher(brokers []string, topic string, log *slog.Logger) *KafkaPublisher {
	return NewPublisher(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		MaxAttempts:            3,
		WriteTimeout:           10 * time.Second,
	}, log)
}

// NewPublisher wraps an existing writer.
func NewPublisher(w MessageWriter, log *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{w: w, log: log}
}

// Publish encodes rec and writes it.
func (p *KafkaPublisher) Publish(ctx context.Context, rec models.UpdateRecord) error {
	msg, err := Message(rec)
	if err != nil {
		return err
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish record %s: %w", rec.ID, err)
	}
	p.log.Debug("record published", slog.String("id", rec.ID), slog.String("version", rec.Version))
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// Nop drops every record. It stands in when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, models.UpdateRecord) error { return nil }
func (Nop) Close() error                                       { return nil }

// Message builds the Kafka message for rec.
func Message(rec models.UpdateRecord) (kafka.Message, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal record %s: %w", rec.ID, err)
	}
	return kafka.Message{
		Key:   []byte(rec.Version),
		Value: payload,
		Time:  rec.Timestamp,
		Headers: []kafka.Header{
			{Key: "record_id", Value: []byte(rec.ID)},
			{Key: "source", Value: []byte(rec.Source)},
		},
	}, nil
}

// Decode parses and validates a record payload.
func Decode(data []byte) (models.UpdateRecord, error) {
	var rec models.UpdateRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return models.UpdateRecord{}, fmt.Errorf("decode record: %w", err)
	}
	if rec.ID == "" || rec.Version == "" {
		return models.UpdateRecord{}, errors.New("record without id or version")
	}
	if !rec.Source.Valid() {
		return models.UpdateRecord{}, fmt.Errorf("record %s: unknown source %q", rec.ID, rec.Source)
	}
	for _, items := range [][]models.NewsItem{rec.Changes.Added, rec.Changes.Updated} {
		for _, item := range items {
			if item.ID == "" {
				return models.UpdateRecord{}, fmt.Errorf("record %s: item without id", rec.ID)
			}
		}
	}
	return rec, nil
}
