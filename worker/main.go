package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/k544228/for-news/internal/config"
	"github.com/k544228/for-news/internal/dedupe"
	"github.com/k544228/for-news/internal/elasticsearch"
	"github.com/k544228/for-news/internal/events"
	"github.com/k544228/for-news/internal/logger"
	"github.com/k544228/for-news/internal/models"
	"github.com/k544228/for-news/internal/processing"
)

type newsIndexer interface {
	IndexNews(ctx context.Context, doc elasticsearch.Document) error
	DeleteNews(ctx context.Context, id string) error
}

type dlqWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

func main() {
	log := logger.New("worker")
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	esClient, err := elasticsearch.Connect(ctx, cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log, elasticsearch.DefaultConnectOptions)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}
	if err := esClient.EnsureIndex(ctx); err != nil {
		log.Error("ensure index", slog.Any("err", err))
		os.Exit(1)
	}

	cache := dedupe.NewCache(cfg.DedupeCapacity, cfg.DedupeTTL)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		Topic:          cfg.KafkaTopic,
		GroupID:        cfg.KafkaConsumer,
		QueueCapacity:  cfg.BatchSize,
		MinBytes:       1e3,
		MaxBytes:       10e6,
		CommitInterval: 0, // Disable auto-commit; manual commit only
	})
	defer reader.Close()

	dlqTopic := cfg.KafkaTopic + "_dlq"
	dlq := kafka.NewWriter(kafka.WriterConfig{
		Brokers:     cfg.KafkaBrokers,
		Topic:       dlqTopic,
		MaxAttempts: 3,
	})
	defer dlq.Close()

	log.Info("worker started",
		slog.String("topic", cfg.KafkaTopic),
		slog.String("group", cfg.KafkaConsumer),
		slog.String("dlq_topic", dlqTopic),
	)

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("context canceled, stopping")
				return
			}
			log.Error("fetch message", slog.Any("err", err))
			continue
		}

		if err := processMessage(ctx, log, esClient, cache, cfg, msg); err != nil {
			log.Warn("process message failed, sending to DLQ",
				slog.Any("err", err),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
			)

			// Only commit if DLQ write succeeded; otherwise skip commit and reprocess on restart
			if !sendToDLQ(ctx, log, dlq, msg, err, time.Second) {
				if ctx.Err() != nil {
					return
				}
				log.Error("DLQ write exhausted retries, message may be lost if later messages commit",
					slog.Int("partition", msg.Partition),
					slog.Int64("offset", msg.Offset),
				)
				continue
			}
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Error("commit message", slog.Any("err", err))
		}
	}
}

// processMessage applies one update record to the index: added and updated items are
// (re)indexed, removed ids are deleted. Items already indexed with identical content are skipped.
func processMessage(ctx context.Context, log *slog.Logger, index newsIndexer, cache *dedupe.Cache, cfg *config.Worker, msg kafka.Message) error {
	rec, err := events.Decode(msg.Value)
	if err != nil {
		return err
	}

	var errs []error
	indexed, skipped := 0, 0
	for _, items := range [][]models.NewsItem{rec.Changes.Added, rec.Changes.Updated} {
		for _, item := range items {
			if cache.IsCurrent(item) {
				skipped++
				log.Debug("duplicate news", slog.String("id", item.ID))
				continue
			}
			if err := index.IndexNews(ctx, buildDocument(item, rec.Version, cfg)); err != nil {
				errs = append(errs, err)
				continue
			}
			cache.MarkIndexed(item)
			indexed++
		}
	}

	for _, id := range rec.Changes.Removed {
		if err := index.DeleteNews(ctx, id); err != nil {
			errs = append(errs, err)
			continue
		}
		cache.Forget(id)
	}

	log.Info("applied update record",
		slog.String("id", rec.ID),
		slog.String("version", rec.Version),
		slog.Int("indexed", indexed),
		slog.Int("skipped", skipped),
		slog.Int("removed", len(rec.Changes.Removed)),
	)
	return errors.Join(errs...)
}

func buildDocument(item models.NewsItem, version string, cfg *config.Worker) elasticsearch.Document {
	text := item.Title + " " + processing.CleanText(item.Content)
	return elasticsearch.Document{
		NewsItem:  item,
		Keywords:  processing.ExtractKeywords(text, cfg.KeywordLimit, cfg.KeywordMinLength),
		Version:   version,
		IndexedAt: time.Now().UTC(),
	}
}

// sendToDLQ forwards msg with error context, retrying with exponential backoff from base.
func sendToDLQ(ctx context.Context, log *slog.Logger, w dlqWriter, msg kafka.Message, cause error, base time.Duration) bool {
	dlqMsg := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(msg.Headers,
			kafka.Header{Key: "original_partition", Value: []byte(fmt.Sprintf("%d", msg.Partition))},
			kafka.Header{Key: "original_offset", Value: []byte(fmt.Sprintf("%d", msg.Offset))},
			kafka.Header{Key: "error", Value: []byte(cause.Error())},
			kafka.Header{Key: "timestamp", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		),
	}

	for attempt := range 5 {
		dlqErr := w.WriteMessages(ctx, dlqMsg)
		if dlqErr == nil {
			log.Info("message sent to DLQ",
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slog.Int("attempt", attempt+1),
			)
			return true
		}

		backoff := time.Duration(1<<uint(attempt)) * base
		log.Warn("DLQ write failed, retrying",
			slog.Any("err", dlqErr),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			log.Info("context canceled during DLQ retry")
			return false
		}
	}
	return false
}
