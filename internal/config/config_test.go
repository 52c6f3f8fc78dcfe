package config_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/k544228/for-news/internal/config"
)

func TestLoadAPIDefaults(t *testing.T) {
	for _, key := range []string{
		"API_BIND_ADDR", "DATA_DIR", "SNAPSHOT_PATH", "UPDATE_LOG_PATH", "SCHEDULER_TIMES",
		"SCHEDULER_TIMEZONE", "KAFKA_BROKERS", "NEWS_PER_CATEGORY", "SUMMARY_LANGUAGE",
		"API_PAGE_SIZE", "API_MAX_PAGE_SIZE", "UPDATE_LOG_CAPACITY", "SCHEDULER_LOG_CAPACITY",
	} {
		t.Setenv(key, "")
	}

	cfg, err := config.LoadAPI()
	require.NoError(t, err)

	require.Equal(t, "0.0.0.0:8080", cfg.BindAddr)
	require.Equal(t, filepath.Join("data", "news.json"), cfg.SnapshotPath)
	require.Equal(t, filepath.Join("data", "update-records.json"), cfg.UpdateLogPath)
	require.Equal(t, 100, cfg.UpdateLogCapacity)
	require.Equal(t, 50, cfg.SchedulerLogCapacity)
	require.Equal(t, 3, cfg.NewsPerCategory)
	require.Equal(t, []time.Duration{8 * time.Hour, 20 * time.Hour}, cfg.ScheduleTimes)
	require.Equal(t, "Asia/Taipei", cfg.Location.String())
	require.Empty(t, cfg.KafkaBrokers)
	require.Equal(t, "news_updates", cfg.KafkaTopic)
	require.True(t, cfg.SchedulerEnabled)
	require.Equal(t, "en", cfg.SummaryLanguage)
}

func TestLoadAPIOverrides(t *testing.T) {
	t.Setenv("API_BIND_ADDR", ":9090")
	t.Setenv("DATA_DIR", "/var/lib/news")
	t.Setenv("SCHEDULER_TIMES", "07:30, 19:45")
	t.Setenv("SCHEDULER_TIMEZONE", "UTC")
	t.Setenv("SCHEDULER_ENABLED", "false")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("UPDATE_LOG_CAPACITY", "200")
	t.Setenv("FEED_TIMEOUT", "3s")
	t.Setenv("SUMMARY_LANGUAGE", "zh-TW")

	cfg, err := config.LoadAPI()
	require.NoError(t, err)

	require.Equal(t, ":9090", cfg.BindAddr)
	require.Equal(t, filepath.Join("/var/lib/news", "news.json"), cfg.SnapshotPath)
	require.Equal(t, []time.Duration{7*time.Hour + 30*time.Minute, 19*time.Hour + 45*time.Minute}, cfg.ScheduleTimes)
	require.Equal(t, time.UTC, cfg.Location)
	require.False(t, cfg.SchedulerEnabled)
	require.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 200, cfg.UpdateLogCapacity)
	require.Equal(t, 3*time.Second, cfg.FeedTimeout)
	require.Equal(t, "zh-TW", cfg.SummaryLanguage)
}

func TestLoadAPIRejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "bad time", key: "SCHEDULER_TIMES", value: "25:00"},
		{name: "bad zone", key: "SCHEDULER_TIMEZONE", value: "Mars/Olympus"},
		{name: "zero capacity", key: "UPDATE_LOG_CAPACITY", value: "0"},
		{name: "zero per category", key: "NEWS_PER_CATEGORY", value: "0"},
		{name: "unknown language", key: "SUMMARY_LANGUAGE", value: "fr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := config.LoadAPI()
			require.Error(t, err)
		})
	}
}

func TestLoadWorkerDefaults(t *testing.T) {
	t.Setenv("ELASTICSEARCH_ADDR", "")
	t.Setenv("ELASTICSEARCH_INDEX", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("KAFKA_TOPIC", "")
	t.Setenv("KAFKA_CONSUMER_GROUP", "")

	cfg, err := config.LoadWorker()
	require.NoError(t, err)

	require.Equal(t, "http://elasticsearch:9200", cfg.ElasticsearchAddr)
	require.Equal(t, "news", cfg.ElasticsearchIndex)
	require.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	require.Equal(t, "news_updates", cfg.KafkaTopic)
	require.Equal(t, "news-indexer", cfg.KafkaConsumer)
}

func TestLoadWorkerOverrides(t *testing.T) {
	t.Setenv("ELASTICSEARCH_ADDR", "http://localhost:9999")
	t.Setenv("ELASTICSEARCH_INDEX", "custom")
	t.Setenv("KAFKA_BROKERS", "broker-a:29092,broker-b:29093")
	t.Setenv("KAFKA_TOPIC", "custom_topic")
	t.Setenv("KAFKA_CONSUMER_GROUP", "custom-group")
	t.Setenv("WORKER_KEYWORD_LIMIT", "12")
	t.Setenv("WORKER_DEDUPE_CAPACITY", "5")
	t.Setenv("WORKER_DEDUPE_TTL", "48h")
	t.Setenv("WORKER_BATCH_SIZE", "3")

	cfg, err := config.LoadWorker()
	require.NoError(t, err)

	require.Equal(t, "http://localhost:9999", cfg.ElasticsearchAddr)
	require.Equal(t, "custom", cfg.ElasticsearchIndex)
	require.Len(t, cfg.KafkaBrokers, 2)
	require.Equal(t, "broker-a:29092", cfg.KafkaBrokers[0])
	require.Equal(t, "custom_topic", cfg.KafkaTopic)
	require.Equal(t, "custom-group", cfg.KafkaConsumer)
	require.Equal(t, 12, cfg.KeywordLimit)
	require.Equal(t, 5, cfg.DedupeCapacity)
	require.Equal(t, 48*time.Hour, cfg.DedupeTTL)
	require.Equal(t, 3, cfg.BatchSize)
}

func TestLoadRetention(t *testing.T) {
	t.Setenv("ELASTICSEARCH_ADDR", "http://ret-es:9200")
	t.Setenv("ELASTICSEARCH_INDEX", "ret-index")
	t.Setenv("RETENTION_CRON", "12h")
	t.Setenv("RETENTION_MAX_AGE", "36h")
	t.Setenv("RETENTION_BATCH_SIZE", "123")

	cfg, err := config.LoadRetention()
	require.NoError(t, err)

	require.Equal(t, 12*time.Hour, cfg.Interval)
	require.Equal(t, 36*time.Hour, cfg.MaxAge)
	require.Equal(t, 123, cfg.BatchSize)
	require.Equal(t, "http://ret-es:9200", cfg.ElasticsearchAddr)
	require.Equal(t, "ret-index", cfg.ElasticsearchIndex)
}
