package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// Common contains Elasticsearch parameters shared by every service.
type Common struct {
	ElasticsearchAddr  string
	ElasticsearchIndex string
}

// API describes the HTTP service, the refresh pipeline and the in-process scheduler.
type API struct {
	Common
	BindAddr    string
	DefaultPage int
	MaxPage     int

	DataDir              string
	SnapshotPath         string
	UpdateLogPath        string
	UpdateLogCapacity    int
	SchedulerLogPath     string
	SchedulerLogCapacity int
	SummaryLanguage      string

	FeedsConfigPath string
	NewsPerCategory int
	FeedTimeout     time.Duration
	FeedRetries     int
	FeedRetryDelay  time.Duration
	FeedUserAgent   string
	ExtractTimeout  time.Duration

	SchedulerEnabled bool
	ScheduleTimes    []time.Duration
	Location         *time.Location
	HealthInterval   time.Duration
	StaleAfter       time.Duration

	SearchEnabled bool
	KafkaBrokers  []string
	KafkaTopic    string
}

// Worker holds configuration for the Kafka -> Elasticsearch indexer.
type Worker struct {
	Common
	KafkaBrokers     []string
	KafkaTopic       string
	KafkaConsumer    string
	KeywordLimit     int
	KeywordMinLength int
	DedupeCapacity   int
	DedupeTTL        time.Duration
	BatchSize        int
}

// Retention configures the cleanup loop.
type Retention struct {
	Common
	Interval  time.Duration
	MaxAge    time.Duration
	BatchSize int
}

func loadCommon() Common {
	return Common{
		ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
		ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "news"),
	}
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	dataDir := getEnv("DATA_DIR", "data")
	c := &API{
		Common:      loadCommon(),
		BindAddr:    getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
		DefaultPage: getInt("API_PAGE_SIZE", 20),
		MaxPage:     getInt("API_MAX_PAGE_SIZE", 100),

		DataDir:              dataDir,
		SnapshotPath:         getEnv("SNAPSHOT_PATH", filepath.Join(dataDir, "news.json")),
		UpdateLogPath:        getEnv("UPDATE_LOG_PATH", filepath.Join(dataDir, "update-records.json")),
		UpdateLogCapacity:    getInt("UPDATE_LOG_CAPACITY", 100),
		SchedulerLogPath:     getEnv("SCHEDULER_LOG_PATH", filepath.Join(dataDir, "scheduler-records.json")),
		SchedulerLogCapacity: getInt("SCHEDULER_LOG_CAPACITY", 50),
		SummaryLanguage:      getEnv("SUMMARY_LANGUAGE", "en"),

		FeedsConfigPath: getEnv("FEEDS_CONFIG", "configs/feeds.yaml"),
		NewsPerCategory: getInt("NEWS_PER_CATEGORY", 3),
		FeedTimeout:     getDuration("FEED_TIMEOUT", "10s"),
		FeedRetries:     getInt("FEED_RETRY_ATTEMPTS", 2),
		FeedRetryDelay:  getDuration("FEED_RETRY_DELAY", "1s"),
		FeedUserAgent:   getEnv("FEED_USER_AGENT", "FOR-NEWS/1.0"),
		ExtractTimeout:  getDuration("EXTRACT_TIMEOUT", "15s"),

		SchedulerEnabled: getBool("SCHEDULER_ENABLED", true),
		HealthInterval:   getDuration("SCHEDULER_HEALTH_INTERVAL", "1h"),
		StaleAfter:       getDuration("SCHEDULER_STALE_AFTER", "24h"),

		SearchEnabled: getBool("API_SEARCH_ENABLED", true),
		KafkaBrokers:  splitAndTrim(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:    getEnv("KAFKA_TOPIC", "news_updates"),
	}

	times, err := parseClockTimes(getEnv("SCHEDULER_TIMES", "08:00,20:00"))
	if err != nil {
		return nil, fmt.Errorf("SCHEDULER_TIMES: %w", err)
	}
	c.ScheduleTimes = times

	loc, err := time.LoadLocation(getEnv("SCHEDULER_TIMEZONE", "Asia/Taipei"))
	if err != nil {
		return nil, fmt.Errorf("SCHEDULER_TIMEZONE: %w", err)
	}
	c.Location = loc

	if c.DefaultPage <= 0 {
		return nil, fmt.Errorf("API_PAGE_SIZE must be positive")
	}
	if c.MaxPage <= 0 {
		return nil, fmt.Errorf("API_MAX_PAGE_SIZE must be positive")
	}
	if c.DefaultPage > c.MaxPage {
		return nil, fmt.Errorf("API_PAGE_SIZE cannot exceed API_MAX_PAGE_SIZE")
	}
	if c.UpdateLogCapacity <= 0 {
		return nil, fmt.Errorf("UPDATE_LOG_CAPACITY must be positive")
	}
	if c.SchedulerLogCapacity <= 0 {
		return nil, fmt.Errorf("SCHEDULER_LOG_CAPACITY must be positive")
	}
	if c.NewsPerCategory <= 0 {
		return nil, fmt.Errorf("NEWS_PER_CATEGORY must be positive")
	}
	if c.FeedRetries < 0 {
		return nil, fmt.Errorf("FEED_RETRY_ATTEMPTS cannot be negative")
	}
	if c.SummaryLanguage != "en" && c.SummaryLanguage != "zh-TW" {
		return nil, fmt.Errorf("SUMMARY_LANGUAGE must be 'en' or 'zh-TW'")
	}

	return c, nil
}

// LoadWorker builds a Worker config from environment variables.
func LoadWorker() (*Worker, error) {
	c := &Worker{
		Common:           loadCommon(),
		KafkaBrokers:     splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092")),
		KafkaTopic:       getEnv("KAFKA_TOPIC", "news_updates"),
		KafkaConsumer:    getEnv("KAFKA_CONSUMER_GROUP", "news-indexer"),
		KeywordLimit:     getInt("WORKER_KEYWORD_LIMIT", 8),
		KeywordMinLength: getInt("WORKER_KEYWORD_MIN_LENGTH", 3),
		DedupeCapacity:   getInt("WORKER_DEDUPE_CAPACITY", 20000),
		DedupeTTL:        getDuration("WORKER_DEDUPE_TTL", "24h"),
		BatchSize:        getInt("WORKER_BATCH_SIZE", 10),
	}

	if len(c.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("WORKER_BATCH_SIZE must be positive")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("WORKER_DEDUPE_CAPACITY must be positive")
	}
	if c.KeywordLimit <= 0 {
		return nil, fmt.Errorf("WORKER_KEYWORD_LIMIT must be positive")
	}

	return c, nil
}

// LoadRetention builds a Retention config from environment variables.
func LoadRetention() (*Retention, error) {
	c := &Retention{
		Common:    loadCommon(),
		Interval:  getDuration("RETENTION_CRON", "24h"),
		MaxAge:    getDuration("RETENTION_MAX_AGE", "720h"),
		BatchSize: getInt("RETENTION_BATCH_SIZE", 500),
	}

	if c.MaxAge <= 0 {
		return nil, fmt.Errorf("RETENTION_MAX_AGE must be positive")
	}
	if c.Interval <= 0 {
		return nil, fmt.Errorf("RETENTION_CRON must be positive")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("RETENTION_BATCH_SIZE must be positive")
	}

	return c, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	raw := getEnv(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil {
		fd, ferr := time.ParseDuration(fallback)
		if ferr != nil {
			panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, ferr))
		}
		return fd
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// parseClockTimes turns "08:00,20:00" into offsets from midnight.
func parseClockTimes(raw string) ([]time.Duration, error) {
	parts := splitAndTrim(raw)
	if len(parts) == 0 {
		return nil, fmt.Errorf("at least one time is required")
	}
	out := make([]time.Duration, 0, len(parts))
	for _, p := range parts {
		ts, err := time.Parse("15:04", p)
		if err != nil {
			return nil, fmt.Errorf("invalid time %q: %w", p, err)
		}
		out = append(out, time.Duration(ts.Hour())*time.Hour+time.Duration(ts.Minute())*time.Minute)
	}
	return out, nil
}
