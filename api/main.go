package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/k544228/for-news/internal/changeset"
	"github.com/k544228/for-news/internal/config"
	"github.com/k544228/for-news/internal/elasticsearch"
	"github.com/k544228/for-news/internal/events"
	"github.com/k544228/for-news/internal/extract"
	"github.com/k544228/for-news/internal/feeds"
	"github.com/k544228/for-news/internal/journal"
	"github.com/k544228/for-news/internal/logger"
	"github.com/k544228/for-news/internal/metrics"
	"github.com/k544228/for-news/internal/models"
	"github.com/k544228/for-news/internal/refresh"
	"github.com/k544228/for-news/internal/scheduler"
	"github.com/k544228/for-news/internal/snapshot"
)

func main() {
	log := logger.New("api")
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	feedList, err := feeds.LoadFeeds(cfg.FeedsConfigPath)
	if err != nil {
		log.Error("load feeds", slog.String("path", cfg.FeedsConfigPath), slog.Any("err", err))
		os.Exit(1)
	}

	m := metrics.New()
	fetcher := feeds.NewFetcher(feedList, feeds.Options{
		PerCategory: cfg.NewsPerCategory,
		Timeout:     cfg.FeedTimeout,
		Retries:     cfg.FeedRetries,
		RetryDelay:  cfg.FeedRetryDelay,
		UserAgent:   cfg.FeedUserAgent,
		OnFailure: func(feed string) {
			m.FeedFailures.WithLabelValues(feed).Inc()
		},
	}, log)

	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		log.Info("publishing update records", slog.String("topic", cfg.KafkaTopic))
	}
	defer publisher.Close()

	template := changeset.English
	if cfg.SummaryLanguage == "zh-TW" {
		template = changeset.TraditionalChinese
	}

	store := snapshot.NewFileStore(cfg.SnapshotPath)
	updates := journal.New[models.UpdateRecord](cfg.UpdateLogPath, cfg.UpdateLogCapacity)
	refreshService := refresh.New(fetcher, store, updates, log, refresh.Options{
		Publisher: publisher,
		Template:  template,
		Metrics:   m,
	})

	srv := &server{
		log:         log,
		defaultPage: cfg.DefaultPage,
		maxPage:     cfg.MaxPage,
		snapshots:   store,
		refresh:     refreshService,
		extractor:   extract.New(cfg.ExtractTimeout, ""),
		articles:    fetcher,
		metrics:     m,
	}

	if cfg.SearchEnabled {
		esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
		if err != nil {
			log.Error("init elasticsearch", slog.Any("err", err))
			os.Exit(1)
		}
		srv.search = esClient
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if cfg.SchedulerEnabled {
		runs := journal.New[models.RunRecord](cfg.SchedulerLogPath, cfg.SchedulerLogCapacity)
		sched := scheduler.New(refreshService, runs, store, scheduler.Config{
			Times:          cfg.ScheduleTimes,
			Location:       cfg.Location,
			HealthInterval: cfg.HealthInterval,
			StaleAfter:     cfg.StaleAfter,
		}, log)
		srv.schedule = sched
		go sched.Start(ctx)
	}

	if _, err := store.Stat(); errors.Is(err, os.ErrNotExist) {
		go func() {
			log.Info("no snapshot yet, running initial refresh")
			if _, err := refreshService.Run(ctx, models.SourceAuto); err != nil && !errors.Is(err, refresh.ErrRefreshInProgress) {
				log.Error("initial refresh", slog.Any("err", err))
			}
		}()
	}

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      3 * time.Minute,
	}

	go func() {
		log.Info("api server starting", slog.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
}
