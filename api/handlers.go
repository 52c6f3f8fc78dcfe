package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/k544228/for-news/internal/elasticsearch"
	"github.com/k544228/for-news/internal/extract"
	"github.com/k544228/for-news/internal/feeds"
	"github.com/k544228/for-news/internal/metrics"
	"github.com/k544228/for-news/internal/models"
	"github.com/k544228/for-news/internal/refresh"
	"github.com/k544228/for-news/internal/scheduler"
)

const (
	defaultUpdatesLimit = 10
	maxUpdatesLimit     = 100
	defaultSummaryDays  = 7
	maxSummaryDays      = 365
	schedulerRecentRuns = 10
)

type snapshotLoader interface {
	Load(ctx context.Context) (models.Snapshot, error)
}

type refresher interface {
	Run(ctx context.Context, source models.RecordSource) (refresh.Outcome, error)
	History(ctx context.Context, limit int) ([]models.UpdateRecord, error)
	Stats(ctx context.Context, days int) (refresh.Stats, error)
}

type searcher interface {
	SearchNews(ctx context.Context, params elasticsearch.SearchParams) (*elasticsearch.SearchResult, error)
}

type contentExtractor interface {
	Extract(ctx context.Context, raw string) (*extract.Article, error)
}

type articleLister interface {
	Articles(ctx context.Context) ([]feeds.Article, error)
}

type schedulerStatus interface {
	Status(ctx context.Context, recent int) (scheduler.Status, error)
}

type server struct {
	log         *slog.Logger
	defaultPage int
	maxPage     int

	snapshots snapshotLoader
	refresh   refresher
	extractor contentExtractor
	articles  articleLister
	metrics   *metrics.Metrics

	// search and schedule are nil when disabled.
	search   searcher
	schedule schedulerStatus
}

type errorResponse struct {
	Error string `json:"error"`
}

type extractRequest struct {
	URL string `json:"url"`
}

type articlesResponse struct {
	Count    int             `json:"count"`
	Articles []feeds.Article `json:"articles"`
}

type updatesResponse struct {
	Count   int                   `json:"count"`
	Records []models.UpdateRecord `json:"records"`
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/news", s.handleNews)
		r.Get("/news/{id}", s.handleNewsItem)
		r.Post("/refresh", s.handleRefresh)
		r.Get("/updates", s.handleUpdates)
		r.Get("/updates/summary", s.handleUpdatesSummary)
		r.Get("/search", s.handleSearch)
		r.Post("/extract-content", s.handleExtract)
		r.Get("/rss-feeds", s.handleRSSFeeds)
		r.Get("/scheduler/status", s.handleSchedulerStatus)
	})
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	snap, err := s.snapshots.Load(ctx)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"totalNews":   snap.Total(),
		"lastUpdated": snap.LastUpdated,
	})
}

func (s *server) handleNews(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshots.Load(r.Context())
	if err != nil {
		s.log.Error("load snapshot", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	raw := strings.TrimSpace(r.URL.Query().Get("category"))
	if raw == "" {
		writeJSON(w, http.StatusOK, snap)
		return
	}
	category := models.Category(raw)
	if !category.Valid() {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown category " + strconv.Quote(raw)})
		return
	}
	items := snap.Items(category)
	if items == nil {
		items = []models.NewsItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *server) handleNewsItem(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshots.Load(r.Context())
	if err != nil {
		s.log.Error("load snapshot", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	item, ok := snap.Find(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "news not found"})
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	// Keep going if the client disconnects.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 2*time.Minute)
	defer cancel()

	outcome, err := s.refresh.Run(ctx, models.SourceManual)
	switch {
	case errors.Is(err, refresh.ErrRefreshInProgress):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
		return
	case err != nil:
		s.log.Error("manual refresh", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}

func (s *server) handleUpdates(w http.ResponseWriter, r *http.Request) {
	limit := clampInt(r.URL.Query().Get("limit"), defaultUpdatesLimit, maxUpdatesLimit)

	records, err := s.refresh.History(r.Context(), limit)
	if err != nil {
		s.log.Error("read update log", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	if records == nil {
		records = []models.UpdateRecord{}
	}

	writeJSON(w, http.StatusOK, updatesResponse{Count: len(records), Records: records})
}

func (s *server) handleUpdatesSummary(w http.ResponseWriter, r *http.Request) {
	days := clampInt(r.URL.Query().Get("days"), defaultSummaryDays, maxSummaryDays)

	stats, err := s.refresh.Stats(r.Context(), days)
	if err != nil {
		s.log.Error("summarize update log", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.search == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "search is disabled"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	q := r.URL.Query()
	params := elasticsearch.SearchParams{
		Query:    strings.TrimSpace(q.Get("q")),
		Keywords: parseCSV(q.Get("keywords")),
		Category: models.Category(strings.TrimSpace(q.Get("category"))),
		Source:   models.Source(strings.TrimSpace(q.Get("source"))),
		From:     clampInt(q.Get("from"), 0, 10_000),
		Size:     clampInt(q.Get("size"), s.defaultPage, s.maxPage),
		Sort:     strings.TrimSpace(q.Get("sort")),
		Start:    parseTime(q.Get("start")),
		End:      parseTime(q.Get("end")),
	}

	result, err := s.search.SearchNews(ctx, params)
	if err != nil {
		s.log.Error("search news", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "url is required"})
		return
	}

	article, err := s.extractor.Extract(r.Context(), req.URL)
	switch {
	case errors.Is(err, extract.ErrInvalidURL), errors.Is(err, extract.ErrForbiddenHost):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	case errors.Is(err, extract.ErrNoContent):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	case errors.Is(err, extract.ErrUnreachable):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	case err != nil:
		s.log.Warn("extract content", slog.String("url", req.URL), slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, article)
}

func (s *server) handleRSSFeeds(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	articles, err := s.articles.Articles(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	if articles == nil {
		articles = []feeds.Article{}
	}

	writeJSON(w, http.StatusOK, articlesResponse{Count: len(articles), Articles: articles})
}

func (s *server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	if s.schedule == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "scheduler is disabled"})
		return
	}

	status, err := s.schedule.Status(r.Context(), schedulerRecentRuns)
	if err != nil {
		s.log.Error("scheduler status", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, status)
}

func parseTime(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return &ts
	}
	return nil
}

func parseCSV(raw string) []string {
	if raw == "" {
		return nil
	}
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

func clampInt(raw string, fallback, max int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	if value <= 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// nothing better to do
	}
}
