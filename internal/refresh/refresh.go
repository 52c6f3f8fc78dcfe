// Package refresh runs the fetch, compare and persist cycle and keeps the update log.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/k544228/for-news/internal/changeset"
	"github.com/k544228/for-news/internal/events"
	"github.com/k544228/for-news/internal/feeds"
	"github.com/k544228/for-news/internal/metrics"
	"github.com/k544228/for-news/internal/models"
)

// ErrRefreshInProgress is returned when another cycle holds the lock.
var ErrRefreshInProgress = errors.New("refresh already in progress")

const (
	StatusRecorded  = "recorded"
	StatusNoChanges = "no-changes"
	statusFailed    = "failed"
)

// Fetcher produces the next snapshot.
type Fetcher interface {
	Fetch(ctx context.Context) (feeds.Result, error)
}

// Store persists the current snapshot.
type Store interface {
	Load(ctx context.Context) (models.Snapshot, error)
	Save(ctx context.Context, snap models.Snapshot) error
}

// Journal is the bounded update log.
type Journal interface {
	Append(ctx context.Context, rec models.UpdateRecord) error
	All(ctx context.Context) ([]models.UpdateRecord, error)
	Recent(ctx context.Context, limit int) ([]models.UpdateRecord, error)
}

// Outcome describes one finished cycle.
type Outcome struct {
	Status         string               `json:"status"`
	Summary        string               `json:"summary"`
	DataOrigin     models.DataOrigin    `json:"dataOrigin"`
	DemoCategories []models.Category    `json:"demoCategories,omitempty"`
	Record         *models.UpdateRecord `json:"record,omitempty"`
}

// Stats totals the update log over a window.
type Stats struct {
	Days         int       `json:"days"`
	TotalUpdates int       `json:"totalUpdates"`
	Added        int       `json:"totalNewsAdded"`
	Updated      int       `json:"totalNewsUpdated"`
	Removed      int       `json:"totalNewsRemoved"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
}

// Options carries the optional collaborators of a Service.
type Options struct {
	Publisher events.Publisher
	Template  changeset.Template
	Clock     changeset.Clock
	Metrics   *metrics.Metrics
}

// Service serializes refresh cycles. At most one runs at a time.
type Service struct {
	mu      sync.Mutex
	running atomic.Bool

	fetcher   Fetcher
	store     Store
	journal   Journal
	publisher events.Publisher
	template  changeset.Template
	clock     changeset.Clock
	metrics   *metrics.Metrics
	log       *slog.Logger
}

// New wires a Service. Zero Options fall back to English summaries, wall clock and no publishing.
func New(fetcher Fetcher, store Store, journal Journal, log *slog.Logger, opts Options) *Service {
	if opts.Publisher == nil {
		opts.Publisher = events.Nop{}
	}
	if opts.Template == (changeset.Template{}) {
		opts.Template = changeset.English
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Service{
		fetcher:   fetcher,
		store:     store,
		journal:   journal,
		publisher: opts.Publisher,
		template:  opts.Template,
		clock:     opts.Clock,
		metrics:   opts.Metrics,
		log:       log,
	}
}

// Running reports whether a cycle is in flight.
func (s *Service) Running() bool {
	return s.running.Load()
}

// Run executes one cycle on behalf of source. It returns ErrRefreshInProgress without
// waiting when another cycle is active.
func (s *Service) Run(ctx context.Context, source models.RecordSource) (Outcome, error) {
	if !source.Valid() {
		return Outcome{}, fmt.Errorf("unknown record source %q", source)
	}
	if !s.mu.TryLock() {
		return Outcome{}, ErrRefreshInProgress
	}
	defer s.mu.Unlock()
	s.running.Store(true)
	defer s.running.Store(false)

	start := time.Now()
	out, err := s.run(ctx, source)
	status := out.Status
	if err != nil {
		status = statusFailed
	}
	if s.metrics != nil {
		s.metrics.ObserveRefresh(string(source), status, time.Since(start))
	}
	if err != nil {
		s.log.Error("refresh failed", slog.String("source", string(source)), slog.Any("err", err))
		return Outcome{}, err
	}

	s.log.Info("refresh finished",
		slog.String("source", string(source)),
		slog.String("status", out.Status),
		slog.String("summary", out.Summary),
		slog.String("origin", string(out.DataOrigin)),
		slog.Duration("took", time.Since(start)),
	)
	return out, nil
}

func (s *Service) run(ctx context.Context, source models.RecordSource) (Outcome, error) {
	current, err := s.store.Load(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("load snapshot: %w", err)
	}

	res, err := s.fetcher.Fetch(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("fetch feeds: %w", err)
	}
	if res.Kind == feeds.Fallback {
		s.log.Warn("using demo content", slog.String("reason", res.Reason))
	}

	now := s.clock()
	next := res.Snapshot
	stampUndated(current, &next, now)
	cs := changeset.Compute(current, next)
	out := Outcome{
		Status:         StatusNoChanges,
		Summary:        s.template.Summarize(cs),
		DataOrigin:     res.Origin(),
		DemoCategories: res.DemoCategories,
	}
	if !changeset.HasChanges(cs) {
		return out, nil
	}

	rec := models.UpdateRecord{
		ID:        uuid.NewString(),
		Timestamp: now,
		Version:   changeset.VersionTag(func() time.Time { return now }),
		Summary:   out.Summary,
		Source:    source,
		Changes:   cs,
		Metadata: models.RecordMetadata{
			TotalNews:      next.Total(),
			CategoryCounts: next.CategoryCounts(),
			DataOrigin:     res.Origin(),
			DemoCategories: res.DemoCategories,
			FallbackReason: res.Reason,
		},
	}

	next.LastUpdated = now
	next.Metadata = &models.SnapshotMetadata{
		TotalNews:    next.Total(),
		UpdateSource: source,
		Version:      rec.Version,
		DataOrigin:   res.Origin(),
	}
	if err := s.store.Save(ctx, next); err != nil {
		return Outcome{}, fmt.Errorf("save snapshot: %w", err)
	}
	if err := s.journal.Append(ctx, rec); err != nil {
		err = fmt.Errorf("append update record: %w", err)
		// Put the previous snapshot back so the next cycle finds the same changes.
		if rerr := s.store.Save(context.WithoutCancel(ctx), current); rerr != nil {
			return Outcome{}, errors.Join(err, fmt.Errorf("restore snapshot: %w", rerr))
		}
		return Outcome{}, err
	}

	if s.metrics != nil {
		s.metrics.ObserveChanges(len(cs.Added), len(cs.Updated), len(cs.Removed))
		for c, n := range rec.Metadata.CategoryCounts {
			s.metrics.SnapshotItems.WithLabelValues(string(c)).Set(float64(n))
		}
	}

	if err := s.publisher.Publish(ctx, rec); err != nil {
		s.log.Warn("publish update record", slog.String("id", rec.ID), slog.Any("err", err))
	}

	out.Status = StatusRecorded
	out.Record = &rec
	return out, nil
}

// stampUndated gives items without a publish time the time they were first seen: the value
// stored for the same id in current, or now for new items.
func stampUndated(current models.Snapshot, next *models.Snapshot, now time.Time) {
	for _, c := range models.Categories {
		items := next.Items(c)
		var stamped []models.NewsItem
		for i, item := range items {
			if !item.PublishedAt.IsZero() {
				continue
			}
			if stamped == nil {
				stamped = slices.Clone(items)
			}
			stamped[i].PublishedAt = now.UTC()
			if prev, ok := current.Find(item.ID); ok && !prev.PublishedAt.IsZero() {
				stamped[i].PublishedAt = prev.PublishedAt
			}
		}
		if stamped != nil {
			next.SetItems(c, stamped)
		}
	}
}

// History returns up to limit records, newest first. limit <= 0 returns all.
func (s *Service) History(ctx context.Context, limit int) ([]models.UpdateRecord, error) {
	return s.journal.Recent(ctx, limit)
}

// Stats totals records whose timestamp falls within the last days days.
func (s *Service) Stats(ctx context.Context, days int) (Stats, error) {
	if days <= 0 {
		days = 7
	}
	records, err := s.journal.All(ctx)
	if err != nil {
		return Stats{}, err
	}

	end := s.clock()
	st := Stats{Days: days, Start: end.AddDate(0, 0, -days), End: end}
	for _, rec := range records {
		if rec.Timestamp.Before(st.Start) {
			continue
		}
		st.TotalUpdates++
		st.Added += len(rec.Changes.Added)
		st.Updated += len(rec.Changes.Updated)
		st.Removed += len(rec.Changes.Removed)
	}
	return st, nil
}
