// Package scheduler triggers automatic refreshes at fixed times of day and watches snapshot freshness.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/k544228/for-news/internal/models"
	"github.com/k544228/for-news/internal/refresh"
)

const (
	RunType       = "scheduled_update"
	StatusSuccess = "success"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// Runner performs one refresh cycle.
type Runner interface {
	Run(ctx context.Context, source models.RecordSource) (refresh.Outcome, error)
	Running() bool
}

// Journal keeps run records.
type Journal interface {
	Append(ctx context.Context, rec models.RunRecord) error
	Recent(ctx context.Context, limit int) ([]models.RunRecord, error)
}

// FileInfo exposes the snapshot file for health checks.
type FileInfo interface {
	Stat() (os.FileInfo, error)
}

// Slot is a daily trigger time, as an offset from local midnight.
type Slot struct {
	Offset time.Duration
	Period string
}

// Config describes when to run.
type Config struct {
	Times          []time.Duration
	Location       *time.Location
	HealthInterval time.Duration
	StaleAfter     time.Duration
	Now            func() time.Time
}

// Health is the result of one freshness check.
type Health struct {
	Timestamp       time.Time     `json:"timestamp"`
	Running         bool          `json:"isRunning"`
	LastRun         *time.Time    `json:"lastUpdate,omitempty"`
	RunCount        int           `json:"updateCount"`
	SnapshotAge     time.Duration `json:"newsFileAge,omitempty"`
	SnapshotSize    int64         `json:"newsFileSize,omitempty"`
	SnapshotMissing bool          `json:"newsFileMissing,omitempty"`
	Stale           bool          `json:"stale"`
}

// Status is the scheduler view exposed over HTTP.
type Status struct {
	Running    bool               `json:"isRunning"`
	LastRun    *time.Time         `json:"lastUpdate,omitempty"`
	LastStatus string             `json:"lastStatus,omitempty"`
	RunCount   int                `json:"updateCount"`
	NextRun    time.Time          `json:"nextRun"`
	NextPeriod string             `json:"nextPeriod"`
	Timezone   string             `json:"timezone"`
	Uptime     float64            `json:"uptimeSeconds"`
	Recent     []models.RunRecord `json:"recent"`
}

// Scheduler fires refreshes on daily slots.
type Scheduler struct {
	runner  Runner
	journal Journal
	files   FileInfo
	slots   []Slot
	loc     *time.Location
	health  time.Duration
	stale   time.Duration
	now     func() time.Time
	log     *slog.Logger
	started time.Time

	mu         sync.Mutex
	lastRun    *time.Time
	lastStatus string
	runCount   int
}

// New builds a Scheduler. Times default to 08:00 and 20:00 in UTC when unset.
func New(runner Runner, journal Journal, files FileInfo, cfg Config, log *slog.Logger) *Scheduler {
	if len(cfg.Times) == 0 {
		cfg.Times = []time.Duration{8 * time.Hour, 20 * time.Hour}
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = time.Hour
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 24 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scheduler{
		runner:  runner,
		journal: journal,
		files:   files,
		slots:   Slots(cfg.Times),
		loc:     cfg.Location,
		health:  cfg.HealthInterval,
		stale:   cfg.StaleAfter,
		now:     cfg.Now,
		log:     log,
		started: cfg.Now(),
	}
}

// Slots sorts times of day and names each by part of day.
func Slots(times []time.Duration) []Slot {
	slots := make([]Slot, 0, len(times))
	for _, t := range times {
		slots = append(slots, Slot{Offset: t, Period: periodOf(t)})
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Offset < slots[j].Offset })
	return slots
}

func periodOf(offset time.Duration) string {
	switch {
	case offset < 12*time.Hour:
		return "morning"
	case offset < 18*time.Hour:
		return "afternoon"
	default:
		return "evening"
	}
}

// Next returns the first slot strictly after now.
func (s *Scheduler) Next(now time.Time) (time.Time, Slot) {
	local := now.In(s.loc)
	y, m, d := local.Date()
	for day := 0; day <= 1; day++ {
		for _, slot := range s.slots {
			h := int(slot.Offset / time.Hour)
			minute := int((slot.Offset % time.Hour) / time.Minute)
			at := time.Date(y, m, d+day, h, minute, 0, 0, s.loc)
			if at.After(now) {
				return at, slot
			}
		}
	}
	// Unreachable with at least one slot inside a day.
	first := s.slots[0]
	return time.Date(y, m, d+1, 0, 0, 0, 0, s.loc).Add(first.Offset), first
}

// Start runs the schedule until ctx is canceled.
func (s *Scheduler) Start(ctx context.Context) {
	s.log.Info("scheduler started", slog.String("timezone", s.loc.String()), slog.Int("slots", len(s.slots)))
	s.CheckHealth(ctx)

	health := time.NewTicker(s.health)
	defer health.Stop()

	for {
		next, slot := s.Next(s.now())
		s.log.Debug("next refresh", slog.Time("at", next), slog.String("period", slot.Period))
		timer := time.NewTimer(next.Sub(s.now()))

		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info("scheduler stopped")
			return
		case <-health.C:
			timer.Stop()
			s.CheckHealth(ctx)
		case <-timer.C:
			s.RunSlot(ctx, slot.Period)
		}
	}
}

// RunSlot performs one automatic refresh and records the run.
func (s *Scheduler) RunSlot(ctx context.Context, period string) models.RunRecord {
	start := s.now()
	_, err := s.runner.Run(ctx, models.SourceAuto)
	rec := models.RunRecord{
		ID:        uuid.NewString(),
		Timestamp: start,
		Type:      RunType,
		Status:    StatusSuccess,
		Period:    period,
		Duration:  s.now().Sub(start).Milliseconds(),
	}

	switch {
	case errors.Is(err, refresh.ErrRefreshInProgress):
		rec.Status = StatusSkipped
		rec.Error = err.Error()
		s.log.Warn("refresh already running, skipping slot", slog.String("period", period))
	case err != nil:
		rec.Status = StatusFailed
		rec.Error = err.Error()
		s.log.Error("scheduled refresh failed", slog.String("period", period), slog.Any("err", err))
	default:
		s.log.Info("scheduled refresh done", slog.String("period", period), slog.Int64("duration_ms", rec.Duration))
	}

	s.mu.Lock()
	if rec.Status == StatusSuccess {
		ts := start
		s.lastRun = &ts
		s.runCount++
	}
	s.lastStatus = rec.Status
	s.mu.Unlock()

	if err := s.journal.Append(ctx, rec); err != nil {
		s.log.Error("record scheduler run", slog.Any("err", err))
	}
	return rec
}

// CheckHealth warns when neither the snapshot file nor a successful run is recent.
func (s *Scheduler) CheckHealth(ctx context.Context) Health {
	now := s.now()
	s.mu.Lock()
	h := Health{
		Timestamp: now,
		Running:   s.runner.Running(),
		LastRun:   s.lastRun,
		RunCount:  s.runCount,
	}
	s.mu.Unlock()

	info, err := s.files.Stat()
	switch {
	case errors.Is(err, os.ErrNotExist):
		h.SnapshotMissing = true
		h.Stale = true
	case err != nil:
		s.log.Error("health check", slog.Any("err", err))
		return h
	default:
		h.SnapshotAge = now.Sub(info.ModTime())
		h.SnapshotSize = info.Size()
		h.Stale = h.SnapshotAge > s.stale
		// A successful run with no changes leaves the file untouched.
		if h.Stale && h.LastRun != nil && now.Sub(*h.LastRun) <= s.stale {
			h.Stale = false
		}
	}

	if h.Stale {
		s.log.Warn("news snapshot is stale",
			slog.Bool("missing", h.SnapshotMissing),
			slog.Duration("age", h.SnapshotAge),
			slog.Duration("threshold", s.stale),
		)
	} else {
		s.log.Debug("health check ok", slog.Duration("age", h.SnapshotAge), slog.Int64("size", h.SnapshotSize))
	}
	return h
}

// Status reports counters, the next slot and the latest runs.
func (s *Scheduler) Status(ctx context.Context, recent int) (Status, error) {
	now := s.now()
	next, slot := s.Next(now)

	s.mu.Lock()
	st := Status{
		Running:    s.runner.Running(),
		LastRun:    s.lastRun,
		LastStatus: s.lastStatus,
		RunCount:   s.runCount,
		NextRun:    next,
		NextPeriod: slot.Period,
		Timezone:   s.loc.String(),
		Uptime:     now.Sub(s.started).Seconds(),
	}
	s.mu.Unlock()

	runs, err := s.journal.Recent(ctx, recent)
	if err != nil {
		return st, err
	}
	if runs == nil {
		runs = []models.RunRecord{}
	}
	st.Recent = runs
	return st, nil
}
