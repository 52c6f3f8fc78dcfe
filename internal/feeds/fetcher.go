// Package feeds turns the configured RSS/Atom feeds into news snapshots.
package feeds

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"

	"github.com/k544228/for-news/internal/models"
	"github.com/k544228/for-news/internal/processing"
)

const (
	contentLimit    = 200
	titleWords      = 12
	articlesPerFeed = 3
	maxArticles     = 15

	maxConcurrentFeeds = 8
)

// Kind tells whether a Result carries real feed data.
type Kind int

const (
	// Fetched means at least one category holds real news.
	Fetched Kind = iota
	// Fallback means nothing usable came back and the snapshot is demo content.
	Fallback
)

func (k Kind) String() string {
	if k == Fallback {
		return "fallback"
	}
	return "fetched"
}

// Result is the outcome of one fetch over every enabled feed.
type Result struct {
	Kind     Kind
	Snapshot models.Snapshot
	// DemoCategories lists categories filled from demo data.
	DemoCategories []models.Category
	// Reason explains a Fallback.
	Reason string
	Failed []string
}

// Origin maps the result kind onto record metadata.
func (r Result) Origin() models.DataOrigin {
	if r.Kind == Fallback {
		return models.OriginFallback
	}
	return models.OriginFetched
}

// Article is a raw feed entry as listed by the rss-feeds endpoint.
type Article struct {
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	PubDate     time.Time `json:"pubDate"`
	Source      string    `json:"source"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
}

// Options tunes network behavior and output size.
type Options struct {
	PerCategory int
	Timeout     time.Duration
	Retries     int
	RetryDelay  time.Duration
	UserAgent   string
	Client      *http.Client
	// OnFailure is called once per feed that could not be fetched.
	OnFailure func(feed string)
	Now       func() time.Time
}

// Fetcher downloads feeds with gofeed and normalizes their items.
type Fetcher struct {
	feeds []Feed
	opts  Options
	log   *slog.Logger
}

// NewFetcher validates nothing; pass feeds through LoadFeeds or Validate first.
func NewFetcher(feeds []Feed, opts Options, log *slog.Logger) *Fetcher {
	if opts.PerCategory <= 0 {
		opts.PerCategory = 3
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Fetcher{feeds: enabled(feeds), opts: opts, log: log}
}

// Feeds returns the enabled feeds.
func (f *Fetcher) Feeds() []Feed {
	return f.feeds
}

type feedResult struct {
	feed   Feed
	parsed *gofeed.Feed
	err    error
}

func (f *Fetcher) fetchAll(ctx context.Context) []feedResult {
	results := make([]feedResult, len(f.feeds))
	var g errgroup.Group
	g.SetLimit(maxConcurrentFeeds)
	for i, feed := range f.feeds {
		g.Go(func() error {
			parsed, err := f.fetchFeed(ctx, feed)
			results[i] = feedResult{feed: feed, parsed: parsed, err: err}
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		if r.err == nil {
			f.log.Debug("feed loaded", slog.String("feed", r.feed.Name), slog.Int("items", len(r.parsed.Items)))
			continue
		}
		f.log.Warn("feed failed", slog.String("feed", r.feed.Name), slog.String("url", r.feed.URL), slog.Any("err", r.err))
		if f.opts.OnFailure != nil {
			f.opts.OnFailure(r.feed.Name)
		}
	}
	return results
}

// Fetch builds a snapshot from every enabled feed. Failing feeds are skipped; when nothing
// usable is left the result falls back to demo content. The error is non-nil only when ctx ends.
func (f *Fetcher) Fetch(ctx context.Context) (Result, error) {
	now := f.opts.Now()
	results := f.fetchAll(ctx)
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	buckets := make(map[models.Category][]models.NewsItem, len(models.Categories))
	seen := make(map[string]struct{})
	var failed []string
	for _, r := range results {
		if r.err != nil {
			failed = append(failed, r.feed.Name)
			continue
		}
		for _, it := range r.parsed.Items {
			item, ok := toNewsItem(r.feed, it)
			if !ok {
				continue
			}
			if _, dup := seen[item.ID]; dup {
				continue
			}
			seen[item.ID] = struct{}{}
			buckets[item.Category] = append(buckets[item.Category], item)
		}
	}

	res := Result{Kind: Fetched, Failed: failed}
	total := 0
	for _, c := range models.Categories {
		items := buckets[c]
		sortNewestFirst(items, func(n models.NewsItem) time.Time { return n.PublishedAt })
		if len(items) > f.opts.PerCategory {
			items = items[:f.opts.PerCategory]
		}
		total += len(items)
		res.Snapshot.SetItems(c, items)
	}

	if total == 0 {
		res = Result{Kind: Fallback, Snapshot: DemoSnapshot(now), Failed: failed}
		res.DemoCategories = append([]models.Category(nil), models.Categories...)
		switch {
		case len(f.feeds) == 0:
			res.Reason = "no feeds enabled"
		case len(failed) == len(f.feeds):
			res.Reason = "all feeds failed: " + strings.Join(failed, ", ")
		default:
			res.Reason = "feeds returned no usable items"
		}
		return res, nil
	}

	for _, c := range models.Categories {
		if len(res.Snapshot.Items(c)) == 0 {
			res.Snapshot.SetItems(c, DemoItems(c, now))
			res.DemoCategories = append(res.DemoCategories, c)
		}
	}
	res.Snapshot.LastUpdated = now
	return res, nil
}

// Articles lists the newest entries of every feed, a few per feed, newest first.
func (f *Fetcher) Articles(ctx context.Context) ([]Article, error) {
	now := f.opts.Now()
	results := f.fetchAll(ctx)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []Article
	for _, r := range results {
		if r.err != nil {
			continue
		}
		items := r.parsed.Items
		if len(items) > articlesPerFeed {
			items = items[:articlesPerFeed]
		}
		for _, it := range items {
			a := Article{
				Title:       strings.TrimSpace(processing.StripHTML(it.Title)),
				Link:        strings.TrimSpace(it.Link),
				PubDate:     itemTime(it, now),
				Source:      r.feed.Name,
				Description: processing.StripHTML(firstNonEmpty(it.Description, it.Content)),
				Category:    "general",
			}
			if a.Title == "" {
				a.Title = "untitled"
			}
			if len(it.Categories) > 0 {
				a.Category = it.Categories[0]
			}
			out = append(out, a)
		}
	}
	sortNewestFirst(out, func(a Article) time.Time { return a.PubDate })
	if len(out) > maxArticles {
		out = out[:maxArticles]
	}
	return out, nil
}

func (f *Fetcher) fetchFeed(ctx context.Context, feed Feed) (*gofeed.Feed, error) {
	attempts := f.opts.Retries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		parsed, err := f.parseOnce(ctx, feed.URL)
		if err == nil {
			return parsed, nil
		}
		lastErr = err
		if attempt == attempts || !retryable(err) {
			return nil, fmt.Errorf("fetch %s (attempt %d/%d): %w", feed.Name, attempt, attempts, err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * f.opts.RetryDelay):
		}
	}
	return nil, lastErr
}

func (f *Fetcher) parseOnce(ctx context.Context, url string) (*gofeed.Feed, error) {
	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	p := gofeed.NewParser()
	if f.opts.UserAgent != "" {
		p.UserAgent = f.opts.UserAgent
	}
	if f.opts.Client != nil {
		p.Client = f.opts.Client
	}
	return p.ParseURLWithContext(url, ctx)
}

// retryable rejects failures a second attempt cannot fix: client errors and unparseable bodies.
func retryable(err error) bool {
	if errors.Is(err, gofeed.ErrFeedTypeNotDetected) || errors.Is(err, context.Canceled) {
		return false
	}
	var httpErr gofeed.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500 || httpErr.StatusCode == http.StatusTooManyRequests
	}
	return true
}

// toNewsItem leaves PublishedAt zero for undated entries so that two fetches of the same
// feed produce equal items. The refresh service assigns the time on first sight.
func toNewsItem(feed Feed, it *gofeed.Item) (models.NewsItem, bool) {
	if it == nil {
		return models.NewsItem{}, false
	}
	content := processing.Truncate(processing.StripHTML(firstNonEmpty(it.Description, it.Content)), contentLimit)
	title := processing.StripHTML(it.Title)
	if title == "" {
		title = processing.GenerateTitleFromText(content, titleWords)
	}
	if title == "" {
		return models.NewsItem{}, false
	}

	category := feed.Category
	if category == "" {
		category = processing.Classify(title, content, models.CategoryWorld)
	}
	link := strings.TrimSpace(it.Link)

	return models.NewsItem{
		ID:          processing.BuildItemID(category, link, title),
		Title:       title,
		Content:     content,
		Link:        link,
		Category:    category,
		Source:      feed.Source,
		PublishedAt: itemTime(it, time.Time{}),
	}, true
}

func itemTime(it *gofeed.Item, fallback time.Time) time.Time {
	switch {
	case it.PublishedParsed != nil:
		return it.PublishedParsed.UTC()
	case it.UpdatedParsed != nil:
		return it.UpdatedParsed.UTC()
	default:
		return fallback.UTC()
	}
}

func sortNewestFirst[T any](items []T, at func(T) time.Time) {
	sort.SliceStable(items, func(i, j int) bool {
		return at(items[i]).After(at(items[j]))
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
