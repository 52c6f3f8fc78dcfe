package feeds_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/k544228/for-news/internal/changeset"
	"github.com/k544228/for-news/internal/feeds"
	"github.com/k544228/for-news/internal/logger"
	"github.com/k544228/for-news/internal/models"
)

var fixedNow = time.Date(2025, 3, 14, 9, 26, 0, 0, time.UTC)

type rssItem struct {
	title, link, desc string
	pub               time.Time
}

func rssBody(items ...rssItem) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel><title>t</title><link>https://example.com</link><description>d</description>`)
	for _, it := range items {
		fmt.Fprintf(&b, "<item><title>%s</title><link>%s</link><description><![CDATA[%s]]></description><pubDate>%s</pubDate></item>",
			it.title, it.link, it.desc, it.pub.Format(time.RFC1123Z))
	}
	b.WriteString(`</channel></rss>`)
	return b.String()
}

func newFetcher(t *testing.T, list []feeds.Feed, opts feeds.Options) *feeds.Fetcher {
	t.Helper()
	opts.Now = func() time.Time { return fixedNow }
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Second
	}
	return feeds.NewFetcher(list, opts, logger.Discard())
}

func TestFetchBuildsCappedSortedCategories(t *testing.T) {
	var gotUA atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/rss+xml")
		switch r.URL.Path {
		case "/world":
			fmt.Fprint(w, rssBody(
				rssItem{"Old summit", "https://n.example/1", "<p>leaders <b>meet</b></p>", fixedNow.Add(-5 * time.Hour)},
				rssItem{"Newest vote", "https://n.example/2", "vote", fixedNow.Add(-1 * time.Hour)},
				rssItem{"Middle talks", "https://n.example/3", "talks", fixedNow.Add(-2 * time.Hour)},
				rssItem{"Oldest note", "https://n.example/4", "note", fixedNow.Add(-9 * time.Hour)},
			))
		case "/mixed":
			fmt.Fprint(w, rssBody(
				rssItem{"New AI chip from startup", "https://n.example/5", "software and technology", fixedNow.Add(-3 * time.Hour)},
			))
		}
	}))
	defer srv.Close()

	f := newFetcher(t, []feeds.Feed{
		{Name: "World", URL: srv.URL + "/world", Source: models.SourceBBC, Category: models.CategoryWorld},
		{Name: "Mixed", URL: srv.URL + "/mixed", Source: models.SourceCNN},
	}, feeds.Options{PerCategory: 3, UserAgent: "for-news-test"})

	res, err := f.Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, feeds.Fetched, res.Kind)
	require.Equal(t, models.OriginFetched, res.Origin())
	require.Equal(t, "for-news-test", gotUA.Load())

	world := res.Snapshot.Items(models.CategoryWorld)
	require.Len(t, world, 3)
	require.Equal(t, []string{"Newest vote", "Middle talks", "Old summit"}, []string{world[0].Title, world[1].Title, world[2].Title})
	require.Equal(t, "leaders meet", world[2].Content)
	require.Equal(t, models.SourceBBC, world[0].Source)
	require.True(t, strings.HasPrefix(world[0].ID, "world-"))

	tech := res.Snapshot.Items(models.CategoryTech)
	require.Len(t, tech, 1)
	require.Equal(t, models.SourceCNN, tech[0].Source)

	require.Equal(t, []models.Category{models.CategoryEnvironment}, res.DemoCategories)
	require.NotEmpty(t, res.Snapshot.Items(models.CategoryEnvironment))
	require.Equal(t, fixedNow, res.Snapshot.LastUpdated)
}

func TestFetchIDsAreStableAcrossRuns(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rssBody(rssItem{"Story", "https://n.example/a", "body", fixedNow}))
	}))
	defer srv.Close()

	f := newFetcher(t, []feeds.Feed{{Name: "W", URL: srv.URL, Source: models.SourceAP, Category: models.CategoryWorld}}, feeds.Options{})

	first, err := f.Fetch(context.Background())
	require.NoError(t, err)
	second, err := f.Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, first.Snapshot.World[0].ID, second.Snapshot.World[0].ID)
	require.True(t, first.Snapshot.World[0].Equal(second.Snapshot.World[0]))
}

func TestFetchFallsBackWhenAllFeedsFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	var failures []string
	f := newFetcher(t, []feeds.Feed{
		{Name: "A", URL: srv.URL + "/a", Source: models.SourceBBC},
		{Name: "B", URL: srv.URL + "/b", Source: models.SourceBBC, Enabled: boolPtr(false)},
	}, feeds.Options{Retries: 2, RetryDelay: time.Millisecond, OnFailure: func(name string) { failures = append(failures, name) }})

	res, err := f.Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, feeds.Fallback, res.Kind)
	require.Equal(t, models.OriginFallback, res.Origin())
	require.Equal(t, "all feeds failed: A", res.Reason)
	require.Equal(t, models.Categories, res.DemoCategories)
	require.Equal(t, []string{"A"}, failures)
	require.Equal(t, feeds.DemoSnapshot(fixedNow).Total(), res.Snapshot.Total())
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, rssBody(rssItem{"Recovered", "https://n.example/r", "ok", fixedNow}))
	}))
	defer srv.Close()

	f := newFetcher(t, []feeds.Feed{{Name: "W", URL: srv.URL, Source: models.SourceBBC, Category: models.CategoryWorld}},
		feeds.Options{Retries: 2, RetryDelay: time.Millisecond})

	res, err := f.Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, feeds.Fetched, res.Kind)
	require.Equal(t, int32(3), calls.Load())
	require.Equal(t, "Recovered", res.Snapshot.World[0].Title)
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	f := newFetcher(t, []feeds.Feed{{Name: "W", URL: srv.URL, Source: models.SourceBBC}},
		feeds.Options{Retries: 3, RetryDelay: time.Millisecond})

	_, err := f.Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(1), calls.Load())
}

func TestFetchCanceledContext(t *testing.T) {
	f := newFetcher(t, []feeds.Feed{{Name: "W", URL: "http://127.0.0.1:1/rss", Source: models.SourceBBC}}, feeds.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Fetch(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestArticlesLimitsPerFeedAndSorts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		base := fixedNow
		if r.URL.Path == "/b" {
			base = fixedNow.Add(-30 * time.Minute)
		}
		var items []rssItem
		for i := 0; i < 5; i++ {
			items = append(items, rssItem{
				title: fmt.Sprintf("%s-%d", strings.TrimPrefix(r.URL.Path, "/"), i),
				link:  fmt.Sprintf("https://n.example%s/%d", r.URL.Path, i),
				desc:  "d",
				pub:   base.Add(-time.Duration(i) * time.Hour),
			})
		}
		fmt.Fprint(w, rssBody(items...))
	}))
	defer srv.Close()

	f := newFetcher(t, []feeds.Feed{
		{Name: "A", URL: srv.URL + "/a", Source: models.SourceBBC},
		{Name: "B", URL: srv.URL + "/b", Source: models.SourceBBC},
	}, feeds.Options{})

	articles, err := f.Articles(context.Background())
	require.NoError(t, err)
	require.Len(t, articles, 6)
	require.Equal(t, "a-0", articles[0].Title)
	require.Equal(t, "b-0", articles[1].Title)
	require.Equal(t, "A", articles[0].Source)
	require.Equal(t, "general", articles[0].Category)
	for i := 1; i < len(articles); i++ {
		require.False(t, articles[i].PubDate.After(articles[i-1].PubDate))
	}
}

func TestLoadFeeds(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file uses defaults", func(t *testing.T) {
		list, err := feeds.LoadFeeds(filepath.Join(dir, "nope.yaml"))
		require.NoError(t, err)
		require.Equal(t, feeds.DefaultFeeds, list)
	})

	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(dir, "feeds.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
feeds:
  - name: Tech
    url: https://example.com/tech.xml
    source: AP
    category: tech
  - name: Off
    url: https://example.com/off.xml
    source: CNN
    enabled: false
`), 0o644))
		list, err := feeds.LoadFeeds(path)
		require.NoError(t, err)
		require.Len(t, list, 2)
		require.Equal(t, models.CategoryTech, list[0].Category)
		require.True(t, list[0].IsEnabled())
		require.False(t, list[1].IsEnabled())
	})

	t.Run("unknown source", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("feeds:\n  - name: X\n    url: https://x\n    source: Reuters\n"), 0o644))
		_, err := feeds.LoadFeeds(path)
		require.ErrorContains(t, err, "unknown source")
	})

	t.Run("repo config parses", func(t *testing.T) {
		list, err := feeds.LoadFeeds(filepath.Join("..", "..", "configs", "feeds.yaml"))
		require.NoError(t, err)
		require.NoError(t, feeds.Validate(list))
	})
}

func TestDemoSnapshotIsStableWithinADay(t *testing.T) {
	a := feeds.DemoSnapshot(fixedNow)
	b := feeds.DemoSnapshot(fixedNow.Add(3 * time.Hour))
	for _, c := range models.Categories {
		require.Len(t, a.Items(c), 2)
		for i := range a.Items(c) {
			require.True(t, a.Items(c)[i].Equal(b.Items(c)[i]))
			require.Equal(t, c, a.Items(c)[i].Category)
		}
	}
	require.NoError(t, a.Validate())
}

func boolPtr(b bool) *bool { return &b }

func TestFetchUndatedItemsAreStableAcrossRuns(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<?xml version="1.0"?><rss version="2.0"><channel><title>t</title><link>https://example.com</link>`+
			`<item><title>Undated story</title><link>https://n.example/u</link><description>body</description></item>`+
			`</channel></rss>`)
	}))
	defer srv.Close()

	now := fixedNow
	f := feeds.NewFetcher(
		[]feeds.Feed{{Name: "W", URL: srv.URL, Source: models.SourceAP, Category: models.CategoryWorld}},
		feeds.Options{Timeout: 2 * time.Second, Now: func() time.Time { return now }},
		logger.Discard(),
	)

	first, err := f.Fetch(context.Background())
	require.NoError(t, err)
	require.True(t, first.Snapshot.World[0].PublishedAt.IsZero())

	now = fixedNow.Add(12 * time.Hour)
	second, err := f.Fetch(context.Background())
	require.NoError(t, err)

	cs := changeset.Compute(first.Snapshot, second.Snapshot)
	require.Empty(t, cs.Updated)
	require.False(t, changeset.HasChanges(cs))
}
