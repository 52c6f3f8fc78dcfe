package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/k544228/for-news/internal/metrics"
)

func TestObserveRefreshAndChanges(t *testing.T) {
	m := metrics.New()

	m.ObserveRefresh("manual", "recorded", 150*time.Millisecond)
	m.ObserveRefresh("auto", "no-changes", time.Second)
	m.ObserveChanges(2, 1, 0)

	require.Equal(t, float64(1), testutil.ToFloat64(m.RefreshRuns.WithLabelValues("manual", "recorded")))
	require.Equal(t, float64(2), testutil.ToFloat64(m.Changes.WithLabelValues("added")))
	require.Equal(t, float64(0), testutil.ToFloat64(m.Changes.WithLabelValues("removed")))
	require.Positive(t, testutil.ToFloat64(m.LastRefresh))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := metrics.New()
	m.FeedFailures.WithLabelValues("BBC World").Inc()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	res, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, string(body), `fornews_feed_failures_total{feed="BBC World"} 1`)
}
