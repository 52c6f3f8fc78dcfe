package extract_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/k544228/for-news/internal/extract"
)

const articlePage = `<!doctype html>
<html><head>
<title>Fallback title</title>
<meta property="og:title" content="Ocean cleanup reaches milestone">
<meta property="og:description" content="Tonnes of plastic removed.">
<meta property="og:image" content="/img/lead.jpg">
<meta name="author" content="Jane Reporter">
<meta property="article:published_time" content="2025-03-14T08:00:00Z">
<script>var tracking = "ignore me";</script>
</head><body>
<nav><p>Home | World | Tech | Environment</p></nav>
<article>
<p>The cleanup system removed several tonnes of plastic this season.</p>
<p>short</p>
<p>Researchers say marine life is returning to the area.</p>
</article>
<footer><p>Copyright notice that should be ignored</p></footer>
</body></html>`

func TestExtractArticle(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		fmt.Fprint(w, articlePage)
	}))
	defer srv.Close()

	a, err := extract.New(2*time.Second, "", extract.AllowPrivateNetworks()).Extract(context.Background(), srv.URL+"/story")
	require.NoError(t, err)

	require.Equal(t, extract.DefaultUserAgent, gotUA)
	require.Equal(t, "Ocean cleanup reaches milestone", a.Title)
	require.Equal(t, "Jane Reporter", a.Author)
	require.Equal(t, "2025-03-14T08:00:00Z", a.PublishDate)
	require.Equal(t, srv.URL+"/img/lead.jpg", a.LeadImage)
	require.Equal(t, "Tonnes of plastic removed.", a.Excerpt)
	require.Equal(t, "127.0.0.1", a.Domain)
	require.Equal(t,
		"The cleanup system removed several tonnes of plastic this season.\n\nResearchers say marine life is returning to the area.",
		a.TextContent)
	require.NotContains(t, a.TextContent, "tracking")
	require.NotContains(t, a.TextContent, "Copyright")
	require.Equal(t, 19, a.WordCount)
	require.False(t, a.ExtractedAt.IsZero())
}

func TestExtractFallsBackToTitleTagAndBodyParagraphs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title> Plain page </title></head><body><div><p>Body paragraph with enough text.</p></div></body></html>`)
	}))
	defer srv.Close()

	a, err := extract.New(time.Second, "ua", extract.AllowPrivateNetworks()).Extract(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "Plain page", a.Title)
	require.Equal(t, "Body paragraph with enough text.", a.TextContent)
	require.Equal(t, "Body paragraph with enough text.", a.Excerpt)
	require.Empty(t, a.Author)
}

func TestExtractErrors(t *testing.T) {
	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><div>   </div></body></html>`)
	}))
	defer empty.Close()

	missing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer missing.Close()

	ex := extract.New(time.Second, "", extract.AllowPrivateNetworks())

	tests := []struct {
		name string
		url  string
		want error
	}{
		{name: "empty", url: "", want: extract.ErrInvalidURL},
		{name: "relative", url: "/news/1", want: extract.ErrInvalidURL},
		{name: "ftp", url: "ftp://example.com/file", want: extract.ErrInvalidURL},
		{name: "no content", url: empty.URL, want: extract.ErrNoContent},
		{name: "http status", url: missing.URL, want: extract.ErrUnreachable},
		{name: "connection refused", url: "http://127.0.0.1:1/", want: extract.ErrUnreachable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ex.Extract(context.Background(), tt.url)
			require.ErrorIs(t, err, tt.want)
		})
	}

	_, err := ex.Extract(context.Background(), missing.URL)
	var statusErr *extract.StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestExtractRefusesNonPublicHosts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, articlePage)
	}))
	defer srv.Close()

	redirect := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, srv.URL, http.StatusFound)
	}))
	defer redirect.Close()

	ex := extract.New(time.Second, "")
	for _, target := range []string{srv.URL, redirect.URL, "http://[::1]:1/", "http://169.254.169.254/latest/meta-data"} {
		_, err := ex.Extract(context.Background(), target)
		require.ErrorIs(t, err, extract.ErrForbiddenHost, target)
	}
	require.Zero(t, hits.Load())
}

func TestWordCount(t *testing.T) {
	require.Equal(t, 0, extract.WordCount(""))
	require.Equal(t, 3, extract.WordCount("one two  three"))
	require.Equal(t, 5, extract.WordCount("海洋清潔 news"))
	require.Equal(t, 3, extract.WordCount("abc你def"))
}
