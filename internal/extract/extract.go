// Package extract pulls the readable article out of a web page.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/k544228/for-news/internal/processing"
)

const (
	// DefaultUserAgent mimics a desktop browser; many news sites block bare clients.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

	maxBody        = 5 << 20
	excerptLimit   = 200
	minParagraph   = 10
	untitledMarker = "untitled"
)

var (
	ErrInvalidURL  = errors.New("url must be an absolute http or https address")
	ErrNoContent   = errors.New("no readable content found")
	ErrUnreachable = errors.New("page unreachable")
	// ErrForbiddenHost is returned for pages on loopback, private or link-local addresses.
	ErrForbiddenHost = errors.New("host resolves to a non-public address")
)

// StatusError reports a non-2xx answer from the target site.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("page returned HTTP %d", e.StatusCode)
}

func (e *StatusError) Unwrap() error { return ErrUnreachable }

// Article is the extracted page.
type Article struct {
	Title       string    `json:"title"`
	TextContent string    `json:"textContent"`
	Author      string    `json:"author,omitempty"`
	PublishDate string    `json:"publishDate,omitempty"`
	URL         string    `json:"url"`
	WordCount   int       `json:"wordCount"`
	LeadImage   string    `json:"leadImage,omitempty"`
	Domain      string    `json:"domain"`
	Excerpt     string    `json:"excerpt,omitempty"`
	ExtractedAt time.Time `json:"extractedAt"`
}

// Extractor fetches pages and parses them with goquery.
type Extractor struct {
	client       *http.Client
	userAgent    string
	allowPrivate bool
	now          func() time.Time
}

// Option adjusts an Extractor.
type Option func(*Extractor)

// AllowPrivateNetworks lifts the public-address restriction. Meant for tests and trusted networks.
func AllowPrivateNetworks() Option {
	return func(e *Extractor) { e.allowPrivate = true }
}

// New returns an Extractor whose requests time out after timeout. Unless AllowPrivateNetworks
// is given, connections to non-public addresses are refused after DNS resolution, redirects included.
func New(timeout time.Duration, userAgent string, opts ...Option) *Extractor {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	e := &Extractor{userAgent: userAgent, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}

	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	if !e.allowPrivate {
		dialer.Control = publicOnly
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	e.client = &http.Client{Timeout: timeout, Transport: transport}
	return e
}

func publicOnly(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return ErrForbiddenHost
	}
	ip := net.ParseIP(host)
	if ip == nil || ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsMulticast() {
		return ErrForbiddenHost
	}
	return nil
}

// ValidateURL accepts only absolute http(s) URLs with a host.
func ValidateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ErrInvalidURL
	}
	return u, nil
}

// Extract downloads raw and returns its main content.
func (e *Extractor) Extract(ctx context.Context, raw string) (*Article, error) {
	u, err := ValidateURL(raw)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, ErrInvalidURL
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := e.client.Do(req)
	if errors.Is(err, ErrForbiddenHost) {
		return nil, fmt.Errorf("%w: %s", ErrForbiddenHost, u.Hostname())
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript, nav, footer, aside, form").Remove()

	title := firstNonEmpty(
		metaContent(doc, `meta[property="og:title"]`),
		strings.TrimSpace(doc.Find("title").First().Text()),
		strings.TrimSpace(doc.Find("h1").First().Text()),
	)
	text := mainText(doc)
	if title == "" && text == "" {
		return nil, ErrNoContent
	}
	if title == "" {
		title = untitledMarker
	}

	excerpt := firstNonEmpty(
		metaContent(doc, `meta[property="og:description"]`),
		metaContent(doc, `meta[name="description"]`),
	)
	if excerpt == "" {
		excerpt = processing.Truncate(text, excerptLimit)
	}
	if text == "" {
		text = excerpt
	}

	return &Article{
		Title:       processing.StripHTML(title),
		TextContent: text,
		Author: firstNonEmpty(
			metaContent(doc, `meta[name="author"]`),
			metaContent(doc, `meta[property="article:author"]`),
			strings.TrimSpace(doc.Find(`[rel="author"]`).First().Text()),
		),
		PublishDate: firstNonEmpty(
			metaContent(doc, `meta[property="article:published_time"]`),
			metaContent(doc, `meta[name="date"]`),
			attr(doc.Find("time[datetime]").First(), "datetime"),
		),
		URL:         u.String(),
		WordCount:   WordCount(text),
		LeadImage:   resolve(u, metaContent(doc, `meta[property="og:image"]`)),
		Domain:      strings.TrimPrefix(u.Hostname(), "www."),
		Excerpt:     excerpt,
		ExtractedAt: e.now().UTC(),
	}, nil
}

// mainText joins the paragraphs of the most specific container that has any.
func mainText(doc *goquery.Document) string {
	selectors := []string{
		"article p",
		"main p",
		`[role="main"] p`,
		".article-body p, .story-body p, .content p",
		"body p",
	}
	for _, selector := range selectors {
		var paragraphs []string
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			text := processing.StripHTML(s.Text())
			if utf8.RuneCountInString(text) > minParagraph {
				paragraphs = append(paragraphs, text)
			}
		})
		if len(paragraphs) > 0 {
			return strings.Join(paragraphs, "\n\n")
		}
	}
	return ""
}

// WordCount counts space-separated words, with every Han character counted as one word.
func WordCount(text string) int {
	count := 0
	for _, field := range strings.Fields(text) {
		inWord := false
		for _, r := range field {
			if unicode.Is(unicode.Han, r) {
				count++
				inWord = false
				continue
			}
			if !inWord {
				count++
				inWord = true
			}
		}
	}
	return count
}

func metaContent(doc *goquery.Document, selector string) string {
	return attr(doc.Find(selector).First(), "content")
}

func attr(s *goquery.Selection, name string) string {
	v, _ := s.Attr(name)
	return strings.TrimSpace(v)
}

func resolve(base *url.URL, ref string) string {
	if ref == "" {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return base.ResolveReference(r).String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
