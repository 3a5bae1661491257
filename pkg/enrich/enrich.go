// Package enrich backfills submission metadata by refetching the problem
// page with the browser's own session credentials and re-running the page
// extraction heuristics over the response.
package enrich

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/gitgrind/gitgrind/pkg/extract"
	"github.com/gitgrind/gitgrind/pkg/logging"
	"github.com/gitgrind/gitgrind/pkg/normalize"
)

const (
	// defaultTimeout bounds a single problem-page fetch. Enrichment is
	// best-effort and must never stall a push.
	defaultTimeout = 10 * time.Second

	// maxBodyBytes caps how much of a problem page we are willing to parse.
	maxBodyBytes = 4 << 20

	userAgent = "gitgrind/1.0"
)

// CredentialSource supplies the session cookie header for the practice site.
// An empty string means fetch anonymously.
type CredentialSource func() string

// Fetcher implements normalize.Enricher over HTTP. Requests are rate limited
// so a burst of submissions does not hammer the site.
type Fetcher struct {
	httpClient  *http.Client
	limiter     *rate.Limiter
	credentials CredentialSource
	logger      *logging.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient overrides the HTTP client used for page fetches.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.httpClient = c }
}

// WithCredentials sets the source of the site session cookie.
func WithCredentials(src CredentialSource) Option {
	return func(f *Fetcher) { f.credentials = src }
}

// WithLimiter overrides the default rate limit of one fetch per two seconds.
func WithLimiter(l *rate.Limiter) Option {
	return func(f *Fetcher) { f.limiter = l }
}

// WithLogger attaches a logger for fetch failures.
func WithLogger(l *logging.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// NewFetcher creates a Fetcher with sane defaults.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		httpClient: &http.Client{Timeout: defaultTimeout},
		limiter:    rate.NewLimiter(rate.Every(2*time.Second), 1),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Enrich fetches problemURL and extracts title, difficulty, description and
// problem number from the page. Any failure (rate limit wait aborted, network
// error, non-200, unparseable body) yields an empty Enrichment.
func (f *Fetcher) Enrich(ctx context.Context, problemURL string) normalize.Enrichment {
	if err := f.limiter.Wait(ctx); err != nil {
		return normalize.Enrichment{}
	}

	doc, err := f.fetch(ctx, problemURL)
	if err != nil {
		f.logger.Warn(logging.CategoryExtract, "enrich_fetch_failed", "enrichment fetch failed", map[string]any{
			"url":   problemURL,
			"error": err.Error(),
		})
		return normalize.Enrichment{}
	}

	snap := extract.FromDocument(problemURL, doc)
	var enr normalize.Enrichment
	if title, ok := extract.Title(snap); ok {
		enr.Title = title
	}
	if diff, ok := extract.Difficulty(snap); ok {
		enr.Difficulty = diff
	}
	if desc, ok := extract.Description(snap); ok {
		enr.Description = desc
	}
	if num, ok := extract.ProblemNumber(snap); ok {
		enr.ProblemNumber = num
	}
	return enr
}

func (f *Fetcher) fetch(ctx context.Context, url string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html")
	if f.credentials != nil {
		if cookie := f.credentials(); cookie != "" {
			req.Header.Set("Cookie", cookie)
		}
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &statusError{status: resp.StatusCode}
	}
	return goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
}

type statusError struct {
	status int
}

func (e *statusError) Error() string {
	return http.StatusText(e.status)
}
