package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ppiankov/vitals/internal/cache"
	"github.com/ppiankov/vitals/internal/logging"
	"github.com/ppiankov/vitals/internal/model"
	"github.com/ppiankov/vitals/internal/util"
)

// ErrDisallowedByRobots is wrapped in a *model.FetchError when robots.txt forbids the page
var ErrDisallowedByRobots = errors.New("disallowed by robots.txt")

// browserHeaders are sent with every page request; the source rejects obvious bots
var browserHeaders = map[string]string{
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.5",
	"Connection":      "keep-alive",
}

// Fetcher fetches HTML content from URLs. It never retries.
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	limiter    *util.HostLimiter
	robots     *util.RobotsChecker
	cache      cache.Cache
	cacheTTL   time.Duration
	logger     logging.Logger
}

// FetcherOption configures a Fetcher
type FetcherOption func(*Fetcher)

// WithLimiter rate-limits requests per host
func WithLimiter(l *util.HostLimiter) FetcherOption {
	return func(f *Fetcher) { f.limiter = l }
}

// WithRobots checks robots.txt before each request
func WithRobots(r *util.RobotsChecker) FetcherOption {
	return func(f *Fetcher) { f.robots = r }
}

// WithPageCache serves and stores successful responses through c
func WithPageCache(c cache.Cache, ttl time.Duration) FetcherOption {
	return func(f *Fetcher) {
		f.cache = c
		f.cacheTTL = ttl
	}
}

// WithFetchLogger sets the logger
func WithFetchLogger(logger logging.Logger) FetcherOption {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) {
		if c != nil {
			f.httpClient = c
		}
	}
}

// NewFetcher creates a new Fetcher with the given configuration
func NewFetcher(cfg model.HTTPConfig, opts ...FetcherOption) *Fetcher {
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = model.DefaultUserAgent
	}
	maxBytes := cfg.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = 5_000_000
	}

	f := &Fetcher{
		httpClient: NewHTTPClient(cfg),
		userAgent:  userAgent,
		maxBytes:   maxBytes,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewHTTPClient builds the outbound client shared by the fetcher and the robots checker
func NewHTTPClient(cfg model.HTTPConfig) *http.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: util.NewProxyFunc(cfg.HTTPProxy, cfg.HTTPSProxy, cfg.NoProxy),
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("stopped after 10 redirects")
			}
			return nil
		},
	}
}

// FetchResult contains the fetched HTML and metadata
type FetchResult struct {
	HTML        string
	FinalURL    string
	StatusCode  int
	ContentType string
	FromCache   bool
	Truncated   bool
}

// Fetch retrieves HTML content from rawURL. Transport failures and non-2xx
// responses are returned as *model.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*FetchResult, error) {
	if f.cache != nil {
		if body, ok := f.cache.Get(cache.PageKey(rawURL)); ok {
			f.logger.Debug("page served from cache", logging.String("url", rawURL))
			return &FetchResult{
				HTML:       string(body),
				FinalURL:   rawURL,
				StatusCode: http.StatusOK,
				FromCache:  true,
			}, nil
		}
	}

	if f.robots != nil {
		decision, err := f.robots.Check(ctx, rawURL)
		if err != nil {
			return nil, &model.FetchError{URL: rawURL, Err: err}
		}
		if decision.Unavailable {
			f.logger.Warn("robots.txt unavailable, fetching anyway", logging.String("url", rawURL))
		}
		if !decision.Allowed {
			return nil, &model.FetchError{URL: rawURL, Err: ErrDisallowedByRobots}
		}
		if decision.CrawlDelay > 0 && f.limiter != nil {
			if u, err := url.Parse(rawURL); err == nil {
				f.limiter.SetCrawlDelay(u.Host, decision.CrawlDelay)
			}
		}
	}

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, rawURL); err != nil {
			return nil, &model.FetchError{URL: rawURL, Err: fmt.Errorf("rate limit: %w", err)}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &model.FetchError{URL: rawURL, Err: fmt.Errorf("create request: %w", err)}
	}

	req.Header.Set("User-Agent", f.userAgent)
	for k, v := range browserHeaders {
		req.Header.Set(k, v)
	}

	started := time.Now()
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, &model.FetchError{URL: rawURL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &model.FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status: %s", resp.Status),
		}
	}

	// Read one byte past the limit to detect truncation
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, &model.FetchError{URL: rawURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	truncated := int64(len(body)) > f.maxBytes
	if truncated {
		body = body[:f.maxBytes]
		f.logger.Warn("page body truncated",
			logging.String("url", rawURL),
			logging.Int("max_bytes", int(f.maxBytes)),
		)
	}

	f.logger.Info("page fetched",
		logging.String("url", rawURL),
		logging.Int("status", resp.StatusCode),
		logging.Int("bytes", len(body)),
		logging.Duration("elapsed", time.Since(started)),
	)

	if f.cache != nil {
		if err := f.cache.Set(cache.PageKey(rawURL), body, f.cacheTTL); err != nil {
			f.logger.Warn("page cache write failed", logging.Error(err))
		}
	}

	return &FetchResult{
		HTML:        string(body),
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Truncated:   truncated,
	}, nil
}
