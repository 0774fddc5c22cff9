// Package arxiv talks to the public arXiv query API: it builds listing
// queries, keeps requests under the configured rate, parses Atom feeds and
// downloads PDFs into a local cache.
package arxiv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"arxiv_rag_go_backend/cmd/api/config"
	"arxiv_rag_go_backend/internal/models"
	"arxiv_rag_go_backend/internal/observability"
	"arxiv_rag_go_backend/internal/utils/retry"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	opFetch    = "fetch"
	opLookup   = "lookup"
	opDownload = "download"
)

// Client is safe for concurrent use. All outgoing requests share one limiter.
type Client struct {
	cfg        config.ArxivConfig
	httpClient *http.Client
	logger     zerolog.Logger
	metrics    *observability.Metrics
	sleep      func(ctx context.Context, d time.Duration) error

	limiterMu sync.Mutex
	limiter   *rate.Limiter
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithRetrySleep replaces the wait between retry attempts.
func WithRetrySleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = sleep }
}

func NewClient(cfg config.ArxivConfig, opts ...Option) *Client {
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     zerolog.Nop(),
		sleep:      retry.Sleep,
		limiter:    newLimiter(cfg.RateLimitDelay),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "arxiv_client").Logger()

	c.logger.Info().
		Str("base_url", cfg.BaseURL).
		Dur("rate_limit", cfg.RateLimitDelay).
		Str("pdf_cache_dir", cfg.PDFCacheDir).
		Msg("arXiv client initialized")
	return c
}

func newLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// waitForSlot blocks until the next request may start. Callers are served one
// at a time in the order they take the lock.
func (c *Client) waitForSlot(ctx context.Context) error {
	c.limiterMu.Lock()
	defer c.limiterMu.Unlock()

	start := time.Now()
	err := c.limiter.Wait(ctx)
	waited := time.Since(start)
	if c.metrics != nil {
		c.metrics.ArxivRateLimitWait.Observe(waited.Seconds())
	}
	if err == nil && waited > time.Millisecond {
		c.logger.Debug().Dur("waited", waited).Msg("Rate limiting")
	}
	return err
}

// FetchPapers lists papers of a category, newest first unless opts says
// otherwise. On failure it returns an empty slice along with the error.
func (c *Client) FetchPapers(ctx context.Context, opts FetchOptions) ([]models.ArxivPaper, error) {
	category := opts.Category
	if category == "" {
		category = c.cfg.SearchCategory
	}
	return c.FetchPapersWithQuery(ctx, "cat:"+category, opts)
}

// FetchPapersWithQuery runs a raw search_query fragment, with the date range
// of opts appended.
func (c *Client) FetchPapersWithQuery(ctx context.Context, query string, opts FetchOptions) ([]models.ArxivPaper, error) {
	filter, err := dateFilter(opts.FromDate, opts.ToDate)
	if err != nil {
		return []models.ArxivPaper{}, err
	}

	params := opts.searchParams(query+filter, c.cfg.MaxResults)
	url := c.cfg.BaseURL + "?" + encodeQuery(params)
	c.logger.Info().Str("url", url).Msg("Fetching papers from arXiv")

	papers, err := c.fetchFeed(ctx, opFetch, url)
	if err != nil {
		return []models.ArxivPaper{}, err
	}
	c.logger.Info().Int("count", len(papers)).Str("query", query).Msg("Fetched papers")
	return papers, nil
}

// FetchPaperByID looks up one paper. Any version suffix on id is ignored.
func (c *Client) FetchPaperByID(ctx context.Context, id string) (*models.ArxivPaper, error) {
	cleanID := StripVersion(id)
	if cleanID == "" {
		return nil, ErrPaperNotFound
	}
	url := c.cfg.BaseURL + "?" + encodeQuery([]queryParam{
		{"id_list", cleanID},
		{"max_results", "1"},
	})

	papers, err := c.fetchFeed(ctx, opLookup, url)
	if err != nil {
		return nil, err
	}
	if len(papers) == 0 {
		c.logger.Warn().Str("arxiv_id", cleanID).Msg("Paper not found on arXiv")
		return nil, fmt.Errorf("%w: %s", ErrPaperNotFound, cleanID)
	}
	return &papers[0], nil
}

func (c *Client) fetchFeed(ctx context.Context, operation, url string) ([]models.ArxivPaper, error) {
	var body []byte
	policy := retry.Policy{MaxAttempts: c.cfg.FetchMaxAttempts, BackoffStep: c.cfg.FetchBackoff}
	err := c.do(ctx, operation, url, policy, func(r io.Reader) error {
		var rerr error
		body, rerr = io.ReadAll(r)
		return rerr
	})
	if err != nil {
		err = unwrapExhausted(err)
		c.logger.Error().Err(err).Str("operation", operation).Msg("arXiv request failed")
		return nil, err
	}

	papers, err := ParseResponse(body, c.logger)
	if err != nil {
		c.recordOutcome(operation, "parse_error")
		c.logger.Error().Err(err).Str("operation", operation).Msg("Failed to parse arXiv response")
		return nil, err
	}
	return papers, nil
}

// do runs GET url through the retry machine. Every attempt waits for the
// limiter and gets its own timeout; consume reads the body of a 200 response
// within that timeout.
func (c *Client) do(ctx context.Context, operation, url string, policy retry.Policy, consume func(io.Reader) error) error {
	machine := retry.New(policy,
		retry.WithSleep(c.sleep),
		retry.WithObserver(func(t retry.Transition) {
			if t.To != retry.StateWaiting {
				return
			}
			if c.metrics != nil {
				c.metrics.ArxivRetriesTotal.WithLabelValues(operation).Inc()
			}
			c.logger.Warn().
				Err(t.Err).
				Str("operation", operation).
				Int("attempt", t.Attempt).
				Int("max_attempts", policy.MaxAttempts).
				Dur("backoff", t.Wait).
				Msg("arXiv request failed, retrying")
		}),
	)

	return machine.Run(ctx, func(ctx context.Context, attempt int) error {
		if err := c.waitForSlot(ctx); err != nil {
			return retry.Permanent(err)
		}
		err := c.attempt(ctx, operation, url, consume)
		if err != nil && ctx.Err() != nil {
			return retry.Permanent(ctx.Err())
		}
		return err
	})
}

func (c *Client) attempt(ctx context.Context, operation, url string, consume func(io.Reader) error) error {
	attemptCtx, cancel := c.attemptContext(ctx)
	defer cancel()

	start := time.Now()
	err := c.roundTrip(attemptCtx, url, consume)
	if c.metrics != nil {
		c.metrics.ArxivRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}

	var reqErr *RequestError
	switch {
	case err == nil:
		c.recordOutcome(operation, "success")
	case errors.As(err, &reqErr):
		c.recordOutcome(operation, reqErr.Kind.String())
	default:
		c.recordOutcome(operation, "error")
	}
	return err
}

func (c *Client) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.cfg.Timeout)
}

func (c *Client) roundTrip(ctx context.Context, url string, consume func(io.Reader) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return retry.Permanent(fmt.Errorf("arxiv: build request: %w", err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classify(url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return &RequestError{
			Kind:       KindHTTPStatus,
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        errors.New(resp.Status),
		}
	}

	if err := consume(resp.Body); err != nil {
		if retry.IsPermanent(err) {
			return err
		}
		return classify(url, err)
	}
	return nil
}

func classify(url string, err error) *RequestError {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr
	}

	kind := KindTransport
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = KindTimeout
	}
	return &RequestError{Kind: kind, URL: url, Err: err}
}

func (c *Client) recordOutcome(operation, outcome string) {
	if c.metrics != nil {
		c.metrics.ArxivRequestsTotal.WithLabelValues(operation, outcome).Inc()
	}
}

// unwrapExhausted drops the retry wrapper so fetch callers see the
// *RequestError of the last attempt.
func unwrapExhausted(err error) error {
	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		var reqErr *RequestError
		if errors.As(exhausted.Err, &reqErr) {
			return reqErr
		}
		return exhausted.Err
	}
	return err
}
