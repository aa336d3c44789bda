package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"PriceSync/internal/metrics"
	"PriceSync/internal/model"
)

const (
	DefaultChartURL  = "https://query2.finance.yahoo.com/v8/finance/chart"
	DefaultSearchURL = "https://query2.finance.yahoo.com/v1/finance/search"
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	DefaultAttempts  = 4
	DefaultBackoff   = 800 * time.Millisecond

	maxBody    = 8 << 20
	logSnippet = 240
)

// Options configures a YahooClient. Zero values fall back to the defaults above.
type Options struct {
	ChartURL  string
	SearchURL string
	UserAgent string

	Attempts int
	Backoff  time.Duration

	// BreakerFailures is the number of consecutive exhausted calls that opens
	// the breaker. Zero disables it.
	BreakerFailures int
	BreakerCooldown time.Duration

	HTTPClient *http.Client
	// Sleep waits between attempts; tests replace it to avoid real delays.
	Sleep   func(ctx context.Context, d time.Duration) error
	Metrics *metrics.Registry
	Logger  zerolog.Logger
}

// YahooClient implements Fetcher against the Yahoo Finance chart and search APIs.
type YahooClient struct {
	client    *http.Client
	chartURL  string
	searchURL string
	userAgent string
	attempts  int
	backoff   time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
	breaker   *gobreaker.CircuitBreaker
	metrics   *metrics.Registry
	log       zerolog.Logger
}

var _ Fetcher = (*YahooClient)(nil)

// NewHTTPClient builds the process-wide upstream client with optional proxy support.
func NewHTTPClient(proxyURL string, timeout time.Duration) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(u)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout, Transport: transport}, nil
}

// NewYahooClient creates a client from opts.
func NewYahooClient(opts Options) *YahooClient {
	c := &YahooClient{
		client:    opts.HTTPClient,
		chartURL:  opts.ChartURL,
		searchURL: opts.SearchURL,
		userAgent: opts.UserAgent,
		attempts:  opts.Attempts,
		backoff:   opts.Backoff,
		sleep:     opts.Sleep,
		metrics:   opts.Metrics,
		log:       opts.Logger.With().Str("component", "collector").Logger(),
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: 30 * time.Second}
	}
	if c.chartURL == "" {
		c.chartURL = DefaultChartURL
	}
	if c.searchURL == "" {
		c.searchURL = DefaultSearchURL
	}
	if c.userAgent == "" {
		c.userAgent = DefaultUserAgent
	}
	if c.attempts <= 0 {
		c.attempts = DefaultAttempts
	}
	if c.backoff <= 0 {
		c.backoff = DefaultBackoff
	}
	if c.sleep == nil {
		c.sleep = sleepCtx
	}
	if opts.BreakerFailures > 0 {
		failures := uint32(opts.BreakerFailures)
		reg := opts.Metrics
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "yahoo",
			Timeout: opts.BreakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			IsSuccessful: func(err error) bool {
				return err == nil || !errors.Is(err, ErrUpstreamUnavailable)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				c.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
				reg.SetBreaker(int(to))
			},
		})
	}
	return c
}

// FetchHistory requests daily bars for symbol over [w.RequestStart(), w.End].
// The upstream treats period2 as exclusive, so End+1 day is sent.
func (c *YahooClient) FetchHistory(ctx context.Context, symbol string, w model.FetchWindow) ([]model.PriceBar, error) {
	q := url.Values{}
	q.Set("period1", strconv.FormatInt(w.RequestStart().Unix(), 10))
	q.Set("period2", strconv.FormatInt(w.End.AddDate(0, 0, 1).Unix(), 10))
	q.Set("interval", "1d")
	q.Set("events", "div,split")
	target := c.chartURL + "/" + url.PathEscape(symbol) + "?" + q.Encode()

	out, err := c.call(ctx, symbol, target, func(status int, body []byte) Outcome {
		return classifyChart(symbol, status, body)
	})
	if err != nil {
		return nil, err
	}
	switch out.Kind {
	case Parsed:
		return out.Bars, nil
	case NotFound:
		c.log.Debug().Str("symbol", symbol).Msg("not found (delisted?)")
	default:
		c.log.Debug().Str("symbol", symbol).Stringer("outcome", out).Msg("no data in window")
	}
	return nil, nil
}

// Search resolves a raw ticker through the upstream search endpoint.
func (c *YahooClient) Search(ctx context.Context, query string) (string, bool, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("quotesCount", "5")
	q.Set("newsCount", "0")
	target := c.searchURL + "?" + q.Encode()

	out, err := c.call(ctx, query, target, classifySearch)
	if err != nil {
		return "", false, err
	}
	if out.Kind != Parsed {
		c.log.Debug().Str("query", query).Stringer("outcome", out).Msg("search returned nothing")
		return "", false, nil
	}
	return out.Symbol, true, nil
}

// call runs the retry loop behind the circuit breaker.
func (c *YahooClient) call(ctx context.Context, label, target string, classify func(int, []byte) Outcome) (Outcome, error) {
	if c.breaker == nil {
		return c.retry(ctx, label, target, classify)
	}
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.retry(ctx, label, target, classify)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.metrics.FetchAttempt("breaker_open")
		return Outcome{Kind: Retryable, Err: err}, fmt.Errorf("%s: %w", label, ErrUpstreamUnavailable)
	}
	out, _ := res.(Outcome)
	return out, err
}

// retry makes up to c.attempts requests, doubling the delay between them.
// Only Retryable outcomes are retried.
func (c *YahooClient) retry(ctx context.Context, label, target string, classify func(int, []byte) Outcome) (Outcome, error) {
	delay := c.backoff
	for attempt := 1; ; attempt++ {
		var out Outcome
		status, body, err := c.get(ctx, target)
		if err != nil {
			if ctx.Err() != nil {
				return Outcome{}, ctx.Err()
			}
			out = Outcome{Kind: Retryable, Err: err}
		} else {
			out = classify(status, body)
		}
		c.metrics.FetchAttempt(out.Kind.String())

		if out.Kind != Retryable {
			return out, nil
		}
		if out.Status != 0 {
			c.log.Warn().Str("symbol", label).Int("status", out.Status).Int("attempt", attempt).
				Str("body", snippet(body)).Msg("unexpected upstream status")
		} else {
			c.log.Warn().Str("symbol", label).Err(out.Err).Int("attempt", attempt).Msg("upstream call failed")
		}
		if attempt >= c.attempts {
			return out, fmt.Errorf("%s after %d attempts: %w", label, attempt, ErrUpstreamUnavailable)
		}
		if err := c.sleep(ctx, delay); err != nil {
			return out, err
		}
		delay *= 2
	}
}

func (c *YahooClient) get(ctx context.Context, target string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("yahoo fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return 0, nil, fmt.Errorf("yahoo read body: %w", err)
	}
	return resp.StatusCode, body, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func snippet(body []byte) string {
	if len(body) > logSnippet {
		body = body[:logSnippet]
	}
	return string(body)
}
