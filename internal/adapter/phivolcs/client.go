package phivolcs

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"golang.org/x/net/html/charset"
)

// DefaultBaseURL is the root of the monthly bulletin listings.
const DefaultBaseURL = "https://earthquake.phivolcs.dost.gov.ph/EQLatest-Monthly"

// Retry waits start at 1s and double per attempt, capped at 5s.
const (
	defaultInitialBackoff = time.Second
	defaultMaxBackoff     = 5 * time.Second
)

// maxPageBytes bounds a single bulletin page. Real pages are a few MB.
const maxPageBytes = 64 << 20

// ErrNotPublished is returned when the agency has no page for the month (HTTP 404).
var ErrNotPublished = errors.New("bulletin not published")

// StatusError is a non-200 response other than 404.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// ClientOptions configures a Client.
type ClientOptions struct {
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
	InsecureTLS bool
	// InitialBackoff is the wait before the second attempt; it doubles per
	// retry up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Client fetches monthly bulletin pages over HTTP.
// It implements pipeline.Fetcher.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger

	sleep func(ctx context.Context, d time.Duration) bool
}

// NewClient creates a bulletin client.
func NewClient(opts ClientOptions, logger *slog.Logger) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.InsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via SOURCE_INSECURE_TLS
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	attempts := opts.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := opts.InitialBackoff
	if backoff <= 0 {
		backoff = defaultInitialBackoff
	}
	maxBackoff := opts.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}
	if maxBackoff < backoff {
		maxBackoff = backoff
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		baseURL:        baseURL,
		maxAttempts:    attempts,
		initialBackoff: backoff,
		maxBackoff:     maxBackoff,
		logger:         logger,
		sleep:          retry.SleepWithContext,
	}
}

// PageURL returns the bulletin URL for a month, e.g. .../2024/2024_March.html.
func (c *Client) PageURL(year int, month time.Month) string {
	return fmt.Sprintf("%s/%d/%d_%s.html", c.baseURL, year, year, month)
}

// FetchMonth downloads one bulletin page and returns it decoded to UTF-8.
// Network errors and non-200 statuses are retried with exponential backoff;
// a 404 returns ErrNotPublished immediately.
func (c *Client) FetchMonth(ctx context.Context, year int, month time.Month) ([]byte, error) {
	url := c.PageURL(year, month)
	backoff := c.initialBackoff

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		body, err := c.get(ctx, url)
		if err == nil {
			return body, nil
		}
		if errors.Is(err, ErrNotPublished) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err

		if attempt == c.maxAttempts {
			break
		}
		c.logger.Debug("fetch failed, retrying",
			"url", url,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)
		if !c.sleep(ctx, backoff) {
			return nil, ctx.Err()
		}
		backoff = retry.NextBackoff(backoff, c.maxBackoff)
	}

	return nil, fmt.Errorf("fetch %s after %d attempts: %w", url, c.maxAttempts, lastErr)
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "quake-bulletin-etl/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bulletin request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotPublished
	case resp.StatusCode != http.StatusOK:
		return nil, &StatusError{Code: resp.StatusCode}
	}

	// Pages are exported from a spreadsheet and are often windows-1252.
	r, err := charset.NewReader(io.LimitReader(resp.Body, maxPageBytes), resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("decode charset: %w", err)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
