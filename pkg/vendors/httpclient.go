package vendors

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/engagic/engagic/pkg/version"
)

// Retry policy for vendor HTTP calls: 429 and 5xx are retried with
// exponential back-off, base 1s, cap 30s, three retries, honouring
// Retry-After when the vendor sends one.
const (
	retryBase   = 1 * time.Second
	retryCap    = 30 * time.Second
	maxRetries  = 3
	maxBodySize = 100 << 20 // 100MB
)

// Client is the shared vendor HTTP client: connection pooling, an
// identifying User-Agent, retries, and a total per-call timeout.
type Client struct {
	http    *http.Client
	timeout time.Duration
	log     *slog.Logger
}

// NewClient creates a vendor HTTP client with the given per-call timeout.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		timeout: timeout,
		log:     slog.With("component", "vendor_http"),
	}
}

// Get fetches url, retrying transient failures. The returned body is fully
// read and capped at 100MB.
func (c *Client) Get(ctx context.Context, vendor, url string) ([]byte, string, error) {
	var lastStatus int
	var lastRetryAfter time.Duration
	for attempt := 0; ; attempt++ {
		body, contentType, status, err := c.once(ctx, url)
		if err == nil && status < 400 {
			return body, contentType, nil
		}
		lastStatus = status

		retryable := err == nil && (status == http.StatusTooManyRequests || status >= 500)
		if err != nil && ctx.Err() == nil {
			// transport-level failure; retry the same as a 5xx
			retryable = true
		}
		if status == http.StatusTooManyRequests {
			lastRetryAfter = retryAfter(contentType)
		}
		if !retryable || attempt >= maxRetries {
			break
		}

		delay := backoff(attempt)
		if lastRetryAfter > delay {
			delay = lastRetryAfter
		}
		c.log.Warn("vendor request failed, retrying",
			"vendor", vendor, "url", url, "status", status, "attempt", attempt+1, "delay", delay)

		select {
		case <-ctx.Done():
			return nil, "", &VendorError{Vendor: vendor, Op: "get", Err: ctx.Err()}
		case <-time.After(delay):
		}
	}

	if lastStatus == http.StatusTooManyRequests {
		return nil, "", &VendorRateLimitedError{
			VendorHTTPError:   *httpErr(vendor, "get", url, lastStatus),
			RetryAfterSeconds: int(lastRetryAfter / time.Second),
		}
	}
	if lastStatus >= 400 {
		return nil, "", httpErr(vendor, "get", url, lastStatus)
	}
	return nil, "", &VendorError{Vendor: vendor, Op: "get", Err: fmt.Errorf("request to %s failed after %d attempts", url, maxRetries+1)}
}

// once performs a single request. On HTTP errors the Retry-After header is
// smuggled back through the contentType return so the retry loop can honour
// it without a second struct.
func (c *Client) once(ctx context.Context, url string) (body []byte, contentType string, status int, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", 0, err
	}
	req.Header.Set("User-Agent", version.Full()+" (civic meeting indexer)")
	req.Header.Set("Accept", "text/html,application/json,application/pdf,*/*")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, resp.Header.Get("Retry-After"), resp.StatusCode, nil
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, "", resp.StatusCode, err
	}
	return data, resp.Header.Get("Content-Type"), resp.StatusCode, nil
}

func backoff(attempt int) time.Duration {
	d := retryBase << attempt
	if d > retryCap {
		return retryCap
	}
	return d
}

func retryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
