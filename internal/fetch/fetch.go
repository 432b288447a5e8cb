package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/ecowatch/ecowatch-service/internal/cache"
	"github.com/ecowatch/ecowatch-service/internal/circuitbreaker"
	"github.com/ecowatch/ecowatch-service/internal/models"
	"github.com/ecowatch/ecowatch-service/internal/observability"
)

// Fetcher retrieves upstream responses through the cache-aside response
// cache. A fresh cached entry is returned without touching the network; a
// non-2xx response is returned to the caller uncached; transport failures
// propagate as errors.
type Fetcher interface {
	GetOrFetch(ctx context.Context, url string, headers map[string]string, ttl time.Duration) (models.UpstreamResponse, error)
}

var errServerStatus = errors.New("upstream server error")

// Client is the HTTP implementation of Fetcher with retry, backoff and an
// optional circuit breaker around each outbound call.
type Client struct {
	store          cache.Store
	http           *http.Client
	timeout        time.Duration
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	breaker        *circuitbreaker.CircuitBreaker
}

// NewClient creates a fetch client. timeout applies per outbound request;
// retryAttempts counts total tries (minimum 1).
func NewClient(store cache.Store, timeout time.Duration, retryAttempts int, retryBaseDelay, retryMaxDelay time.Duration) *Client {
	if retryAttempts < 1 {
		retryAttempts = 1
	}
	return &Client{
		store:          store,
		timeout:        timeout,
		retryAttempts:  retryAttempts,
		retryBaseDelay: retryBaseDelay,
		retryMaxDelay:  retryMaxDelay,
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetCircuitBreaker installs a breaker guarding outbound calls. Optional.
func (c *Client) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

// GetOrFetch implements Fetcher. A stored entry younger than ttl is served
// directly. Otherwise the URL is fetched; a 2xx response is cached under the
// (url, headers) signature and returned, a non-2xx response is returned
// without caching (after retrying 5xx/429), and a transport failure is
// returned as an error.
func (c *Client) GetOrFetch(ctx context.Context, url string, headers map[string]string, ttl time.Duration) (models.UpstreamResponse, error) {
	key := cache.Key(url, headers)
	host := observability.HostLabel(url)

	cached, ok, err := c.store.Get(ctx, key)
	if err == nil && ok {
		observability.CacheHitsTotal.WithLabelValues(host).Inc()
		cached.Cached = true
		return cached, nil
	}

	var lastErr error
	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.UpstreamRetriesTotal.Inc()
			delay := c.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return models.UpstreamResponse{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		var resp models.UpstreamResponse
		call := func() error {
			r, err := c.do(ctx, url, headers, host)
			if err != nil {
				return err
			}
			resp = r
			if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
				return fmt.Errorf("%w: HTTP %d", errServerStatus, r.StatusCode)
			}
			return nil
		}

		var callErr error
		if c.breaker != nil {
			callErr = c.breaker.Call(ctx, call)
		} else {
			callErr = call()
		}

		if callErr == nil {
			if resp.Success() {
				// A failed cache write never fails the fetch.
				_ = c.store.Set(ctx, key, resp, ttl)
			}
			return resp, nil
		}

		if errors.Is(callErr, errServerStatus) {
			// Keep the failed response so the caller sees the final status
			// when retries are exhausted.
			lastErr = callErr
			if attempt == c.retryAttempts-1 {
				return resp, nil
			}
			continue
		}

		if errors.Is(callErr, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
			return models.UpstreamResponse{}, callErr
		}
		lastErr = callErr
	}

	return models.UpstreamResponse{}, fmt.Errorf("fetch %s: exhausted retries: %w", url, lastErr)
}

func (c *Client) do(ctx context.Context, url string, headers map[string]string, host string) (models.UpstreamResponse, error) {
	start := time.Now()

	reqCtx := ctx
	var cancel context.CancelFunc
	if c.timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(host, "error").Inc()
		return models.UpstreamResponse{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for name, value := range headers {
		req.Header.Set(name, value)
	}
	if corrID := correlationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.UpstreamCallsTotal.WithLabelValues(host, "error").Inc()
		observability.UpstreamDuration.WithLabelValues(host).Observe(duration)
		if errors.Is(err, context.DeadlineExceeded) {
			return models.UpstreamResponse{}, fmt.Errorf("request timeout: %w", err)
		}
		return models.UpstreamResponse{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(host, "error").Inc()
		return models.UpstreamResponse{}, fmt.Errorf("read response body: %w", err)
	}

	duration := time.Since(start).Seconds()
	observability.UpstreamCallsTotal.WithLabelValues(host, statusLabel(resp.StatusCode)).Inc()
	observability.UpstreamDuration.WithLabelValues(host).Observe(duration)

	return models.UpstreamResponse{
		StatusCode: resp.StatusCode,
		Body:       body,
		FetchedAt:  time.Now(),
	}, nil
}

func (c *Client) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func correlationID(ctx context.Context) string {
	if v := ctx.Value("correlation_id"); v != nil {
		if corrID, ok := v.(string); ok {
			return corrID
		}
	}
	return ""
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == http.StatusTooManyRequests {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
