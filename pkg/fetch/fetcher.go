package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/sitemapper/pkg/config"
	"github.com/Sriram-PR/sitemapper/pkg/utils"
)

// HTTPFetcher is the retrying GET surface used by the sitemap ingestor and the crawl engine
type HTTPFetcher interface {
	FetchWithRetry(req *http.Request, ctx context.Context) (*http.Response, error)
}

// Fetcher handles making HTTP requests with configured retry logic, using an underlying http.Client
type Fetcher struct {
	client *http.Client
	cfg    *config.AppConfig // Retry settings, user agent
	log    *logrus.Entry
}

// NewFetcher creates a new Fetcher instance
func NewFetcher(client *http.Client, cfg *config.AppConfig, log *logrus.Entry) *Fetcher {
	return &Fetcher{
		client: client,
		cfg:    cfg,
		log:    log,
	}
}

// NewRequest builds a GET request carrying the configured user agent and browser-like headers
func NewRequest(ctx context.Context, method, rawURL string, cfg *config.AppConfig) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", utils.ErrRequestCreation, method, rawURL, err)
	}
	userAgent := config.DefaultUserAgent
	if cfg != nil && cfg.UserAgent != "" {
		userAgent = cfg.UserAgent
	}
	req.Header.Set("User-Agent", userAgent)
	for k, v := range config.DefaultHeaders {
		req.Header.Set(k, v)
	}
	return req, nil
}

// backoffDelay returns initial * 2^(attempt-1) capped at max, with +/- 10% jitter
func backoffDelay(attempt int, initial, max time.Duration) time.Duration {
	delay := time.Duration(float64(initial) * math.Pow(2, float64(attempt-1)))
	if delay <= 0 || delay > max {
		delay = max
	}
	return jitter(delay)
}

// discard drains and closes a response body so the connection can be reused
func discard(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// FetchWithRetry performs an HTTP request associated with the provided context.
// Transient network errors, 5xx and 429 are retried with exponential backoff and jitter.
// Other 4xx and non-2xx statuses return the response together with a wrapped sentinel error;
// the caller must close the body in that case.
func (f *Fetcher) FetchWithRetry(req *http.Request, ctx context.Context) (*http.Response, error) {
	reqLog := f.log.WithField("url", req.URL.String())
	maxRetries := f.cfg.MaxRetries

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt, f.cfg.InitialRetryDelay, f.cfg.MaxRetryDelay)
			reqLog.WithFields(logrus.Fields{"attempt": attempt, "max_retries": maxRetries, "delay": delay}).Debug("Retrying request...")
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, fmt.Errorf("context cancelled (%v) during retry delay after error: %w", ctx.Err(), lastErr)
			}
		}
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return nil, fmt.Errorf("context cancelled (%v) after error: %w", err, lastErr)
			}
			return nil, fmt.Errorf("context cancelled before first attempt: %w", err)
		}

		resp, err := f.client.Do(req.WithContext(ctx))
		if err != nil {
			discard(resp)
			// Context errors are never retried
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				reqLog.Debugf("Request abandoned: %v", err)
				return nil, err
			}
			reqLog.WithField("attempt", attempt).Debugf("Network error: %v", err)
			lastErr = err
			continue
		}

		statusCode := resp.StatusCode
		resLog := reqLog.WithFields(logrus.Fields{"status_code": statusCode, "attempt": attempt})
		switch {
		case statusCode >= 200 && statusCode < 300:
			resLog.Debug("Successfully fetched")
			return resp, nil

		case statusCode >= 500:
			resLog.Debug("Server error, retrying...")
			lastErr = fmt.Errorf("%w: status %d %s", utils.ErrServerHTTPError, statusCode, resp.Status)
			discard(resp)

		case statusCode == http.StatusTooManyRequests:
			resLog.Debug("Received 429 Too Many Requests, retrying...")
			lastErr = fmt.Errorf("%w: status %d %s", utils.ErrClientHTTPError, statusCode, resp.Status)
			discard(resp)

		case statusCode >= 400:
			return resp, fmt.Errorf("%w: status %d %s", utils.ErrClientHTTPError, statusCode, resp.Status)

		default:
			// 1xx, or 3xx when the client does not follow redirects
			return resp, fmt.Errorf("%w: status %d %s", utils.ErrOtherHTTPError, statusCode, resp.Status)
		}
	}

	reqLog.Debugf("All %d fetch attempts failed. Last error: %v", maxRetries+1, lastErr)
	if lastErr == nil {
		return nil, utils.ErrRetryFailed
	}
	return nil, fmt.Errorf("%w: %w", utils.ErrRetryFailed, lastErr)
}

// Get builds a header-decorated GET for rawURL and runs it through FetchWithRetry.
// On any error the response body is already closed.
func Get(ctx context.Context, f HTTPFetcher, rawURL string, cfg *config.AppConfig) (*http.Response, error) {
	req, err := NewRequest(ctx, http.MethodGet, rawURL, cfg)
	if err != nil {
		return nil, err
	}
	resp, err := f.FetchWithRetry(req, ctx)
	if err != nil {
		discard(resp)
		return nil, err
	}
	return resp, nil
}
