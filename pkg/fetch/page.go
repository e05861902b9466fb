package fetch

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/sitemapper/pkg/config"
	"github.com/Sriram-PR/sitemapper/pkg/utils"
)

// Page is a fetched 2xx response with its body already read and closed
type Page struct {
	RequestedURL string
	FinalURL     *url.URL // after redirects
	StatusCode   int
	ContentType  string
	Body         []byte // nil when the body was not wanted
}

// PageGetter runs a GET through the full politeness pipeline:
// request gate, global interval, per-host delay, retrying fetch, bounded body read.
type PageGetter struct {
	fetcher   HTTPFetcher
	gate      *RequestGate
	limiter   *RateLimiter
	hostDelay time.Duration
	cfg       *config.AppConfig
	log       *logrus.Entry
}

// NewPageGetter creates a PageGetter. The per-host delay is cfg.CrawlDelay.
func NewPageGetter(fetcher HTTPFetcher, gate *RequestGate, limiter *RateLimiter, cfg *config.AppConfig, log *logrus.Entry) *PageGetter {
	return &PageGetter{
		fetcher:   fetcher,
		gate:      gate,
		limiter:   limiter,
		hostDelay: cfg.CrawlDelay,
		cfg:       cfg,
		log:       log,
	}
}

// IsHTMLContentType reports whether a Content-Type header names an HTML document.
// An empty header is treated as HTML.
func IsHTMLContentType(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	return ct == "" || strings.HasPrefix(ct, "text/html") || strings.HasPrefix(ct, "application/xhtml+xml")
}

// Get fetches rawURL within timeout. wantBody decides from the Content-Type whether the body
// is read; nil reads every body. Bodies larger than max_page_size_bytes are an error.
func (g *PageGetter) Get(ctx context.Context, rawURL string, timeout time.Duration, wantBody func(contentType string) bool) (*Page, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing URL '%s': %w", utils.ErrParsing, rawURL, err)
	}
	host := parsed.Hostname()
	taskLog := g.log.WithFields(logrus.Fields{"url": rawURL, "host": host})

	release, err := g.gate.Acquire(ctx, host)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if err := g.limiter.ApplyDelay(ctx, host, g.hostDelay); err != nil {
		return nil, err
	}

	reqCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resp, err := Get(reqCtx, g.fetcher, rawURL, g.cfg)
	g.limiter.UpdateLastRequestTime(host)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	page := &Page{
		RequestedURL: rawURL,
		FinalURL:     resp.Request.URL,
		StatusCode:   resp.StatusCode,
		ContentType:  resp.Header.Get("Content-Type"),
	}
	if wantBody != nil && !wantBody(page.ContentType) {
		taskLog.Debugf("Skipping body read for Content-Type '%s'", page.ContentType)
		return page, nil
	}

	maxPageSize := g.cfg.MaxPageSizeBytes
	reader := io.Reader(resp.Body)
	if maxPageSize > 0 {
		reader = io.LimitReader(resp.Body, maxPageSize+1) // +1 to detect exceeding the limit
	}
	body, readErr := io.ReadAll(reader)
	if readErr != nil {
		return nil, fmt.Errorf("%w: reading body from '%s': %w", utils.ErrResponseBodyRead, rawURL, readErr)
	}
	if maxPageSize > 0 && int64(len(body)) > maxPageSize {
		return nil, fmt.Errorf("%w: page '%s' exceeds max size (%d > %d bytes)", utils.ErrResponseBodyRead, rawURL, len(body), maxPageSize)
	}
	taskLog.Debugf("Read %d bytes", len(body))
	page.Body = body
	return page, nil
}
