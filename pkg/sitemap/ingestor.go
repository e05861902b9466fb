package sitemap

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html/charset"
	"golang.org/x/sync/errgroup"

	"github.com/Sriram-PR/sitemapper/pkg/config"
	"github.com/Sriram-PR/sitemapper/pkg/fetch"
	"github.com/Sriram-PR/sitemapper/pkg/parse"
	"github.com/Sriram-PR/sitemapper/pkg/utils"
)

// Validator is the subset of the classifier the ingestor needs
type Validator interface {
	Validate(rawURL string) bool
}

var gzipMagic = []byte{0x1f, 0x8b}

// Ingestor fetches XML sitemaps and flattens them into page URLs
type Ingestor struct {
	getter     *fetch.PageGetter
	robots     *fetch.RobotsHandler
	validator  Validator
	probePaths []string
	timeout    time.Duration
	maxBytes   int64
	log        *logrus.Entry

	processedMu sync.Mutex
	processed   map[string]bool
}

// NewIngestor creates an Ingestor. robots.txt is fetched through the same getter.
func NewIngestor(getter *fetch.PageGetter, validator Validator, cfg *config.AppConfig, log *logrus.Entry) *Ingestor {
	sitemapLog := log.WithField("component", "sitemap_ingestor")
	return &Ingestor{
		getter:     getter,
		robots:     fetch.NewRobotsHandler(getter, cfg.Sitemaps.Timeout, sitemapLog),
		validator:  validator,
		probePaths: cfg.Sitemaps.ProbePaths,
		timeout:    cfg.Sitemaps.Timeout,
		maxBytes:   cfg.MaxPageSizeBytes,
		log:        sitemapLog,
		processed:  make(map[string]bool),
	}
}

// MarkSitemapProcessed records sitemapURL as fetched. Returns false if it already was.
func (in *Ingestor) MarkSitemapProcessed(sitemapURL string) bool {
	in.processedMu.Lock()
	defer in.processedMu.Unlock()
	if in.processed[sitemapURL] {
		return false
	}
	in.processed[sitemapURL] = true
	return true
}

// Ingest returns the valid page URLs listed by sitemapURL, following sitemap indexes.
// Every failure degrades to an empty result. A sitemap already ingested by this Ingestor yields nothing.
func (in *Ingestor) Ingest(ctx context.Context, sitemapURL string) []string {
	return lo.Uniq(in.ingest(ctx, strings.TrimSpace(sitemapURL)))
}

func (in *Ingestor) ingest(ctx context.Context, sitemapURL string) []string {
	if sitemapURL == "" || ctx.Err() != nil {
		return nil
	}
	if !in.MarkSitemapProcessed(sitemapURL) {
		in.log.WithField("sitemap_url", sitemapURL).Debug("Sitemap already processed, skipping")
		return nil
	}
	sitemapLog := in.log.WithField("sitemap_url", sitemapURL)

	page, err := in.getter.Get(ctx, sitemapURL, in.timeout, nil)
	if err != nil {
		sitemapLog.Warnf("Failed to fetch sitemap: %v", err)
		return nil
	}

	body, err := in.decompress(sitemapURL, page.Body)
	if err != nil {
		sitemapLog.Warnf("Failed to decompress sitemap: %v", err)
		return nil
	}

	var index parse.XMLSitemapIndex
	if err := decodeXML(body, &index); err == nil {
		sitemapLog.Infof("Sitemap index with %d child sitemap(s)", len(index.Sitemaps))
		var urls []string
		for _, child := range index.Sitemaps {
			if ctx.Err() != nil {
				sitemapLog.Warn("Context cancelled, stopping sitemap index recursion")
				break
			}
			urls = append(urls, in.ingest(ctx, strings.TrimSpace(child.Loc))...)
		}
		return urls
	}

	var urlSet parse.XMLURLSet
	if err := decodeXML(body, &urlSet); err != nil {
		sitemapLog.Warnf("Failed to parse sitemap XML: %v", err)
		return nil
	}

	urls := make([]string, 0, len(urlSet.URLs))
	rejected := 0
	for _, entry := range urlSet.URLs {
		loc := strings.TrimSpace(entry.Loc)
		if loc == "" {
			continue
		}
		cleaned, _, err := parse.ParseAndClean(loc)
		if err != nil || !in.validator.Validate(cleaned) {
			rejected++
			continue
		}
		urls = append(urls, cleaned)
	}
	sitemapLog.WithField("rejected", rejected).Infof("Extracted %d URLs from sitemap", len(urls))
	return urls
}

// decodeXML unmarshals body, transcoding non-UTF-8 documents per their XML declaration
func decodeXML(body []byte, v any) error {
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.CharsetReader = charset.NewReaderLabel
	return dec.Decode(v)
}

// decompress gunzips body when the URL or the leading bytes say it is gzip
func (in *Ingestor) decompress(sitemapURL string, body []byte) ([]byte, error) {
	if !strings.HasSuffix(strings.ToLower(sitemapURL), ".gz") && !bytes.HasPrefix(body, gzipMagic) {
		return body, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: opening gzip stream: %w", utils.ErrResponseBodyRead, err)
	}
	defer zr.Close()

	var r io.Reader = zr
	if in.maxBytes > 0 {
		r = io.LimitReader(zr, in.maxBytes+1)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: reading gzip stream: %w", utils.ErrResponseBodyRead, err)
	}
	if in.maxBytes > 0 && int64(len(out)) > in.maxBytes {
		return nil, fmt.Errorf("%w: decompressed sitemap exceeds %d bytes", utils.ErrResponseBodyRead, in.maxBytes)
	}
	return out, nil
}

// sitemapCollector gathers robots.txt Sitemap directives
type sitemapCollector struct {
	mu   sync.Mutex
	urls []string
}

func (c *sitemapCollector) FoundSitemap(sitemapURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.urls = append(c.urls, sitemapURL)
}

// Discover probes the well-known sitemap locations of every base URL concurrently and returns
// the deduplicated union of the page URLs found. Probes fail independently.
func (in *Ingestor) Discover(ctx context.Context, baseURLs []string) []string {
	var (
		mu    sync.Mutex
		found []string
	)
	g, gCtx := errgroup.WithContext(ctx)

	for _, base := range baseURLs {
		base = parse.TrimTrailingSlash(strings.TrimSpace(base))
		if base == "" {
			continue
		}
		for _, path := range in.probePaths {
			probeURL := base + path
			g.Go(func() error {
				defer func() {
					if r := recover(); r != nil {
						in.log.WithField("probe_url", probeURL).Errorf("PANIC during sitemap probe: %v\n%s", r, string(debug.Stack()))
					}
				}()
				urls := in.probe(gCtx, probeURL)
				mu.Lock()
				found = append(found, urls...)
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()

	out := lo.Uniq(found)
	in.log.Infof("Sitemap discovery found %d URLs across %d base URL(s)", len(out), len(baseURLs))
	return out
}

func (in *Ingestor) probe(ctx context.Context, probeURL string) []string {
	if !strings.HasSuffix(strings.ToLower(probeURL), "robots.txt") {
		return in.Ingest(ctx, probeURL)
	}
	collector := &sitemapCollector{}
	if in.robots.DiscoverSitemaps(ctx, probeURL, collector) == 0 {
		return nil
	}
	var urls []string
	for _, sitemapURL := range collector.urls {
		urls = append(urls, in.Ingest(ctx, sitemapURL)...)
	}
	return urls
}
