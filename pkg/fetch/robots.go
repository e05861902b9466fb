package fetch

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
)

// SitemapDiscoverer defines the callback interface for handling discovered sitemap URLs
type SitemapDiscoverer interface {
	FoundSitemap(sitemapURL string)
}

// RobotsHandler reads robots.txt only for its Sitemap directives; crawl rules are not enforced
type RobotsHandler struct {
	getter  *PageGetter
	timeout time.Duration
	log     *logrus.Entry
}

// NewRobotsHandler creates a RobotsHandler
func NewRobotsHandler(getter *PageGetter, timeout time.Duration, log *logrus.Entry) *RobotsHandler {
	return &RobotsHandler{
		getter:  getter,
		timeout: timeout,
		log:     log,
	}
}

// DiscoverSitemaps fetches and parses robotsURL and reports every Sitemap directive to notifier.
// Returns the number of directives found. Fetch and parse failures are logged and yield 0.
func (rh *RobotsHandler) DiscoverSitemaps(ctx context.Context, robotsURL string, notifier SitemapDiscoverer) int {
	robotsLog := rh.log.WithField("robots_url", robotsURL)
	robotsLog.Debug("Fetching robots.txt...")

	page, err := rh.getter.Get(ctx, robotsURL, rh.timeout, nil)
	if err != nil {
		robotsLog.Debugf("Fetching robots.txt failed: %v", err)
		return 0
	}

	data, err := robotstxt.FromBytes(page.Body)
	if err != nil {
		robotsLog.Warnf("Error parsing robots.txt: %v", err)
		return 0
	}

	if len(data.Sitemaps) > 0 {
		robotsLog.Infof("Found %d sitemap directive(s)", len(data.Sitemaps))
	}
	if notifier != nil {
		for _, sitemapURL := range data.Sitemaps {
			notifier.FoundSitemap(sitemapURL)
		}
	}
	return len(data.Sitemaps)
}
