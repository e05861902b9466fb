package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Sriram-PR/sitemapper/pkg/utils"
)

const (
	StoreMemory = "memory"
	StoreBadger = "badger"
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	// BaseURLs: an empty or unusable list is not fatal here; the run emits an empty sitemap instead
	if len(c.BaseURLs) == 0 {
		warnings = append(warnings, "base_urls is empty, nothing will be crawled")
	}
	for i, raw := range c.BaseURLs {
		trimmed := strings.TrimRight(strings.TrimSpace(raw), "/")
		u, parseErr := url.Parse(trimmed)
		if parseErr != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			warnings = append(warnings, fmt.Sprintf("base_urls[%d] '%s' is not an absolute http(s) URL, it will be ignored", i, raw))
			continue
		}
		c.BaseURLs[i] = trimmed
	}

	for i, d := range c.AllowedDomains {
		c.AllowedDomains[i] = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(d), "."))
	}

	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}

	// CrawlDelay
	if c.CrawlDelay < 0 {
		warnings = append(warnings, "crawl_delay cannot be negative, setting to 0")
		c.CrawlDelay = 0
	} else if c.CrawlDelay == 0 {
		warnings = append(warnings, "crawl_delay not set, defaulting to 500ms (use a negative value to disable)")
		c.CrawlDelay = 500 * time.Millisecond
	}

	// MaxURLs
	if c.MaxURLs <= 0 {
		warnings = append(warnings, "max_urls should be > 0, defaulting to 5000")
		c.MaxURLs = 5000
	}

	// NumWorkers
	if c.NumWorkers <= 0 {
		warnings = append(warnings, "num_workers should be > 0, defaulting to 2")
		c.NumWorkers = 2
	}

	// MaxRequests
	if c.MaxRequests <= 0 {
		warnings = append(warnings, "max_requests should be > 0, defaulting to 8")
		c.MaxRequests = 8
	}

	// MaxRequestsPerHost
	if c.MaxRequestsPerHost <= 0 {
		warnings = append(warnings, "max_requests_per_host should be > 0, defaulting to 2")
		c.MaxRequestsPerHost = 2
	}

	// PageTimeout
	if c.PageTimeout <= 0 {
		c.PageTimeout = 15 * time.Second
	}

	if c.MaxPageSizeBytes <= 0 {
		c.MaxPageSizeBytes = 10 * 1024 * 1024
	}

	if c.MaxURLLength <= 0 {
		c.MaxURLLength = 300
	}

	if c.ProgressInterval <= 0 {
		c.ProgressInterval = 30 * time.Second
	}

	// GlobalCrawlTimeout
	if c.GlobalCrawlTimeout < 0 {
		warnings = append(warnings, "global_crawl_timeout cannot be negative, disabling timeout")
		c.GlobalCrawlTimeout = 0
	}

	// MaxRetries
	if c.MaxRetries < 0 {
		warnings = append(warnings, "max_retries cannot be negative, setting to 0")
		c.MaxRetries = 0
	}
	if c.MaxRetries == 0 && c.InitialRetryDelay == 0 {
		c.MaxRetries = 1
	}

	// Retry delays (only if retries enabled)
	if c.MaxRetries > 0 {
		if c.InitialRetryDelay <= 0 {
			c.InitialRetryDelay = 1 * time.Second
		}
		if c.MaxRetryDelay <= 0 {
			c.MaxRetryDelay = 10 * time.Second
		}
	}

	// InitialRetryDelay > MaxRetryDelay check
	if c.InitialRetryDelay > c.MaxRetryDelay && c.MaxRetryDelay > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"initial_retry_delay (%v) > max_retry_delay (%v), using max_retry_delay for initial",
			c.InitialRetryDelay, c.MaxRetryDelay))
		c.InitialRetryDelay = c.MaxRetryDelay
	}

	// SemaphoreAcquireTimeout
	if c.SemaphoreAcquireTimeout <= 0 {
		c.SemaphoreAcquireTimeout = 30 * time.Second
	}

	// Vocabularies
	if len(c.SkipExtensions) == 0 {
		c.SkipExtensions = append([]string(nil), DefaultSkipExtensions...)
	}
	for i, ext := range c.SkipExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.SkipExtensions[i] = ext
	}
	if len(c.SpamIndicators) == 0 {
		c.SpamIndicators = append([]string(nil), DefaultSpamIndicators...)
	}
	if len(c.JobKeywords) == 0 {
		c.JobKeywords = append([]string(nil), DefaultJobKeywords...)
	}
	if len(c.Locations) == 0 {
		c.Locations = append([]string(nil), DefaultLocations...)
	}
	if len(c.CommonPaths) == 0 {
		c.CommonPaths = append([]string(nil), DefaultCommonPaths...)
	}
	for i, p := range c.CommonPaths {
		if p != "" && p[0] != '/' {
			c.CommonPaths[i] = "/" + p
		}
	}

	warnings = append(warnings, c.validateProbe()...)
	c.validateSitemaps()

	extractWarnings, err := c.validateExtract()
	warnings = append(warnings, extractWarnings...)
	if err != nil {
		return warnings, err
	}

	frontierWarnings, err := c.validateFrontier()
	warnings = append(warnings, frontierWarnings...)
	if err != nil {
		return warnings, err
	}

	c.validateOutput()
	warnings = append(warnings, c.validateSinks()...)

	// HTTPClientSettings defaults
	c.validateHTTPClientSettings()

	return warnings, nil
}

func (c *AppConfig) validateProbe() (warnings []string) {
	p := &c.Probe
	if p.Timeout <= 0 {
		p.Timeout = 5 * time.Second
	}
	if p.Delay < 0 {
		warnings = append(warnings, "probe.delay cannot be negative, setting to 0")
		p.Delay = 0
	} else if p.Delay == 0 {
		p.Delay = 100 * time.Millisecond
	}
	if p.MaxConfirmed <= 0 {
		p.MaxConfirmed = 500
	}
	if p.Workers <= 0 {
		p.Workers = 4
	}
	return warnings
}

func (c *AppConfig) validateSitemaps() {
	s := &c.Sitemaps
	if s.Timeout <= 0 {
		s.Timeout = 10 * time.Second
	}
	if len(s.ProbePaths) == 0 {
		s.ProbePaths = append([]string(nil), DefaultSitemapProbePaths...)
	}
}

func (c *AppConfig) validateExtract() (warnings []string, err error) {
	e := &c.Extract
	if len(e.Attributes) == 0 {
		e.Attributes = append([]string(nil), DefaultExtractAttributes...)
	}
	if e.ScriptMatchLimit <= 0 {
		e.ScriptMatchLimit = 10
	}
	if _, compileErr := utils.CompileRegexPatterns(e.ExtraScriptPatterns, true); compileErr != nil {
		return warnings, fmt.Errorf("%w: extract.extra_script_patterns: %v", utils.ErrConfigValidation, compileErr)
	}
	return warnings, nil
}

func (c *AppConfig) validateFrontier() (warnings []string, err error) {
	f := &c.Frontier
	f.Store = strings.ToLower(strings.TrimSpace(f.Store))
	switch f.Store {
	case "":
		f.Store = StoreMemory
	case StoreMemory, StoreBadger:
	default:
		return warnings, fmt.Errorf("%w: frontier.store must be '%s' or '%s', got '%s'",
			utils.ErrConfigValidation, StoreMemory, StoreBadger, f.Store)
	}
	if f.StateDir == "" {
		if f.Store == StoreBadger {
			warnings = append(warnings, "frontier.state_dir is empty, defaulting to './sitemapper_state'")
		}
		f.StateDir = "./sitemapper_state"
	}
	if f.BloomCapacity == 0 {
		f.BloomCapacity = 100000
	}
	if f.BloomFalsePositive <= 0 || f.BloomFalsePositive >= 1 {
		if f.BloomFalsePositive != 0 {
			warnings = append(warnings, fmt.Sprintf(
				"frontier.bloom_false_positive (%v) must be in (0,1), defaulting to 0.001", f.BloomFalsePositive))
		}
		f.BloomFalsePositive = 0.001
	}
	return warnings, nil
}

func (c *AppConfig) validateOutput() {
	o := &c.Output
	if o.Dir == "" {
		o.Dir = "."
	}
	if o.SitemapFilename == "" {
		o.SitemapFilename = "enhanced_sitemap.xml"
	}
	if o.ReportFilename == "" {
		o.ReportFilename = "enhanced_sitemap_report.json"
	}
	if o.LogFilename == "" {
		o.LogFilename = "enhanced_sitemap.log"
	}
}

func (c *AppConfig) validateSinks() (warnings []string) {
	r := &c.Sinks.Redis
	if r.Prefix == "" {
		r.Prefix = "sitemapper:run:"
	}
	if r.TTL < 0 {
		warnings = append(warnings, "sinks.redis.ttl cannot be negative, defaulting to 24h")
		r.TTL = 0
	}
	if r.TTL == 0 {
		r.TTL = 24 * time.Hour
	}
	k := &c.Sinks.Kafka
	if k.Topic == "" {
		k.Topic = "discovered-urls"
	}
	return warnings
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.Timeout <= 0 {
		h.Timeout = 45 * time.Second
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 2
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
}
