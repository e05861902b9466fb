package config

import "time"

// AppConfig holds the global application configuration
type AppConfig struct {
	BaseURLs                []string      `yaml:"base_urls"`
	AllowedDomains          []string      `yaml:"allowed_domains,omitempty"` // Derived from base_urls when empty
	UserAgent               string        `yaml:"user_agent,omitempty"`
	CrawlDelay              time.Duration `yaml:"crawl_delay,omitempty"` // 0 or unset = 500ms, negative = no delay
	MaxURLs                 int           `yaml:"max_urls,omitempty"`
	NumWorkers              int           `yaml:"num_workers,omitempty"`
	MaxRequests             int           `yaml:"max_requests,omitempty"`
	MaxRequestsPerHost      int           `yaml:"max_requests_per_host,omitempty"`
	PageTimeout             time.Duration `yaml:"page_timeout,omitempty"`
	MaxPageSizeBytes        int64         `yaml:"max_page_size_bytes,omitempty"`
	MaxURLLength            int           `yaml:"max_url_length,omitempty"`
	ProgressInterval        time.Duration `yaml:"progress_interval,omitempty"`
	GlobalCrawlTimeout      time.Duration `yaml:"global_crawl_timeout,omitempty"` // 0 = no timeout
	MaxRetries              int           `yaml:"max_retries,omitempty"`
	InitialRetryDelay       time.Duration `yaml:"initial_retry_delay,omitempty"`
	MaxRetryDelay           time.Duration `yaml:"max_retry_delay,omitempty"`
	SemaphoreAcquireTimeout time.Duration `yaml:"semaphore_acquire_timeout,omitempty"`

	SkipExtensions []string `yaml:"skip_extensions,omitempty"`
	SpamIndicators []string `yaml:"spam_indicators,omitempty"`
	JobKeywords    []string `yaml:"job_keywords,omitempty"`
	Locations      []string `yaml:"locations,omitempty"`
	CommonPaths    []string `yaml:"common_paths,omitempty"`

	Probe              ProbeConfig      `yaml:"probe,omitempty"`
	Sitemaps           SitemapConfig    `yaml:"sitemaps,omitempty"`
	Extract            ExtractConfig    `yaml:"extract,omitempty"`
	Frontier           FrontierConfig   `yaml:"frontier,omitempty"`
	Output             OutputConfig     `yaml:"output,omitempty"`
	Sinks              SinksConfig      `yaml:"sinks,omitempty"`
	HTTPClientSettings HTTPClientConfig `yaml:"http_client_settings,omitempty"`
}

// ProbeConfig controls HEAD existence checks against generated candidates
type ProbeConfig struct {
	Enabled      *bool         `yaml:"enabled,omitempty"` // nil = default (enabled)
	Timeout      time.Duration `yaml:"timeout,omitempty"`
	Delay        time.Duration `yaml:"delay,omitempty"`
	MaxConfirmed int           `yaml:"max_confirmed,omitempty"`
	Workers      int           `yaml:"workers,omitempty"`
}

// SitemapConfig controls existing-sitemap discovery and ingestion
type SitemapConfig struct {
	Enabled    *bool         `yaml:"enabled,omitempty"` // nil = default (enabled)
	Timeout    time.Duration `yaml:"timeout,omitempty"`
	ProbePaths []string      `yaml:"probe_paths,omitempty"`
}

// ExtractConfig controls page link extraction
type ExtractConfig struct {
	Attributes          []string `yaml:"attributes,omitempty"`
	ScriptMatchLimit    int      `yaml:"script_match_limit,omitempty"`
	ExtraScriptPatterns []string `yaml:"extra_script_patterns,omitempty"`
}

// FrontierConfig selects the URL set backend
type FrontierConfig struct {
	Store              string  `yaml:"store,omitempty"` // "memory" or "badger"
	StateDir           string  `yaml:"state_dir,omitempty"`
	BloomCapacity      uint    `yaml:"bloom_capacity,omitempty"`
	BloomFalsePositive float64 `yaml:"bloom_false_positive,omitempty"`
}

// OutputConfig names the output directory and files
type OutputConfig struct {
	Dir             string `yaml:"dir,omitempty"`
	SitemapFilename string `yaml:"sitemap_filename,omitempty"`
	ReportFilename  string `yaml:"report_filename,omitempty"`
	LogFilename     string `yaml:"log_filename,omitempty"`
}

// SinksConfig holds the optional run sinks. Empty addresses disable them.
type SinksConfig struct {
	Redis RedisSinkConfig `yaml:"redis,omitempty"`
	Kafka KafkaSinkConfig `yaml:"kafka,omitempty"`
}

// RedisSinkConfig configures the run status store
type RedisSinkConfig struct {
	Addr   string        `yaml:"addr,omitempty"`
	Prefix string        `yaml:"prefix,omitempty"`
	TTL    time.Duration `yaml:"ttl,omitempty"`
}

// KafkaSinkConfig configures the discovered-URL publisher
type KafkaSinkConfig struct {
	Brokers []string `yaml:"brokers,omitempty"`
	Topic   string   `yaml:"topic,omitempty"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`                 // Overall request timeout
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`       // Timeout for idle connections
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`   // Timeout for TLS handshake
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"` // Timeout for 100-continue
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"`     // nil=default, true=force, false=disable
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`          // Connection dial timeout
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`       // TCP keep-alive interval
}

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// DefaultHeaders are sent with every page and sitemap request
var DefaultHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.9",
	"DNT":                       "1",
	"Upgrade-Insecure-Requests": "1",
}

var (
	DefaultSkipExtensions = []string{
		".pdf", ".jpg", ".jpeg", ".png", ".gif", ".css", ".js",
		".ico", ".xml", ".txt", ".zip", ".doc", ".docx",
	}

	DefaultSpamIndicators = []string{"wp-admin", "wp-content", "admin", "login", "register"}

	DefaultJobKeywords = []string{
		"software", "developer", "engineer", "manager", "analyst", "consultant",
		"sales", "marketing", "finance", "hr", "admin", "support", "designer",
		"data", "product", "project", "business", "customer", "technical",
	}

	DefaultLocations = []string{
		"mumbai", "delhi", "bangalore", "hyderabad", "chennai", "pune",
		"kolkata", "ahmedabad", "jaipur", "lucknow", "kanpur", "nagpur",
		"indore", "bhopal", "visakhapatnam", "patna", "vadodara", "ghaziabad",
		"london", "manchester", "birmingham", "leeds", "glasgow", "liverpool",
		"bristol", "sheffield", "edinburgh", "leicester",
	}

	DefaultCommonPaths = []string{
		"/jobs", "/jobs/", "/careers", "/careers/", "/vacancies", "/opportunities",
		"/companies", "/employers", "/locations", "/departments", "/categories",
		"/search", "/browse", "/find-jobs", "/job-search",
		"/about", "/contact", "/privacy", "/terms", "/help", "/faq",
	}

	DefaultSitemapProbePaths = []string{
		"/sitemap.xml", "/sitemap_index.xml", "/sitemaps.xml", "/sitemap/", "/robots.txt",
	}

	DefaultExtractAttributes = []string{"data-href", "data-url", "data-link"}
)

// ProbeEnabled reports whether candidate probing is on (default true)
func (c AppConfig) ProbeEnabled() bool {
	return c.Probe.Enabled == nil || *c.Probe.Enabled
}

// SitemapsEnabled reports whether sitemap discovery is on (default true)
func (c AppConfig) SitemapsEnabled() bool {
	return c.Sitemaps.Enabled == nil || *c.Sitemaps.Enabled
}

// RedisEnabled reports whether a run status store is configured
func (c AppConfig) RedisEnabled() bool {
	return c.Sinks.Redis.Addr != ""
}

// KafkaEnabled reports whether a discovered-URL publisher is configured
func (c AppConfig) KafkaEnabled() bool {
	return len(c.Sinks.Kafka.Brokers) > 0
}
