package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/Sriram-PR/sitemapper/pkg/candidate"
	"github.com/Sriram-PR/sitemapper/pkg/classify"
	"github.com/Sriram-PR/sitemapper/pkg/config"
	"github.com/Sriram-PR/sitemapper/pkg/extract"
	"github.com/Sriram-PR/sitemapper/pkg/fetch"
	"github.com/Sriram-PR/sitemapper/pkg/frontier"
	applog "github.com/Sriram-PR/sitemapper/pkg/log"
	"github.com/Sriram-PR/sitemapper/pkg/models"
	"github.com/Sriram-PR/sitemapper/pkg/output"
	"github.com/Sriram-PR/sitemapper/pkg/parse"
	"github.com/Sriram-PR/sitemapper/pkg/sink"
	"github.com/Sriram-PR/sitemapper/pkg/sitemap"
	"github.com/Sriram-PR/sitemapper/pkg/storage"
	"github.com/Sriram-PR/sitemapper/pkg/utils"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runDiscover(os.Args[2:])
	case "candidates":
		runCandidates(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	case "version":
		fmt.Printf("sitemapper %s\n", version)
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	printUsageTo(os.Stdout)
}

// printUsageTo writes usage information to the provided writer.
func printUsageTo(w io.Writer) {
	fmt.Fprintln(w, `sitemapper - URL discovery engine for job sites

Usage:
  sitemapper <command> [options]

Commands:
  run         Discover URLs and write the sitemap and report
  candidates  Print generated candidate URLs without probing them
  validate    Validate configuration file
  version     Show version info

Run 'sitemapper <command> -h' for command-specific help.`)
}

// loadConfig loads and parses the config file
func loadConfig(path string) (*config.AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg config.AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

// runOverrides are the run flags that replace config values when set
type runOverrides struct {
	maxURLs    int
	delay      time.Duration
	noProbe    bool
	noSitemaps bool
}

func (o runOverrides) apply(cfg *config.AppConfig) {
	if o.maxURLs > 0 {
		cfg.MaxURLs = o.maxURLs
	}
	if o.delay > 0 {
		cfg.CrawlDelay = o.delay
	}
	if o.noProbe {
		cfg.Probe.Enabled = lo.ToPtr(false)
	}
	if o.noSitemaps {
		cfg.Sitemaps.Enabled = lo.ToPtr(false)
	}
}

// runDiscover handles the run subcommand
func runDiscover(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")
	maxURLs := fs.Int("max-urls", 0, "Override max_urls (0 keeps the config value)")
	delay := fs.Duration("delay", 0, "Override crawl_delay, e.g. 250ms (0 keeps the config value)")
	noProbe := fs.Bool("no-probe", false, "Skip candidate generation and probing")
	noSitemaps := fs.Bool("no-sitemaps", false, "Skip existing sitemap discovery")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: sitemapper run [options]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  sitemapper run -config config.yaml\n")
		fmt.Fprintf(os.Stderr, "  sitemapper run -config config.yaml -max-urls 500 -no-probe\n")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	overrides := runOverrides{maxURLs: *maxURLs, delay: *delay, noProbe: *noProbe, noSitemaps: *noSitemaps}
	os.Exit(executeRun(*configFile, *logLevel, overrides, os.Stdout))
}

// executeRun loads config, wires the signal handling and runs one discovery.
// Returns the process exit code.
func executeRun(configFile, logLevel string, overrides runOverrides, stdout io.Writer) int {
	log := applog.NewLogger(os.Stderr, logLevel)

	log.Infof("Loading configuration from %s", configFile)
	appCfg, err := loadConfig(configFile)
	if err != nil {
		log.Errorf("Config error: %v", err)
		return 1
	}
	overrides.apply(appCfg)

	warnings, err := appCfg.Validate()
	for _, w := range warnings {
		log.Warn(w)
	}
	if err != nil {
		log.Errorf("Configuration error: %v", err)
		return 1
	}

	logPath := filepath.Join(appCfg.Output.Dir, appCfg.Output.LogFilename)
	if logFile, err := applog.TeeToFile(log, logPath); err != nil {
		log.Warnf("Log file disabled: %v", err)
	} else {
		defer logFile.Close()
		log.Infof("Mirroring log output to %s", logPath)
	}
	logAppConfig(appCfg, log)

	// ===========================================================
	// == Setup Global Context & Signal Handling ==
	// ===========================================================
	var runCtx context.Context
	var cancelRun context.CancelFunc
	if appCfg.GlobalCrawlTimeout > 0 {
		log.Infof("Setting global crawl timeout: %v", appCfg.GlobalCrawlTimeout)
		runCtx, cancelRun = context.WithTimeout(context.Background(), appCfg.GlobalCrawlTimeout)
	} else {
		log.Info("No global crawl timeout set.")
		runCtx, cancelRun = context.WithCancel(context.Background())
	}
	defer cancelRun()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("PANIC in signal handler: %v", r)
			}
		}()
		var sig os.Signal
		select {
		case sig = <-sigChan:
		case <-runCtx.Done():
			return
		}
		log.Warnf("Received signal: %v. Stopping discovery and writing partial results...", sig)
		cancelRun()

		select {
		case sig = <-sigChan:
			log.Warnf("Received second signal: %v. Forcing exit.", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Warn("Graceful shutdown period exceeded after signal. Forcing exit.")
			os.Exit(1)
		}
	}()

	result, report, err := runDiscovery(runCtx, appCfg, log)
	if result != nil {
		printSummary(stdout, appCfg, report)
	}

	switch {
	case errors.Is(err, utils.ErrNoSeeds):
		log.Error("No valid base URL configured; wrote an empty sitemap.")
		return 1
	case err != nil:
		log.Errorf("Discovery finished with error: %v", err)
		return 1
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		log.Warn("Global crawl timeout reached; results are partial.")
	case errors.Is(runCtx.Err(), context.Canceled):
		log.Warn("Discovery cancelled; results are partial.")
	default:
		log.Info("Discovery completed successfully.")
	}
	return 0
}

// runDiscovery builds every component for cfg, runs the engine and writes the output files.
// Output is written for partial and failed runs too; the returned error joins run and write errors.
func runDiscovery(ctx context.Context, cfg *config.AppConfig, logger *logrus.Logger) (*frontier.Result, models.Report, error) {
	log := logrus.NewEntry(logger)

	// --- Storage ---
	var store storage.SetStore
	if cfg.Frontier.Store == config.StoreBadger {
		bloomOpts := storage.BloomOptions{Capacity: cfg.Frontier.BloomCapacity, FalsePositiveRate: cfg.Frontier.BloomFalsePositive}
		badgerStore, err := storage.NewBadgerStore(ctx, cfg.Frontier.StateDir, utils.StateDirName(cfg.BaseURLs), bloomOpts, log.WithField("component", "storage"))
		if err != nil {
			return nil, models.Report{}, fmt.Errorf("initializing URL set store: %w", err)
		}
		go badgerStore.RunGC(ctx, 10*time.Minute)
		store = badgerStore
	} else {
		store = storage.NewMemoryStore()
	}
	defer store.Close()

	// --- HTTP Fetching Components ---
	httpClient := fetch.NewClient(cfg.HTTPClientSettings, log.WithField("component", "http_client"))
	fetcher := fetch.NewFetcher(httpClient, cfg, log.WithField("component", "fetcher"))
	gate := fetch.NewRequestGate(cfg.MaxRequests, cfg.MaxRequestsPerHost, cfg.SemaphoreAcquireTimeout, log.WithField("component", "request_gate"))
	go gate.RunEviction(ctx, 5*time.Minute)
	limiter := fetch.NewRateLimiter(cfg.CrawlDelay, log.WithField("component", "rate_limiter"))
	pages := fetch.NewPageGetter(fetcher, gate, limiter, cfg, log.WithField("component", "page_getter"))

	// --- Discovery Components ---
	classifier := classify.New(cfg)
	log.Infof("Allowed domains: %v", classifier.Domains())

	extractor, err := extract.New(cfg, classifier, log.WithField("component", "extractor"))
	if err != nil {
		return nil, models.Report{}, fmt.Errorf("initializing extractor: %w", err)
	}
	front, err := frontier.New(store, cfg.MaxURLs, log.WithField("component", "frontier"))
	if err != nil {
		return nil, models.Report{}, fmt.Errorf("initializing frontier: %w", err)
	}

	opts := &frontier.EngineOptions{Limiter: limiter}
	if cfg.SitemapsEnabled() {
		opts.Sitemaps = sitemap.NewIngestor(pages, classifier, cfg, log)
	} else {
		log.Info("Existing sitemap discovery disabled.")
	}
	if cfg.ProbeEnabled() {
		probeClient := fetch.NewProbeClient(cfg.HTTPClientSettings, httpClient)
		opts.Prober = candidate.NewProber(probeClient, gate, limiter, classifier, cfg, log.WithField("component", "prober"))
	} else {
		log.Info("Candidate probing disabled.")
	}

	// --- Optional Sinks ---
	if cfg.RedisEnabled() {
		statusStore := sink.NewRedisStatusStore(cfg.Sinks.Redis.Addr, cfg.Sinks.Redis.Prefix, cfg.Sinks.Redis.TTL)
		defer statusStore.Close()
		opts.Status = statusStore
		log.Infof("Publishing run status to redis at %s", cfg.Sinks.Redis.Addr)
	}
	if cfg.KafkaEnabled() {
		producer := sink.NewURLProducer(cfg.Sinks.Kafka.Brokers, cfg.Sinks.Kafka.Topic)
		defer producer.Close()
		opts.Publisher = producer
		log.Infof("Publishing discovered URLs to kafka topic '%s'", cfg.Sinks.Kafka.Topic)
	}

	engine := frontier.NewEngine(cfg, front, pages, extractor, classifier, log.WithField("component", "engine"), opts)

	// ===========================================================
	// == Run & Write Output ==
	// ===========================================================
	result, runErr := engine.Run(ctx)

	writer := output.NewWriter(cfg.Output, classifier, log)
	report, writeErr := writer.Write(result, time.Now())
	return result, report, errors.Join(runErr, writeErr)
}

// printSummary writes the end-of-run summary block
func printSummary(w io.Writer, cfg *config.AppConfig, report models.Report) {
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintln(w, "URL discovery summary")
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintf(w, "Run ID:          %s\n", report.RunID)
	fmt.Fprintf(w, "Terminal state:  %s\n", report.TerminalState)
	fmt.Fprintf(w, "Elapsed:         %.2f minutes\n", report.ElapsedMinutes)
	fmt.Fprintf(w, "URLs discovered: %d\n", report.TotalURLsDiscovered)
	fmt.Fprintf(w, "URLs crawled:    %d\n", report.TotalURLsCrawled)
	fmt.Fprintf(w, "Failed URLs:     %d\n", report.FailedURLs)
	fmt.Fprintf(w, "Not HTML:        %d\n", report.NotHTMLURLs)
	fmt.Fprintf(w, "Success rate:    %.1f%%\n", report.SuccessRate)
	fmt.Fprintln(w, "URL categories:")
	for _, c := range classify.Categories() {
		fmt.Fprintf(w, "  %-17s %d\n", c+":", report.URLCategories[c])
	}
	fmt.Fprintf(w, "Sitemap: %s\n", filepath.Join(cfg.Output.Dir, cfg.Output.SitemapFilename))
	fmt.Fprintf(w, "Report:  %s\n", filepath.Join(cfg.Output.Dir, cfg.Output.ReportFilename))
	fmt.Fprintln(w, "==================================================")
}

// runCandidates handles the candidates subcommand
func runCandidates(args []string) {
	fs := flag.NewFlagSet("candidates", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: sitemapper candidates [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	os.Exit(doCandidates(*configFile, os.Stdout, os.Stderr))
}

// doCandidates prints every valid generated candidate, one per line, without network access.
// Returns exit code (0 = success, 1 = error).
func doCandidates(configPath string, stdout, stderr io.Writer) int {
	appCfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if _, err := appCfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}

	classifier := classify.New(appCfg)
	var bases []string
	for _, raw := range appCfg.BaseURLs {
		cleaned, _, err := parse.ParseAndClean(raw)
		if err != nil || !classifier.Validate(cleaned) {
			fmt.Fprintf(stderr, "WARN: skipping invalid base URL '%s'\n", raw)
			continue
		}
		bases = append(bases, cleaned)
	}
	if len(bases) == 0 {
		fmt.Fprintf(stderr, "ERROR: %v\n", utils.ErrNoSeeds)
		return 1
	}

	candidates := lo.Filter(
		candidate.Generate(bases, appCfg.CommonPaths, appCfg.JobKeywords, appCfg.Locations),
		func(u string, _ int) bool { return classifier.Validate(u) },
	)
	for _, c := range candidates {
		fmt.Fprintln(stdout, c)
	}
	fmt.Fprintf(stderr, "%d candidate URL(s) from %d base URL(s)\n", len(candidates), len(bases))
	return 0
}

// runValidate handles the validate subcommand
func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: sitemapper validate [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	os.Exit(doValidate(*configFile, os.Stdout, os.Stderr))
}

// doValidate performs validation and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doValidate(configPath string, stdout, stderr io.Writer) int {
	appCfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	warnings, err := appCfg.Validate()
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "OK: %d base URL(s), allowed domains %v\n", len(appCfg.BaseURLs), classify.New(appCfg).Domains())
	fmt.Fprintln(stdout, "\nConfiguration valid.")
	return 0
}

// logAppConfig logs the effective configuration
func logAppConfig(appCfg *config.AppConfig, log *logrus.Logger) {
	log.Infof("Config: BaseURLs:%v, MaxURLs:%d, Workers:%d, MaxReqs:%d, MaxReqPerHost:%d",
		appCfg.BaseURLs, appCfg.MaxURLs, appCfg.NumWorkers, appCfg.MaxRequests, appCfg.MaxRequestsPerHost)
	log.Infof("Config Timeouts: CrawlDelay:%v, Page:%v, SemaphoreAcquire:%v, GlobalCrawl:%v, Progress:%v",
		appCfg.CrawlDelay, appCfg.PageTimeout, appCfg.SemaphoreAcquireTimeout, appCfg.GlobalCrawlTimeout, appCfg.ProgressInterval)
	log.Infof("Config Retries: Max:%d, InitialDelay:%v, MaxDelay:%v",
		appCfg.MaxRetries, appCfg.InitialRetryDelay, appCfg.MaxRetryDelay)
	log.Infof("Config Discovery: Sitemaps:%t, Probe:%t (timeout %v, delay %v, max confirmed %d)",
		appCfg.SitemapsEnabled(), appCfg.ProbeEnabled(), appCfg.Probe.Timeout, appCfg.Probe.Delay, appCfg.Probe.MaxConfirmed)
	log.Infof("Config Frontier: Store:%s, StateDir:%s; Output: %s",
		appCfg.Frontier.Store, appCfg.Frontier.StateDir, appCfg.Output.Dir)
	log.Infof("Config HTTP Client: Timeout:%v, MaxIdle:%d, MaxIdlePerHost:%d, IdleTimeout:%v, TLSTimeout:%v, DialerTimeout:%v",
		appCfg.HTTPClientSettings.Timeout, appCfg.HTTPClientSettings.MaxIdleConns, appCfg.HTTPClientSettings.MaxIdleConnsPerHost,
		appCfg.HTTPClientSettings.IdleConnTimeout, appCfg.HTTPClientSettings.TLSHandshakeTimeout, appCfg.HTTPClientSettings.DialerTimeout)
}
