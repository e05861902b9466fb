package frontier

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"runtime/debug"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Sriram-PR/sitemapper/pkg/candidate"
	"github.com/Sriram-PR/sitemapper/pkg/config"
	"github.com/Sriram-PR/sitemapper/pkg/fetch"
	"github.com/Sriram-PR/sitemapper/pkg/models"
	"github.com/Sriram-PR/sitemapper/pkg/parse"
	"github.com/Sriram-PR/sitemapper/pkg/utils"
)

// PageSource fetches a page through the politeness pipeline
type PageSource interface {
	Get(ctx context.Context, rawURL string, timeout time.Duration, wantBody func(contentType string) bool) (*fetch.Page, error)
}

// LinkExtractor returns the valid URLs referenced by a parsed page
type LinkExtractor interface {
	Extract(pageURL *url.URL, doc *goquery.Document) []string
}

// URLClassifier validates and ranks URLs
type URLClassifier interface {
	Validate(rawURL string) bool
	Priority(rawURL string) int
	ReportCategory(rawURL string) string
}

// SitemapSource discovers page URLs from the sites' existing sitemaps
type SitemapSource interface {
	Discover(ctx context.Context, baseURLs []string) []string
}

// CandidateProber confirms which generated candidates exist
type CandidateProber interface {
	Probe(ctx context.Context, candidates []string) []string
}

// IntervalSetter changes the global request interval between phases
type IntervalSetter interface {
	SetInterval(d time.Duration)
}

// StatusSink stores the latest RunStatus of a run
type StatusSink interface {
	PutStatus(ctx context.Context, status models.RunStatus) error
}

// URLPublisher forwards newly discovered URLs downstream
type URLPublisher interface {
	Publish(ctx context.Context, urls []models.DiscoveredURL) error
}

// EngineOptions holds the optional collaborators of an Engine. Nil fields disable the feature.
type EngineOptions struct {
	Sitemaps  SitemapSource
	Prober    CandidateProber
	Limiter   IntervalSetter
	Status    StatusSink
	Publisher URLPublisher
	RunID     string // Generated when empty
}

// Result is what a run leaves behind for output, including partial runs
type Result struct {
	RunID     string
	State     models.RunState
	StartedAt time.Time
	Elapsed   time.Duration
	Snapshot  models.Snapshot
}

const sinkTimeout = 5 * time.Second

// Engine seeds the Frontier and runs the crawl workers until it drains, hits the budget or is cancelled
type Engine struct {
	cfg        *config.AppConfig
	frontier   *Frontier
	pages      PageSource
	extractor  LinkExtractor
	classifier URLClassifier
	opts       EngineOptions
	runID      string
	seedKeys   map[string]struct{} // base URLs without trailing slash; written only during seeding
	log        *logrus.Entry

	stateMu sync.Mutex
	state   models.RunState
}

// NewEngine creates an Engine. opts may be nil.
func NewEngine(
	cfg *config.AppConfig,
	frontier *Frontier,
	pages PageSource,
	extractor LinkExtractor,
	classifier URLClassifier,
	log *logrus.Entry,
	opts *EngineOptions,
) *Engine {
	e := &Engine{
		cfg:        cfg,
		frontier:   frontier,
		pages:      pages,
		extractor:  extractor,
		classifier: classifier,
		seedKeys:   make(map[string]struct{}),
		log:        log,
	}
	if opts != nil {
		e.opts = *opts
	}
	e.runID = e.opts.RunID
	if e.runID == "" {
		e.runID = uuid.NewString()
	}
	e.log = log.WithField("run_id", e.runID)
	return e
}

// RunID returns the identifier used for sinks and the report
func (e *Engine) RunID() string {
	return e.runID
}

// State returns the current lifecycle state
func (e *Engine) State() models.RunState {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.state
}

func (e *Engine) setState(ctx context.Context, state models.RunState) {
	e.stateMu.Lock()
	e.state = state
	e.stateMu.Unlock()
	e.log.WithField("state", state).Info("Run state changed")
	e.pushStatus(ctx)
}

// Run seeds and crawls. The returned Result is always usable for output, even alongside an error.
// The error is utils.ErrNoSeeds when no base URL is valid, or a recovered panic.
func (e *Engine) Run(ctx context.Context) (res *Result, err error) {
	startedAt := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e.log.WithFields(logrus.Fields{
				"panic_info":  r,
				"stack_trace": string(debug.Stack()),
			}).Error("PANIC recovered in run loop, returning partial results")
			e.frontier.Stop()
			e.setState(context.Background(), models.RunStateCancelled)
			res = e.result(startedAt)
			err = fmt.Errorf("panic during run: %v", r)
		}
	}()

	e.setState(ctx, models.RunStateSeeding)
	if err := e.seed(ctx); err != nil {
		e.frontier.Stop()
		e.setState(context.Background(), models.RunStateDrained)
		return e.result(startedAt), err
	}
	if ctx.Err() != nil {
		e.frontier.Stop()
		e.setState(context.Background(), models.RunStateCancelled)
		return e.result(startedAt), nil
	}

	e.crawl(ctx)

	final := models.RunStateDrained
	switch {
	case ctx.Err() != nil:
		final = models.RunStateCancelled
	case e.frontier.BudgetHit():
		final = models.RunStateBudgetExhausted
	}
	e.setState(context.Background(), final)
	return e.result(startedAt), nil
}

func (e *Engine) result(startedAt time.Time) *Result {
	snap, err := e.frontier.Snapshot()
	if err != nil {
		e.log.Errorf("Failed to snapshot frontier: %v", err)
	}
	return &Result{
		RunID:     e.runID,
		State:     e.State(),
		StartedAt: startedAt,
		Elapsed:   time.Since(startedAt),
		Snapshot:  snap,
	}
}

// seed discovers base URLs, then sitemap URLs, then confirmed candidates
func (e *Engine) seed(ctx context.Context) error {
	var (
		bases []string
		batch []models.DiscoveredURL
	)
	for i, raw := range e.cfg.BaseURLs {
		cleaned, _, err := parse.ParseAndClean(raw)
		if err != nil || !e.classifier.Validate(cleaned) {
			e.log.WithFields(logrus.Fields{"index": i, "url": raw}).Warn("Invalid base URL. Skipping.")
			continue
		}
		if e.isSeed(cleaned) {
			continue
		}
		bases = append(bases, cleaned)
		e.discover(cleaned, models.SourceSeed, &batch)
		e.seedKeys[parse.TrimTrailingSlash(cleaned)] = struct{}{}
	}
	if len(bases) == 0 {
		e.log.Error("No valid base URLs, nothing to crawl")
		return utils.ErrNoSeeds
	}
	e.log.Infof("Seeded %d base URL(s)", len(bases))

	if e.opts.Sitemaps != nil && ctx.Err() == nil {
		urls := e.opts.Sitemaps.Discover(ctx, bases)
		added := 0
		for _, u := range urls {
			if e.discover(u, models.SourceSitemap, &batch) {
				added++
			}
		}
		e.log.Infof("Seeded %d URL(s) from existing sitemaps (%d listed)", added, len(urls))
	}

	if e.opts.Prober != nil && ctx.Err() == nil {
		candidates := candidate.Generate(bases, e.cfg.CommonPaths, e.cfg.JobKeywords, e.cfg.Locations)
		candidates = lo.Reject(candidates, func(u string, _ int) bool { return e.isSeed(u) })
		confirmed := e.opts.Prober.Probe(ctx, candidates)
		added := 0
		for _, u := range confirmed {
			if e.discover(u, models.SourceCandidate, &batch) {
				added++
			}
		}
		e.log.Infof("Seeded %d confirmed candidate URL(s) out of %d generated", added, len(candidates))
	}

	e.publish(ctx, batch)
	return nil
}

// crawl runs the workers until the frontier drains or is stopped
func (e *Engine) crawl(ctx context.Context) {
	if e.opts.Limiter != nil {
		e.opts.Limiter.SetInterval(e.cfg.CrawlDelay)
	}
	e.setState(ctx, models.RunStateCrawling)

	numWorkers := max(1, e.cfg.NumWorkers)
	e.log.Infof("Crawl starting with %d worker(s), %d URL(s) queued", numWorkers, e.frontier.Stats().QueueLen)

	waitDone := make(chan struct{})
	go func() {
		e.frontier.Wait()
		e.frontier.Close()
		close(waitDone)
	}()
	go func() {
		select {
		case <-ctx.Done():
			e.log.Warnf("Context cancelled (%v), stopping frontier", ctx.Err())
			e.frontier.Stop()
		case <-waitDone:
		}
	}()

	progDone := make(chan struct{})
	if e.cfg.ProgressInterval > 0 {
		go e.reportProgress(ctx, progDone)
	}

	var g errgroup.Group
	for i := 1; i <= numWorkers; i++ {
		workerLog := e.log.WithField("worker_id", i)
		g.Go(func() error {
			e.worker(ctx, workerLog)
			return nil
		})
	}
	_ = g.Wait()
	close(progDone)
	<-waitDone

	stats := e.frontier.Stats()
	e.log.WithFields(logrus.Fields{
		"discovered": stats.Discovered,
		"crawled":    stats.Crawled,
		"failed":     stats.Failed,
		"not_html":   stats.NotHTML,
	}).Info("Crawl workers finished")
}

func (e *Engine) worker(ctx context.Context, workerLog *logrus.Entry) {
	workerLog.Debug("Worker starting")
	defer workerLog.Debug("Worker finished")

	for {
		item, ok := e.frontier.Next()
		if !ok {
			return
		}
		e.processItem(ctx, item, workerLog)
	}
}

// processItem handles one dequeued URL. It always calls TaskDone exactly once.
func (e *Engine) processItem(ctx context.Context, item *models.WorkItem, workerLog *logrus.Entry) {
	taskLog := workerLog.WithFields(logrus.Fields{"url": item.URL, "source": item.Source})
	startTime := time.Now()
	claimed := false
	outcome := models.OutcomeSkipped

	defer func() {
		if r := recover(); r != nil {
			taskLog.WithFields(logrus.Fields{
				"panic_info":  r,
				"stack_trace": string(debug.Stack()),
			}).Error("PANIC recovered in processItem")
			if claimed {
				e.frontier.MarkFailed(item.URL, fmt.Errorf("panic: %v", r))
			}
			outcome = models.OutcomeFailed
		}
		taskLog.WithFields(logrus.Fields{
			"outcome":  outcome,
			"duration": time.Since(startTime).String(),
		}).Debug("Task finished")
		e.frontier.TaskDone()
	}()

	if ctx.Err() != nil {
		return
	}
	if !e.frontier.BeginCrawl(item.URL) {
		return
	}
	claimed = true

	page, err := e.pages.Get(ctx, item.URL, e.cfg.PageTimeout, fetch.IsHTMLContentType)
	if err != nil {
		if ctx.Err() != nil {
			e.frontier.Release(item.URL)
			return
		}
		e.frontier.MarkFailed(item.URL, err)
		outcome = models.OutcomeFailed
		taskLog.WithField("category", utils.CategorizeError(err)).Warnf("Fetch failed: %v", err)
		return
	}

	if !fetch.IsHTMLContentType(page.ContentType) {
		notHTML := fmt.Errorf("%w: content type %q", utils.ErrNotHTML, page.ContentType)
		e.frontier.MarkNotHTML(item.URL)
		outcome = models.OutcomeNotHTML
		taskLog.WithField("category", utils.CategorizeError(notHTML)).Debugf("Skipping body: %v", notHTML)
		return
	}

	var batch []models.DiscoveredURL
	if finalURL := parse.CleanURL(page.FinalURL); finalURL != "" && finalURL != item.URL && e.classifier.Validate(finalURL) {
		if e.discover(finalURL, models.SourceRedirect, &batch) {
			taskLog.Debugf("Discovered redirect target %s", finalURL)
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		taskLog.Warnf("Failed to parse HTML, no links extracted: %v", err)
	} else {
		for _, link := range e.extractor.Extract(page.FinalURL, doc) {
			e.discover(link, models.SourceExtracted, &batch)
		}
	}

	e.frontier.MarkCrawled(item.URL)
	outcome = models.OutcomeCrawled
	taskLog.WithField("new_urls", len(batch)).Info("Page crawled")
	e.publish(ctx, batch)
}

func (e *Engine) isSeed(rawURL string) bool {
	_, ok := e.seedKeys[parse.TrimTrailingSlash(rawURL)]
	return ok
}

// discover adds url to the frontier and, when new, to the publish batch.
// A base URL spelled with or without its trailing slash is only discovered once.
func (e *Engine) discover(rawURL string, source models.Source, batch *[]models.DiscoveredURL) bool {
	if source != models.SourceSeed && e.isSeed(rawURL) {
		return false
	}
	if !e.frontier.Discover(rawURL, source) {
		return false
	}
	if e.opts.Publisher != nil {
		*batch = append(*batch, models.DiscoveredURL{
			RunID:        e.runID,
			URL:          rawURL,
			Source:       source,
			Priority:     e.classifier.Priority(rawURL),
			Category:     e.classifier.ReportCategory(rawURL),
			DiscoveredAt: time.Now(),
		})
	}
	return true
}

// publish is best-effort; failures are logged and the run continues
func (e *Engine) publish(ctx context.Context, batch []models.DiscoveredURL) {
	if e.opts.Publisher == nil || len(batch) == 0 || ctx.Err() != nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, sinkTimeout)
	defer cancel()
	if err := e.opts.Publisher.Publish(pubCtx, batch); err != nil {
		e.log.WithField("count", len(batch)).Warnf("Failed to publish discovered URLs: %v", err)
	}
}

// Status builds the current RunStatus
func (e *Engine) Status() models.RunStatus {
	stats := e.frontier.Stats()
	return models.RunStatus{
		RunID:      e.runID,
		State:      e.State(),
		Discovered: stats.Discovered,
		Crawled:    stats.Crawled,
		Failed:     stats.Failed,
		NotHTML:    stats.NotHTML,
		QueueLen:   stats.QueueLen,
		UpdatedAt:  time.Now(),
	}
}

func (e *Engine) pushStatus(ctx context.Context) {
	if e.opts.Status == nil {
		return
	}
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	statusCtx, cancel := context.WithTimeout(ctx, sinkTimeout)
	defer cancel()
	if err := e.opts.Status.PutStatus(statusCtx, e.Status()); err != nil {
		e.log.Warnf("Failed to store run status: %v", err)
	}
}

func (e *Engine) reportProgress(ctx context.Context, done <-chan struct{}) {
	ticker := time.NewTicker(e.cfg.ProgressInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := e.frontier.Stats()
			e.log.WithFields(logrus.Fields{
				"discovered":  stats.Discovered,
				"crawled":     stats.Crawled,
				"failed":      stats.Failed,
				"not_html":    stats.NotHTML,
				"in_progress": stats.InProgress,
				"queue_len":   stats.QueueLen,
			}).Info("Crawl progress")
			e.pushStatus(ctx)
		}
	}
}
