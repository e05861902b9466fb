package frontier

import (
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/sitemapper/pkg/models"
	"github.com/Sriram-PR/sitemapper/pkg/queue"
	"github.com/Sriram-PR/sitemapper/pkg/storage"
	"github.com/Sriram-PR/sitemapper/pkg/utils"
)

// Stats is a point-in-time count of the frontier collections
type Stats struct {
	Discovered int
	Crawled    int
	Failed     int
	NotHTML    int
	InProgress int
	QueueLen   int
}

// Frontier owns the discovered, crawled, failed and not-HTML sets plus the FIFO work queue.
// One mutex covers every collection so check-and-insert and claim-for-crawl are atomic.
//
// Every queued item is tracked by a WaitGroup until a worker calls TaskDone for it,
// or until Stop drains it. Wait returns once nothing is queued or in flight.
type Frontier struct {
	mu         sync.Mutex
	discovered storage.URLSet
	crawled    storage.URLSet
	failed     storage.URLSet
	notHTML    storage.URLSet
	inProgress map[string]struct{}
	failures   map[string]int // CategorizeError category -> count

	queue   *queue.ThreadSafeQueue
	pending sync.WaitGroup

	maxURLs   int
	budgetHit bool
	stopped   bool
	log       *logrus.Entry
}

// New creates a Frontier over the named sets of store. maxURLs <= 0 means unbounded.
func New(store storage.SetStore, maxURLs int, log *logrus.Entry) (*Frontier, error) {
	f := &Frontier{
		inProgress: make(map[string]struct{}),
		failures:   make(map[string]int),
		queue:      queue.NewThreadSafeQueue(log),
		maxURLs:    maxURLs,
		log:        log,
	}
	for name, dst := range map[string]*storage.URLSet{
		storage.SetDiscovered: &f.discovered,
		storage.SetCrawled:    &f.crawled,
		storage.SetFailed:     &f.failed,
		storage.SetNotHTML:    &f.notHTML,
	} {
		set, err := store.Set(name)
		if err != nil {
			return nil, fmt.Errorf("opening '%s' set: %w", name, err)
		}
		*dst = set
	}
	return f, nil
}

// Discover adds url to the discovered set and enqueues it.
// Returns false if url was already discovered, the budget is reached, or the set store failed.
func (f *Frontier) Discover(url string, source models.Source) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.maxURLs > 0 && f.discovered.Len() >= f.maxURLs {
		if !f.budgetHit {
			err := fmt.Errorf("%w: %d discovered", utils.ErrBudgetExhausted, f.maxURLs)
			f.log.WithField("category", utils.CategorizeError(err)).Infof("%v, further discoveries are dropped", err)
		}
		f.budgetHit = true
		return false
	}
	added, err := f.discovered.Add(url, models.URLEntry{Source: source, AddedAt: time.Now()})
	if err != nil {
		f.log.WithField("url", url).Errorf("Failed to record discovered URL: %v", err)
		return false
	}
	if !added {
		return false
	}

	f.pending.Add(1)
	if !f.queue.Add(&models.WorkItem{URL: url, Source: source}) {
		f.pending.Done() // stopped; the URL stays discovered but is never crawled
	}
	return true
}

// Next blocks for the next queued item. Returns false once the frontier is stopped or drained.
// A crawled set at the budget stops the frontier.
func (f *Frontier) Next() (*models.WorkItem, bool) {
	if f.BudgetReached() {
		f.Stop()
		return nil, false
	}
	return f.queue.Pop()
}

// BudgetReached reports whether the crawled set has reached max_urls
func (f *Frontier) BudgetReached() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.maxURLs > 0 && f.crawled.Len() >= f.maxURLs {
		f.budgetHit = true
		return true
	}
	return false
}

// BeginCrawl claims url for one worker. Returns false if it is already crawled, failed,
// not HTML or claimed by another worker.
func (f *Frontier) BeginCrawl(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, busy := f.inProgress[url]; busy {
		return false
	}
	for _, set := range []storage.URLSet{f.crawled, f.failed, f.notHTML} {
		done, err := set.Contains(url)
		if err != nil {
			f.log.WithField("url", url).Errorf("Failed to check URL status: %v", err)
			return false
		}
		if done {
			return false
		}
	}
	f.inProgress[url] = struct{}{}
	return true
}

// MarkCrawled records url as fetched and processed
func (f *Frontier) MarkCrawled(url string) {
	f.finish(url, f.crawled, models.OutcomeCrawled)
}

// MarkNotHTML records url as fetched but not crawlable. It is not a failure.
func (f *Frontier) MarkNotHTML(url string) {
	f.finish(url, f.notHTML, models.OutcomeNotHTML)
}

// MarkFailed records url as failed and counts the error category
func (f *Frontier) MarkFailed(url string, cause error) {
	f.mu.Lock()
	f.failures[utils.CategorizeError(cause)]++
	f.mu.Unlock()
	f.finish(url, f.failed, models.OutcomeFailed)
}

// Release drops the claim on url without recording an outcome, e.g. when the run is cancelled mid-fetch
func (f *Frontier) Release(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.inProgress, url)
}

func (f *Frontier) finish(url string, set storage.URLSet, outcome models.Outcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.inProgress, url)
	if _, err := set.Add(url, models.URLEntry{AddedAt: time.Now()}); err != nil {
		f.log.WithFields(logrus.Fields{"url": url, "outcome": outcome}).Errorf("Failed to record outcome: %v", err)
	}
}

// TaskDone must be called once for every item returned by Next
func (f *Frontier) TaskDone() {
	f.pending.Done()
}

// Wait blocks until every queued item has been handled or drained
func (f *Frontier) Wait() {
	f.pending.Wait()
}

// Close stops accepting work once the queue is empty; workers drain what is left
func (f *Frontier) Close() {
	f.queue.Close()
}

// Stop closes the queue and discards pending items. Safe to call more than once.
func (f *Frontier) Stop() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()

	dropped := f.queue.Drain()
	for range dropped {
		f.pending.Done()
	}
	if len(dropped) > 0 {
		f.log.Infof("Frontier stopped, dropped %d queued URL(s)", len(dropped))
	}
}

// Stopped reports whether Stop was called
func (f *Frontier) Stopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

// BudgetHit reports whether max_urls limited discovery or crawling at any point
func (f *Frontier) BudgetHit() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.budgetHit
}

// Stats returns the current collection sizes
func (f *Frontier) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Stats{
		Discovered: f.discovered.Len(),
		Crawled:    f.crawled.Len(),
		Failed:     f.failed.Len(),
		NotHTML:    f.notHTML.Len(),
		InProgress: len(f.inProgress),
		QueueLen:   f.queue.Len(),
	}
}

// Snapshot copies the discovered set and counters for output
func (f *Frontier) Snapshot() (models.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	members, err := f.discovered.Members()
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("listing discovered URLs: %w", err)
	}
	return models.Snapshot{
		Discovered:        members,
		Crawled:           f.crawled.Len(),
		Failed:            f.failed.Len(),
		NotHTML:           f.notHTML.Len(),
		FailureCategories: maps.Clone(f.failures),
	}, nil
}
