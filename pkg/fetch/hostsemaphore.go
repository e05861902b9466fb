package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/Sriram-PR/sitemapper/pkg/utils"
)

// hostEntry tracks a single host's semaphore and its usage state.
type hostEntry struct {
	sem         *semaphore.Weighted
	activeCount int64     // number of held + waiting permits
	lastRelease time.Time // updated on every release; zero if never released
}

// RequestGate bounds in-flight requests twice: max_requests across the whole run
// and max_requests_per_host for any single host. Prober and crawl workers share one gate.
type RequestGate struct {
	global         *semaphore.Weighted
	acquireTimeout time.Duration

	entries map[string]*hostEntry
	mu      sync.Mutex
	perHost int64
	log     *logrus.Entry
}

// NewRequestGate creates a gate. Non-positive limits fall back to 8 global and 2 per host.
func NewRequestGate(maxRequests, maxPerHost int, acquireTimeout time.Duration, log *logrus.Entry) *RequestGate {
	global := int64(maxRequests)
	if global <= 0 {
		global = 8
		log.Warnf("max_requests invalid or zero, defaulting to %d", global)
	}
	perHost := int64(maxPerHost)
	if perHost <= 0 {
		perHost = 2
		log.Warnf("max_requests_per_host invalid or zero, defaulting to %d", perHost)
	}
	return &RequestGate{
		global:         semaphore.NewWeighted(global),
		acquireTimeout: acquireTimeout,
		entries:        make(map[string]*hostEntry),
		perHost:        perHost,
		log:            log,
	}
}

// Acquire takes one global permit and one permit for host, in that order.
// Waiting is bounded by the configured acquire timeout; on timeout the error wraps
// utils.ErrSemaphoreTimeout. The returned release func must be called exactly once.
func (g *RequestGate) Acquire(ctx context.Context, host string) (func(), error) {
	acquireCtx := ctx
	if g.acquireTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, g.acquireTimeout)
		defer cancel()
	}

	if err := g.global.Acquire(acquireCtx, 1); err != nil {
		return nil, g.acquireErr(ctx, "global", host, err)
	}
	if err := g.acquireHost(acquireCtx, host); err != nil {
		g.global.Release(1)
		return nil, g.acquireErr(ctx, "host", host, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.releaseHost(host)
			g.global.Release(1)
		})
	}, nil
}

// acquireErr distinguishes a gate timeout from cancellation of the caller's context
func (g *RequestGate) acquireErr(parent context.Context, which, host string, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s semaphore for %s after %v", utils.ErrSemaphoreTimeout, which, host, g.acquireTimeout)
	}
	return err
}

func (g *RequestGate) acquireHost(ctx context.Context, host string) error {
	g.mu.Lock()
	entry, exists := g.entries[host]
	if !exists {
		entry = &hostEntry{sem: semaphore.NewWeighted(g.perHost)}
		g.entries[host] = entry
		g.log.WithFields(logrus.Fields{"host": host, "limit": g.perHost}).Debug("Created new host semaphore")
	}
	entry.activeCount++
	g.mu.Unlock()

	if err := entry.sem.Acquire(ctx, 1); err != nil {
		g.mu.Lock()
		entry.activeCount--
		g.mu.Unlock()
		return err
	}
	return nil
}

func (g *RequestGate) releaseHost(host string) {
	g.mu.Lock()
	entry, exists := g.entries[host]
	if !exists {
		g.mu.Unlock()
		g.log.Errorf("request gate: release called for unknown host: %s", host)
		return
	}
	entry.activeCount--
	entry.lastRelease = time.Now()
	g.mu.Unlock()

	entry.sem.Release(1)
}

// RunEviction periodically removes idle host entries. Should be run in a goroutine.
func (g *RequestGate) RunEviction(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.evictIdle(interval)
		case <-ctx.Done():
			g.log.Debugf("Stopping host semaphore eviction: %v", ctx.Err())
			return
		}
	}
}

// evictIdle removes entries that have been idle longer than maxIdle.
func (g *RequestGate) evictIdle(maxIdle time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	evicted := 0
	for host, entry := range g.entries {
		if entry.activeCount == 0 && !entry.lastRelease.IsZero() && now.Sub(entry.lastRelease) >= maxIdle {
			delete(g.entries, host)
			evicted++
		}
	}
	if evicted > 0 {
		g.log.Debugf("Evicted %d idle host semaphores, %d remain", evicted, len(g.entries))
	}
}

// Hosts returns the current number of tracked hosts.
func (g *RequestGate) Hosts() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}
