package fetch

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RateLimiter paces requests in two ways: a process-wide interval shared by every worker
// (the crawl delay, or the probe delay while candidates are probed) and a per-host minimum gap
type RateLimiter struct {
	global *rate.Limiter

	hostLastRequest   map[string]time.Time // hostname -> last request attempt time
	hostLastRequestMu sync.Mutex           // Protects hostLastRequest map
	defaultDelay      time.Duration        // Fallback delay if specific delay is invalid
	log               *logrus.Entry
}

// NewRateLimiter creates a RateLimiter whose global interval starts at defaultDelay
func NewRateLimiter(defaultDelay time.Duration, log *logrus.Entry) *RateLimiter {
	rl := &RateLimiter{
		global:          rate.NewLimiter(rate.Inf, 1),
		hostLastRequest: make(map[string]time.Time),
		defaultDelay:    defaultDelay,
		log:             log,
	}
	rl.SetInterval(defaultDelay)
	return rl
}

// SetInterval changes the minimum gap between any two requests. Zero or negative disables pacing.
func (rl *RateLimiter) SetInterval(d time.Duration) {
	if d <= 0 {
		rl.global.SetLimit(rate.Inf)
		return
	}
	rl.global.SetLimit(rate.Every(d))
}

// Wait blocks until the global interval allows another request or ctx is done
func (rl *RateLimiter) Wait(ctx context.Context) error {
	return rl.global.Wait(ctx)
}

// jitter returns d shifted by a random +/- 10%, never negative
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	var j time.Duration
	if span := int64(d) / 5; span > 0 { // 20% range width for +/-10%
		j = time.Duration(rand.Int63n(span)) - d/10
	}
	if d+j < 0 {
		return 0
	}
	return d + j
}

// ApplyDelay sleeps if the time since the last request to the host is less than minDelay.
// Includes jitter (+/- 10%) to desynchronize requests. Returns ctx.Err() if cancelled while sleeping.
func (rl *RateLimiter) ApplyDelay(ctx context.Context, host string, minDelay time.Duration) error {
	if minDelay <= 0 {
		minDelay = rl.defaultDelay
	}
	if minDelay <= 0 {
		return ctx.Err()
	}

	rl.hostLastRequestMu.Lock()
	lastReqTime, exists := rl.hostLastRequest[host]
	rl.hostLastRequestMu.Unlock() // Unlock before potentially sleeping

	if !exists {
		return ctx.Err()
	}
	elapsed := time.Since(lastReqTime)
	if elapsed >= minDelay {
		return ctx.Err()
	}

	finalSleep := jitter(minDelay - elapsed)
	if finalSleep <= 0 {
		return ctx.Err()
	}
	rl.log.WithFields(logrus.Fields{
		"host": host, "sleep": finalSleep, "required_delay": minDelay, "elapsed": elapsed,
	}).Debug("Rate limit applying sleep")

	timer := time.NewTimer(finalSleep)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpdateLastRequestTime records the current time as the last request attempt time for the host.
// Call this after an HTTP request attempt to the host.
func (rl *RateLimiter) UpdateLastRequestTime(host string) {
	rl.hostLastRequestMu.Lock()
	rl.hostLastRequest[host] = time.Now()
	rl.hostLastRequestMu.Unlock()
}
