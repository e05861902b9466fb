package candidate

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Sriram-PR/sitemapper/pkg/config"
	"github.com/Sriram-PR/sitemapper/pkg/fetch"
)

// Validator is the subset of the classifier the prober needs
type Validator interface {
	Validate(rawURL string) bool
}

// Prober confirms candidate URLs with HEAD requests. Redirects are not followed,
// so 301 and 302 count as "exists" alongside 200.
type Prober struct {
	client    *http.Client
	gate      *fetch.RequestGate
	limiter   *fetch.RateLimiter
	validator Validator
	cfg       *config.AppConfig
	log       *logrus.Entry
}

// NewProber creates a Prober. client should come from fetch.NewProbeClient.
func NewProber(client *http.Client, gate *fetch.RequestGate, limiter *fetch.RateLimiter, validator Validator, cfg *config.AppConfig, log *logrus.Entry) *Prober {
	return &Prober{
		client:    client,
		gate:      gate,
		limiter:   limiter,
		validator: validator,
		cfg:       cfg,
		log:       log,
	}
}

// Exists reports whether a HEAD status means the candidate is present
func Exists(statusCode int) bool {
	return statusCode == http.StatusOK || statusCode == http.StatusMovedPermanently || statusCode == http.StatusFound
}

// Probe HEADs every classifier-valid candidate and returns the confirmed ones in input order.
// It stops early after probe.max_confirmed confirmations or when ctx is done.
// The shared limiter is switched to the probe delay for the duration of the call.
func (p *Prober) Probe(ctx context.Context, candidates []string) []string {
	valid := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if p.validator.Validate(c) {
			valid = append(valid, c)
		}
	}
	if len(valid) == 0 {
		return nil
	}

	maxConfirmed := p.cfg.Probe.MaxConfirmed
	p.limiter.SetInterval(p.cfg.Probe.Delay)
	p.log.WithFields(logrus.Fields{
		"candidates": len(valid), "skipped_invalid": len(candidates) - len(valid), "max_confirmed": maxConfirmed,
	}).Info("Probing candidate URLs...")

	probeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	confirmed := make([]bool, len(valid))
	var confirmedCount, tested atomic.Int64

	g := new(errgroup.Group)
	g.SetLimit(max(1, p.cfg.Probe.Workers))
	for i, candidateURL := range valid {
		if probeCtx.Err() != nil {
			break
		}
		i, candidateURL := i, candidateURL
		g.Go(func() error {
			if probeCtx.Err() != nil {
				return nil
			}
			ok := p.probeOne(probeCtx, candidateURL)
			if n := tested.Add(1); n%50 == 0 {
				p.log.Infof("Tested %d/%d candidate URLs, %d confirmed", n, len(valid), confirmedCount.Load())
			}
			if !ok {
				return nil
			}
			confirmed[i] = true // each goroutine owns its index
			if n := confirmedCount.Add(1); maxConfirmed > 0 && n >= int64(maxConfirmed) {
				cancel()
			}
			return nil
		})
	}
	g.Wait()

	var out []string
	for i, ok := range confirmed {
		if !ok {
			continue
		}
		if maxConfirmed > 0 && len(out) >= maxConfirmed {
			break
		}
		out = append(out, valid[i])
	}
	p.log.Infof("Found %d valid URLs from %d tested", len(out), tested.Load())
	return out
}

// probeOne sends one HEAD through the request gate and the shared limiter
func (p *Prober) probeOne(ctx context.Context, candidateURL string) bool {
	probeLog := p.log.WithField("url", candidateURL)
	parsed, err := url.Parse(candidateURL)
	if err != nil {
		return false
	}

	release, err := p.gate.Acquire(ctx, parsed.Hostname())
	if err != nil {
		probeLog.Debugf("Probe skipped: %v", err)
		return false
	}
	defer release()

	if err := p.limiter.Wait(ctx); err != nil {
		return false
	}

	reqCtx := ctx
	if p.cfg.Probe.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, p.cfg.Probe.Timeout)
		defer cancel()
	}
	req, err := fetch.NewRequest(reqCtx, http.MethodHead, candidateURL, p.cfg)
	if err != nil {
		probeLog.Debugf("Probe request creation failed: %v", err)
		return false
	}

	resp, err := p.client.Do(req)
	p.limiter.UpdateLastRequestTime(parsed.Hostname())
	if err != nil {
		probeLog.Debugf("Probe failed: %v", err)
		return false
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	exists := Exists(resp.StatusCode)
	probeLog.WithField("status_code", resp.StatusCode).Debugf("Probe result: exists=%v", exists)
	return exists
}
