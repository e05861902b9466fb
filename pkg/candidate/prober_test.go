package candidate

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/Sriram-PR/sitemapper/pkg/config"
	"github.com/Sriram-PR/sitemapper/pkg/fetch"
)

// allowAll accepts every URL except those containing a blocked substring
type allowAll struct{ blocked string }

func (a allowAll) Validate(rawURL string) bool {
	return a.blocked == "" || !strings.Contains(rawURL, a.blocked)
}

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func newTestProber(validator Validator, mutate func(cfg *config.AppConfig)) *Prober {
	cfg := &config.AppConfig{
		UserAgent: "sitemapper-test/1.0",
		Probe: config.ProbeConfig{
			Timeout:      time.Second,
			MaxConfirmed: 500,
			Workers:      4,
		},
	}
	if mutate != nil {
		mutate(cfg)
	}
	log := testLogger()
	client := fetch.NewProbeClient(cfg.HTTPClientSettings, nil)
	return NewProber(client, fetch.NewRequestGate(8, 4, time.Second, log), fetch.NewRateLimiter(0, log), validator, cfg, log)
}

// statusServer answers each path with the mapped status, 404 otherwise, and records methods seen
func statusServer(t *testing.T, statuses map[string]int) (*httptest.Server, *sync.Map) {
	t.Helper()
	methods := &sync.Map{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		methods.Store(r.URL.Path, r.Method)
		status, ok := statuses[r.URL.Path]
		if !ok {
			status = http.StatusNotFound
		}
		if status == http.StatusMovedPermanently || status == http.StatusFound {
			w.Header().Set("Location", "/elsewhere")
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server, methods
}

func TestExists(t *testing.T) {
	for status, want := range map[int]bool{
		200: true, 301: true, 302: true,
		204: false, 303: false, 307: false, 404: false, 410: false, 500: false,
	} {
		if got := Exists(status); got != want {
			t.Errorf("Exists(%d) = %v, want %v", status, got, want)
		}
	}
}

func TestProbe_StatusHandling(t *testing.T) {
	server, methods := statusServer(t, map[string]int{
		"/jobs":      http.StatusOK,
		"/careers":   http.StatusMovedPermanently,
		"/vacancies": http.StatusFound,
		"/gone":      http.StatusNotFound,
		"/broken":    http.StatusInternalServerError,
	})

	candidates := []string{
		server.URL + "/jobs",
		server.URL + "/careers",
		server.URL + "/vacancies",
		server.URL + "/gone",
		server.URL + "/broken",
		server.URL + "/missing",
	}
	got := newTestProber(allowAll{}, nil).Probe(context.Background(), candidates)

	assert.Equal(t, []string{server.URL + "/jobs", server.URL + "/careers", server.URL + "/vacancies"}, got)

	method, _ := methods.Load("/jobs")
	assert.Equal(t, http.MethodHead, method)
	_, followed := methods.Load("/elsewhere")
	assert.False(t, followed, "redirects must not be followed during probing")
}

func TestProbe_404ExcludedAnd301Included(t *testing.T) {
	server, _ := statusServer(t, map[string]int{"/moved": http.StatusMovedPermanently})

	got := newTestProber(allowAll{}, nil).Probe(context.Background(), []string{server.URL + "/nothing", server.URL + "/moved"})
	assert.Equal(t, []string{server.URL + "/moved"}, got)
}

func TestProbe_SkipsInvalidCandidates(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	t.Cleanup(server.Close)

	got := newTestProber(allowAll{blocked: "wp-admin"}, nil).Probe(context.Background(), []string{
		server.URL + "/wp-admin/a",
		server.URL + "/ok",
	})
	assert.Equal(t, []string{server.URL + "/ok"}, got)
	assert.Equal(t, int32(1), hits.Load(), "invalid candidates are never requested")
}

func TestProbe_MaxConfirmed(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	t.Cleanup(server.Close)

	var candidates []string
	for _, p := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"} {
		candidates = append(candidates, server.URL+"/"+p)
	}

	prober := newTestProber(allowAll{}, func(cfg *config.AppConfig) {
		cfg.Probe.MaxConfirmed = 3
		cfg.Probe.Workers = 1
	})
	got := prober.Probe(context.Background(), candidates)

	assert.Equal(t, candidates[:3], got)
	assert.LessOrEqual(t, hits.Load(), int32(4), "probing stops soon after the cap is reached")
}

func TestProbe_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	t.Cleanup(server.Close)

	prober := newTestProber(allowAll{}, func(cfg *config.AppConfig) { cfg.Probe.Timeout = 50 * time.Millisecond })
	assert.Empty(t, prober.Probe(context.Background(), []string{server.URL + "/slow"}))
}

func TestProbe_CancelledContext(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	t.Cleanup(server.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := newTestProber(allowAll{}, nil).Probe(ctx, []string{server.URL + "/a", server.URL + "/b"})
	assert.Empty(t, got)
	assert.Equal(t, int32(0), hits.Load())
}

func TestProbe_UsesProbeDelay(t *testing.T) {
	server, _ := statusServer(t, map[string]int{"/a": 200, "/b": 200, "/c": 200})

	prober := newTestProber(allowAll{}, func(cfg *config.AppConfig) {
		cfg.Probe.Delay = 40 * time.Millisecond
		cfg.Probe.Workers = 3
	})

	start := time.Now()
	got := prober.Probe(context.Background(), []string{server.URL + "/a", server.URL + "/b", server.URL + "/c"})
	elapsed := time.Since(start)

	assert.Len(t, got, 3)
	assert.GreaterOrEqual(t, elapsed, 70*time.Millisecond, "three probes are spaced by the shared limiter")
}
