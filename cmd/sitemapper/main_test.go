package main

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/sitemapper/pkg/config"
	applog "github.com/Sriram-PR/sitemapper/pkg/log"
	"github.com/Sriram-PR/sitemapper/pkg/models"
	"github.com/Sriram-PR/sitemapper/pkg/parse"
	"github.com/Sriram-PR/sitemapper/pkg/utils"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0644))
	return cfgPath
}

func TestLoadConfig_ValidFile(t *testing.T) {
	cfgPath := writeConfig(t, `
base_urls: ["https://www.example.com"]
max_urls: 250
crawl_delay: 250ms
probe:
  enabled: false
`)

	cfg, err := loadConfig(cfgPath)

	require.NoError(t, err)
	assert.Equal(t, []string{"https://www.example.com"}, cfg.BaseURLs)
	assert.Equal(t, 250, cfg.MaxURLs)
	assert.Equal(t, 250*time.Millisecond, cfg.CrawlDelay)
	assert.False(t, cfg.ProbeEnabled())
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := loadConfig("/nonexistent/path/config.yaml")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	_, err := loadConfig(writeConfig(t, "{{invalid yaml"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestRunOverrides_Apply(t *testing.T) {
	cfg := &config.AppConfig{MaxURLs: 100, CrawlDelay: time.Second}

	runOverrides{}.apply(cfg)
	assert.Equal(t, 100, cfg.MaxURLs)
	assert.Equal(t, time.Second, cfg.CrawlDelay)
	assert.True(t, cfg.ProbeEnabled())
	assert.True(t, cfg.SitemapsEnabled())

	runOverrides{maxURLs: 7, delay: 50 * time.Millisecond, noProbe: true, noSitemaps: true}.apply(cfg)
	assert.Equal(t, 7, cfg.MaxURLs)
	assert.Equal(t, 50*time.Millisecond, cfg.CrawlDelay)
	assert.False(t, cfg.ProbeEnabled())
	assert.False(t, cfg.SitemapsEnabled())
}

func TestDoValidate_Valid(t *testing.T) {
	cfgPath := writeConfig(t, `
base_urls: ["https://jobs.example.co.uk"]
`)

	var stdout, stderr bytes.Buffer
	exitCode := doValidate(cfgPath, &stdout, &stderr)

	assert.Equal(t, 0, exitCode)
	assert.Contains(t, stdout.String(), "OK: 1 base URL(s)")
	assert.Contains(t, stdout.String(), "example.co.uk")
	assert.Contains(t, stdout.String(), "Configuration valid")
	assert.Empty(t, stderr.String())
}

func TestDoValidate_WarningsOnly(t *testing.T) {
	cfgPath := writeConfig(t, `
base_urls: ["ftp://example.com"]
`)

	var stdout, stderr bytes.Buffer
	exitCode := doValidate(cfgPath, &stdout, &stderr)

	assert.Equal(t, 0, exitCode)
	assert.Contains(t, stdout.String(), "WARN: base_urls[0]")
}

func TestDoValidate_FatalError(t *testing.T) {
	cfgPath := writeConfig(t, `
base_urls: ["https://www.example.com"]
frontier:
  store: cassandra
`)

	var stdout, stderr bytes.Buffer
	exitCode := doValidate(cfgPath, &stdout, &stderr)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "ERROR:")
	assert.NotContains(t, stdout.String(), "Configuration valid")
}

func TestDoValidate_MissingFile(t *testing.T) {
	var stdout, stderr bytes.Buffer
	exitCode := doValidate("/nonexistent/config.yaml", &stdout, &stderr)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "read config")
}

func TestDoCandidates(t *testing.T) {
	cfgPath := writeConfig(t, `
base_urls: ["https://www.example.com"]
common_paths: ["/jobs", "/about"]
job_keywords: ["engineer"]
locations: ["london"]
`)

	var stdout, stderr bytes.Buffer
	exitCode := doCandidates(cfgPath, &stdout, &stderr)

	require.Equal(t, 0, exitCode, stderr.String())
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	assert.Contains(t, lines, "https://www.example.com/jobs")
	assert.Contains(t, lines, "https://www.example.com/about")
	for _, line := range lines {
		assert.True(t, strings.HasPrefix(line, "https://www.example.com/"), "unexpected candidate %s", line)
	}
	assert.Contains(t, stderr.String(), "from 1 base URL(s)")
}

func TestDoCandidates_NoValidBase(t *testing.T) {
	cfgPath := writeConfig(t, `
base_urls: ["ftp://example.com"]
`)

	var stdout, stderr bytes.Buffer
	exitCode := doCandidates(cfgPath, &stdout, &stderr)

	assert.Equal(t, 1, exitCode)
	assert.Empty(t, stdout.String())
	assert.Contains(t, stderr.String(), utils.ErrNoSeeds.Error())
}

func TestPrintUsage(t *testing.T) {
	var buf bytes.Buffer
	printUsageTo(&buf)

	output := buf.String()
	for _, cmd := range []string{"run", "candidates", "validate", "version"} {
		assert.Contains(t, output, cmd)
	}
}

func TestPrintSummary(t *testing.T) {
	cfg := &config.AppConfig{Output: config.OutputConfig{Dir: "out", SitemapFilename: "s.xml", ReportFilename: "r.json"}}
	report := models.Report{
		RunID:               "run-9",
		TerminalState:       models.RunStateBudgetExhausted,
		TotalURLsDiscovered: 12,
		TotalURLsCrawled:    10,
		FailedURLs:          2,
		SuccessRate:         83.3,
		URLCategories:       map[string]int{"job_listings": 4},
	}

	var buf bytes.Buffer
	printSummary(&buf, cfg, report)

	output := buf.String()
	assert.Contains(t, output, "run-9")
	assert.Contains(t, output, "budget_exhausted")
	assert.Contains(t, output, "URLs discovered: 12")
	assert.Contains(t, output, "Success rate:    83.3%")
	assert.Contains(t, output, "job_listings:")
	assert.Contains(t, output, filepath.Join("out", "s.xml"))
}

// newJobSite serves a three-page site with no sitemap and no robots.txt
func newJobSite(t *testing.T) *httptest.Server {
	t.Helper()
	pages := map[string]string{
		"/":              `<a href="/jobs/engineer">Engineer</a> <a href="/about">About</a> <a href="/">Home</a>`,
		"/jobs/engineer": `<a href="/">Home</a>`,
		"/about":         `<p>About us</p>`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<html><body>%s</body></html>", body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func runTestConfig(t *testing.T, baseURL string) *config.AppConfig {
	t.Helper()
	cfg := &config.AppConfig{
		BaseURLs:    []string{baseURL},
		CrawlDelay:  time.Millisecond,
		PageTimeout: 2 * time.Second,
		Probe:       config.ProbeConfig{Enabled: new(bool)},
		Output:      config.OutputConfig{Dir: t.TempDir()},
	}
	_, err := cfg.Validate()
	require.NoError(t, err)
	return cfg
}

func TestRunDiscovery_EndToEnd(t *testing.T) {
	srv := newJobSite(t)
	cfg := runTestConfig(t, srv.URL)

	result, report, err := runDiscovery(context.Background(), cfg, applog.NewLogger(io.Discard, "error"))
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, models.RunStateDrained, report.TerminalState)
	assert.Equal(t, 3, report.TotalURLsDiscovered)
	assert.Equal(t, 3, report.TotalURLsCrawled)
	assert.Equal(t, 0, report.FailedURLs)
	assert.Equal(t, 100.0, report.SuccessRate)

	data, err := os.ReadFile(filepath.Join(cfg.Output.Dir, cfg.Output.SitemapFilename))
	require.NoError(t, err)
	var set parse.XMLURLSet
	require.NoError(t, xml.Unmarshal(data, &set))
	locs := make([]string, 0, len(set.URLs))
	for _, u := range set.URLs {
		locs = append(locs, u.Loc)
	}
	assert.ElementsMatch(t, []string{srv.URL, srv.URL + "/jobs/engineer", srv.URL + "/about"}, locs)

	_, err = os.Stat(filepath.Join(cfg.Output.Dir, cfg.Output.ReportFilename))
	assert.NoError(t, err)
}

func TestRunDiscovery_NoSeedsStillWritesOutput(t *testing.T) {
	cfg := runTestConfig(t, "ftp://example.com")

	result, report, err := runDiscovery(context.Background(), cfg, applog.NewLogger(io.Discard, "error"))
	assert.ErrorIs(t, err, utils.ErrNoSeeds)
	require.NotNil(t, result)
	assert.Equal(t, 0, report.TotalURLsDiscovered)

	data, err := os.ReadFile(filepath.Join(cfg.Output.Dir, cfg.Output.SitemapFilename))
	require.NoError(t, err)
	var set parse.XMLURLSet
	require.NoError(t, xml.Unmarshal(data, &set))
	assert.Empty(t, set.URLs)
}

func TestRunDiscovery_CancelledContext(t *testing.T) {
	srv := newJobSite(t)
	cfg := runTestConfig(t, srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, report, err := runDiscovery(ctx, cfg, applog.NewLogger(io.Discard, "error"))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, models.RunStateCancelled, report.TerminalState)

	_, err = os.Stat(filepath.Join(cfg.Output.Dir, cfg.Output.SitemapFilename))
	assert.NoError(t, err, "output is written for cancelled runs")
}
