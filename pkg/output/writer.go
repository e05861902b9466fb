package output

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/sitemapper/pkg/classify"
	"github.com/Sriram-PR/sitemapper/pkg/config"
	"github.com/Sriram-PR/sitemapper/pkg/frontier"
	"github.com/Sriram-PR/sitemapper/pkg/models"
	"github.com/Sriram-PR/sitemapper/pkg/parse"
)

// Categorizer ranks and groups URLs for the sitemap and report
type Categorizer interface {
	Priority(rawURL string) int
	ReportCategory(rawURL string) string
}

type sitemapAttrs struct {
	changeFreq string
	priority   string
}

// Classifier priority -> sitemap changefreq and priority
var priorityAttrs = map[int]sitemapAttrs{
	classify.PriorityJob:      {"daily", "0.9"},
	classify.PriorityBase:     {"weekly", "1.0"},
	classify.PrioritySection:  {"weekly", "0.7"},
	classify.PriorityStandard: {"monthly", "0.5"},
}

// Writer produces the sitemap and report files of a run
type Writer struct {
	dir         string
	sitemapName string
	reportName  string
	classifier  Categorizer
	log         *logrus.Entry
}

// NewWriter creates a Writer for cfg. cfg is expected to have been defaulted by AppConfig.Validate.
func NewWriter(cfg config.OutputConfig, classifier Categorizer, log *logrus.Entry) *Writer {
	return &Writer{
		dir:         cfg.Dir,
		sitemapName: cfg.SitemapFilename,
		reportName:  cfg.ReportFilename,
		classifier:  classifier,
		log:         log.WithField("component", "output_writer"),
	}
}

// SitemapPath returns the full path of the sitemap file
func (w *Writer) SitemapPath() string {
	return filepath.Join(w.dir, w.sitemapName)
}

// ReportPath returns the full path of the report file
func (w *Writer) ReportPath() string {
	return filepath.Join(w.dir, w.reportName)
}

// Write writes the sitemap and the report for result. Both files are attempted even if one fails.
func (w *Writer) Write(result *frontier.Result, now time.Time) (models.Report, error) {
	report := BuildReport(result, w.classifier, now)

	var errs []error
	if err := w.WriteSitemap(result.Snapshot.Discovered, now); err != nil {
		errs = append(errs, err)
	}
	if err := w.WriteReport(report); err != nil {
		errs = append(errs, err)
	}
	return report, errors.Join(errs...)
}

// WriteSitemap writes urls as a sitemaps.org urlset with lastmod set to runDate
func (w *Writer) WriteSitemap(urls []string, runDate time.Time) error {
	data, err := BuildSitemap(urls, w.classifier, runDate)
	if err != nil {
		return err
	}
	path := w.SitemapPath()
	if err := writeFileAtomic(path, data); err != nil {
		w.log.Errorf("Failed to write sitemap '%s': %v", path, err)
		return fmt.Errorf("failed to write sitemap '%s': %w", path, err)
	}
	w.log.Infof("Wrote sitemap with %d URL(s) to %s", len(lo.Uniq(urls)), path)
	return nil
}

// WriteReport writes report as indented JSON
func (w *Writer) WriteReport(report models.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	path := w.ReportPath()
	if err := writeFileAtomic(path, append(data, '\n')); err != nil {
		w.log.Errorf("Failed to write report '%s': %v", path, err)
		return fmt.Errorf("failed to write report '%s': %w", path, err)
	}
	w.log.Infof("Wrote report to %s", path)
	return nil
}

// BuildSitemap renders urls as sitemap XML. Entries are unique by loc and ordered by
// ascending classifier priority, then URL.
func BuildSitemap(urls []string, classifier Categorizer, runDate time.Time) ([]byte, error) {
	type ranked struct {
		url      string
		priority int
	}
	entries := lo.Map(lo.Uniq(urls), func(u string, _ int) ranked {
		return ranked{url: u, priority: classifier.Priority(u)}
	})
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].priority != entries[j].priority {
			return entries[i].priority < entries[j].priority
		}
		return entries[i].url < entries[j].url
	})

	lastMod := runDate.Format("2006-01-02")
	urlSet := parse.XMLURLSet{
		Xmlns: parse.SitemapNamespace,
		URLs:  make([]parse.XMLURL, 0, len(entries)),
	}
	for _, e := range entries {
		attrs, ok := priorityAttrs[e.priority]
		if !ok {
			attrs = priorityAttrs[classify.PriorityStandard]
		}
		urlSet.URLs = append(urlSet.URLs, parse.XMLURL{
			Loc:        e.url,
			LastMod:    lastMod,
			ChangeFreq: attrs.changeFreq,
			Priority:   attrs.priority,
		})
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(urlSet); err != nil {
		return nil, fmt.Errorf("failed to encode sitemap: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// BuildReport summarises result. url_categories always carries every category key.
func BuildReport(result *frontier.Result, classifier Categorizer, now time.Time) models.Report {
	snap := result.Snapshot
	discovered := lo.Uniq(snap.Discovered)

	categories := lo.SliceToMap(classify.Categories(), func(c string) (string, int) { return c, 0 })
	for _, u := range discovered {
		categories[classifier.ReportCategory(u)]++
	}

	return models.Report{
		RunID:               result.RunID,
		GenerationTime:      now.Format(time.RFC3339),
		ElapsedMinutes:      round(result.Elapsed.Minutes(), 2),
		TotalURLsDiscovered: len(discovered),
		TotalURLsCrawled:    snap.Crawled,
		FailedURLs:          snap.Failed,
		NotHTMLURLs:         snap.NotHTML,
		SuccessRate:         SuccessRate(snap.Crawled, snap.Failed),
		TerminalState:       result.State,
		URLCategories:       categories,
		FailureCategories:   snap.FailureCategories,
	}
}

// SuccessRate returns crawled / max(1, crawled+failed) as a percentage rounded to 1 decimal
func SuccessRate(crawled, failed int) float64 {
	return round(float64(crawled)/float64(max(1, crawled+failed))*100, 1)
}

func round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

// writeFileAtomic writes data to a temp file in the target directory and renames it into place
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
