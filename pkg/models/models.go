package models

import "time"

// Source records how a URL entered the frontier. Used for logging and statistics only.
type Source string

const (
	SourceSeed      Source = "seed"      // Configured base URL
	SourceSitemap   Source = "sitemap"   // Listed in an existing XML sitemap
	SourceCandidate Source = "candidate" // Generated path confirmed by probing
	SourceExtracted Source = "extracted" // Found on a crawled page
	SourceRedirect  Source = "redirect"  // Final URL of a followed redirect
)

// WorkItem represents a URL waiting in the frontier queue
type WorkItem struct {
	URL    string
	Source Source
}

// URLEntry is the value stored per URL by persistent URL sets
type URLEntry struct {
	Source  Source    `json:"source,omitempty"`
	AddedAt time.Time `json:"added_at"`
}

// Snapshot is a point-in-time copy of the frontier used to build run output
type Snapshot struct {
	Discovered        []string       // Every discovered URL, in discovery order where the store preserves it
	Crawled           int            // Size of the crawled set
	Failed            int            // Size of the failed set
	NotHTML           int            // URLs fetched successfully but not HTML
	FailureCategories map[string]int // CategorizeError() category -> count
}

// Report is the JSON summary written next to the sitemap
type Report struct {
	RunID               string         `json:"run_id"`
	GenerationTime      string         `json:"generation_time"` // RFC3339
	ElapsedMinutes      float64        `json:"elapsed_minutes"` // 2 decimals
	TotalURLsDiscovered int            `json:"total_urls_discovered"`
	TotalURLsCrawled    int            `json:"total_urls_crawled"`
	FailedURLs          int            `json:"failed_urls"`
	NotHTMLURLs         int            `json:"not_html_urls"`
	SuccessRate         float64        `json:"success_rate"` // Percentage, 1 decimal
	TerminalState       RunState       `json:"terminal_state"`
	URLCategories       map[string]int `json:"url_categories"`
	FailureCategories   map[string]int `json:"failure_categories,omitempty"`
}

// DiscoveredURL is the record published once per newly discovered URL
type DiscoveredURL struct {
	RunID        string    `json:"run_id"`
	URL          string    `json:"url"`
	Source       Source    `json:"source"`
	Priority     int       `json:"priority"`
	Category     string    `json:"category"`
	DiscoveredAt time.Time `json:"discovered_at"`
}
