package storage

import "github.com/Sriram-PR/sitemapper/pkg/models"

// Names of the sets the frontier keeps per run
const (
	SetDiscovered = "discovered"
	SetCrawled    = "crawled"
	SetFailed     = "failed"
	SetNotHTML    = "not_html"
)

// URLSet is a grow-only set of normalized URLs
type URLSet interface {
	// Add inserts url with its entry metadata
	// Returns true if the URL was newly added, false if it already existed
	Add(url string, entry models.URLEntry) (bool, error)

	// Contains reports whether url is a member
	Contains(url string) (bool, error)

	// Len returns the number of members (O(1))
	Len() int

	// Members returns every member URL
	Members() ([]string, error)
}

// SetStore hands out named URL sets that share one backend
type SetStore interface {
	// Set returns the named set, creating it on first use
	Set(name string) (URLSet, error)

	// Close cleanly releases the backend
	Close() error
}
