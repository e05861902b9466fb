package models

import "time"

// Outcome is the result of one crawl attempt for a single URL
type Outcome string

const (
	OutcomeCrawled Outcome = "crawled"  // Fetched, parsed and links extracted
	OutcomeFailed  Outcome = "failed"   // Fetch error or non-2xx final status
	OutcomeNotHTML Outcome = "not_html" // Fetched fine but content type is not HTML
	OutcomeSkipped Outcome = "skipped"  // Already handled, or abandoned on shutdown
)

// String implements fmt.Stringer for logging
func (o Outcome) String() string {
	if o == "" {
		return "unset"
	}
	return string(o)
}

// RunState is the lifecycle state of a discovery run
type RunState string

const (
	RunStateSeeding         RunState = "seeding"
	RunStateCrawling        RunState = "crawling"
	RunStateDrained         RunState = "drained"          // Queue empty, nothing in flight
	RunStateBudgetExhausted RunState = "budget_exhausted" // Crawled set reached max_urls
	RunStateCancelled       RunState = "cancelled"        // Interrupted or timed out
)

// String implements fmt.Stringer for logging
func (s RunState) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsTerminal returns true once the run can no longer make progress
func (s RunState) IsTerminal() bool {
	switch s {
	case RunStateDrained, RunStateBudgetExhausted, RunStateCancelled:
		return true
	}
	return false
}

// RunStatus is the progress record pushed to the status sink
type RunStatus struct {
	RunID      string    `json:"run_id"`
	State      RunState  `json:"state"`
	Discovered int       `json:"discovered"`
	Crawled    int       `json:"crawled"`
	Failed     int       `json:"failed"`
	NotHTML    int       `json:"not_html"`
	QueueLen   int       `json:"queue_len"`
	UpdatedAt  time.Time `json:"updated_at"`
}
