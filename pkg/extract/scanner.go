package extract

import (
	"regexp"
	"strings"

	"github.com/Sriram-PR/sitemapper/pkg/utils"
)

// ScriptScanner pulls URL-like strings out of inline script text.
// Results are unresolved and unvalidated; the Extractor handles both.
type ScriptScanner interface {
	Scan(script string) []string
}

// DefaultScriptPatterns match quoted strings mentioning a domain keyword and
// url/href/link/path key-value assignments. Group 1 is the URL.
var DefaultScriptPatterns = []string{
	`"((?:https?://)?[^"]*(?:job|career|company|location|department)[^"]*)"`,
	`'((?:https?://)?[^']*(?:job|career|company|location|department)[^']*)'`,
	`url:\s*["'](/?[^"']+)["']`,
	`href:\s*["'](/?[^"']+)["']`,
	`link:\s*["'](/?[^"']+)["']`,
	`path:\s*["'](/?[^"']+)["']`,
}

// RegexScanner applies case-insensitive patterns, keeping at most limit matches per pattern
type RegexScanner struct {
	patterns []*regexp.Regexp
	limit    int
}

// NewRegexScanner compiles the default patterns plus extraPatterns.
// A limit <= 0 means no per-pattern cap.
func NewRegexScanner(extraPatterns []string, limit int) (*RegexScanner, error) {
	all := append(append([]string(nil), DefaultScriptPatterns...), extraPatterns...)
	compiled, err := utils.CompileRegexPatterns(all, true)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}
	return &RegexScanner{patterns: compiled, limit: limit}, nil
}

// Scan returns matches in pattern order. Protocol-relative matches ("//...") are dropped.
func (s *RegexScanner) Scan(script string) []string {
	var out []string
	for _, re := range s.patterns {
		for _, m := range re.FindAllStringSubmatch(script, s.limit) {
			match := m[0]
			if len(m) > 1 {
				match = m[1]
			}
			match = strings.TrimSpace(match)
			if match == "" || strings.HasPrefix(match, "//") {
				continue
			}
			out = append(out, match)
		}
	}
	return out
}
