package classify

import (
	"net"
	"net/url"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/net/publicsuffix"

	"github.com/Sriram-PR/sitemapper/pkg/config"
	"github.com/Sriram-PR/sitemapper/pkg/parse"
)

// Report categories, in precedence order
const (
	CategoryJobListings = "job_listings"
	CategoryCompany     = "company_pages"
	CategoryLocation    = "location_pages"
	CategoryDepartment  = "department_pages"
	CategoryCareer      = "career_pages"
	CategoryOther       = "other"
)

// Priorities
const (
	PriorityJob      = 1
	PriorityBase     = 2
	PrioritySection  = 3
	PriorityStandard = 4
)

type categoryRule struct {
	name   string
	tokens []string
}

var categoryRules = []categoryRule{
	{CategoryJobListings, []string{"job", "vacancy", "opening"}},
	{CategoryCompany, []string{"company", "employer"}},
	{CategoryLocation, []string{"location", "city", "jobs-in-"}},
	{CategoryDepartment, []string{"department", "category"}},
	{CategoryCareer, []string{"career", "hiring"}},
}

var (
	jobTokens     = []string{"job", "career", "vacancy"}
	sectionTokens = []string{"company", "location", "department"}
)

// Categories lists every report category, other last
func Categories() []string {
	return append(lo.Map(categoryRules, func(r categoryRule, _ int) string { return r.name }), CategoryOther)
}

// Classifier is immutable after construction and safe for concurrent use
type Classifier struct {
	domains        []string
	baseURLs       map[string]struct{} // normalized, trailing slash trimmed
	maxURLLength   int
	skipExtensions []string
	spamIndicators []string
}

// New builds a Classifier from a validated config. When allowed_domains is empty the
// registrable domains of the base URLs are used.
func New(cfg *config.AppConfig) *Classifier {
	domains := cfg.AllowedDomains
	if len(domains) == 0 {
		domains = DeriveDomains(cfg.BaseURLs)
	}

	baseURLs := make(map[string]struct{}, len(cfg.BaseURLs))
	for _, raw := range cfg.BaseURLs {
		if cleaned, _, err := parse.ParseAndClean(raw); err == nil {
			baseURLs[parse.TrimTrailingSlash(cleaned)] = struct{}{}
		}
	}

	return &Classifier{
		domains:        lo.Uniq(lo.Map(domains, func(d string, _ int) string { return strings.ToLower(strings.TrimPrefix(d, ".")) })),
		baseURLs:       baseURLs,
		maxURLLength:   cfg.MaxURLLength,
		skipExtensions: lowerAll(cfg.SkipExtensions),
		spamIndicators: lowerAll(cfg.SpamIndicators),
	}
}

func lowerAll(values []string) []string {
	return lo.Map(values, func(v string, _ int) string { return strings.ToLower(v) })
}

// DeriveDomains returns the registrable domain (eTLD+1) of each parseable base URL.
// Hosts without one (IP addresses, single-label names) are used as-is.
func DeriveDomains(baseURLs []string) []string {
	var domains []string
	for _, raw := range baseURLs {
		u, err := url.Parse(strings.TrimSpace(raw))
		if err != nil || u.Hostname() == "" {
			continue
		}
		host := strings.ToLower(u.Hostname())
		domain := host
		if net.ParseIP(host) == nil {
			if etld1, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
				domain = etld1
			}
		}
		domains = append(domains, domain)
	}
	return lo.Uniq(domains)
}

// Domains returns the allowed domains
func (c *Classifier) Domains() []string {
	return append([]string(nil), c.domains...)
}

// InScope reports whether host equals or is a subdomain of an allowed domain
func (c *Classifier) InScope(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	return lo.ContainsBy(c.domains, func(d string) bool {
		return host == d || strings.HasSuffix(host, "."+d)
	})
}

// Validate reports whether rawURL may enter the discovered set
func (c *Classifier) Validate(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if u.Hostname() == "" || !c.InScope(u.Hostname()) {
		return false
	}
	if c.maxURLLength > 0 && len(rawURL) > c.maxURLLength {
		return false
	}

	lowerPath := strings.ToLower(u.Path)
	if lo.ContainsBy(c.skipExtensions, func(ext string) bool { return strings.HasSuffix(lowerPath, ext) }) {
		return false
	}

	lowerURL := strings.ToLower(rawURL)
	return !containsAny(lowerURL, c.spamIndicators)
}

// Priority ranks rawURL from 1 (highest) to 4
func (c *Classifier) Priority(rawURL string) int {
	lowerURL := strings.ToLower(rawURL)
	switch {
	case containsAny(lowerURL, jobTokens):
		return PriorityJob
	case c.isBaseURL(rawURL):
		return PriorityBase
	case containsAny(lowerURL, sectionTokens):
		return PrioritySection
	default:
		return PriorityStandard
	}
}

func (c *Classifier) isBaseURL(rawURL string) bool {
	cleaned, _, err := parse.ParseAndClean(rawURL)
	if err != nil {
		return false
	}
	_, ok := c.baseURLs[parse.TrimTrailingSlash(cleaned)]
	return ok
}

// ReportCategory groups rawURL for the summary report; the first matching rule wins
func (c *Classifier) ReportCategory(rawURL string) string {
	lowerURL := strings.ToLower(rawURL)
	for _, rule := range categoryRules {
		if containsAny(lowerURL, rule.tokens) {
			return rule.name
		}
	}
	return CategoryOther
}

func containsAny(s string, tokens []string) bool {
	return lo.ContainsBy(tokens, func(t string) bool { return strings.Contains(s, t) })
}
