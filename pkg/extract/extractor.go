package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/sitemapper/pkg/config"
	"github.com/Sriram-PR/sitemapper/pkg/parse"
)

// Validator is the subset of the classifier the extractor needs
type Validator interface {
	Validate(rawURL string) bool
}

var skipPrefixes = []string{"#", "mailto:", "tel:", "javascript:"}

// Extractor finds same-site URLs in a parsed page: anchors, data attributes and inline scripts
type Extractor struct {
	validator  Validator
	attributes []string
	scanner    ScriptScanner
	log        *logrus.Entry
}

// New creates an Extractor using a RegexScanner built from the extract config
func New(cfg *config.AppConfig, validator Validator, log *logrus.Entry) (*Extractor, error) {
	scanner, err := NewRegexScanner(cfg.Extract.ExtraScriptPatterns, cfg.Extract.ScriptMatchLimit)
	if err != nil {
		return nil, err
	}
	return NewWithScanner(cfg.Extract.Attributes, scanner, validator, log), nil
}

// NewWithScanner creates an Extractor with a caller-supplied script scanner; nil disables script scanning
func NewWithScanner(attributes []string, scanner ScriptScanner, validator Validator, log *logrus.Entry) *Extractor {
	return &Extractor{
		validator:  validator,
		attributes: attributes,
		scanner:    scanner,
		log:        log,
	}
}

// Extract returns the deduplicated, classifier-valid URLs referenced by doc, resolved against pageURL
func (e *Extractor) Extract(pageURL *url.URL, doc *goquery.Document) []string {
	if pageURL == nil || doc == nil {
		return nil
	}
	var found []string
	add := func(ref string) {
		ref = strings.TrimSpace(ref)
		if ref == "" || lo.ContainsBy(skipPrefixes, func(p string) bool { return strings.HasPrefix(strings.ToLower(ref), p) }) {
			return
		}
		resolved, err := parse.ResolveAndClean(pageURL, ref)
		if err != nil {
			e.log.WithField("ref", ref).Debugf("Skipping unresolvable reference: %v", err)
			return
		}
		if e.validator.Validate(resolved) {
			found = append(found, resolved)
		}
	}

	anchors := 0
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		anchors++
		add(href)
	})

	for _, attr := range e.attributes {
		doc.Find("[" + attr + "]").Each(func(_ int, s *goquery.Selection) {
			val, _ := s.Attr(attr)
			add(val)
		})
	}

	scripts := 0
	if e.scanner != nil {
		doc.Find("script").Each(func(_ int, s *goquery.Selection) {
			if _, external := s.Attr("src"); external {
				return
			}
			text := s.Text()
			if strings.TrimSpace(text) == "" {
				return
			}
			scripts++
			for _, match := range e.scanner.Scan(text) {
				add(match)
			}
		})
	}

	out := lo.Uniq(found)
	e.log.WithFields(logrus.Fields{
		"page": pageURL.String(), "anchors": anchors, "scripts": scripts, "found": len(out),
	}).Debug("Extracted URLs from page")
	return out
}
