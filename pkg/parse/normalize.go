package parse

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/Sriram-PR/sitemapper/pkg/utils"
)

// CleanURL canonicalizes a URL for set membership.
// It lowercases the scheme and host, removes default ports (80 for http, 443 for https) and drops the fragment.
// Path and query are kept as-is, so "/jobs" and "/jobs/" stay distinct.
// Does not modify the input *url.URL
func CleanURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	// Work on a copy
	cleaned := *u

	cleaned.Scheme = strings.ToLower(cleaned.Scheme)
	cleaned.Host = strings.ToLower(cleaned.Host)

	// Remove default ports
	host, port, err := net.SplitHostPort(cleaned.Host)
	if err == nil {
		if (cleaned.Scheme == "http" && port == "80") ||
			(cleaned.Scheme == "https" && port == "443") {
			cleaned.Host = host
		}
	}

	cleaned.Fragment = ""
	cleaned.RawFragment = ""

	return cleaned.String()
}

// ParseAndClean parses an absolute URL string and cleans it with CleanURL.
// Returns the cleaned string, the parsed URL object, and any parse error
func ParseAndClean(urlStr string) (string, *url.URL, error) {
	parsed, err := url.Parse(strings.TrimSpace(urlStr))
	if err != nil {
		return "", nil, fmt.Errorf("%w: URL '%s': %w", utils.ErrParsing, urlStr, err)
	}
	if !parsed.IsAbs() || parsed.Host == "" {
		return "", nil, fmt.Errorf("%w: URL '%s' is not absolute", utils.ErrParsing, urlStr)
	}
	return CleanURL(parsed), parsed, nil
}

// ResolveAndClean resolves ref against base and cleans the result.
// Relative, root-relative and absolute references are all accepted.
func ResolveAndClean(base *url.URL, ref string) (string, error) {
	if base == nil {
		return "", fmt.Errorf("%w: URL resolve with nil base", utils.ErrParsing)
	}
	resolved, err := base.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("%w: URL reference '%s': %w", utils.ErrParsing, ref, err)
	}
	return CleanURL(resolved), nil
}

// TrimTrailingSlash drops a single trailing slash.
// Used only for seed comparisons where "https://a.com" and "https://a.com/" mean the same page.
func TrimTrailingSlash(urlStr string) string {
	return strings.TrimSuffix(urlStr, "/")
}
