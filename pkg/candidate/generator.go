package candidate

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/Sriram-PR/sitemapper/pkg/parse"
)

// Vocabulary slices are truncated to these lengths before expansion
const (
	MaxLocations    = 20
	MaxKeywords     = 15
	MaxCrossProduct = 5
)

// Generate expands each base URL into likely paths: the common paths, location pages,
// keyword pages and a keyword x location cross product. The result is deduplicated and
// keeps first-occurrence order, so the same inputs always produce the same slice.
func Generate(baseURLs, commonPaths, keywords, locations []string) []string {
	topLocations := lo.Slice(locations, 0, MaxLocations)
	topKeywords := lo.Slice(keywords, 0, MaxKeywords)
	crossKeywords := lo.Slice(keywords, 0, MaxCrossProduct)
	crossLocations := lo.Slice(locations, 0, MaxCrossProduct)

	var out []string
	for _, raw := range baseURLs {
		base := parse.TrimTrailingSlash(raw)
		if base == "" {
			continue
		}

		for _, p := range commonPaths {
			out = append(out, base+p)
		}
		for _, loc := range topLocations {
			out = append(out,
				fmt.Sprintf("%s/jobs-in-%s", base, loc),
				fmt.Sprintf("%s/jobs/%s", base, loc),
				fmt.Sprintf("%s/careers-in-%s", base, loc),
			)
		}
		for _, kw := range topKeywords {
			out = append(out,
				fmt.Sprintf("%s/%s-jobs", base, kw),
				fmt.Sprintf("%s/jobs/%s", base, kw),
				fmt.Sprintf("%s/%s-careers", base, kw),
			)
		}
		for _, kw := range crossKeywords {
			for _, loc := range crossLocations {
				out = append(out, fmt.Sprintf("%s/%s-jobs-in-%s", base, kw, loc))
			}
		}
	}
	return lo.Uniq(out)
}
