// internal/engine/batch/grouping.go
package batch

import (
	"net/url"
	"strings"
)

// GroupByDomain groups URL indexes by host, keeping first-seen domain order
func GroupByDomain(urls []string) (map[string][]int, []string) {
	groups := make(map[string][]int)
	var order []string

	for i, raw := range urls {
		domain := "default"
		if u, err := url.Parse(strings.TrimSpace(raw)); err == nil && u.Host != "" {
			domain = strings.ToLower(u.Host)
		}
		if _, seen := groups[domain]; !seen {
			order = append(order, domain)
		}
		groups[domain] = append(groups[domain], i)
	}

	return groups, order
}

// Interleave returns URL indexes ordered round-robin across domains, so
// consecutive requests rarely wait on the same per-domain rate limit
func Interleave(urls []string) []int {
	groups, order := GroupByDomain(urls)
	out := make([]int, 0, len(urls))

	for round := 0; len(out) < len(urls); round++ {
		for _, domain := range order {
			if idx := groups[domain]; round < len(idx) {
				out = append(out, idx[round])
			}
		}
	}
	return out
}
