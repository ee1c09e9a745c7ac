// internal/engine/metadata/utils.go
package metadata

import (
	"net/url"
	"regexp"
	"strings"
)

// trackingParams is the fixed denylist of tracking query parameters
var trackingParams = map[string]bool{
	"fbclid":       true,
	"gclid":        true,
	"dclid":        true,
	"gbraid":       true,
	"wbraid":       true,
	"msclkid":      true,
	"mc_cid":       true,
	"mc_eid":       true,
	"igshid":       true,
	"yclid":        true,
	"_hsenc":       true,
	"_hsmi":        true,
	"spm":          true,
	"vd_source":    true,
	"share_source": true,
	"share_medium": true,
	"from":         true,
	"ref_src":      true,
	"si":           true,
}

// IsTrackingParam reports whether a query key is stripped by CleanURL
func IsTrackingParam(key string) bool {
	return strings.HasPrefix(strings.ToLower(key), "utm_") || trackingParams[strings.ToLower(key)]
}

// CleanURL removes tracking query parameters and keeps the rest in order.
// URLs that do not parse are truncated at the first '?'.
func CleanURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return strings.Split(raw, "?")[0]
	}
	if u.RawQuery == "" {
		return u.String()
	}

	var kept []string
	for _, pair := range strings.Split(u.RawQuery, "&") {
		if pair == "" {
			continue
		}
		key := pair
		if i := strings.IndexByte(pair, '='); i >= 0 {
			key = pair[:i]
		}
		if k, err := url.QueryUnescape(key); err == nil {
			key = k
		}
		if IsTrackingParam(key) {
			continue
		}
		kept = append(kept, pair)
	}
	u.RawQuery = strings.Join(kept, "&")
	u.ForceQuery = false
	return u.String()
}

var urlPattern = regexp.MustCompile(`https?://\S+`)

// FindURL returns the first http(s) URL embedded in text, or ""
func FindURL(text string) string {
	return urlPattern.FindString(text)
}
