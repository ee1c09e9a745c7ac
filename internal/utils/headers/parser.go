package headers

import (
	"net/http"
	"strings"

	urlutil "github.com/law-makers/linkmeta/internal/utils/url"
)

const (
	DefaultAccept         = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"
	DefaultAcceptLanguage = "zh-CN,zh;q=0.9,en;q=0.8"
)

// ParseHeaders converts an array of header strings ("Key: Value") into a map.
// Entries without a colon are ignored.
func ParseHeaders(h []string) map[string]string {
	m := make(map[string]string)
	for _, hdr := range h {
		parts := strings.SplitN(hdr, ":", 2)
		if len(parts) == 2 {
			m[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return m
}

// Browser returns the header set a browser would send when navigating to pageURL
// from its own origin. Extra headers override the defaults.
func Browser(userAgent, pageURL string, extra map[string]string) http.Header {
	h := make(http.Header)
	h.Set("User-Agent", userAgent)
	h.Set("Accept", DefaultAccept)
	h.Set("Accept-Language", DefaultAcceptLanguage)
	if origin := urlutil.Origin(pageURL); origin != "" {
		h.Set("Referer", origin+"/")
	}
	for k, v := range extra {
		h.Set(k, v)
	}
	return h
}
