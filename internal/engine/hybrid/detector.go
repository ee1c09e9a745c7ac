// internal/engine/hybrid/detector.go
package hybrid

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// frameworkMarkers are attributes or globals left in server HTML by client-side frameworks
var frameworkMarkers = []struct {
	name    string
	markers []string
}{
	{"Next.js", []string{"__NEXT_DATA__", "/_next/static/"}},
	{"Nuxt", []string{"__NUXT__", "/_nuxt/"}},
	{"React", []string{"data-reactroot", "react-dom"}},
	{"Vue", []string{"data-v-app", "data-server-rendered", "vue.runtime"}},
	{"Angular", []string{"ng-version", "ng-app"}},
	{"Svelte", []string{"svelte-"}},
}

// DetectJavaScriptFramework names the client-side framework a document was built with
func DetectJavaScriptFramework(html string) string {
	for _, fw := range frameworkMarkers {
		for _, m := range fw.markers {
			if strings.Contains(html, m) {
				return fw.name
			}
		}
	}
	return "Unknown"
}

// isShell reports whether the body is an empty mount point with scripts
func isShell(doc *goquery.Document) bool {
	body := doc.Find("body")
	if body.Length() == 0 {
		return true
	}
	clone := body.Clone()
	clone.Find("script, style, noscript, template").Remove()
	text := strings.TrimSpace(clone.Text())
	if len(text) > 200 {
		return false
	}
	mount := doc.Find("#root, #app, #__next, #__nuxt, [data-reactroot]").Length() > 0
	return mount || doc.Find("body script").Length() > 0 && text == ""
}
