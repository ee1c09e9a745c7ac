// internal/engine/metadata/extractor.go
package metadata

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	urlutil "github.com/law-makers/linkmeta/internal/utils/url"
	"github.com/law-makers/linkmeta/pkg/models"
)

// ExtractBase derives the generic title/cover/description of a document.
// Each field takes the first non-empty source in priority order.
func ExtractBase(doc *goquery.Document, pageURL string) models.BaseMeta {
	if doc == nil {
		return models.BaseMeta{}
	}

	base := models.BaseMeta{
		Title: firstNonEmpty(
			metaContent(doc, `meta[property="og:title"]`),
			strings.TrimSpace(doc.Find("title").First().Text()),
		),
		Thumbnail: firstNonEmpty(
			metaContent(doc, `meta[property="og:image"]`),
			metaContent(doc, `meta[name="og:image"]`),
			attr(doc, `link[rel~="icon"]`, "href"),
		),
		Description: firstNonEmpty(
			metaContent(doc, `meta[property="og:description"]`),
			metaContent(doc, `meta[name="description"]`),
		),
	}

	if base.Thumbnail != "" && pageURL != "" {
		base.Thumbnail = urlutil.ResolveURL(pageURL, base.Thumbnail)
	}

	return base
}

// ExtractContent returns the text and inner HTML of the first match of selector,
// falling back to the body
func ExtractContent(doc *goquery.Document, selector string) (content string, html string) {
	if doc == nil {
		return "", ""
	}

	if selector != "" && selector != "body" {
		selection := doc.Find(selector)
		if selection.Length() > 0 {
			content = strings.TrimSpace(selection.Text())
			html, _ = selection.Html()
			return content, html
		}
	}

	content = strings.TrimSpace(doc.Find("body").Text())
	html, _ = doc.Find("html").Html()
	return content, html
}

func metaContent(doc *goquery.Document, selector string) string {
	return attr(doc, selector, "content")
}

func attr(doc *goquery.Document, selector, name string) string {
	v, _ := doc.Find(selector).First().Attr(name)
	return strings.TrimSpace(v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
