package output

import (
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const (
	// dropSelector matches elements that carry no readable text
	dropSelector = "script, style, link, meta, noscript, iframe, svg, form, input, button, select, textarea, canvas, template"

	// furnitureSelector matches site chrome around the content
	furnitureSelector = "nav, aside, footer, [role=navigation], [role=complementary], [role=banner], [aria-hidden=true]"

	// contentSelector matches the element holding a page's main content
	contentSelector = "article, main, [role=main]"
)

// keptAttrs lists the attributes that survive cleaning per element
var keptAttrs = map[string][]string{
	"a":    {"href", "title"},
	"img":  {"src", "alt", "title"},
	"code": {"class"},
	"td":   {"colspan", "rowspan"},
	"th":   {"colspan", "rowspan"},
}

// lazySrcAttrs hold the real image URL on lazily loaded images
var lazySrcAttrs = []string{"data-src", "data-original", "data-lazy-src", "data-actualsrc"}

// CleanHTML reduces an HTML fragment to the part worth clipping.
// If the fragment contains an article or main element, only the first one is kept.
// Site chrome is removed and lazy images get their real src.
// Attributes are dropped except link targets, image sources, table spans and
// code language classes.
func CleanHTML(htmlContent string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return "", err
	}

	doc.Find(dropSelector).Remove()

	root := doc.Selection
	if content := doc.Find(contentSelector).First(); content.Length() > 0 {
		root = content
	}

	root.Find(furnitureSelector).Remove()
	// headers inside an article hold its title, elsewhere they are site banners
	root.Find("header").Each(func(_ int, s *goquery.Selection) {
		if s.Closest("article").Length() == 0 {
			s.Remove()
		}
	})

	root.Find("img").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		if src != "" && !strings.HasPrefix(src, "data:") {
			return
		}
		for _, name := range lazySrcAttrs {
			if v, ok := s.Attr(name); ok && strings.TrimSpace(v) != "" {
				s.SetAttr("src", strings.TrimSpace(v))
				return
			}
		}
	})

	root.Find("*").AddSelection(root).Each(func(_ int, s *goquery.Selection) {
		for _, node := range s.Nodes {
			if node.Type == html.ElementNode {
				node.Attr = filterAttrs(node)
			}
		}
	})

	var out string
	if root == doc.Selection {
		out, err = doc.Html()
	} else {
		out, err = goquery.OuterHtml(root)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func filterAttrs(node *html.Node) []html.Attribute {
	allowed := keptAttrs[node.Data]
	var kept []html.Attribute
	for _, attr := range node.Attr {
		if !slices.Contains(allowed, attr.Key) {
			continue
		}
		// only language hints survive on code, for fenced blocks
		if node.Data == "code" && attr.Key == "class" && !strings.Contains(attr.Val, "language-") {
			continue
		}
		kept = append(kept, attr)
	}
	return kept
}
