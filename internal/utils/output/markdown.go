package output

import (
	"fmt"
	"os"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/PuerkitoBio/goquery"
	urlutil "github.com/law-makers/linkmeta/internal/utils/url"
)

// HTMLToMarkdown cleans an HTML fragment and converts it to Markdown.
// Relative links and images are resolved against baseURL when it is set.
func HTMLToMarkdown(fragment, baseURL string) (string, error) {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())

	if baseURL != "" {
		converter.AddRules(
			md.Rule{
				Filter: []string{"a"},
				Replacement: func(content string, selec *goquery.Selection, opt *md.Options) *string {
					href, exists := selec.Attr("href")
					if !exists {
						return nil
					}

					resolved := urlutil.ResolveURL(baseURL, href)
					title, hasTitle := selec.Attr("title")
					var titlePart string
					if hasTitle {
						titlePart = fmt.Sprintf(" %q", title)
					}
					str := fmt.Sprintf("[%s](%s)%s", strings.TrimSpace(content), resolved, titlePart)
					return &str
				},
			},
			md.Rule{
				Filter: []string{"img"},
				Replacement: func(content string, selec *goquery.Selection, opt *md.Options) *string {
					src, exists := selec.Attr("src")
					if !exists || src == "" {
						return nil
					}
					alt, _ := selec.Attr("alt")
					str := fmt.Sprintf("![%s](%s)", alt, urlutil.ResolveURL(baseURL, src))
					return &str
				},
			},
		)
	}

	cleaned, err := CleanHTML(fragment)
	if err != nil {
		return "", err
	}

	text, err := converter.ConvertString(cleaned)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// SaveMarkdown writes a clipped page as Markdown with a title heading and source link
func SaveMarkdown(title, source, body, filepath string) error {
	var sb strings.Builder
	if title != "" {
		sb.WriteString("# " + title + "\n\n")
	}
	if source != "" {
		sb.WriteString("Source: <" + source + ">\n\n")
	}
	sb.WriteString(body)
	sb.WriteString("\n")
	return os.WriteFile(filepath, []byte(sb.String()), 0644)
}
