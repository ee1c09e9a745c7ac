package metadata

import (
	"bytes"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/law-makers/linkmeta/pkg/models"
)

// NewPage parses an HTML body into a Page with base metadata.
// finalURL is the post-redirect address and is used to resolve relative links.
func NewPage(pageURL, finalURL string, status int, body []byte, mode models.FetchMode) (*models.Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	if finalURL == "" {
		finalURL = pageURL
	}

	return &models.Page{
		URL:        pageURL,
		FinalURL:   finalURL,
		StatusCode: status,
		HTML:       string(body),
		Document:   doc,
		Base:       ExtractBase(doc, finalURL),
		Mode:       mode,
		FetchedAt:  time.Now(),
	}, nil
}
