package pipeline

import (
	"context"
	"strings"

	"github.com/law-makers/linkmeta/internal/engine"
	"github.com/law-makers/linkmeta/internal/engine/metadata"
	"github.com/law-makers/linkmeta/internal/reqctx"
	"github.com/law-makers/linkmeta/internal/utils/output"
	urlutil "github.com/law-makers/linkmeta/internal/utils/url"
)

// contentSelector is used when the matched rule has no content script
const contentSelector = "article, main, [role=main]"

// Clipping is a page's main content as Markdown
type Clipping struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Rule     string `json:"rule"`
	Markdown string `json:"markdown"`
}

// Clip fetches rawURL and converts its main content to Markdown using the
// matching rule's content script, or the page's article/main element when
// the rule has none
func (p *Pipeline) Clip(ctx context.Context, rawURL string, opts Options) (*Clipping, error) {
	ctx = reqctx.WithExtraction(ctx, rawURL)
	rawURL = strings.TrimSpace(rawURL)
	if err := urlutil.ValidateURL(rawURL); err != nil {
		return nil, engine.NewEngineError(engine.ErrCodeValidation, "invalid URL", err).WithDetail("url", rawURL)
	}

	rule, err := p.match(ctx, rawURL)
	if err != nil {
		return nil, reqctx.NewRequestError(ctx, err)
	}
	page, err := p.fetch(ctx, rawURL, opts)
	if err != nil {
		return nil, reqctx.NewRequestError(ctx, err)
	}

	clip := &Clipping{URL: page.FinalURL, Title: page.Base.Title, Rule: rule.ID}
	cleanURL := metadata.CleanURL(rawURL)

	if strings.TrimSpace(rule.ContentSource()) != "" {
		md, err := p.executor.RunContent(ctx, rule, page, cleanURL)
		if err != nil {
			return nil, reqctx.NewRequestError(ctx, err)
		}
		clip.Markdown = strings.TrimSpace(md)
		return clip, nil
	}

	_, fragment := metadata.ExtractContent(page.Document, contentSelector)
	md, err := output.HTMLToMarkdown(fragment, page.FinalURL)
	if err != nil {
		return nil, reqctx.NewRequestError(ctx, engine.NewEngineError(engine.ErrCodeScript, "failed to convert content", err))
	}
	clip.Markdown = strings.TrimSpace(md)
	return clip, nil
}
