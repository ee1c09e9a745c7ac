// internal/engine/hybrid/strategy.go
package hybrid

import (
	"github.com/law-makers/linkmeta/pkg/models"
	"github.com/rs/zerolog/log"
)

// Strategy represents the fetch channel suggested for a page
type Strategy int

const (
	// StrategyStatic means the static document is good enough
	StrategyStatic Strategy = iota

	// StrategyBrowser means the page is a client-rendered shell
	StrategyBrowser
)

// String returns the string representation of the strategy
func (s Strategy) String() string {
	switch s {
	case StrategyStatic:
		return "Static"
	case StrategyBrowser:
		return "Browser"
	default:
		return "Unknown"
	}
}

// DetermineStrategy inspects a statically fetched page
func DetermineStrategy(page *models.Page) Strategy {
	if page == nil || page.Document == nil || page.Mode == models.ModeBrowser {
		return StrategyStatic
	}
	if isShell(page.Document) {
		return StrategyBrowser
	}
	return StrategyStatic
}

// NeedsBrowser logs a hint when a page looks client-rendered.
// It never triggers a refetch.
func NeedsBrowser(page *models.Page) bool {
	if DetermineStrategy(page) != StrategyBrowser {
		return false
	}
	log.Info().
		Str("url", page.URL).
		Str("framework", DetectJavaScriptFramework(page.HTML)).
		Msg("Page looks client-rendered; retry with --browser for full metadata")
	return true
}
