package hybrid

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/law-makers/linkmeta/pkg/models"
)

func page(t *testing.T, html string, mode models.FetchMode) *models.Page {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatal(err)
	}
	return &models.Page{URL: "https://example.com", HTML: html, Document: doc, Mode: mode}
}

func TestDetectJavaScriptFramework(t *testing.T) {
	tests := []struct {
		html string
		want string
	}{
		{`<script id="__NEXT_DATA__" type="application/json">{}</script>`, "Next.js"},
		{`<div id="app" data-v-app></div>`, "Vue"},
		{`<app-root ng-version="17.0.0"></app-root>`, "Angular"},
		{`<div data-reactroot></div>`, "React"},
		{`<p>plain</p>`, "Unknown"},
	}
	for _, tt := range tests {
		if got := DetectJavaScriptFramework(tt.html); got != tt.want {
			t.Errorf("DetectJavaScriptFramework(%q) = %s, want %s", tt.html, got, tt.want)
		}
	}
}

func TestNeedsBrowser(t *testing.T) {
	shell := `<html><body><div id="root"></div><script src="/app.js"></script></body></html>`
	if !NeedsBrowser(page(t, shell, models.ModeStatic)) {
		t.Error("Expected SPA shell to need a browser")
	}

	article := `<html><body><div id="root"><article>` + strings.Repeat("Rendered on the server. ", 20) +
		`</article></div><script src="/app.js"></script></body></html>`
	if NeedsBrowser(page(t, article, models.ModeStatic)) {
		t.Error("Expected server-rendered page to be fine statically")
	}

	if NeedsBrowser(page(t, shell, models.ModeBrowser)) {
		t.Error("Browser-fetched pages never need a hint")
	}
	if NeedsBrowser(nil) {
		t.Error("nil page should not need a browser")
	}
}

func TestStrategyString(t *testing.T) {
	if StrategyStatic.String() != "Static" || StrategyBrowser.String() != "Browser" {
		t.Error("unexpected strategy names")
	}
	if Strategy(9).String() != "Unknown" {
		t.Error("unexpected name for unknown strategy")
	}
}
