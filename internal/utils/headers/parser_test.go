package headers

import (
	"reflect"
	"testing"
)

func TestParseHeaders(t *testing.T) {
	in := []string{"User-Agent: Bot", "Accept: text/html", "BadHeader", "X-Time: 10:30"}
	out := ParseHeaders(in)
	expected := map[string]string{"User-Agent": "Bot", "Accept": "text/html", "X-Time": "10:30"}
	if !reflect.DeepEqual(out, expected) {
		t.Fatalf("unexpected parse result: %#v", out)
	}
}

func TestBrowser(t *testing.T) {
	h := Browser("linkmeta/1.0", "https://book.douban.com/subject/1/?x=1", map[string]string{"Accept": "text/html"})

	if got := h.Get("Referer"); got != "https://book.douban.com/" {
		t.Errorf("unexpected referer %q", got)
	}
	if got := h.Get("Accept-Language"); got != DefaultAcceptLanguage {
		t.Errorf("unexpected accept-language %q", got)
	}
	if got := h.Get("Accept"); got != "text/html" {
		t.Errorf("extra header not applied, got %q", got)
	}
	if got := h.Get("User-Agent"); got != "linkmeta/1.0" {
		t.Errorf("unexpected user agent %q", got)
	}
}

func TestBrowser_NoReferrerForBadURL(t *testing.T) {
	h := Browser("ua", "::not a url", nil)
	if h.Get("Referer") != "" {
		t.Errorf("expected no referer, got %q", h.Get("Referer"))
	}
}
