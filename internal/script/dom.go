package script

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/dop251/goja"
	urlutil "github.com/law-makers/linkmeta/internal/utils/url"
	"golang.org/x/net/html"
)

// dom exposes a read-only, browser-like view of a goquery document to a runtime
type dom struct {
	vm    *goja.Runtime
	doc   *goquery.Document
	base  string
	nodes map[*html.Node]*goja.Object
}

func newDOM(vm *goja.Runtime, doc *goquery.Document, base string) *dom {
	return &dom{
		vm:    vm,
		doc:   doc,
		base:  base,
		nodes: make(map[*html.Node]*goja.Object),
	}
}

// document builds the object passed to scripts as `document`
func (d *dom) document() *goja.Object {
	obj := d.vm.NewObject()
	d.bindQueries(obj, d.doc.Selection)

	d.getter(obj, "documentElement", func() goja.Value { return d.wrap(d.doc.Find("html")) })
	d.getter(obj, "head", func() goja.Value { return d.wrap(d.doc.Find("head")) })
	d.getter(obj, "body", func() goja.Value { return d.wrap(d.doc.Find("body")) })
	d.getter(obj, "title", func() goja.Value {
		return d.vm.ToValue(strings.TrimSpace(d.doc.Find("title").First().Text()))
	})
	_ = obj.Set("location", d.location())
	_ = obj.Set("URL", d.base)

	_ = obj.Set("getElementById", func(id string) goja.Value {
		return d.wrap(d.doc.FindMatcher(goquery.Single(`[id="` + strings.ReplaceAll(id, `"`, `\"`) + `"]`)))
	})
	_ = obj.Set("xpath", d.xpath)

	return obj
}

func (d *dom) location() *goja.Object {
	loc := d.vm.NewObject()
	_ = loc.Set("href", d.base)
	if u, err := url.Parse(d.base); err == nil {
		_ = loc.Set("protocol", u.Scheme+":")
		_ = loc.Set("host", u.Host)
		_ = loc.Set("hostname", u.Hostname())
		_ = loc.Set("pathname", u.EscapedPath())
		_ = loc.Set("origin", urlutil.Origin(d.base))
		search := ""
		if u.RawQuery != "" {
			search = "?" + u.RawQuery
		}
		_ = loc.Set("search", search)
	}
	return loc
}

// wrap returns the element object for the first node of sel, or null
func (d *dom) wrap(sel *goquery.Selection) goja.Value {
	if sel == nil || sel.Length() == 0 {
		return goja.Null()
	}
	return d.wrapNode(sel.Nodes[0])
}

func (d *dom) wrapNode(n *html.Node) goja.Value {
	if n == nil || n.Type != html.ElementNode {
		return goja.Null()
	}
	if obj, ok := d.nodes[n]; ok {
		return obj
	}

	sel := d.doc.FindNodes(n)
	if sel.Length() == 0 {
		// detached node, e.g. an xpath attribute result
		sel = goquery.NewDocumentFromNode(n).Selection
	}

	obj := d.vm.NewObject()
	d.nodes[n] = obj
	d.bindQueries(obj, sel)

	d.getter(obj, "tagName", func() goja.Value { return d.vm.ToValue(strings.ToUpper(n.Data)) })
	d.getter(obj, "nodeName", func() goja.Value { return d.vm.ToValue(strings.ToUpper(n.Data)) })
	d.getter(obj, "id", func() goja.Value { return d.vm.ToValue(sel.AttrOr("id", "")) })
	d.getter(obj, "className", func() goja.Value { return d.vm.ToValue(sel.AttrOr("class", "")) })
	d.getter(obj, "textContent", func() goja.Value { return d.vm.ToValue(sel.Text()) })
	d.getter(obj, "innerText", func() goja.Value { return d.vm.ToValue(innerText(n)) })
	d.getter(obj, "innerHTML", func() goja.Value {
		s, _ := sel.Html()
		return d.vm.ToValue(s)
	})
	d.getter(obj, "outerHTML", func() goja.Value {
		s, _ := goquery.OuterHtml(sel)
		return d.vm.ToValue(s)
	})
	d.getter(obj, "href", func() goja.Value { return d.resolvedAttr(sel, "href") })
	d.getter(obj, "src", func() goja.Value { return d.resolvedAttr(sel, "src") })
	d.getter(obj, "content", func() goja.Value { return d.vm.ToValue(sel.AttrOr("content", "")) })
	d.getter(obj, "value", func() goja.Value { return d.vm.ToValue(sel.AttrOr("value", "")) })
	d.getter(obj, "alt", func() goja.Value { return d.vm.ToValue(sel.AttrOr("alt", "")) })
	d.getter(obj, "title", func() goja.Value { return d.vm.ToValue(sel.AttrOr("title", "")) })

	d.getter(obj, "parentElement", func() goja.Value { return d.wrap(sel.Parent()) })
	d.getter(obj, "children", func() goja.Value { return d.array(sel.Children()) })
	d.getter(obj, "firstElementChild", func() goja.Value { return d.wrap(sel.Children().First()) })
	d.getter(obj, "lastElementChild", func() goja.Value { return d.wrap(sel.Children().Last()) })
	d.getter(obj, "nextElementSibling", func() goja.Value { return d.wrap(sel.Next()) })
	d.getter(obj, "previousElementSibling", func() goja.Value { return d.wrap(sel.Prev()) })

	_ = obj.Set("getAttribute", func(name string) goja.Value {
		v, ok := sel.Attr(name)
		if !ok {
			return goja.Null()
		}
		return d.vm.ToValue(v)
	})
	_ = obj.Set("hasAttribute", func(name string) bool {
		_, ok := sel.Attr(name)
		return ok
	})
	_ = obj.Set("closest", func(selector string) goja.Value {
		return d.wrap(sel.Closest(selector))
	})
	_ = obj.Set("matches", func(selector string) bool {
		return sel.Is(selector)
	})

	return obj
}

func (d *dom) bindQueries(obj *goja.Object, sel *goquery.Selection) {
	_ = obj.Set("querySelector", func(selector string) goja.Value {
		return d.wrap(sel.Find(selector).First())
	})
	_ = obj.Set("querySelectorAll", func(selector string) goja.Value {
		return d.array(sel.Find(selector))
	})
}

// array converts a selection into a JS array of element objects
func (d *dom) array(sel *goquery.Selection) goja.Value {
	items := make([]interface{}, 0, sel.Length())
	for _, n := range sel.Nodes {
		items = append(items, d.wrapNode(n))
	}
	return d.vm.NewArray(items...)
}

func (d *dom) resolvedAttr(sel *goquery.Selection, name string) goja.Value {
	v, ok := sel.Attr(name)
	if !ok {
		return d.vm.ToValue("")
	}
	return d.vm.ToValue(urlutil.ResolveURL(d.base, strings.TrimSpace(v)))
}

// xpath evaluates expr against the whole document. Element results become
// element objects, anything else (attributes, text) becomes its string value.
func (d *dom) xpath(expr string) goja.Value {
	if len(d.doc.Nodes) == 0 {
		return d.vm.NewArray()
	}
	nodes, err := htmlquery.QueryAll(d.doc.Nodes[0], expr)
	if err != nil {
		panic(d.vm.NewTypeError("invalid xpath %q: %v", expr, err))
	}

	items := make([]interface{}, 0, len(nodes))
	for _, n := range nodes {
		if n.Type == html.ElementNode && n.Parent != nil {
			items = append(items, d.wrapNode(n))
			continue
		}
		items = append(items, htmlquery.InnerText(n))
	}
	return d.vm.NewArray(items...)
}

func (d *dom) getter(obj *goja.Object, name string, fn func() goja.Value) {
	get := d.vm.ToValue(func(goja.FunctionCall) goja.Value { return fn() })
	_ = obj.DefineAccessorProperty(name, get, nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
}
