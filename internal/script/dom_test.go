package script

import (
	"context"
	"strings"
	"testing"

	"github.com/law-makers/linkmeta/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

const domFixture = `<html><head><title> Fixture </title></head><body>
<div id="main" class="wrap">
  <ul class="list">
    <li data-k="a"><a href="/a">First</a></li>
    <li data-k="b"><a href="https://other.org/b">Second</a></li>
  </ul>
  <p class="lines">one<br>two<br/>three</p>
  <img id="pic" src="img/p.png" alt="pic">
</div>
</body></html>`

// eval runs body and returns the value of the single property it emits
func eval(t *testing.T, body string) interface{} {
	t.Helper()
	page := testPage(t, "https://example.com/dir/page", domFixture)
	r := scriptRule(`return [{ name: "v", value: (function() { ` + body + ` })() }];`)

	props, err := New(0).Run(context.Background(), r, page, page.URL)
	require.NoError(t, err)
	require.Len(t, props, 1)
	return props[0].Value
}

func TestDOM_Queries(t *testing.T) {
	assert.Equal(t, "Fixture", eval(t, `return document.title;`))
	assert.Equal(t, int64(2), eval(t, `return document.querySelectorAll("li").length;`))
	assert.Equal(t, []interface{}{"First", "Second"},
		eval(t, `return document.querySelectorAll("li a").map(a => a.textContent);`))
	assert.Nil(t, eval(t, `return document.querySelector(".missing");`))
	assert.Equal(t, "UL", eval(t, `return document.querySelector("#main").querySelector("ul").tagName;`))
	assert.Equal(t, "wrap", eval(t, `return document.getElementById("main").className;`))
}

func TestDOM_Attributes(t *testing.T) {
	assert.Equal(t, "https://example.com/a", eval(t, `return document.querySelector("li a").href;`))
	assert.Equal(t, "https://other.org/b", eval(t, `return document.querySelectorAll("li a")[1].href;`))
	assert.Equal(t, "https://example.com/dir/img/p.png", eval(t, `return document.querySelector("#pic").src;`))
	assert.Equal(t, "/a", eval(t, `return document.querySelector("li a").getAttribute("href");`))
	assert.Nil(t, eval(t, `return document.querySelector("li a").getAttribute("nope");`))
	assert.Equal(t, true, eval(t, `return document.querySelector("li").hasAttribute("data-k");`))
}

func TestDOM_Traversal(t *testing.T) {
	assert.Equal(t, "b", eval(t, `return document.querySelector("li").nextElementSibling.getAttribute("data-k");`))
	assert.Equal(t, "main", eval(t, `return document.querySelector("a").closest("div").id;`))
	assert.Equal(t, "LI", eval(t, `return document.querySelector("a").parentElement.tagName;`))
	assert.Equal(t, int64(2), eval(t, `return document.querySelector("ul").children.length;`))
	assert.Equal(t, true, eval(t, `const a = document.querySelector("li"); return a === document.querySelectorAll("li")[0];`))
	assert.Equal(t, true, eval(t, `return document.querySelector("ul").matches(".list");`))
}

func TestDOM_Text(t *testing.T) {
	assert.Equal(t, "one\ntwo\nthree", eval(t, `return document.querySelector(".lines").innerText;`))
	assert.Equal(t, "onetwothree", eval(t, `return document.querySelector(".lines").textContent;`))
	assert.Equal(t, `<a href="/a">First</a>`, eval(t, `return document.querySelector("li").innerHTML;`))
}

func TestDOM_Location(t *testing.T) {
	assert.Equal(t, "example.com", eval(t, `return document.location.hostname;`))
	assert.Equal(t, "/dir/page", eval(t, `return document.location.pathname;`))
	assert.Equal(t, "https://example.com", eval(t, `return document.location.origin;`))
}

func TestDOM_XPath(t *testing.T) {
	assert.Equal(t, []interface{}{"First", "Second"},
		eval(t, `return document.xpath("//li/a").map(a => a.textContent);`))
	assert.Equal(t, []interface{}{"/a", "https://other.org/b"},
		eval(t, `return document.xpath("//li/a/@href");`))
	assert.Equal(t, "main", eval(t, `return document.xpath("//ul")[0].parentElement.id;`))
}

func TestDOM_InvalidXPathThrows(t *testing.T) {
	page := testPage(t, "https://example.com/", domFixture)
	r := scriptRule(`return document.xpath("//[");`)

	props, err := New(0).Run(context.Background(), r, page, page.URL)
	require.Error(t, err)
	assert.Empty(t, props)
}

func TestInnerText(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`<div><span class="pl">作者</span>:
	    <a>刘慈欣</a><br>
	  <p>Para <b>bold</b> end</p><script>x()</script>tail&nbsp;text</div>`))
	require.NoError(t, err)

	var div *html.Node
	var find func(*html.Node)
	find = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "div" && div == nil {
			div = n
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			find(c)
		}
	}
	find(doc)
	require.NotNil(t, div)

	assert.Equal(t, "作者: 刘慈欣\nPara bold end\ntail text", innerText(div))
}

func TestDecodeProperty(t *testing.T) {
	p, ok := decodeProperty(map[string]interface{}{
		"name":     " 标签 ",
		"type":     int64(6),
		"value":    []interface{}{"a"},
		"typeArgs": map[string]interface{}{"subType": "multi"},
	})
	require.True(t, ok)
	assert.Equal(t, "标签", p.Name)
	assert.Equal(t, models.PropTextChoices, p.Type)
	assert.Equal(t, models.SubTypeMulti, p.SubType())

	_, ok = decodeProperty("x")
	assert.False(t, ok)
}
