package script

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/law-makers/linkmeta/internal/engine"
	"github.com/law-makers/linkmeta/internal/engine/metadata"
	"github.com/law-makers/linkmeta/internal/rules"
	"github.com/law-makers/linkmeta/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPage(t *testing.T, rawURL, body string) *models.Page {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	require.NoError(t, err)
	return &models.Page{
		URL:      rawURL,
		FinalURL: rawURL,
		Document: doc,
		Base:     metadata.ExtractBase(doc, rawURL),
		Mode:     models.ModeStatic,
	}
}

func scriptRule(lines ...string) *rules.Rule {
	return &rules.Rule{
		ID:         "test",
		Name:       "Test",
		URLPattern: "example",
		TagName:    "Test",
		Script:     lines,
		Enabled:    true,
	}
}

func TestRun_GenericRule(t *testing.T) {
	page := testPage(t, "https://example.com/page?utm_source=x",
		`<html><head><meta property="og:title" content="Hello"><title>Ignored</title></head><body></body></html>`)
	clean := metadata.CleanURL(page.URL)

	props, err := New(0).Run(context.Background(), rules.GenericRule(), page, clean)
	require.NoError(t, err)
	require.Len(t, props, 2)

	assert.Equal(t, "标题", props[0].Name)
	assert.Equal(t, models.PropText, props[0].Type)
	assert.Equal(t, "Hello", props[0].Value)

	assert.Equal(t, "链接", props[1].Name)
	assert.Equal(t, "https://example.com/page", props[1].Value)
	assert.Equal(t, models.SubTypeLink, props[1].SubType())
}

func TestRun_NonArrayResult(t *testing.T) {
	page := testPage(t, "https://example.com/", `<html></html>`)
	r := scriptRule(`return { name: "x", value: 1 };`)

	props, err := New(0).Run(context.Background(), r, page, page.URL)
	require.Error(t, err)
	assert.NotNil(t, props)
	assert.Empty(t, props)
	assert.True(t, errors.Is(err, engine.ErrScriptFailed))
	assert.Equal(t, engine.ErrCodeScript, engine.CodeOf(err))
}

func TestRun_Throws(t *testing.T) {
	page := testPage(t, "https://example.com/", `<html></html>`)
	r := scriptRule(`throw new Error("boom");`)

	props, err := New(0).Run(context.Background(), r, page, page.URL)
	require.Error(t, err)
	assert.Empty(t, props)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, engine.ErrCodeScript, engine.CodeOf(err))
}

func TestRun_CompileError(t *testing.T) {
	page := testPage(t, "https://example.com/", `<html></html>`)
	r := scriptRule(`return [;`)

	props, err := New(0).Run(context.Background(), r, page, page.URL)
	require.Error(t, err)
	assert.Empty(t, props)
}

func TestRun_Await(t *testing.T) {
	page := testPage(t, "https://example.com/", `<html></html>`)
	r := scriptRule(
		`const v = await Promise.resolve(3);`,
		`return [{ name: "n", type: PropType.Number, value: v }];`,
	)

	props, err := New(0).Run(context.Background(), r, page, page.URL)
	require.NoError(t, err)
	require.Len(t, props, 1)
	assert.Equal(t, models.PropNumber, props[0].Type)
	assert.Equal(t, int64(3), props[0].Value)
}

func TestRun_AwaitRejected(t *testing.T) {
	page := testPage(t, "https://example.com/", `<html></html>`)
	r := scriptRule(`await Promise.reject(new Error("nope"));`, `return [];`)

	_, err := New(0).Run(context.Background(), r, page, page.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestRun_Timeout(t *testing.T) {
	page := testPage(t, "https://example.com/", `<html></html>`)
	r := scriptRule(`while (true) {}`)

	start := time.Now()
	props, err := New(50*time.Millisecond).Run(context.Background(), r, page, page.URL)
	require.Error(t, err)
	assert.Empty(t, props)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRun_ContextCancelled(t *testing.T) {
	page := testPage(t, "https://example.com/", `<html></html>`)
	r := scriptRule(`while (true) {}`)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := New(time.Minute).Run(ctx, r, page, page.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRun_Sandbox(t *testing.T) {
	page := testPage(t, "https://example.com/", `<html></html>`)
	r := scriptRule(
		`PropType.Text = 99;`,
		`return [`,
		`  { name: "require", value: typeof require },`,
		`  { name: "fetch", value: typeof fetch },`,
		`  { name: "setTimeout", value: typeof setTimeout },`,
		`  { name: "text", value: PropType.Text },`,
		`];`,
	)

	props, err := New(0).Run(context.Background(), r, page, page.URL)
	require.NoError(t, err)
	require.Len(t, props, 4)
	assert.Equal(t, "undefined", props[0].Value)
	assert.Equal(t, "undefined", props[1].Value)
	assert.Equal(t, "undefined", props[2].Value)
	assert.Equal(t, int64(models.PropText), props[3].Value)
}

func TestRun_CleanURLHelper(t *testing.T) {
	page := testPage(t, "https://example.com/", `<html></html>`)
	r := scriptRule(`return [{ name: "u", value: cleanUrl("https://x.com/a?fbclid=1&id=2") }];`)

	props, err := New(0).Run(context.Background(), r, page, page.URL)
	require.NoError(t, err)
	require.Len(t, props, 1)
	assert.Equal(t, "https://x.com/a?id=2", props[0].Value)
}

func TestRun_DefensiveDecoding(t *testing.T) {
	page := testPage(t, "https://example.com/", `<html></html>`)
	r := scriptRule(
		`return [`,
		`  { name: "no type", value: "a" },`,
		`  { name: "no value", type: PropType.Number },`,
		`  { name: "by name", type: "DateTime", value: "2024-01-01" },`,
		`  { name: "bad type", type: 42, value: "b" },`,
		`  { value: "nameless" },`,
		`  "not an object",`,
		`  null,`,
		`];`,
	)

	props, err := New(0).Run(context.Background(), r, page, page.URL)
	require.NoError(t, err)
	require.Len(t, props, 4)

	assert.Equal(t, models.PropText, props[0].Type)
	assert.Equal(t, models.PropNumber, props[1].Type)
	assert.Nil(t, props[1].Value)
	assert.Equal(t, models.PropDateTime, props[2].Type)
	assert.Equal(t, models.PropText, props[3].Type)
}

func TestRun_DoubanBook(t *testing.T) {
	page := testPage(t, "https://book.douban.com/subject/123/", `<html><head>
<title>三体 (豆瓣)</title><meta property="og:title" content="三体"></head><body>
<h1><span property="v:itemreviewed">三体</span></h1>
<div id="mainpic"><a><img src="/view/subject/s1.jpg"></a></div>
<div id="info">
  <span><span class="pl"> 作者</span>:
    <a href="/author/1">刘慈欣</a></span><br/>
  <span class="pl">出版社:</span> 重庆出版社<br/>
  <span class="pl">出版年:</span> 2008-1<br/>
  <span class="pl">页数:</span> 302<br/>
  <span class="pl">ISBN:</span> 9787536692930<br/>
</div>
<strong class="ll rating_num">8.8</strong>
<div id="db-tags-section"><a class="tag">科幻</a> <a class="tag">刘慈欣</a></div>
</body></html>`)

	props, err := New(0).Run(context.Background(), rules.DoubanBookRule(), page, page.URL)
	require.NoError(t, err)

	byName := map[string]models.MetadataProperty{}
	for _, p := range props {
		byName[p.Name] = p
	}
	assert.Equal(t, "三体", byName["书名"].Value)
	assert.Equal(t, "刘慈欣", byName["作者"].Value)
	assert.Equal(t, "重庆出版社", byName["出版社"].Value)
	assert.Equal(t, "2008-1", byName["出版年"].Value)
	assert.Equal(t, models.PropDateTime, byName["出版年"].Type)
	assert.Equal(t, "302", byName["页数"].Value)
	assert.Equal(t, "8.8", byName["评分"].Value)
	assert.Equal(t, []interface{}{"科幻", "刘慈欣"}, byName["标签"].Value)
	assert.Equal(t, models.PropTextChoices, byName["标签"].Type)
	assert.Equal(t, "https://book.douban.com/view/subject/s1.jpg", byName["封面"].Value)
	assert.Equal(t, models.SubTypeImage, byName["封面"].SubType())
}

func TestRunContent_Generic(t *testing.T) {
	page := testPage(t, "https://example.com/post",
		`<html><body><nav>menu</nav><article><h1>T</h1><p>Hello <a href="/x">x</a></p></article></body></html>`)

	text, err := New(0).RunContent(context.Background(), rules.GenericRule(), page, page.URL)
	require.NoError(t, err)
	assert.Contains(t, text, "# T")
	assert.Contains(t, text, "[x](https://example.com/x)")
	assert.NotContains(t, text, "menu")
}

func TestRunContent_NoScript(t *testing.T) {
	page := testPage(t, "https://example.com/", `<html></html>`)
	_, err := New(0).RunContent(context.Background(), scriptRule(`return [];`), page, page.URL)
	assert.Error(t, err)
}

func TestRun_NoDocument(t *testing.T) {
	props, err := New(0).Run(context.Background(), scriptRule(`return [];`), &models.Page{}, "")
	assert.Error(t, err)
	assert.Empty(t, props)
}
