package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/law-makers/linkmeta/internal/assets"
	"github.com/law-makers/linkmeta/internal/downloader"
	"github.com/law-makers/linkmeta/internal/engine"
	"github.com/law-makers/linkmeta/internal/engine/metadata"
	"github.com/law-makers/linkmeta/internal/engine/static"
	"github.com/law-makers/linkmeta/internal/host"
	"github.com/law-makers/linkmeta/internal/host/memory"
	"github.com/law-makers/linkmeta/internal/monitoring"
	"github.com/law-makers/linkmeta/internal/reqctx"
	"github.com/law-makers/linkmeta/internal/rules"
	"github.com/law-makers/linkmeta/pkg/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedFetcher serves the same HTML for every URL
type fixedFetcher struct {
	html  string
	calls int
}

func (f *fixedFetcher) Name() string { return "fixed" }

func (f *fixedFetcher) Fetch(_ context.Context, pageURL string) (*models.Page, error) {
	f.calls++
	return metadata.NewPage(pageURL, pageURL, http.StatusOK, []byte(f.html), models.ModeStatic)
}

// blobFetcher stands in for the downloader
type blobFetcher struct {
	err  error
	urls []string
}

func (b *blobFetcher) Fetch(_ context.Context, url string) (*downloader.Blob, error) {
	b.urls = append(b.urls, url)
	if b.err != nil {
		return nil, b.err
	}
	return &downloader.Blob{URL: url, Data: []byte("png-bytes"), ContentType: "image/png", Filename: "cover.png"}, nil
}

func coverRule(id string, download bool) *rules.Rule {
	return &rules.Rule{
		ID:         id,
		Name:       "Cover " + id,
		URLPattern: `/cover\.test/i`,
		TagName:    "Cover",
		Script: []string{
			`return [`,
			`  { name: "Title", type: PropType.Text, value: baseMeta.title },`,
			`  { name: "Image", type: PropType.Text, value: "http://x/y.png", typeArgs: { subType: "image" } },`,
			`];`,
		},
		Enabled:       true,
		DownloadCover: download,
	}
}

func newStore(t *testing.T, list ...*rules.Rule) *rules.Store {
	t.Helper()
	store, err := rules.NewStore(list...)
	require.NoError(t, err)
	return store
}

func propValue(props []models.MetadataProperty, name string) any {
	for _, p := range props {
		if p.Name == name {
			return p.Value
		}
	}
	return nil
}

func TestExtract_GenericRule(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><meta property="og:title" content="Hello"></head><body></body></html>`))
	}))
	defer server.Close()

	h := memory.New()
	p := New(newStore(t, rules.GenericRule()), h, static.New(nil, nil, server.Client(), "test"))

	ext, err := p.Extract(context.Background(), server.URL+"/page?utm_source=feed&id=7", Options{})
	require.NoError(t, err)

	assert.Equal(t, rules.GenericID, ext.Rule)
	assert.Equal(t, "Hello", propValue(ext.Properties, "标题"))
	assert.Equal(t, server.URL+"/page?id=7", propValue(ext.Properties, "链接"))
	assert.Nil(t, propValue(ext.Properties, "封面"), "no image meta means no cover property")
	assert.Equal(t, http.StatusOK, ext.StatusCode)
	assert.NotEmpty(t, ext.ID)
	assert.Empty(t, ext.ScriptError)

	tags, err := h.ListTags(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tags, "Extract never writes to the host")
}

func TestExtract_RuleOrderWins(t *testing.T) {
	f := &fixedFetcher{html: `<html><head><title>三体 (豆瓣)</title></head><body>
		<h1><span>三体</span></h1>
		<div id="info"><span>作者: 刘慈欣</span><br><span>出版年: 2008-1</span><br></div>
		<strong class="rating_num">8.8</strong>
		<div id="db-tags-section"><a class="tag">科幻</a><a class="tag">小说</a></div>
	</body></html>`}
	store := newStore(t, rules.GenericRule(), rules.DoubanBookRule())

	ext, err := New(store, memory.New(), f).Extract(context.Background(), "https://book.douban.com/subject/123/", Options{})
	require.NoError(t, err)

	assert.Equal(t, "doubanBook", ext.Rule)
	assert.Equal(t, "书籍", ext.Tag)
	assert.Equal(t, "三体", propValue(ext.Properties, "书名"))
	assert.Equal(t, "刘慈欣", propValue(ext.Properties, "作者"))
}

func TestExtract_ScriptReturningObjectDegrades(t *testing.T) {
	store := newStore(t, &rules.Rule{
		ID: "object", Name: "Object", URLPattern: "object.test", TagName: "X", Enabled: true,
		Script: []string{`return { name: "a", value: 1 };`},
	})

	ext, err := New(store, memory.New(), &fixedFetcher{html: "<html></html>"}).
		Extract(context.Background(), "https://object.test/a", Options{})
	require.NoError(t, err, "a failing script must not fail the extraction")
	assert.NotNil(t, ext.Properties)
	assert.Empty(t, ext.Properties)
	assert.Contains(t, ext.ScriptError, "SCRIPT_ERROR")
}

func TestExtract_NoRule(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.SetEnabled(rules.GenericID, false))

	f := &fixedFetcher{}
	_, err := New(store, memory.New(), f).Extract(context.Background(), "https://nothing.test/", Options{})
	assert.ErrorIs(t, err, engine.ErrNoMatchingRule)

	var re *reqctx.RequestError
	assert.ErrorAs(t, err, &re)
	assert.Zero(t, f.calls, "no fetch without a rule")
}

func TestExtract_InvalidURL(t *testing.T) {
	_, err := New(newStore(t), memory.New(), &fixedFetcher{}).Extract(context.Background(), "mailto:a@b", Options{})
	assert.Equal(t, engine.ErrCodeValidation, engine.CodeOf(err))
}

func TestExtract_BrowserUnavailable(t *testing.T) {
	p := New(newStore(t), memory.New(), &fixedFetcher{})
	assert.False(t, p.HasBrowser())
	_, err := p.Extract(context.Background(), "https://a.test/", Options{Browser: true})
	assert.Equal(t, engine.ErrCodeValidation, engine.CodeOf(err))
}

func TestExtract_BrowserChannel(t *testing.T) {
	staticF := &fixedFetcher{html: `<title>static</title>`}
	browserF := &fixedFetcher{html: `<title>rendered</title>`}
	p := New(newStore(t), memory.New(), staticF).WithBrowser(browserF)

	ext, err := p.Extract(context.Background(), "https://spa.test/", Options{Browser: true})
	require.NoError(t, err)
	assert.Equal(t, "rendered", propValue(ext.Properties, "标题"))
	assert.Zero(t, staticF.calls)
}

func TestImport_FailedCoverKeepsURL(t *testing.T) {
	ctx := context.Background()
	h := memory.New()
	target, err := h.CreateBlock(ctx, "", host.TextBlock("note"))
	require.NoError(t, err)

	blobs := &blobFetcher{err: errors.New("connection refused")}
	p := New(newStore(t, coverRule("cover", true)), h, &fixedFetcher{html: `<title>T</title>`}).
		WithMaterializer(assets.NewMaterializer(blobs, h))

	ext, err := p.Import(ctx, "https://cover.test/1", target.ID, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"http://x/y.png"}, blobs.urls)
	assert.Equal(t, "http://x/y.png", propValue(ext.Properties, "Image"))
	assert.Equal(t, target.ID, ext.TargetID)
	assert.NotEmpty(t, ext.TagID)

	values, err := h.TagValues(ctx, target.ID, "Cover")
	require.NoError(t, err)
	assert.Equal(t, "http://x/y.png", propValue(values, "Image"))
}

func TestImport_UploadsCover(t *testing.T) {
	ctx := context.Background()
	h := memory.New()
	target, _ := h.CreateBlock(ctx, "", host.TextBlock("note"))

	p := New(newStore(t, coverRule("cover", true)), h, &fixedFetcher{html: `<title>T</title>`}).
		WithMaterializer(assets.NewMaterializer(&blobFetcher{}, h))

	ext, err := p.Import(ctx, "https://cover.test/1", target.ID, Options{})
	require.NoError(t, err)

	ref, _ := propValue(ext.Properties, "Image").(string)
	require.True(t, strings.HasPrefix(ref, "mem://assets/"), "got %q", ref)
	asset, ok := h.Asset(ref)
	require.True(t, ok)
	assert.Equal(t, "image/png", asset.ContentType)
}

func TestImport_DownloadDisabled(t *testing.T) {
	ctx := context.Background()
	h := memory.New()
	target, _ := h.CreateBlock(ctx, "", host.TextBlock("note"))
	blobs := &blobFetcher{}

	p := New(newStore(t, coverRule("nodl", false), coverRule("dl", true)), h, &fixedFetcher{html: `<title>T</title>`}).
		WithMaterializer(assets.NewMaterializer(blobs, h))

	_, err := p.Import(ctx, "https://cover.test/1", target.ID, Options{})
	require.NoError(t, err)

	store := newStore(t, coverRule("dl", true))
	p2 := New(store, h, &fixedFetcher{html: `<title>T</title>`}).WithMaterializer(assets.NewMaterializer(blobs, h))
	_, err = p2.Import(ctx, "https://cover.test/1", target.ID, Options{SkipAssets: true})
	require.NoError(t, err)

	assert.Empty(t, blobs.urls)
}

func TestImport_DefaultsToJournal(t *testing.T) {
	ctx := context.Background()
	h := memory.New()
	p := New(newStore(t), h, &fixedFetcher{html: `<meta property="og:title" content="Clipped">`})
	p.now = func() time.Time { return time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC) }

	ext, err := p.Import(ctx, "https://news.test/story?fbclid=abc", "", Options{})
	require.NoError(t, err)

	block, err := h.GetBlock(ctx, ext.TargetID)
	require.NoError(t, err)
	journal, err := h.JournalBlock(ctx, p.now())
	require.NoError(t, err)

	assert.Equal(t, journal.ID, block.ParentID)
	assert.Equal(t, "https://news.test/story", host.FindURL(block))
	assert.Equal(t, "Clipped", block.Text())

	values, err := h.TagValues(ctx, block.ID, "网页")
	require.NoError(t, err)
	assert.Equal(t, "Clipped", propValue(values, "标题"))
}

func TestImport_NothingExtracted(t *testing.T) {
	ctx := context.Background()
	h := memory.New()
	store := newStore(t, &rules.Rule{
		ID: "empty", Name: "Empty", URLPattern: "empty.test", TagName: "X", Enabled: true,
		Script: []string{`return [];`},
	})

	ext, err := New(store, h, &fixedFetcher{html: "<html></html>"}).Import(ctx, "https://empty.test/", "", Options{})
	require.NoError(t, err)
	assert.Empty(t, ext.ScriptError)
	assert.Empty(t, ext.TagID)

	_, err = h.GetTagSchema(ctx, "X")
	assert.ErrorIs(t, err, host.ErrNotFound)
}

func TestImport_ScriptErrorFailsImport(t *testing.T) {
	ctx := context.Background()
	h := memory.New()
	store := newStore(t,
		&rules.Rule{
			ID: "throws", Name: "Throws", URLPattern: "throws.test", TagName: "X", Enabled: true,
			Script: []string{`throw new Error("layout changed");`},
		},
		&rules.Rule{
			ID: "object", Name: "Object", URLPattern: "object.test", TagName: "Y", Enabled: true,
			Script: []string{`return { name: "x" };`},
		},
	)
	p := New(store, h, &fixedFetcher{html: "<html></html>"})
	target, err := h.CreateBlock(ctx, "", host.TextBlock("see https://object.test/item"))
	require.NoError(t, err)

	ext, err := p.Import(ctx, "https://throws.test/", target.ID, Options{})
	assert.ErrorIs(t, err, engine.ErrScriptFailed)
	require.NotNil(t, ext)
	assert.NotEmpty(t, ext.ScriptError)
	assert.Empty(t, ext.TagID)

	var reqErr *reqctx.RequestError
	assert.ErrorAs(t, err, &reqErr)

	ext, err = p.ApplyToBlock(ctx, target.ID, Options{})
	assert.Equal(t, engine.ErrCodeScript, engine.CodeOf(err))
	require.NotNil(t, ext)
	assert.Contains(t, ext.ScriptError, "array")

	for _, tag := range []string{"X", "Y"} {
		_, err = h.GetTagSchema(ctx, tag)
		assert.ErrorIs(t, err, host.ErrNotFound)
	}

	// Extract stays degraded
	ext, err = p.Extract(ctx, "https://throws.test/", Options{})
	require.NoError(t, err)
	assert.NotEmpty(t, ext.ScriptError)
}

func TestImport_SchemaFailurePropagates(t *testing.T) {
	ctx := context.Background()
	h := memory.New()
	target, _ := h.CreateBlock(ctx, "", host.TextBlock("note"))
	h.FailNext("InsertTag", errors.New("host offline"))

	_, err := New(newStore(t), h, &fixedFetcher{html: `<title>T</title>`}).Import(ctx, "https://a.test/", target.ID, Options{})
	assert.ErrorIs(t, err, engine.ErrSchemaSync)
}

func TestApplyToBlock(t *testing.T) {
	ctx := context.Background()
	h := memory.New()
	block, err := h.CreateBlock(ctx, "", host.TextBlock("read later https://blog.test/post?utm_medium=x"))
	require.NoError(t, err)

	f := &fixedFetcher{html: `<title>Post</title>`}
	ext, err := New(newStore(t), h, f).ApplyToBlock(ctx, block.ID, Options{})
	require.NoError(t, err)

	assert.Equal(t, block.ID, ext.TargetID)
	assert.Equal(t, "https://blog.test/post", propValue(ext.Properties, "链接"))

	values, err := h.TagValues(ctx, block.ID, "网页")
	require.NoError(t, err)
	assert.Equal(t, "Post", propValue(values, "标题"))
}

func TestApplyToBlock_NoURL(t *testing.T) {
	ctx := context.Background()
	h := memory.New()
	block, _ := h.CreateBlock(ctx, "", host.TextBlock("just text"))
	p := New(newStore(t), h, &fixedFetcher{})

	_, err := p.ApplyToBlock(ctx, block.ID, Options{})
	assert.Equal(t, engine.ErrCodeValidation, engine.CodeOf(err))

	_, err = p.ApplyToBlock(ctx, "missing", Options{})
	assert.Equal(t, engine.ErrCodeValidation, engine.CodeOf(err))
}

func TestExtractPageThenApply(t *testing.T) {
	ctx := context.Background()
	h := memory.New()
	p := New(newStore(t), h, &fixedFetcher{})

	page, err := metadata.NewPage("https://live.test/a", "https://live.test/b", 0, []byte(`<title>Live</title>`), models.ModeBrowser)
	require.NoError(t, err)

	ext, err := p.ExtractPage(ctx, page)
	require.NoError(t, err)
	assert.Equal(t, models.ModeBrowser, ext.Mode)
	assert.Equal(t, "Live", propValue(ext.Properties, "标题"))

	changes, err := p.Plan(ctx, ext)
	require.NoError(t, err)
	assert.NotEmpty(t, changes)

	target, _ := h.CreateBlock(ctx, "", host.TextBlock("x"))
	require.NoError(t, p.Apply(ctx, ext, target.ID, Options{}))
	assert.NotEmpty(t, ext.TagID)

	changes, err = p.Plan(ctx, ext)
	require.NoError(t, err)
	assert.Empty(t, changes, "schema already in sync")
}

func TestClip(t *testing.T) {
	f := &fixedFetcher{html: `<html><head><title>Doc</title></head><body>
		<nav>menu</nav><article><h2>Heading</h2><p>Some <a href="/x">link</a>.</p></article></body></html>`}
	clip, err := New(newStore(t), memory.New(), f).Clip(context.Background(), "https://docs.test/page", Options{})
	require.NoError(t, err)

	assert.Equal(t, "Doc", clip.Title)
	assert.Equal(t, rules.GenericID, clip.Rule)
	assert.Contains(t, clip.Markdown, "## Heading")
	assert.Contains(t, clip.Markdown, "https://docs.test/x")
	assert.NotContains(t, clip.Markdown, "menu")
}

func TestClip_WithoutContentScript(t *testing.T) {
	f := &fixedFetcher{html: `<html><body><main><p>Main text</p></main><footer>foot</footer></body></html>`}
	store := newStore(t, coverRule("cover", false))

	clip, err := New(store, memory.New(), f).Clip(context.Background(), "https://cover.test/1", Options{})
	require.NoError(t, err)
	assert.Equal(t, "cover", clip.Rule)
	assert.Equal(t, "Main text", clip.Markdown)
}

func TestMetricsRecorded(t *testing.T) {
	m := monitoring.NewMetrics(monitoring.MetricsConfig{})
	p := New(newStore(t), memory.New(), &fixedFetcher{html: `<title>T</title>`}).WithMetrics(m)

	_, err := p.Extract(context.Background(), "https://a.test/", Options{})
	require.NoError(t, err)

	n, err := testutil.GatherAndCount(m.Registry(), "linkmeta_extractions_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
