// Package pipeline chains rule matching, fetching, script execution, asset
// materialization and tag import for a single URL.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/law-makers/linkmeta/internal/assets"
	"github.com/law-makers/linkmeta/internal/downloader"
	"github.com/law-makers/linkmeta/internal/engine"
	"github.com/law-makers/linkmeta/internal/engine/hybrid"
	"github.com/law-makers/linkmeta/internal/engine/metadata"
	"github.com/law-makers/linkmeta/internal/host"
	"github.com/law-makers/linkmeta/internal/importer"
	"github.com/law-makers/linkmeta/internal/monitoring"
	"github.com/law-makers/linkmeta/internal/reqctx"
	"github.com/law-makers/linkmeta/internal/rules"
	"github.com/law-makers/linkmeta/internal/script"
	urlutil "github.com/law-makers/linkmeta/internal/utils/url"
	"github.com/law-makers/linkmeta/pkg/models"
)

// Extraction outcome labels
const (
	StatusOK          = "ok"
	StatusScriptError = "script_error"
	StatusError       = "error"
)

// Host is the set of host capabilities the pipeline writes through
type Host interface {
	host.BlockStore
	host.SchemaStore
	host.AssetStore
	host.JournalStore
}

// Options tune a single run
type Options struct {
	// Browser renders the page in headless Chrome instead of a plain GET
	Browser bool

	// SkipAssets keeps remote cover URLs even when the rule asks for download
	SkipAssets bool
}

// Pipeline runs URLs through the extraction stages
type Pipeline struct {
	rules        *rules.Store
	host         Host
	static       engine.Fetcher
	browser      engine.Fetcher
	executor     *script.Executor
	materializer *assets.Materializer
	importer     *importer.Importer
	metrics      *monitoring.Metrics
	now          func() time.Time
}

// New creates a pipeline over the given rule store, host and static fetcher.
// Scripts get the default executor, covers are downloaded with the default
// downloader and uploaded to h.
func New(store *rules.Store, h Host, static engine.Fetcher) *Pipeline {
	return &Pipeline{
		rules:        store,
		host:         h,
		static:       static,
		executor:     script.New(script.DefaultTimeout),
		materializer: assets.NewMaterializer(downloader.NewDownloader(30*time.Second, ""), h),
		importer:     importer.New(h),
		now:          time.Now,
	}
}

// WithBrowser enables the browser channel
func (p *Pipeline) WithBrowser(f engine.Fetcher) *Pipeline {
	p.browser = f
	return p
}

// WithExecutor replaces the script executor
func (p *Pipeline) WithExecutor(e *script.Executor) *Pipeline {
	p.executor = e
	return p
}

// WithMaterializer replaces the asset materializer
func (p *Pipeline) WithMaterializer(m *assets.Materializer) *Pipeline {
	p.materializer = m
	return p
}

// WithImporter replaces the importer
func (p *Pipeline) WithImporter(im *importer.Importer) *Pipeline {
	p.importer = im
	return p
}

// WithMetrics records stage timings and outcomes
func (p *Pipeline) WithMetrics(m *monitoring.Metrics) *Pipeline {
	p.metrics = m
	p.materializer.WithMetrics(m)
	p.importer.WithMetrics(m)
	return p
}

// Rules returns the rule store
func (p *Pipeline) Rules() *rules.Store {
	return p.rules
}

// HasBrowser reports whether the browser channel is configured
func (p *Pipeline) HasBrowser() bool {
	return p.browser != nil
}

// Extract fetches rawURL and runs the matching rule's script. Nothing is
// written to the host. A failing script does not fail the extraction: its
// properties are empty and ScriptError is set.
func (p *Pipeline) Extract(ctx context.Context, rawURL string, opts Options) (*models.Extraction, error) {
	ctx = reqctx.WithExtraction(ctx, rawURL)
	ext, err := p.extract(ctx, rawURL, opts)
	if ext != nil {
		// script failures are reported through ext.ScriptError
		err = nil
	}
	p.finish(ctx, ext, err)
	return ext, reqctx.NewRequestError(ctx, err)
}

// ExtractPage runs the matching rule against an already loaded page, e.g.
// the document shown in an interactive browser tab
func (p *Pipeline) ExtractPage(ctx context.Context, page *models.Page) (*models.Extraction, error) {
	if page == nil {
		return nil, engine.NewEngineError(engine.ErrCodeValidation, "no page to extract", nil)
	}
	pageURL := page.FinalURL
	if pageURL == "" {
		pageURL = page.URL
	}
	ctx = reqctx.WithExtraction(ctx, pageURL)

	rule, err := p.match(ctx, pageURL)
	if err != nil {
		p.finish(ctx, nil, err)
		return nil, reqctx.NewRequestError(ctx, err)
	}
	ext, _ := p.run(ctx, rule, page, metadata.CleanURL(pageURL))
	p.finish(ctx, ext, nil)
	return ext, nil
}

// Import extracts rawURL and applies the result as a tag. With an empty
// targetID a new block linking the URL is created under today's journal.
// A failing script fails the import; the extraction is still returned.
func (p *Pipeline) Import(ctx context.Context, rawURL, targetID string, opts Options) (*models.Extraction, error) {
	ctx = reqctx.WithExtraction(ctx, rawURL)
	ext, err := p.extract(ctx, rawURL, opts)
	if err == nil {
		err = p.apply(ctx, ext, targetID, opts)
	}
	p.finish(ctx, ext, err)
	return ext, reqctx.NewRequestError(ctx, err)
}

// ApplyToBlock finds the URL in a block's content, extracts it and tags
// the block with the result
func (p *Pipeline) ApplyToBlock(ctx context.Context, blockID string, opts Options) (*models.Extraction, error) {
	block, err := p.host.GetBlock(ctx, blockID)
	if err != nil {
		if errors.Is(err, host.ErrNotFound) {
			return nil, engine.NewEngineError(engine.ErrCodeValidation, "block not found", err).WithDetail("block", blockID)
		}
		return nil, engine.NewEngineError(engine.ErrCodeSchemaSync, "failed to read block", err).WithDetail("block", blockID)
	}
	rawURL := host.FindURL(block)
	if rawURL == "" {
		return nil, engine.NewEngineError(engine.ErrCodeValidation, "block contains no URL", nil).WithDetail("block", blockID)
	}
	return p.Import(ctx, rawURL, blockID, opts)
}

// Apply materializes and imports an extraction produced earlier, e.g. one
// reviewed interactively. ext is updated with the target and tag ids.
func (p *Pipeline) Apply(ctx context.Context, ext *models.Extraction, targetID string, opts Options) error {
	if ext == nil {
		return engine.NewEngineError(engine.ErrCodeValidation, "no extraction to apply", nil)
	}
	ctx = reqctx.WithExtraction(ctx, ext.URL)
	return reqctx.NewRequestError(ctx, p.apply(ctx, ext, targetID, opts))
}

// Plan reports the schema changes importing ext would make
func (p *Pipeline) Plan(ctx context.Context, ext *models.Extraction) ([]models.PropertyDefinition, error) {
	return p.importer.Plan(ctx, models.TagApplication{Name: ext.Tag, Properties: ext.Properties})
}

func (p *Pipeline) extract(ctx context.Context, rawURL string, opts Options) (*models.Extraction, error) {
	rawURL = strings.TrimSpace(rawURL)
	if err := urlutil.ValidateURL(rawURL); err != nil {
		return nil, engine.NewEngineError(engine.ErrCodeValidation, "invalid URL", err).WithDetail("url", rawURL)
	}

	rule, err := p.match(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	page, err := p.fetch(ctx, rawURL, opts)
	if err != nil {
		return nil, err
	}

	return p.run(ctx, rule, page, metadata.CleanURL(rawURL))
}

func (p *Pipeline) match(ctx context.Context, rawURL string) (*rules.Rule, error) {
	start := time.Now()
	rule, err := p.rules.Match(rawURL)
	p.metrics.RecordStage(monitoring.StageMatch, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	reqctx.Logger(ctx).Debug().Str("rule", rule.ID).Str("url", rawURL).Msg("Rule selected")
	return rule, nil
}

func (p *Pipeline) fetch(ctx context.Context, rawURL string, opts Options) (*models.Page, error) {
	fetcher := p.static
	mode := models.ModeStatic
	if opts.Browser {
		if p.browser == nil {
			return nil, engine.NewEngineError(engine.ErrCodeValidation, "browser mode is not available", nil)
		}
		fetcher = p.browser
		mode = models.ModeBrowser
	}

	start := time.Now()
	page, err := fetcher.Fetch(ctx, rawURL)
	p.metrics.RecordStage(monitoring.StageFetch, time.Since(start), err)
	if err != nil {
		p.metrics.RecordFetch(string(mode), 0)
		return nil, err
	}
	p.metrics.RecordFetch(string(mode), page.StatusCode)

	if mode == models.ModeStatic {
		hybrid.NeedsBrowser(page)
	}
	return page, nil
}

// run executes the rule script. The extraction is always returned; on a
// script failure its properties are empty, ScriptError is set and the
// SCRIPT_ERROR is returned as well.
func (p *Pipeline) run(ctx context.Context, rule *rules.Rule, page *models.Page, cleanURL string) (*models.Extraction, error) {
	start := time.Now()
	props, err := p.executor.Run(ctx, rule, page, cleanURL)
	p.metrics.RecordStage(monitoring.StageScript, time.Since(start), err)

	ext := &models.Extraction{
		ID:         reqctx.FromContext(ctx).ID,
		URL:        page.URL,
		CleanURL:   cleanURL,
		Rule:       rule.ID,
		Tag:        rule.TagName,
		Mode:       page.Mode,
		StatusCode: page.StatusCode,
		Base:       page.Base,
		Properties: props,
	}
	if err != nil {
		ext.ScriptError = err.Error()
	}
	return ext, err
}

func (p *Pipeline) apply(ctx context.Context, ext *models.Extraction, targetID string, opts Options) error {
	logger := reqctx.Logger(ctx)

	if len(ext.Properties) == 0 {
		logger.Warn().Str("rule", ext.Rule).Str("url", ext.URL).Msg("Nothing extracted, skipping import")
		return nil
	}

	download := !opts.SkipAssets
	if rule, err := p.rules.Get(ext.Rule); err == nil {
		download = download && rule.DownloadCover
	} else {
		download = false
	}

	start := time.Now()
	props := p.materializer.Materialize(ctx, ext.Properties, download)
	p.metrics.RecordStage(monitoring.StageMaterialize, time.Since(start), nil)

	start = time.Now()
	if targetID == "" {
		block, err := p.destination(ctx, ext, props)
		if err != nil {
			p.metrics.RecordStage(monitoring.StageImport, time.Since(start), err)
			return err
		}
		targetID = block.ID
	}

	tagID, err := p.importer.ApplyTag(ctx, targetID, models.TagApplication{Name: ext.Tag, Properties: props})
	p.metrics.RecordStage(monitoring.StageImport, time.Since(start), err)
	if err != nil {
		return err
	}

	ext.Properties = props
	ext.TargetID = targetID
	ext.TagID = tagID

	logger.Info().
		Str("tag", ext.Tag).
		Str("target", targetID).
		Int("properties", len(props)).
		Msg("Imported")
	return nil
}

// destination creates a block under today's journal that links the URL
func (p *Pipeline) destination(ctx context.Context, ext *models.Extraction, props []models.MetadataProperty) (*host.Block, error) {
	journal, err := p.host.JournalBlock(ctx, p.now())
	if err != nil {
		return nil, engine.NewEngineError(engine.ErrCodeSchemaSync, "failed to resolve journal block", err)
	}

	title := models.Summarize(props).Title
	if title == "" {
		title = ext.Base.Title
	}
	block, err := p.host.CreateBlock(ctx, journal.ID, host.LinkBlock(title, ext.CleanURL))
	if err != nil {
		return nil, engine.NewEngineError(engine.ErrCodeSchemaSync, "failed to create block", err).WithDetail("parent", journal.ID)
	}
	return block, nil
}

func (p *Pipeline) finish(ctx context.Context, ext *models.Extraction, err error) {
	ex := reqctx.FromContext(ctx)
	rule := "none"
	status := StatusOK
	switch {
	case ext != nil && ext.ScriptError != "":
		status = StatusScriptError
	case err != nil:
		status = StatusError
	}
	if ext != nil {
		rule = ext.Rule
		ext.DurationMs = ex.Elapsed().Milliseconds()
	}
	p.metrics.RecordExtraction(rule, status)

	event := reqctx.Logger(ctx).Debug()
	if err != nil {
		event = reqctx.Logger(ctx).Warn().Err(err)
	}
	event.Str("url", ex.URL).Str("rule", rule).Str("status", status).Dur("elapsed", ex.Elapsed()).Msg("Extraction finished")
}
