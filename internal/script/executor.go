// Package script runs rule scripts against a parsed document in a goja sandbox.
package script

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/law-makers/linkmeta/internal/engine"
	"github.com/law-makers/linkmeta/internal/engine/metadata"
	"github.com/law-makers/linkmeta/internal/rules"
	"github.com/law-makers/linkmeta/internal/utils/output"
	"github.com/law-makers/linkmeta/pkg/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultTimeout bounds a single script invocation
const DefaultTimeout = 5 * time.Second

// params is the fixed, ordered binding surface every script body sees
const params = "document, url, PropType, cleanUrl, baseMeta, htmlToText"

var awaitPattern = regexp.MustCompile(`\bawait\b`)

// Executor runs rule scripts. Each call gets a fresh runtime, so nothing
// persists between invocations.
type Executor struct {
	Timeout time.Duration

	// HTMLToText backs the htmlToText binding; nil leaves it undefined
	HTMLToText func(fragment, baseURL string) (string, error)
}

// New creates an Executor with the Markdown converter as htmlToText
func New(timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Executor{
		Timeout:    timeout,
		HTMLToText: output.HTMLToMarkdown,
	}
}

// Run executes the rule's extraction script against page. When the script
// throws, times out or returns something other than an array, the returned
// slice is empty (never nil) and the error carries SCRIPT_ERROR.
func (e *Executor) Run(ctx context.Context, r *rules.Rule, page *models.Page, cleanURL string) ([]models.MetadataProperty, error) {
	empty := []models.MetadataProperty{}

	result, err := e.call(ctx, r.ID, r.Source(), page, cleanURL)
	if err != nil {
		log.Warn().Err(err).Str("rule", r.Name).Str("url", cleanURL).Msg("Rule script failed")
		return empty, err
	}

	arr, ok := result.(*goja.Object)
	if !ok || arr.ClassName() != "Array" {
		err := scriptError(r.ID, "script must return an array", nil).WithDetail("returned", describe(result))
		log.Warn().Err(err).Str("rule", r.Name).Str("url", cleanURL).Msg("Rule script returned no data")
		return empty, err
	}

	props := decodeProperties(arr, r.ID)
	log.Debug().Str("rule", r.ID).Int("properties", len(props)).Msg("Script completed")
	return props, nil
}

// RunContent executes the rule's content script and returns its string result
func (e *Executor) RunContent(ctx context.Context, r *rules.Rule, page *models.Page, cleanURL string) (string, error) {
	src := r.ContentSource()
	if strings.TrimSpace(src) == "" {
		return "", scriptError(r.ID, "rule has no content script", nil)
	}

	result, err := e.call(ctx, r.ID, src, page, cleanURL)
	if err != nil {
		return "", err
	}
	if result == nil || goja.IsUndefined(result) || goja.IsNull(result) {
		return "", nil
	}
	return result.String(), nil
}

func (e *Executor) call(ctx context.Context, ruleID, body string, page *models.Page, cleanURL string) (goja.Value, error) {
	if page == nil || page.Document == nil {
		return nil, scriptError(ruleID, "no document to run against", nil)
	}

	async := awaitPattern.MatchString(body)
	src := "(function(" + params + ") {\n" + body + "\n})"
	if async {
		src = "(async function(" + params + ") {\n" + body + "\n})"
	}

	prog, err := goja.Compile(ruleID+".js", src, false)
	if err != nil {
		return nil, scriptError(ruleID, "script does not compile", err)
	}

	vm := goja.New()
	fnVal, err := vm.RunProgram(prog)
	if err != nil {
		return nil, scriptError(ruleID, "script does not compile", err)
	}
	fn, ok := goja.AssertFunction(fnVal)
	if !ok {
		return nil, scriptError(ruleID, "script is not a function body", nil)
	}

	base := page.FinalURL
	if base == "" {
		base = page.URL
	}
	bindConsole(vm, ruleID)

	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(ctx.Err())
	})
	defer stop()

	result, err := fn(goja.Undefined(),
		newDOM(vm, page.Document, base).document(),
		vm.ToValue(cleanURL),
		propTypes(vm),
		vm.ToValue(metadata.CleanURL),
		baseMeta(vm, page.Base),
		e.htmlToText(vm, base),
	)
	if err != nil {
		return nil, e.runError(ctx, ruleID, err)
	}

	if async {
		p, ok := result.Export().(*goja.Promise)
		if !ok {
			return result, nil
		}
		switch p.State() {
		case goja.PromiseStateFulfilled:
			return p.Result(), nil
		case goja.PromiseStateRejected:
			return nil, scriptError(ruleID, "script threw", errors.New(describeError(p.Result())))
		default:
			return nil, scriptError(ruleID, "script did not settle", nil)
		}
	}
	return result, nil
}

func (e *Executor) runError(ctx context.Context, ruleID string, err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		cause := ctx.Err()
		if cause == nil {
			cause = err
		}
		return scriptError(ruleID, "script interrupted", cause).WithDetail("timeout", e.Timeout.String())
	}

	var exc *goja.Exception
	if errors.As(err, &exc) {
		return scriptError(ruleID, "script threw", errors.New(describeError(exc.Value())))
	}
	return scriptError(ruleID, "script failed", err)
}

func (e *Executor) htmlToText(vm *goja.Runtime, base string) goja.Value {
	if e.HTMLToText == nil {
		return goja.Undefined()
	}
	return vm.ToValue(func(fragment string) (string, error) {
		return e.HTMLToText(fragment, base)
	})
}

func propTypes(vm *goja.Runtime) goja.Value {
	obj := vm.NewObject()
	for name, v := range models.PropTypeNames {
		_ = obj.Set(name, int(v))
	}
	return freeze(vm, obj)
}

func baseMeta(vm *goja.Runtime, b models.BaseMeta) goja.Value {
	obj := vm.NewObject()
	_ = obj.Set("title", b.Title)
	_ = obj.Set("thumbnail", b.Thumbnail)
	_ = obj.Set("description", b.Description)
	return freeze(vm, obj)
}

func freeze(vm *goja.Runtime, obj *goja.Object) *goja.Object {
	if f, ok := goja.AssertFunction(vm.Get("Object").ToObject(vm).Get("freeze")); ok {
		_, _ = f(goja.Undefined(), obj)
	}
	return obj
}

func bindConsole(vm *goja.Runtime, ruleID string) {
	logAt := func(level zerolog.Level) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, a := range call.Arguments {
				parts[i] = a.String()
			}
			log.WithLevel(level).Str("rule", ruleID).Msg(strings.Join(parts, " "))
			return goja.Undefined()
		}
	}

	console := vm.NewObject()
	_ = console.Set("log", logAt(zerolog.DebugLevel))
	_ = console.Set("debug", logAt(zerolog.DebugLevel))
	_ = console.Set("info", logAt(zerolog.InfoLevel))
	_ = console.Set("warn", logAt(zerolog.WarnLevel))
	_ = console.Set("error", logAt(zerolog.ErrorLevel))
	_ = vm.Set("console", console)
}

func scriptError(ruleID, msg string, err error) *engine.EngineError {
	return engine.NewEngineError(engine.ErrCodeScript, msg, err).WithDetail("rule", ruleID)
}

func describe(v goja.Value) string {
	switch {
	case v == nil || goja.IsUndefined(v):
		return "undefined"
	case goja.IsNull(v):
		return "null"
	}
	if o, ok := v.(*goja.Object); ok {
		return o.ClassName()
	}
	return v.ExportType().String()
}

func describeError(v goja.Value) string {
	if v == nil {
		return "unknown error"
	}
	return v.String()
}
