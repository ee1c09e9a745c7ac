// internal/engine/batch/runner.go
package batch

import (
	"context"
	"strings"

	"github.com/law-makers/linkmeta/pkg/models"
	"github.com/rs/zerolog/log"
)

// ExtractFunc runs one URL through the pipeline
type ExtractFunc func(ctx context.Context, url string) (*models.Extraction, error)

// ProgressFunc is called after every URL
type ProgressFunc func(done, total int, res models.BatchResult)

// Runner processes a list of URLs one at a time
type Runner struct {
	extract  ExtractFunc
	progress ProgressFunc
}

// New creates a batch Runner
func New(fn ExtractFunc) *Runner {
	return &Runner{extract: fn}
}

// OnProgress registers a callback invoked after each URL
func (r *Runner) OnProgress(fn ProgressFunc) *Runner {
	r.progress = fn
	return r
}

// Run extracts every URL sequentially, visiting domains round-robin.
// Results are returned in input order; a failed URL carries its error and
// does not stop the batch. Once ctx is done the remaining URLs are marked
// with the context error.
func (r *Runner) Run(ctx context.Context, urls []string) []models.BatchResult {
	results := make([]models.BatchResult, len(urls))
	done := 0

	for _, i := range Interleave(urls) {
		target := strings.TrimSpace(urls[i])
		res := models.BatchResult{URL: target}

		if err := ctx.Err(); err != nil {
			res.Error = err.Error()
		} else {
			ext, err := r.extract(ctx, target)
			res.Extraction = ext
			if err != nil {
				res.Error = err.Error()
				log.Warn().Err(err).Str("url", target).Msg("Batch item failed")
			}
		}

		results[i] = res
		done++
		if r.progress != nil {
			r.progress(done, len(urls), res)
		}
	}

	return results
}

// Failed counts results that carry an error
func Failed(results []models.BatchResult) int {
	n := 0
	for _, res := range results {
		if res.Error != "" {
			n++
		}
	}
	return n
}

// ReadList parses a URL list: one per line, blank lines and # comments skipped
func ReadList(data string) []string {
	var urls []string
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls
}
