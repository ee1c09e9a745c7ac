// Package reqctx carries the identity of one extraction through the pipeline.
package reqctx

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type key int

const extractionKey key = 0

// Extraction identifies one run of the pipeline
type Extraction struct {
	ID        string
	URL       string
	StartTime time.Time
}

// Elapsed returns the time since the extraction started
func (e *Extraction) Elapsed() time.Duration {
	return time.Since(e.StartTime)
}

// WithExtraction starts a new extraction for rawURL. The returned context
// also carries a zerolog logger tagged with the extraction id.
func WithExtraction(ctx context.Context, rawURL string) context.Context {
	ex := &Extraction{
		ID:        uuid.NewString(),
		URL:       rawURL,
		StartTime: time.Now(),
	}
	ctx = context.WithValue(ctx, extractionKey, ex)
	logger := log.With().Str("extraction", ex.ID).Logger()
	return logger.WithContext(ctx)
}

// FromContext returns the current extraction, or a placeholder when none was started
func FromContext(ctx context.Context) *Extraction {
	if ex, ok := ctx.Value(extractionKey).(*Extraction); ok {
		return ex
	}
	return &Extraction{
		ID:        "unknown",
		StartTime: time.Now(),
	}
}

// Logger returns the extraction's logger, falling back to the global one
func Logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}

// RequestError tags an error with the extraction it belongs to
type RequestError struct {
	RequestID string
	Err       error
}

// Error implements the error interface
func (e *RequestError) Error() string {
	return fmt.Sprintf("[%s] %v", e.RequestID, e.Err)
}

// Unwrap returns the underlying error
func (e *RequestError) Unwrap() error {
	return e.Err
}

// NewRequestError wraps err with the extraction id from ctx; nil stays nil
func NewRequestError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	return &RequestError{
		RequestID: FromContext(ctx).ID,
		Err:       err,
	}
}
