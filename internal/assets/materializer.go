// Package assets turns remote image URLs in extracted properties into
// references to host-managed copies.
package assets

import (
	"context"
	"strings"
	"time"

	"github.com/law-makers/linkmeta/internal/downloader"
	"github.com/law-makers/linkmeta/internal/engine"
	"github.com/law-makers/linkmeta/internal/host"
	"github.com/law-makers/linkmeta/internal/monitoring"
	"github.com/law-makers/linkmeta/pkg/models"
	"github.com/rs/zerolog/log"
)

// Fetcher downloads a remote binary
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*downloader.Blob, error)
}

// NamedUploader is implemented by stores that can use a file name hint
type NamedUploader interface {
	UploadNamed(ctx context.Context, name string, data []byte, contentType string) (string, error)
}

// Materializer downloads image properties and re-uploads them
type Materializer struct {
	fetcher Fetcher
	store   host.AssetStore
	metrics *monitoring.Metrics
}

// NewMaterializer creates a Materializer
func NewMaterializer(f Fetcher, store host.AssetStore) *Materializer {
	return &Materializer{fetcher: f, store: store}
}

// WithMetrics records per-asset outcomes
func (m *Materializer) WithMetrics(metrics *monitoring.Metrics) *Materializer {
	m.metrics = metrics
	return m
}

// Qualifies reports whether a property holds a remote image to materialize
func Qualifies(p models.MetadataProperty) bool {
	if p.SubType() != models.SubTypeImage {
		return false
	}
	s, ok := p.Value.(string)
	return ok && strings.HasPrefix(s, "http")
}

// Materialize returns props with qualifying image values replaced by asset
// references. Properties are processed one at a time in order; a failure
// leaves that property's remote URL in place. The input slice is never
// modified and is returned as is when downloadEnabled is false.
func (m *Materializer) Materialize(ctx context.Context, props []models.MetadataProperty, downloadEnabled bool) []models.MetadataProperty {
	if !downloadEnabled {
		return props
	}

	out := make([]models.MetadataProperty, len(props))
	copy(out, props)

	for i, p := range out {
		if !Qualifies(p) {
			continue
		}
		ref, err := m.materialize(ctx, p)
		if err != nil {
			log.Warn().
				Err(err).
				Str("property", p.Name).
				Str("url", p.Value.(string)).
				Msg("Asset materialization failed, keeping remote URL")
			m.metrics.RecordAsset(monitoring.AssetFailed)
			continue
		}
		out[i].Value = ref
		m.metrics.RecordAsset(monitoring.AssetUploaded)
	}
	return out
}

func (m *Materializer) materialize(ctx context.Context, p models.MetadataProperty) (string, error) {
	start := time.Now()
	remote := p.Value.(string)

	if m.fetcher == nil || m.store == nil {
		return "", engine.NewEngineError(engine.ErrCodeAsset, "asset storage not configured", nil)
	}

	blob, err := m.fetcher.Fetch(ctx, remote)
	if err != nil {
		return "", engine.NewEngineError(engine.ErrCodeAsset, "download failed", err).WithDetail("url", remote)
	}
	contentType := blob.ContentType
	if contentType == "" {
		contentType = downloader.DefaultContentType
	}

	var ref string
	if named, ok := m.store.(NamedUploader); ok {
		ref, err = named.UploadNamed(ctx, blob.Filename, blob.Data, contentType)
	} else {
		ref, err = m.store.Upload(ctx, blob.Data, contentType)
	}
	if err != nil {
		return "", engine.NewEngineError(engine.ErrCodeAsset, "upload failed", err).WithDetail("url", remote)
	}

	log.Debug().
		Str("property", p.Name).
		Str("url", remote).
		Str("ref", ref).
		Dur("duration", time.Since(start)).
		Msg("Asset materialized")
	return ref, nil
}
