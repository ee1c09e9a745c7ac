// Package importer applies extracted properties to a host block as a tag and
// keeps the tag's schema in sync with what was applied.
package importer

import (
	"context"
	"errors"
	"strings"

	"github.com/law-makers/linkmeta/internal/engine"
	"github.com/law-makers/linkmeta/internal/host"
	"github.com/law-makers/linkmeta/internal/monitoring"
	"github.com/law-makers/linkmeta/internal/retry"
	"github.com/law-makers/linkmeta/pkg/models"
	"github.com/rs/zerolog/log"
)

// Importer writes tag applications through a SchemaStore
type Importer struct {
	schemas host.SchemaStore
	retry   retry.Config
	metrics *monitoring.Metrics
}

// New creates an Importer that retries schema conflicts with backoff
func New(schemas host.SchemaStore) *Importer {
	return &Importer{
		schemas: schemas,
		retry: retry.ConflictConfig(func(err error) bool {
			return errors.Is(err, host.ErrSchemaConflict)
		}),
	}
}

// WithRetry replaces the conflict retry policy
func (im *Importer) WithRetry(cfg retry.Config) *Importer {
	im.retry = cfg
	return im
}

// WithMetrics records schema writes and conflicts
func (im *Importer) WithMetrics(m *monitoring.Metrics) *Importer {
	im.metrics = m
	return im
}

// ApplyTag inserts the tag on targetID and merges any new property
// definitions or choices into the tag schema. It returns the tag id.
func (im *Importer) ApplyTag(ctx context.Context, targetID string, app models.TagApplication) (string, error) {
	name := strings.TrimSpace(app.Name)
	if name == "" {
		return "", engine.NewEngineError(engine.ErrCodeValidation, "tag name is required", nil)
	}
	if targetID == "" {
		return "", engine.NewEngineError(engine.ErrCodeValidation, "target block is required", nil)
	}

	formatted := FormatProperties(app.Properties)

	tagID, err := im.schemas.InsertTag(ctx, targetID, name, formatted)
	if err != nil {
		return "", syncError("tag insert failed", err, name, targetID)
	}

	staged := 0
	err = retry.WithRetry(ctx, im.retry, func() error {
		schema, err := im.schemas.GetTagSchema(ctx, name)
		if err != nil {
			return err
		}
		changes := StageChanges(schema, formatted)
		staged = len(changes)
		if staged == 0 {
			return nil
		}
		err = im.schemas.UpdateTagSchema(ctx, schema.TagID, schema.Version, changes)
		if errors.Is(err, host.ErrSchemaConflict) {
			im.metrics.RecordSchemaConflict()
			log.Debug().Str("tag", name).Int64("version", schema.Version).Msg("Tag schema changed underneath, re-merging")
		}
		return err
	})
	if err != nil {
		return tagID, syncError("schema update failed", err, name, targetID)
	}

	if staged > 0 {
		im.metrics.RecordSchemaUpdate()
	}
	log.Debug().
		Str("tag", name).
		Str("tag_id", tagID).
		Str("target", targetID).
		Int("properties", len(formatted)).
		Int("schema_changes", staged).
		Msg("Tag applied")

	return tagID, nil
}

// Plan returns the schema changes ApplyTag would make, without writing
func (im *Importer) Plan(ctx context.Context, app models.TagApplication) ([]models.PropertyDefinition, error) {
	formatted := FormatProperties(app.Properties)
	schema, err := im.schemas.GetTagSchema(ctx, strings.TrimSpace(app.Name))
	if errors.Is(err, host.ErrNotFound) {
		schema = &models.TagSchema{Name: app.Name}
	} else if err != nil {
		return nil, syncError("schema read failed", err, app.Name, "")
	}
	return StageChanges(schema, formatted), nil
}

func syncError(msg string, err error, tag, target string) error {
	e := engine.NewEngineError(engine.ErrCodeSchemaSync, msg, err).WithDetail("tag", tag)
	if target != "" {
		e.WithDetail("target", target)
	}
	if errors.Is(err, host.ErrSchemaConflict) {
		e.WithRetry()
	}
	return e
}
