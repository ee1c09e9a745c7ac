// Package memory is an in-process host used by tests and dry runs
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/law-makers/linkmeta/internal/host"
	"github.com/law-makers/linkmeta/pkg/models"
)

type tag struct {
	schema models.TagSchema
	values map[string][]models.MetadataProperty
}

// Asset is an uploaded binary
type Asset struct {
	Data        []byte
	ContentType string
}

// Host keeps everything in maps guarded by one mutex
type Host struct {
	mu       sync.RWMutex
	blocks   map[string]*host.Block
	tags     map[string]*tag
	tagIDs   map[string]string
	journal  map[string]string
	assets   map[string]Asset
	failNext map[string]error
}

// New creates an empty memory host
func New() *Host {
	return &Host{
		blocks:   make(map[string]*host.Block),
		tags:     make(map[string]*tag),
		tagIDs:   make(map[string]string),
		journal:  make(map[string]string),
		assets:   make(map[string]Asset),
		failNext: make(map[string]error),
	}
}

// FailNext makes the next call of the named operation return err
func (h *Host) FailNext(op string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failNext[op] = err
}

// injected returns and clears a pending failure (lock held)
func (h *Host) injected(op string) error {
	if err, ok := h.failNext[op]; ok {
		delete(h.failNext, op)
		return err
	}
	return nil
}

// GetBlock returns a copy of the block
func (h *Host) GetBlock(_ context.Context, id string) (*host.Block, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	b, ok := h.blocks[id]
	if !ok {
		return nil, fmt.Errorf("block %s: %w", id, host.ErrNotFound)
	}
	return cloneBlock(b), nil
}

// CreateBlock stores a new block
func (h *Host) CreateBlock(_ context.Context, parentID string, content []host.Fragment) (*host.Block, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	b := &host.Block{
		ID:        uuid.NewString(),
		ParentID:  parentID,
		Content:   append([]host.Fragment(nil), content...),
		CreatedAt: time.Now(),
	}
	h.blocks[b.ID] = b
	return cloneBlock(b), nil
}

// JournalBlock returns the day's journal block, creating it on first use
func (h *Host) JournalBlock(ctx context.Context, date time.Time) (*host.Block, error) {
	key := host.JournalDate(date)

	h.mu.Lock()
	if id, ok := h.journal[key]; ok {
		b := cloneBlock(h.blocks[id])
		h.mu.Unlock()
		return b, nil
	}
	b := &host.Block{
		ID:        uuid.NewString(),
		Content:   host.TextBlock(key),
		CreatedAt: time.Now(),
	}
	h.blocks[b.ID] = b
	h.journal[key] = b.ID
	h.mu.Unlock()
	return cloneBlock(b), nil
}

// InsertTag attaches the tag and records values
func (h *Host) InsertTag(_ context.Context, blockID, tagName string, props []models.MetadataProperty) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.injected("InsertTag"); err != nil {
		return "", err
	}
	if _, ok := h.blocks[blockID]; !ok {
		return "", fmt.Errorf("block %s: %w", blockID, host.ErrNotFound)
	}

	t := h.tagByName(tagName)
	if t == nil {
		id := uuid.NewString()
		t = &tag{
			schema: models.TagSchema{TagID: id, Name: tagName},
			values: make(map[string][]models.MetadataProperty),
		}
		h.tags[id] = t
		h.tagIDs[tagName] = id
	}
	t.values[blockID] = append([]models.MetadataProperty(nil), props...)
	return t.schema.TagID, nil
}

// GetTagSchema returns a copy of the schema
func (h *Host) GetTagSchema(_ context.Context, tagName string) (*models.TagSchema, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	t := h.tagByName(tagName)
	if t == nil {
		return nil, fmt.Errorf("tag %s: %w", tagName, host.ErrNotFound)
	}
	return cloneSchema(&t.schema), nil
}

// UpdateTagSchema upserts definitions when version is current
func (h *Host) UpdateTagSchema(_ context.Context, tagID string, version int64, defs []models.PropertyDefinition) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.injected("UpdateTagSchema"); err != nil {
		return err
	}
	t, ok := h.tags[tagID]
	if !ok {
		return fmt.Errorf("tag %s: %w", tagID, host.ErrNotFound)
	}
	if t.schema.Version != version {
		return host.ErrSchemaConflict
	}
	t.schema.Properties = host.UpsertDefinitions(t.schema.Properties, defs)
	t.schema.Version++
	return nil
}

// TagValues returns the values stored for the tag on the block
func (h *Host) TagValues(_ context.Context, blockID, tagName string) ([]models.MetadataProperty, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	t := h.tagByName(tagName)
	if t == nil {
		return nil, fmt.Errorf("tag %s: %w", tagName, host.ErrNotFound)
	}
	values, ok := t.values[blockID]
	if !ok {
		return nil, fmt.Errorf("tag %s on block %s: %w", tagName, blockID, host.ErrNotFound)
	}
	return append([]models.MetadataProperty(nil), values...), nil
}

// ListTags returns all schemas ordered by name
func (h *Host) ListTags(_ context.Context) ([]*models.TagSchema, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*models.TagSchema, 0, len(h.tags))
	for _, t := range h.tags {
		out = append(out, cloneSchema(&t.schema))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Upload keeps the binary and returns a mem:// reference
func (h *Host) Upload(_ context.Context, data []byte, contentType string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.injected("Upload"); err != nil {
		return "", err
	}
	ref := "mem://assets/" + uuid.NewString()
	h.assets[ref] = Asset{Data: append([]byte(nil), data...), ContentType: contentType}
	return ref, nil
}

// Asset returns an uploaded binary by reference
func (h *Host) Asset(ref string) (Asset, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	a, ok := h.assets[ref]
	return a, ok
}

// Close is a no-op
func (h *Host) Close() error {
	return nil
}

func (h *Host) tagByName(name string) *tag {
	id, ok := h.tagIDs[name]
	if !ok {
		return nil
	}
	return h.tags[id]
}

func cloneBlock(b *host.Block) *host.Block {
	c := *b
	c.Content = append([]host.Fragment(nil), b.Content...)
	return &c
}

func cloneSchema(s *models.TagSchema) *models.TagSchema {
	c := *s
	c.Properties = make([]models.PropertyDefinition, len(s.Properties))
	for i, d := range s.Properties {
		c.Properties[i] = models.PropertyDefinition{Name: d.Name, Type: d.Type, TypeArgs: cloneArgs(d.TypeArgs)}
	}
	return &c
}

func cloneArgs(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		if k == "choices" {
			v = models.ChoicesFrom(v)
		}
		out[k] = v
	}
	return out
}

var _ host.Host = (*Host)(nil)
