// Package host defines the capabilities the pipeline consumes from the
// note-taking application: block storage, tag schemas, assets and the journal.
package host

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/law-makers/linkmeta/pkg/models"
)

var (
	// ErrNotFound is returned when a block or tag does not exist
	ErrNotFound = errors.New("not found")

	// ErrSchemaConflict is returned by UpdateTagSchema when the schema
	// version moved on since it was read
	ErrSchemaConflict = errors.New("tag schema was modified concurrently")
)

// Fragment kinds
const (
	FragmentText = "t"
	FragmentLink = "l"
)

// Fragment is one run of block content
type Fragment struct {
	Type  string `json:"t"`
	Value string `json:"v"`
	Link  string `json:"l,omitempty"`
}

// Block is a unit of note content
type Block struct {
	ID        string     `json:"id"`
	ParentID  string     `json:"parent_id,omitempty"`
	Content   []Fragment `json:"content"`
	CreatedAt time.Time  `json:"created_at"`
}

// Text returns the concatenated fragment values
func (b *Block) Text() string {
	var sb strings.Builder
	for _, f := range b.Content {
		sb.WriteString(f.Value)
	}
	return sb.String()
}

// TextBlock builds content holding a single text fragment
func TextBlock(text string) []Fragment {
	return []Fragment{{Type: FragmentText, Value: text}}
}

// LinkBlock builds content holding a single link fragment
func LinkBlock(text, target string) []Fragment {
	if text == "" {
		text = target
	}
	return []Fragment{{Type: FragmentLink, Value: text, Link: target}}
}

var urlPattern = regexp.MustCompile(`https?://\S+`)

// FindURL returns the first link fragment's target, else the first
// http(s) URL found in a text fragment, else ""
func FindURL(b *Block) string {
	if b == nil {
		return ""
	}
	for _, f := range b.Content {
		if f.Type != FragmentLink {
			continue
		}
		if f.Link != "" {
			return f.Link
		}
		if f.Value != "" {
			return f.Value
		}
	}
	for _, f := range b.Content {
		if f.Type == FragmentText {
			if u := urlPattern.FindString(f.Value); u != "" {
				return u
			}
		}
	}
	return ""
}

// BlockStore reads and creates blocks
type BlockStore interface {
	GetBlock(ctx context.Context, id string) (*Block, error)
	CreateBlock(ctx context.Context, parentID string, content []Fragment) (*Block, error)
}

// SchemaStore owns tags, their property definitions and tag values on blocks
type SchemaStore interface {
	// InsertTag attaches tagName to the block with the given values,
	// creating the tag with an empty schema when it does not exist.
	InsertTag(ctx context.Context, blockID, tagName string, props []models.MetadataProperty) (string, error)

	// GetTagSchema returns the tag's definitions and current version
	GetTagSchema(ctx context.Context, tagName string) (*models.TagSchema, error)

	// UpdateTagSchema upserts definitions by name in one call. It fails with
	// ErrSchemaConflict unless version equals the stored version.
	UpdateTagSchema(ctx context.Context, tagID string, version int64, defs []models.PropertyDefinition) error

	// TagValues returns the values last inserted for tagName on the block
	TagValues(ctx context.Context, blockID, tagName string) ([]models.MetadataProperty, error)

	// ListTags returns every tag schema ordered by name
	ListTags(ctx context.Context) ([]*models.TagSchema, error)
}

// AssetStore keeps uploaded binaries and hands back an opaque reference
type AssetStore interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
}

// JournalStore resolves the daily note for a date, creating it if needed
type JournalStore interface {
	JournalBlock(ctx context.Context, date time.Time) (*Block, error)
}

// Host bundles every capability of a host implementation
type Host interface {
	BlockStore
	SchemaStore
	AssetStore
	JournalStore
	Close() error
}

// JournalDate formats the key of a journal day
func JournalDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// UpsertDefinitions merges defs into existing by name, replacing same-named
// entries in place and appending new ones in order
func UpsertDefinitions(existing, defs []models.PropertyDefinition) []models.PropertyDefinition {
	out := make([]models.PropertyDefinition, len(existing), len(existing)+len(defs))
	copy(out, existing)
	for _, d := range defs {
		replaced := false
		for i := range out {
			if out[i].Name == d.Name {
				out[i] = d
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, d)
		}
	}
	return out
}
