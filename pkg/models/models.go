package models

import (
	"time"

	"github.com/PuerkitoBio/goquery"
)

// PropType enumerates the host property kinds a rule script can emit
type PropType int

const (
	PropJSON        PropType = 0
	PropText        PropType = 1
	PropBlockRefs   PropType = 2
	PropNumber      PropType = 3
	PropBoolean     PropType = 4
	PropDateTime    PropType = 5
	PropTextChoices PropType = 6
)

// PropTypeNames maps the names exposed to rule scripts onto PropType values
var PropTypeNames = map[string]PropType{
	"JSON":        PropJSON,
	"Text":        PropText,
	"BlockRefs":   PropBlockRefs,
	"Number":      PropNumber,
	"Boolean":     PropBoolean,
	"DateTime":    PropDateTime,
	"TextChoices": PropTextChoices,
}

// String returns the script-facing name of the type
func (t PropType) String() string {
	for name, v := range PropTypeNames {
		if v == t {
			return name
		}
	}
	return "Unknown"
}

// Well-known typeArgs.subType values
const (
	SubTypeImage    = "image"
	SubTypeLink     = "link"
	SubTypeDateTime = "datetime"
	SubTypeMulti    = "multi"
)

// MetadataProperty is one typed key/value produced by a rule script
type MetadataProperty struct {
	Name     string         `json:"name" yaml:"name"`
	Type     PropType       `json:"type" yaml:"type"`
	Value    any            `json:"value,omitempty" yaml:"value,omitempty"`
	TypeArgs map[string]any `json:"typeArgs,omitempty" yaml:"typeArgs,omitempty"`
}

// SubType returns typeArgs.subType or "" when unset
func (p MetadataProperty) SubType() string {
	if p.TypeArgs == nil {
		return ""
	}
	s, _ := p.TypeArgs["subType"].(string)
	return s
}

// TagApplication is the transient input of the schema-syncing importer
type TagApplication struct {
	Name       string             `json:"name"`
	Properties []MetadataProperty `json:"properties"`
}

// Choice is one allowed value of a TextChoices property definition.
// Extra holds per-choice metadata (colors, icons) the host attached; it is
// encoded as top-level keys next to n and v, the way the host stores it.
type Choice struct {
	N     string         `json:"n"`
	V     string         `json:"v"`
	Extra map[string]any `json:"-"`
}

// PropertyDefinition is one entry of a tag schema
type PropertyDefinition struct {
	Name     string         `json:"name"`
	Type     PropType       `json:"type"`
	TypeArgs map[string]any `json:"typeArgs,omitempty"`
}

// Choices returns typeArgs.choices decoded as Choice values
func (d PropertyDefinition) Choices() []Choice {
	if d.TypeArgs == nil {
		return nil
	}
	return ChoicesFrom(d.TypeArgs["choices"])
}

// TagSchema is the property-definition list attached to a tag entity
type TagSchema struct {
	TagID      string               `json:"tag_id"`
	Name       string               `json:"name"`
	Version    int64                `json:"version"`
	Properties []PropertyDefinition `json:"properties"`
}

// Definition returns the definition with the given name, if present
func (s *TagSchema) Definition(name string) (PropertyDefinition, bool) {
	if s == nil {
		return PropertyDefinition{}, false
	}
	for _, d := range s.Properties {
		if d.Name == name {
			return d, true
		}
	}
	return PropertyDefinition{}, false
}

// BaseMeta is the generic title/cover/description computed from standard meta tags
type BaseMeta struct {
	Title       string `json:"title"`
	Thumbnail   string `json:"thumbnail"`
	Description string `json:"description"`
}

// FetchMode selects the document retrieval channel
type FetchMode string

const (
	ModeStatic  FetchMode = "static"
	ModeBrowser FetchMode = "browser"
)

// Page is a fetched and parsed document plus its base metadata
type Page struct {
	URL          string            `json:"url"`
	FinalURL     string            `json:"final_url"`
	StatusCode   int               `json:"status_code"`
	HTML         string            `json:"-"`
	Document     *goquery.Document `json:"-"`
	Base         BaseMeta          `json:"base"`
	Mode         FetchMode         `json:"mode"`
	FetchedAt    time.Time         `json:"fetched_at"`
	ResponseTime int64             `json:"response_time_ms"`
}

// Summary is the generic view of an extraction used for display
type Summary struct {
	Title string `json:"title,omitempty"`
	Cover string `json:"cover,omitempty"`
	Link  string `json:"link,omitempty"`
}

// Summarize picks the first text property as title and the first
// image/link sub-typed properties as cover and link
func Summarize(props []MetadataProperty) Summary {
	var s Summary
	for _, p := range props {
		str, _ := p.Value.(string)
		switch p.SubType() {
		case SubTypeImage:
			if s.Cover == "" {
				s.Cover = str
			}
		case SubTypeLink:
			if s.Link == "" {
				s.Link = str
			}
		case "":
			if s.Title == "" && p.Type == PropText && str != "" {
				s.Title = str
			}
		}
	}
	return s
}

// Extraction is the outcome of running one URL through the pipeline
type Extraction struct {
	ID          string             `json:"id"`
	URL         string             `json:"url"`
	CleanURL    string             `json:"clean_url"`
	Rule        string             `json:"rule"`
	Tag         string             `json:"tag"`
	Mode        FetchMode          `json:"mode"`
	StatusCode  int                `json:"status_code,omitempty"`
	Base        BaseMeta           `json:"base"`
	Properties  []MetadataProperty `json:"properties"`
	ScriptError string             `json:"script_error,omitempty"`
	TargetID    string             `json:"target_id,omitempty"`
	TagID       string             `json:"tag_id,omitempty"`
	DurationMs  int64              `json:"duration_ms"`
}

// BatchResult is one line of a batch run
type BatchResult struct {
	URL        string      `json:"url"`
	Extraction *Extraction `json:"extraction,omitempty"`
	Error      string      `json:"error,omitempty"`
}
