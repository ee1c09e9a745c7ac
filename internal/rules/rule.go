// Package rules holds the extraction rule set and the URL matcher.
package rules

import (
	"fmt"
	"strings"
)

// GenericID is the id of the catch-all rule
const GenericID = "generic"

// CatchAllPattern matches every URL
const CatchAllPattern = ".*"

// Rule pairs a URL pattern with the tag and script used for matching pages
type Rule struct {
	ID            string   `json:"id" yaml:"id"`
	Name          string   `json:"name" yaml:"name"`
	URLPattern    string   `json:"urlPattern" yaml:"urlPattern"`
	TagName       string   `json:"tagName" yaml:"tagName"`
	Script        []string `json:"script" yaml:"script"`
	ContentScript []string `json:"contentScript,omitempty" yaml:"contentScript,omitempty"`
	Enabled       bool     `json:"enabled" yaml:"enabled"`
	DownloadCover bool     `json:"downloadCover" yaml:"downloadCover"`
}

// IsCatchAll reports whether the rule is the generic rule
func (r *Rule) IsCatchAll() bool {
	return r.URLPattern == CatchAllPattern
}

// Source returns the script body joined into one string
func (r *Rule) Source() string {
	return strings.Join(r.Script, "\n")
}

// ContentSource returns the content script body, or "" when none is set
func (r *Rule) ContentSource() string {
	return strings.Join(r.ContentScript, "\n")
}

// Validate checks the fields every rule needs
func (r *Rule) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("rule id is required")
	}
	if strings.TrimSpace(r.URLPattern) == "" {
		return fmt.Errorf("rule %s: urlPattern is required", r.ID)
	}
	if strings.TrimSpace(r.TagName) == "" {
		return fmt.Errorf("rule %s: tagName is required", r.ID)
	}
	if len(r.Script) == 0 {
		return fmt.Errorf("rule %s: script is empty", r.ID)
	}
	return nil
}
