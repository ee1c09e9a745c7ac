package importer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/law-makers/linkmeta/pkg/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/unicode/norm"
)

// dateLayouts are tried in order when a DateTime value arrives as a string
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"2006/1/2",
	"2006-1-2",
	"2006-01",
	"2006-1",
	"2006",
}

var truthy = map[string]bool{"true": true, "yes": true, "1": true, "ok": true}

var leadingNumber = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

// FormatProperties normalizes values by declared type and fills the typeArgs
// the host expects. The input is not modified.
func FormatProperties(props []models.MetadataProperty) []models.MetadataProperty {
	out := make([]models.MetadataProperty, 0, len(props))
	for _, p := range props {
		out = append(out, formatProperty(p))
	}
	return out
}

func formatProperty(p models.MetadataProperty) models.MetadataProperty {
	f := models.MetadataProperty{
		Name:     p.Name,
		Type:     p.Type,
		Value:    normalizeValue(p.Type, p.Value),
		TypeArgs: copyArgs(p.TypeArgs),
	}

	switch p.Type {
	case models.PropTextChoices:
		values, _ := f.Value.([]string)
		choices := make([]models.Choice, 0, len(values))
		for _, v := range values {
			choices = append(choices, models.Choice{N: v, V: v})
		}
		if f.TypeArgs == nil {
			f.TypeArgs = map[string]any{}
		}
		f.TypeArgs["choices"] = choices
		f.TypeArgs["subType"] = models.SubTypeMulti

	case models.PropDateTime:
		if f.TypeArgs == nil {
			f.TypeArgs = map[string]any{}
		}
		if _, set := f.TypeArgs["subType"]; !set {
			f.TypeArgs["subType"] = models.SubTypeDateTime
		}
	}
	return f
}

func normalizeValue(t models.PropType, v any) any {
	switch t {
	case models.PropDateTime:
		return toTime(v)
	case models.PropNumber:
		return toNumber(v)
	case models.PropBoolean:
		return toBool(v)
	case models.PropTextChoices:
		return toChoices(v)
	}
	return v
}

// toTime parses strings and epoch milliseconds; unparsable strings are kept
func toTime(v any) any {
	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t
			}
		}
		log.Debug().Str("value", x).Msg("Unparsable DateTime value kept as text")
		return x
	case float64:
		return time.UnixMilli(int64(x)).UTC()
	case int64:
		return time.UnixMilli(x).UTC()
	case int:
		return time.UnixMilli(int64(x)).UTC()
	}
	return v
}

// toNumber parses the leading numeric part of a string, so "2008年" is 2008.
// Strings with no numeric prefix become nil.
func toNumber(v any) any {
	switch x := v.(type) {
	case string:
		m := leadingNumber.FindString(strings.TrimSpace(x))
		if m == "" {
			return nil
		}
		f, err := strconv.ParseFloat(m, 64)
		if err != nil {
			return nil
		}
		return f
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case float32:
		return float64(x)
	}
	return v
}

func toBool(v any) any {
	switch x := v.(type) {
	case string:
		return truthy[strings.ToLower(strings.TrimSpace(x))]
	case float64:
		return x != 0
	case int64:
		return x != 0
	case int:
		return x != 0
	case nil:
		return false
	}
	return v
}

// toChoices coerces a value to a list of distinct NFC-normalized names
func toChoices(v any) []string {
	var raw []string
	switch x := v.(type) {
	case nil:
	case string:
		raw = strings.Fields(x)
	case []string:
		raw = x
	case []any:
		for _, item := range x {
			if item != nil {
				raw = append(raw, fmt.Sprint(item))
			}
		}
	default:
		raw = []string{fmt.Sprint(x)}
	}

	out := make([]string, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, s := range raw {
		s = norm.NFC.String(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func copyArgs(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}
