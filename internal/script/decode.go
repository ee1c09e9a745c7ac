package script

import (
	"strconv"
	"strings"

	"github.com/dop251/goja"
	"github.com/law-makers/linkmeta/pkg/models"
	"github.com/rs/zerolog/log"
)

// decodeProperties converts a script's result array. Elements are only
// loosely checked: a missing type means Text and a missing value is kept as nil.
// Elements that are not objects or have no name are dropped.
func decodeProperties(arr *goja.Object, ruleID string) []models.MetadataProperty {
	n := int(arr.Get("length").ToInteger())
	props := make([]models.MetadataProperty, 0, n)
	for i := 0; i < n; i++ {
		var raw any
		if v := arr.Get(strconv.Itoa(i)); v != nil {
			raw = v.Export()
		}
		p, ok := decodeProperty(raw)
		if !ok {
			log.Debug().Str("rule", ruleID).Int("index", i).Msg("Dropping malformed property")
			continue
		}
		props = append(props, p)
	}
	return props
}

func decodeProperty(raw any) (models.MetadataProperty, bool) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return models.MetadataProperty{}, false
	}
	name, _ := m["name"].(string)
	name = strings.TrimSpace(name)
	if name == "" {
		return models.MetadataProperty{}, false
	}

	p := models.MetadataProperty{
		Name:  name,
		Type:  models.PropText,
		Value: m["value"],
	}
	switch t := m["type"].(type) {
	case int64:
		p.Type = models.PropType(t)
	case float64:
		p.Type = models.PropType(int(t))
	case string:
		if pt, ok := models.PropTypeNames[t]; ok {
			p.Type = pt
		}
	}
	if p.Type < models.PropJSON || p.Type > models.PropTextChoices {
		p.Type = models.PropText
	}
	if args, ok := m["typeArgs"].(map[string]interface{}); ok && len(args) > 0 {
		p.TypeArgs = args
	}
	return p, true
}
