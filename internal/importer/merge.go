package importer

import (
	"github.com/law-makers/linkmeta/pkg/models"
	"golang.org/x/text/unicode/norm"
)

// StageChanges compares formatted properties against the current schema and
// returns the definitions that must be written. Existing definitions never
// change type and existing choices are never dropped or reordered.
func StageChanges(schema *models.TagSchema, props []models.MetadataProperty) []models.PropertyDefinition {
	var staged []models.PropertyDefinition
	index := make(map[string]int)

	for _, p := range props {
		if p.Name == "" {
			continue
		}

		if i, ok := index[p.Name]; ok {
			if staged[i].Type == models.PropTextChoices && p.Type == models.PropTextChoices {
				if merged, grew := unionChoices(staged[i], p); grew {
					staged[i] = merged
				}
			}
			continue
		}

		existing, found := schema.Definition(p.Name)
		switch {
		case !found:
			index[p.Name] = len(staged)
			staged = append(staged, models.PropertyDefinition{
				Name:     p.Name,
				Type:     p.Type,
				TypeArgs: copyArgs(p.TypeArgs),
			})

		case existing.Type != p.Type:
			// retyping is never forced

		case existing.Type == models.PropTextChoices:
			if merged, grew := unionChoices(existing, p); grew {
				index[p.Name] = len(staged)
				staged = append(staged, merged)
			}
		}
	}
	return staged
}

// unionChoices appends p's choices missing from def, keeping def's entries
// and their metadata as they are
func unionChoices(def models.PropertyDefinition, p models.MetadataProperty) (models.PropertyDefinition, bool) {
	current := def.Choices()
	have := make(map[string]bool, len(current))
	for _, c := range current {
		have[norm.NFC.String(c.N)] = true
	}

	merged := current
	grew := false
	for _, c := range models.ChoicesFrom(p.TypeArgs["choices"]) {
		name := norm.NFC.String(c.N)
		if name == "" || have[name] {
			continue
		}
		have[name] = true
		merged = append(merged, models.Choice{N: name, V: name})
		grew = true
	}
	if !grew {
		return def, false
	}

	out := models.PropertyDefinition{Name: def.Name, Type: def.Type, TypeArgs: copyArgs(def.TypeArgs)}
	if out.TypeArgs == nil {
		out.TypeArgs = map[string]any{}
	}
	out.TypeArgs["choices"] = merged
	out.TypeArgs["subType"] = models.SubTypeMulti
	return out, true
}
