package host

import (
	"testing"

	"github.com/law-makers/linkmeta/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestFindURL(t *testing.T) {
	tests := []struct {
		name    string
		content []Fragment
		want    string
	}{
		{"link fragment wins", []Fragment{
			{Type: FragmentText, Value: "text https://a.example/x"},
			{Type: FragmentLink, Value: "b", Link: "https://b.example/"},
		}, "https://b.example/"},
		{"link value fallback", []Fragment{{Type: FragmentLink, Value: "https://c.example/"}}, "https://c.example/"},
		{"first text match", []Fragment{
			{Type: FragmentText, Value: "read http://a.example/1 and https://a.example/2"},
		}, "http://a.example/1"},
		{"stops at whitespace", []Fragment{{Type: FragmentText, Value: "https://x.example/p?q=1\tnext"}}, "https://x.example/p?q=1"},
		{"none", []Fragment{{Type: FragmentText, Value: "no links here"}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FindURL(&Block{Content: tt.content}))
		})
	}
	assert.Equal(t, "", FindURL(nil))
}

func TestUpsertDefinitions(t *testing.T) {
	existing := []models.PropertyDefinition{
		{Name: "A", Type: models.PropText},
		{Name: "B", Type: models.PropNumber},
	}
	out := UpsertDefinitions(existing, []models.PropertyDefinition{
		{Name: "B", Type: models.PropNumber, TypeArgs: map[string]any{"x": 1}},
		{Name: "C", Type: models.PropBoolean},
	})

	assert.Len(t, out, 3)
	assert.Equal(t, "A", out[0].Name)
	assert.Equal(t, 1, out[1].TypeArgs["x"])
	assert.Equal(t, "C", out[2].Name)
	assert.Nil(t, existing[1].TypeArgs, "input must not be modified")
}
