// Package hosttest holds behaviour checks every host implementation must pass
package hosttest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/law-makers/linkmeta/internal/host"
	"github.com/law-makers/linkmeta/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises newHost against the host contract
func Run(t *testing.T, newHost func(t *testing.T) host.Host) {
	t.Run("Blocks", func(t *testing.T) { testBlocks(t, newHost(t)) })
	t.Run("Journal", func(t *testing.T) { testJournal(t, newHost(t)) })
	t.Run("InsertTag", func(t *testing.T) { testInsertTag(t, newHost(t)) })
	t.Run("SchemaVersioning", func(t *testing.T) { testSchemaVersioning(t, newHost(t)) })
	t.Run("ConcurrentWriters", func(t *testing.T) { testConcurrentWriters(t, newHost(t)) })
	t.Run("Upload", func(t *testing.T) { testUpload(t, newHost(t)) })
}

func testBlocks(t *testing.T, h host.Host) {
	ctx := context.Background()
	content := []host.Fragment{
		{Type: host.FragmentText, Value: "see "},
		{Type: host.FragmentLink, Value: "the book", Link: "https://book.douban.com/subject/1/"},
	}
	b, err := h.CreateBlock(ctx, "", content)
	require.NoError(t, err)
	require.NotEmpty(t, b.ID)

	got, err := h.GetBlock(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, content, got.Content)
	assert.Equal(t, "see the book", got.Text())
	assert.Equal(t, "https://book.douban.com/subject/1/", host.FindURL(got))

	_, err = h.GetBlock(ctx, "missing")
	assert.ErrorIs(t, err, host.ErrNotFound)
}

func testJournal(t *testing.T, h host.Host) {
	ctx := context.Background()
	day := time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)

	first, err := h.JournalBlock(ctx, day)
	require.NoError(t, err)
	again, err := h.JournalBlock(ctx, day.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "2024-03-09", first.Text())

	other, err := h.JournalBlock(ctx, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func testInsertTag(t *testing.T, h host.Host) {
	ctx := context.Background()
	b, err := h.CreateBlock(ctx, "", host.TextBlock("x"))
	require.NoError(t, err)

	props := []models.MetadataProperty{{Name: "Title", Type: models.PropText, Value: "Hello"}}
	tagID, err := h.InsertTag(ctx, b.ID, "Book", props)
	require.NoError(t, err)
	require.NotEmpty(t, tagID)

	again, err := h.InsertTag(ctx, b.ID, "Book", props)
	require.NoError(t, err)
	assert.Equal(t, tagID, again, "tag is created once")

	schema, err := h.GetTagSchema(ctx, "Book")
	require.NoError(t, err)
	assert.Equal(t, tagID, schema.TagID)
	assert.Empty(t, schema.Properties, "InsertTag never defines properties")

	values, err := h.TagValues(ctx, b.ID, "Book")
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, "Hello", values[0].Value)

	_, err = h.InsertTag(ctx, "missing", "Book", props)
	assert.ErrorIs(t, err, host.ErrNotFound)

	_, err = h.GetTagSchema(ctx, "Nope")
	assert.ErrorIs(t, err, host.ErrNotFound)

	tags, err := h.ListTags(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "Book", tags[0].Name)
}

func testSchemaVersioning(t *testing.T, h host.Host) {
	ctx := context.Background()
	b, err := h.CreateBlock(ctx, "", host.TextBlock("x"))
	require.NoError(t, err)
	tagID, err := h.InsertTag(ctx, b.ID, "Movie", nil)
	require.NoError(t, err)

	schema, err := h.GetTagSchema(ctx, "Movie")
	require.NoError(t, err)

	genre := models.PropertyDefinition{
		Name: "Genre",
		Type: models.PropTextChoices,
		TypeArgs: map[string]any{
			"subType": models.SubTypeMulti,
			"choices": []models.Choice{{N: "Drama", V: "Drama", Extra: map[string]any{"color": "red"}}},
		},
	}
	require.NoError(t, h.UpdateTagSchema(ctx, tagID, schema.Version, []models.PropertyDefinition{genre}))

	err = h.UpdateTagSchema(ctx, tagID, schema.Version, []models.PropertyDefinition{{Name: "Year", Type: models.PropNumber}})
	assert.ErrorIs(t, err, host.ErrSchemaConflict, "stale version must be rejected")

	updated, err := h.GetTagSchema(ctx, "Movie")
	require.NoError(t, err)
	assert.Equal(t, schema.Version+1, updated.Version)
	require.Len(t, updated.Properties, 1)
	def := updated.Properties[0]
	assert.Equal(t, models.PropTextChoices, def.Type)
	choices := def.Choices()
	require.Len(t, choices, 1)
	assert.Equal(t, "Drama", choices[0].N)
	assert.Equal(t, "red", choices[0].Extra["color"])

	genre.TypeArgs["choices"] = []models.Choice{{N: "Drama", V: "Drama"}, {N: "Crime", V: "Crime"}}
	require.NoError(t, h.UpdateTagSchema(ctx, tagID, updated.Version, []models.PropertyDefinition{
		genre, {Name: "Year", Type: models.PropNumber},
	}))
	final, err := h.GetTagSchema(ctx, "Movie")
	require.NoError(t, err)
	require.Len(t, final.Properties, 2)
	assert.Equal(t, "Genre", final.Properties[0].Name)
	assert.Len(t, final.Properties[0].Choices(), 2)
	assert.Equal(t, "Year", final.Properties[1].Name)
}

func testConcurrentWriters(t *testing.T, h host.Host) {
	ctx := context.Background()
	b, err := h.CreateBlock(ctx, "", host.TextBlock("x"))
	require.NoError(t, err)
	tagID, err := h.InsertTag(ctx, b.ID, "Race", nil)
	require.NoError(t, err)
	schema, err := h.GetTagSchema(ctx, "Race")
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, conflicts := 0, 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := h.UpdateTagSchema(ctx, tagID, schema.Version, []models.PropertyDefinition{{Name: "P", Type: models.PropText}})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, host.ErrSchemaConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
	assert.Equal(t, 7, conflicts)
}

func testUpload(t *testing.T, h host.Host) {
	ref, err := h.Upload(context.Background(), []byte{0x89, 'P', 'N', 'G'}, "image/png")
	require.NoError(t, err)
	assert.NotEmpty(t, ref)

	other, err := h.Upload(context.Background(), []byte("x"), "image/png")
	require.NoError(t, err)
	assert.NotEqual(t, ref, other)
}
