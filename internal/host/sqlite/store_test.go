package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/law-makers/linkmeta/internal/host"
	"github.com/law-makers/linkmeta/internal/host/hosttest"
	"github.com/law-makers/linkmeta/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "host.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestContract(t *testing.T) {
	hosttest.Run(t, func(t *testing.T) host.Host { return openTemp(t) })
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "host.db")

	s, err := Open(path)
	require.NoError(t, err)
	b, err := s.CreateBlock(ctx, "", host.TextBlock("https://example.com"))
	require.NoError(t, err)
	tagID, err := s.InsertTag(ctx, b.ID, "Link", []models.MetadataProperty{{Name: "Title", Type: models.PropText, Value: "Hi"}})
	require.NoError(t, err)
	require.NoError(t, s.UpdateTagSchema(ctx, tagID, 0, []models.PropertyDefinition{{Name: "Title", Type: models.PropText}}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	schema, err := s.GetTagSchema(ctx, "Link")
	require.NoError(t, err)
	assert.Equal(t, int64(1), schema.Version)
	require.Len(t, schema.Properties, 1)
	assert.Equal(t, "Title", schema.Properties[0].Name)

	got, err := s.GetBlock(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", host.FindURL(got))
}

func TestChoiceMetadataStoredFlat(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	b, err := s.CreateBlock(ctx, "", host.TextBlock("film"))
	require.NoError(t, err)
	tagID, err := s.InsertTag(ctx, b.ID, "Film", nil)
	require.NoError(t, err)

	def := models.PropertyDefinition{Name: "Genre", Type: models.PropTextChoices, TypeArgs: map[string]any{
		"choices": []models.Choice{{N: "Drama", V: "Drama", Extra: map[string]any{"color": "blue"}}},
	}}
	require.NoError(t, s.UpdateTagSchema(ctx, tagID, 0, []models.PropertyDefinition{def}))

	var raw string
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT properties FROM tags WHERE id = ?`, tagID).Scan(&raw))
	assert.Contains(t, raw, `"color":"blue"`)
	assert.NotContains(t, raw, `"extra"`)

	schema, err := s.GetTagSchema(ctx, "Film")
	require.NoError(t, err)
	got, ok := schema.Definition("Genre")
	require.True(t, ok)
	require.Len(t, got.Choices(), 1)
	assert.Equal(t, "blue", got.Choices()[0].Extra["color"])
}

func TestAssetRoundTrip(t *testing.T) {
	s := openTemp(t)
	ref, err := s.Upload(context.Background(), []byte("GIF89a"), "image/gif")
	require.NoError(t, err)
	assert.Contains(t, ref, AssetScheme)

	data, contentType, err := s.Asset(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("GIF89a"), data)
	assert.Equal(t, "image/gif", contentType)

	_, _, err = s.Asset(context.Background(), AssetScheme+"nope")
	assert.ErrorIs(t, err, host.ErrNotFound)
}
