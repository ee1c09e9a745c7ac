// Package sqlite is a local host backed by a single SQLite file
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/law-makers/linkmeta/internal/host"
	"github.com/law-makers/linkmeta/pkg/models"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// AssetScheme prefixes references returned by Upload
const AssetScheme = "asset://"

// Store implements host.Host on SQLite
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the database at path
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	log.Debug().Str("path", path).Msg("SQLite host opened")
	return &Store{db: db, path: path}, nil
}

// Close releases the database
func (s *Store) Close() error {
	return s.db.Close()
}

// GetBlock reads one block
func (s *Store) GetBlock(ctx context.Context, id string) (*host.Block, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, parent_id, content, created_at FROM blocks WHERE id = ?`, id)
	b, err := scanBlock(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("block %s: %w", id, host.ErrNotFound)
	}
	return b, err
}

// CreateBlock inserts a block
func (s *Store) CreateBlock(ctx context.Context, parentID string, content []host.Fragment) (*host.Block, error) {
	b := &host.Block{
		ID:        uuid.NewString(),
		ParentID:  parentID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	raw, err := json.Marshal(b.Content)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO blocks (id, parent_id, content, created_at) VALUES (?, ?, ?, ?)`,
		b.ID, b.ParentID, string(raw), b.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("insert block: %w", err)
	}
	return b, nil
}

// JournalBlock returns the block for date, creating it on first use
func (s *Store) JournalBlock(ctx context.Context, date time.Time) (*host.Block, error) {
	key := host.JournalDate(date)

	row := s.db.QueryRowContext(ctx, `SELECT id, parent_id, content, created_at FROM blocks WHERE journal_date = ?`, key)
	b, err := scanBlock(row)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	b = &host.Block{ID: uuid.NewString(), Content: host.TextBlock(key), CreatedAt: time.Now().UTC()}
	raw, _ := json.Marshal(b.Content)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO blocks (id, parent_id, content, journal_date, created_at) VALUES (?, '', ?, ?, ?)
		 ON CONFLICT(journal_date) DO NOTHING`,
		b.ID, string(raw), key, b.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("insert journal block: %w", err)
	}

	row = s.db.QueryRowContext(ctx, `SELECT id, parent_id, content, created_at FROM blocks WHERE journal_date = ?`, key)
	return scanBlock(row)
}

// InsertTag attaches tagName to the block, creating the tag if needed
func (s *Store) InsertTag(ctx context.Context, blockID, tagName string, props []models.MetadataProperty) (string, error) {
	raw, err := json.Marshal(props)
	if err != nil {
		return "", fmt.Errorf("encode values: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM blocks WHERE id = ?`, blockID).Scan(&exists); err != nil {
		return "", err
	}
	if exists == 0 {
		return "", fmt.Errorf("block %s: %w", blockID, host.ErrNotFound)
	}

	var tagID string
	err = tx.QueryRowContext(ctx, `SELECT id FROM tags WHERE name = ?`, tagName).Scan(&tagID)
	if errors.Is(err, sql.ErrNoRows) {
		tagID = uuid.NewString()
		_, err = tx.ExecContext(ctx, `INSERT INTO tags (id, name) VALUES (?, ?)`, tagID, tagName)
	}
	if err != nil {
		return "", fmt.Errorf("resolve tag: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO block_tags (block_id, tag_id, props, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(block_id, tag_id) DO UPDATE SET props = excluded.props, updated_at = excluded.updated_at`,
		blockID, tagID, string(raw), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("attach tag: %w", err)
	}

	return tagID, tx.Commit()
}

// GetTagSchema reads a tag's definitions and version
func (s *Store) GetTagSchema(ctx context.Context, tagName string) (*models.TagSchema, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, version, properties FROM tags WHERE name = ?`, tagName)
	schema, err := scanSchema(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tag %s: %w", tagName, host.ErrNotFound)
	}
	return schema, err
}

// UpdateTagSchema upserts definitions if version is still current
func (s *Store) UpdateTagSchema(ctx context.Context, tagID string, version int64, defs []models.PropertyDefinition) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT id, name, version, properties FROM tags WHERE id = ?`, tagID)
	current, err := scanSchema(row)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("tag %s: %w", tagID, host.ErrNotFound)
	}
	if err != nil {
		return err
	}
	if current.Version != version {
		return host.ErrSchemaConflict
	}

	raw, err := json.Marshal(host.UpsertDefinitions(current.Properties, defs))
	if err != nil {
		return fmt.Errorf("encode definitions: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE tags SET properties = ?, version = version + 1 WHERE id = ? AND version = ?`,
		string(raw), tagID, version)
	if err != nil {
		return fmt.Errorf("update schema: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return host.ErrSchemaConflict
	}
	return tx.Commit()
}

// TagValues reads the values last inserted for tagName on the block
func (s *Store) TagValues(ctx context.Context, blockID, tagName string) ([]models.MetadataProperty, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT bt.props FROM block_tags bt JOIN tags t ON t.id = bt.tag_id WHERE bt.block_id = ? AND t.name = ?`,
		blockID, tagName).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tag %s on block %s: %w", tagName, blockID, host.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var props []models.MetadataProperty
	if err := json.Unmarshal([]byte(raw), &props); err != nil {
		return nil, fmt.Errorf("decode values: %w", err)
	}
	return props, nil
}

// ListTags returns all schemas ordered by name
func (s *Store) ListTags(ctx context.Context) ([]*models.TagSchema, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, version, properties FROM tags ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.TagSchema
	for rows.Next() {
		schema, err := scanSchema(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, schema)
	}
	return out, rows.Err()
}

// Upload stores the binary in the assets table
func (s *Store) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assets (id, content_type, data, created_at) VALUES (?, ?, ?, ?)`,
		id, contentType, data, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("store asset: %w", err)
	}
	return AssetScheme + id, nil
}

// Asset reads an uploaded binary back by reference
func (s *Store) Asset(ctx context.Context, ref string) ([]byte, string, error) {
	id := ref
	if len(ref) > len(AssetScheme) && ref[:len(AssetScheme)] == AssetScheme {
		id = ref[len(AssetScheme):]
	}
	var data []byte
	var contentType string
	err := s.db.QueryRowContext(ctx, `SELECT data, content_type FROM assets WHERE id = ?`, id).Scan(&data, &contentType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", fmt.Errorf("asset %s: %w", ref, host.ErrNotFound)
	}
	return data, contentType, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBlock(row scanner) (*host.Block, error) {
	var b host.Block
	var content, created string
	if err := row.Scan(&b.ID, &b.ParentID, &content, &created); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(content), &b.Content); err != nil {
		return nil, fmt.Errorf("decode block content: %w", err)
	}
	b.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return &b, nil
}

func scanSchema(row scanner) (*models.TagSchema, error) {
	var s models.TagSchema
	var props string
	if err := row.Scan(&s.TagID, &s.Name, &s.Version, &props); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(props), &s.Properties); err != nil {
		return nil, fmt.Errorf("decode definitions: %w", err)
	}
	return &s, nil
}

var _ host.Host = (*Store)(nil)
