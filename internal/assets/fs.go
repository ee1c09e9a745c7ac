package assets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gosimple/slug"
)

// FSStore writes assets into a directory and returns paths relative to RefPrefix
type FSStore struct {
	Dir       string
	RefPrefix string
}

// NewFSStore creates the directory if needed
func NewFSStore(dir, refPrefix string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create asset dir: %w", err)
	}
	if refPrefix == "" {
		refPrefix = "assets"
	}
	return &FSStore{Dir: dir, RefPrefix: refPrefix}, nil
}

// Upload stores data under a content-addressed name
func (s *FSStore) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	return s.UploadNamed(ctx, "", data, contentType)
}

// UploadNamed stores data as <slug(name)>-<hash><ext>
func (s *FSStore) UploadNamed(_ context.Context, name string, data []byte, contentType string) (string, error) {
	key := ObjectKey(name, data, contentType)
	full := filepath.Join(s.Dir, key)
	if _, err := os.Stat(full); err == nil {
		return path.Join(s.RefPrefix, key), nil
	}

	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write asset: %w", err)
	}
	if err := os.Rename(tmp, full); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("write asset: %w", err)
	}
	return path.Join(s.RefPrefix, key), nil
}

// ObjectKey names an asset by a slug of its original name and a content hash,
// so identical bytes always map to the same key
func ObjectKey(name string, data []byte, contentType string) string {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])[:12]

	ext := strings.ToLower(filepath.Ext(name))
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	if !knownImageExt(ext) {
		ext = extensionFor(contentType)
	}

	base := slug.Make(stem)
	if base == "" {
		return hash + ext
	}
	if len(base) > 60 {
		base = strings.Trim(base[:60], "-")
	}
	return base + "-" + hash + ext
}

func knownImageExt(ext string) bool {
	switch ext {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".avif", ".svg", ".bmp", ".ico":
		return true
	}
	return false
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png", "":
		return ".png"
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
