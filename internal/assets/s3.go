package assets

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config addresses an S3-compatible bucket
type S3Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	Secure    bool
	Prefix    string
	PublicURL string
}

// S3Store uploads assets to an S3-compatible bucket
type S3Store struct {
	client *minio.Client
	cfg    S3Config
}

// NewS3Store creates a client for the bucket
func NewS3Store(cfg S3Config) (*S3Store, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 endpoint and bucket are required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, err
	}
	return &S3Store{client: client, cfg: cfg}, nil
}

// Upload stores data under a content-addressed key
func (s *S3Store) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	return s.UploadNamed(ctx, "", data, contentType)
}

// UploadNamed stores data and returns its public URL, or s3://bucket/key
func (s *S3Store) UploadNamed(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	key := ObjectKey(name, data, contentType)
	if s.cfg.Prefix != "" {
		key = strings.Trim(s.cfg.Prefix, "/") + "/" + key
	}

	_, err := s.client.PutObject(ctx, s.cfg.Bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return s.ref(key), nil
}

func (s *S3Store) ref(key string) string {
	if s.cfg.PublicURL != "" {
		return strings.TrimRight(s.cfg.PublicURL, "/") + "/" + key
	}
	return "s3://" + s.cfg.Bucket + "/" + key
}
