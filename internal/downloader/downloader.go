// internal/downloader/downloader.go
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/law-makers/linkmeta/internal/retry"
	"github.com/law-makers/linkmeta/internal/utils/headers"
	"github.com/rs/zerolog/log"
)

// DefaultContentType is assumed when a response carries none
const DefaultContentType = "image/png"

// DefaultMaxBytes caps a single asset download
const DefaultMaxBytes = 20 << 20

// ErrTooLarge is returned when a body exceeds the size cap
var ErrTooLarge = errors.New("asset exceeds size limit")

// Blob is a downloaded binary held in memory
type Blob struct {
	URL         string
	Data        []byte
	ContentType string
	Filename    string
	Duration    time.Duration
}

// Downloader fetches remote binaries into memory
type Downloader struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
	retry     retry.Config
}

// NewDownloader creates a new Downloader instance
func NewDownloader(timeout time.Duration, userAgent string) *Downloader {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	cfg := retry.DefaultConfig()
	cfg.InitialBackoff = 500 * time.Millisecond
	cfg.MaxBackoff = 5 * time.Second

	return &Downloader{
		client:    client,
		userAgent: userAgent,
		maxBytes:  DefaultMaxBytes,
		retry:     cfg,
	}
}

// WithClient replaces the HTTP client
func (d *Downloader) WithClient(c *http.Client) *Downloader {
	d.client = c
	return d
}

// WithMaxBytes sets the size cap
func (d *Downloader) WithMaxBytes(n int64) *Downloader {
	d.maxBytes = n
	return d
}

// WithRetry sets the retry policy for transient failures
func (d *Downloader) WithRetry(cfg retry.Config) *Downloader {
	d.retry = cfg
	return d
}

// Fetch downloads fileURL, retrying rate limits and server errors
func (d *Downloader) Fetch(ctx context.Context, fileURL string) (*Blob, error) {
	start := time.Now()

	u, err := url.Parse(fileURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid URL %q", fileURL)
	}

	var blob *Blob
	err = retry.WithRetry(ctx, d.retry, func() error {
		b, err := d.fetchOnce(ctx, fileURL)
		if err != nil {
			return err
		}
		blob = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	blob.Filename = sanitizeFilename(fileURL, u)
	blob.Duration = time.Since(start)

	log.Debug().
		Str("url", fileURL).
		Str("content_type", blob.ContentType).
		Int("bytes", len(blob.Data)).
		Dur("duration", blob.Duration).
		Msg("Download completed")

	return blob, nil
}

func (d *Downloader) fetchOnce(ctx context.Context, fileURL string) (*Blob, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header = headers.Browser(d.userAgent, fileURL, map[string]string{
		"Accept": "image/avif,image/webp,image/apng,image/*,*/*;q=0.8",
	})

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, retry.NewHTTPError(resp.StatusCode, resp.Status, fileURL)
	}
	if resp.ContentLength > d.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, resp.ContentLength)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if int64(len(data)) > d.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, d.maxBytes)
	}

	return &Blob{
		URL:         fileURL,
		Data:        data,
		ContentType: contentType(resp.Header.Get("Content-Type")),
	}, nil
}

// contentType strips parameters and falls back to DefaultContentType
func contentType(header string) string {
	if header == "" {
		return DefaultContentType
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil || mediaType == "" {
		return DefaultContentType
	}
	return mediaType
}

// sanitizeFilename derives a safe file name from a URL path
func sanitizeFilename(input string, u *url.URL) string {
	if u != nil && u.Host != "" {
		parts := strings.Split(u.Path, "/")
		input = parts[len(parts)-1]
	}

	replacer := strings.NewReplacer(
		"/", "_", "\\", "_", "..", "_", ":", "_", "*", "_",
		"?", "_", "\"", "_", "<", "_", ">", "_", "|", "_",
	)
	input = replacer.Replace(input)
	input = strings.Trim(strings.TrimSpace(input), ".")

	if input == "" {
		input = "asset"
	}
	if len(input) > 120 {
		ext := filepath.Ext(input)
		if len(ext) > 10 {
			ext = ""
		}
		input = input[:120-len(ext)] + ext
	}
	return input
}
