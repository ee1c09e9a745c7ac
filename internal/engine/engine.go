package engine

import (
	"context"

	"github.com/law-makers/linkmeta/pkg/models"
)

// Fetcher is the interface every document retrieval channel implements
type Fetcher interface {
	// Fetch retrieves the URL and returns the parsed page with base metadata
	Fetch(ctx context.Context, url string) (*models.Page, error)

	// Name returns the name of the fetcher implementation
	Name() string
}
