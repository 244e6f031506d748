package tools

import (
	"context"
	"fmt"
)

// UnconfiguredSearchClient is the default SearchClient wired in main.go
// until a real Google Custom Search client is configured. It fails every
// call with a clear, typed message rather than silently returning empty
// results.
type UnconfiguredSearchClient struct{}

func (UnconfiguredSearchClient) Search(ctx context.Context, query string, count int) ([]SearchResult, error) {
	return nil, fmt.Errorf("google_search: no search client configured")
}
func (UnconfiguredSearchClient) SearchNews(ctx context.Context, query string, count int) ([]SearchResult, error) {
	return nil, fmt.Errorf("search_news: no search client configured")
}
func (UnconfiguredSearchClient) SearchImages(ctx context.Context, query string, count int) ([]SearchResult, error) {
	return nil, fmt.Errorf("search_images: no search client configured")
}
func (UnconfiguredSearchClient) SearchPatents(ctx context.Context, query string, count int) ([]SearchResult, error) {
	return nil, fmt.Errorf("search_patents: no search client configured")
}
func (UnconfiguredSearchClient) SearchAcademic(ctx context.Context, query string, count int) ([]SearchResult, error) {
	return nil, fmt.Errorf("search_academic: no search client configured")
}
