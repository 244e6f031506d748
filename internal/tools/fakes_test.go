package tools

import "context"

type fakeSearchClient struct {
	results map[string][]SearchResult
	err     error
}

func (f *fakeSearchClient) lookup(query string) ([]SearchResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.results[query], nil
}

func (f *fakeSearchClient) Search(ctx context.Context, query string, count int) ([]SearchResult, error) {
	return f.lookup(query)
}
func (f *fakeSearchClient) SearchNews(ctx context.Context, query string, count int) ([]SearchResult, error) {
	return f.lookup(query)
}
func (f *fakeSearchClient) SearchImages(ctx context.Context, query string, count int) ([]SearchResult, error) {
	return f.lookup(query)
}
func (f *fakeSearchClient) SearchPatents(ctx context.Context, query string, count int) ([]SearchResult, error) {
	return f.lookup(query)
}
func (f *fakeSearchClient) SearchAcademic(ctx context.Context, query string, count int) ([]SearchResult, error) {
	return f.lookup(query)
}
