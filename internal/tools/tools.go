// Package tools implements the MCP tool layer: each tool is a pure
// function of its validated input and the cache/scrape primitives.
// The Google Custom Search variants are specified only as the SearchClient
// interface here (the YouTube transcript fetcher is scrape.TranscriptClient).
// No real search client is included: tests use fakes, and main.go wires
// UnconfiguredSearchClient, which fails every call.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/zoharbabin/google-research-mcp-sub000/internal/cache"
	"github.com/zoharbabin/google-research-mcp-sub000/internal/dedupe"
	"github.com/zoharbabin/google-research-mcp-sub000/internal/logger"
	"github.com/zoharbabin/google-research-mcp-sub000/internal/mcp"
	"github.com/zoharbabin/google-research-mcp-sub000/internal/scrape"
	"github.com/zoharbabin/google-research-mcp-sub000/internal/schemaguard"
	"github.com/zoharbabin/google-research-mcp-sub000/internal/workerpool"
)

// SearchResult is one hit returned by any of the Google Custom Search
// variants.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// SearchClient is the external collaborator wrapping the Google Custom
// Search API's variants. A concrete implementation is out of this
// module's scope; see fakeSearchClient in the test suite.
type SearchClient interface {
	Search(ctx context.Context, query string, count int) ([]SearchResult, error)
	SearchNews(ctx context.Context, query string, count int) ([]SearchResult, error)
	SearchImages(ctx context.Context, query string, count int) ([]SearchResult, error)
	SearchPatents(ctx context.Context, query string, count int) ([]SearchResult, error)
	SearchAcademic(ctx context.Context, query string, count int) ([]SearchResult, error)
}

const (
	scrapeNamespace      = "scrapePage"
	scrapeTTL            = time.Hour
	scrapeStaleWindow    = 24 * time.Hour
	defaultResultCount   = 10
	perSourceSizeCap     = 20 * 1024
	totalCombinedSizeCap = 150 * 1024
)

// Deps bundles every collaborator the tool layer needs.
type Deps struct {
	Search      SearchClient
	Scraper     *scrape.Orchestrator
	Cache       *cache.Core
	Pool        *workerpool.Pool
	SchemaGuard *schemaguard.Validator
	Logger      *logger.Logger
}

// Register wires every tool named in the scrape/tool dispatch component
// into d.
func Register(d *mcp.Dispatcher, deps Deps) {
	d.Register(mcp.Tool{
		Descriptor: mcp.ToolDescriptor{Name: "google_search", Description: "Run a Google web search and return ranked results."},
		Handler:    searchHandler(deps, deps.Search.Search, "google_search"),
	})
	d.Register(mcp.Tool{
		Descriptor: mcp.ToolDescriptor{Name: "search_news", Description: "Search Google News."},
		Handler:    searchHandler(deps, deps.Search.SearchNews, "search_news"),
	})
	d.Register(mcp.Tool{
		Descriptor: mcp.ToolDescriptor{Name: "search_images", Description: "Search Google Images."},
		Handler:    searchHandler(deps, deps.Search.SearchImages, "search_images"),
	})
	d.Register(mcp.Tool{
		Descriptor: mcp.ToolDescriptor{Name: "search_patents", Description: "Search Google Patents."},
		Handler:    searchHandler(deps, deps.Search.SearchPatents, "search_patents"),
	})
	d.Register(mcp.Tool{
		Descriptor: mcp.ToolDescriptor{Name: "search_academic", Description: "Search Google Scholar."},
		Handler:    searchHandler(deps, deps.Search.SearchAcademic, "search_academic"),
	})
	d.Register(mcp.Tool{
		Descriptor: mcp.ToolDescriptor{Name: "scrape_page", Description: "Fetch and extract the readable content of a URL."},
		Handler:    scrapePageHandler(deps),
	})
	d.Register(mcp.Tool{
		Descriptor: mcp.ToolDescriptor{Name: "youtube_transcript", Description: "Fetch the transcript of a YouTube video."},
		Handler:    youtubeTranscriptHandler(deps),
	})
	d.Register(mcp.Tool{
		Descriptor: mcp.ToolDescriptor{Name: "research", Description: "Search, scrape every result concurrently, dedupe, and combine."},
		Handler:    researchHandler(deps),
	})
}

type searchParams struct {
	Query string `json:"query"`
	Count int    `json:"count"`
}

type searchFn func(ctx context.Context, query string, count int) ([]SearchResult, error)

func searchHandler(deps Deps, fn searchFn, schemaName string) mcp.ToolHandler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p searchParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%s: invalid arguments: %w", schemaName, err)
		}
		if p.Query == "" {
			return nil, fmt.Errorf("%s: query is required", schemaName)
		}
		count := p.Count
		if count <= 0 {
			count = defaultResultCount
		}

		results, err := fn(ctx, p.Query, count)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", schemaName, err)
		}

		checkSchemaDrift(deps, schemaName, results)
		return map[string]any{"results": results}, nil
	}
}

func checkSchemaDrift(deps Deps, schemaName string, results []SearchResult) {
	if deps.SchemaGuard == nil || len(results) == 0 {
		return
	}
	sample := map[string]any{
		"title":   results[0].Title,
		"url":     results[0].URL,
		"snippet": results[0].Snippet,
	}
	if mismatches := deps.SchemaGuard.Validate(schemaName, sample); len(mismatches) > 0 {
		for _, m := range mismatches {
			deps.Logger.Errorf("schemaguard: %s drift: %s", schemaName, m.String())
		}
	}
}

type scrapePageParams struct {
	URL string `json:"url"`
}

func scrapePageHandler(deps Deps) mcp.ToolHandler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p scrapePageParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("scrape_page: invalid arguments: %w", err)
		}
		if p.URL == "" {
			return nil, fmt.Errorf("scrape_page: url is required")
		}

		result, err := cachedScrape(ctx, deps, p.URL)
		if err != nil {
			return nil, err
		}
		return result, nil
	}
}

// cachedScrape wraps the orchestrator in the cache under the scrapePage
// namespace, TTL 1h with a 24h stale-while-revalidate window.
func cachedScrape(ctx context.Context, deps Deps, url string) (*scrape.Result, error) {
	return cache.GetOrCompute(deps.Cache, scrapeNamespace, url, func() (*scrape.Result, error) {
		return deps.Scraper.Scrape(ctx, url)
	}, cache.Options{
		TTL:                  scrapeTTL,
		StaleWhileRevalidate: true,
		StaleTime:            scrapeStaleWindow,
	})
}

type youtubeTranscriptParams struct {
	URL string `json:"url"`
}

func youtubeTranscriptHandler(deps Deps) mcp.ToolHandler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p youtubeTranscriptParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("youtube_transcript: invalid arguments: %w", err)
		}
		if p.URL == "" {
			return nil, fmt.Errorf("youtube_transcript: url is required")
		}
		result, err := cachedScrape(ctx, deps, p.URL)
		if err != nil {
			return nil, err
		}
		return map[string]any{"transcript": result.Content}, nil
	}
}

type researchParams struct {
	Query           string   `json:"query"`
	Count           int      `json:"count"`
	Keywords        []string `json:"keywords"`
	DedupeThreshold float64  `json:"dedupeThreshold"`
}

// researchHandler implements the composite workflow: search, scrape every
// result concurrently via the shared worker pool, settle all outcomes,
// dedupe near-identical paragraphs, optionally filter by keyword, and
// truncate to the combined size cap.
func researchHandler(deps Deps) mcp.ToolHandler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p researchParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("research: invalid arguments: %w", err)
		}
		if p.Query == "" {
			return nil, fmt.Errorf("research: query is required")
		}
		count := p.Count
		if count <= 0 {
			count = defaultResultCount
		}

		hits, err := deps.Search.Search(ctx, p.Query, count)
		if err != nil {
			return nil, fmt.Errorf("research: search failed: %w", err)
		}
		checkSchemaDrift(deps, "google_search", hits)

		type scraped struct {
			url     string
			content string
			err     error
		}
		outcomes := make(chan scraped, len(hits))
		for _, h := range hits {
			h := h
			deps.Pool.Submit(func() {
				res, scrapeErr := cachedScrape(ctx, deps, h.URL)
				if scrapeErr != nil {
					outcomes <- scraped{url: h.URL, err: scrapeErr}
					return
				}
				outcomes <- scraped{url: h.URL, content: capSourceSize(res.Content)}
			})
		}

		var paragraphs []string
		var failed []string
		for i := 0; i < len(hits); i++ {
			o := <-outcomes
			if o.err != nil {
				failed = append(failed, o.url)
				continue
			}
			paragraphs = append(paragraphs, splitParagraphs(o.content)...)
		}

		threshold := p.DedupeThreshold
		if threshold <= 0 {
			threshold = dedupe.DefaultThreshold
		}
		deduped := dedupe.FilterParagraphs(paragraphs, threshold)

		if len(p.Keywords) > 0 {
			var filtered []string
			for _, para := range deduped {
				if dedupe.ContainsAnyKeyword(para, p.Keywords) {
					filtered = append(filtered, para)
				}
			}
			deduped = filtered
		}

		combined := combineWithCap(deduped, totalCombinedSizeCap)

		return map[string]any{
			"query":   p.Query,
			"content": combined,
			"sources": hits,
			"failed":  failed,
		}, nil
	}
}

func capSourceSize(s string) string {
	if len(s) <= perSourceSizeCap {
		return s
	}
	return s[:perSourceSizeCap]
}

func splitParagraphs(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' && i > start {
			if p := text[start:i]; len(p) > 0 {
				out = append(out, p)
			}
			start = i + 1
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

// combineWithCap joins paragraphs until the total size budget is spent,
// marking the truncation point rather than silently dropping content.
func combineWithCap(paragraphs []string, maxBytes int) string {
	var size int
	var kept []string
	for _, p := range paragraphs {
		if size+len(p) > maxBytes {
			kept = append(kept, "...[truncated: remaining sources omitted]...")
			break
		}
		kept = append(kept, p)
		size += len(p)
	}
	return joinParagraphs(kept)
}

func joinParagraphs(paragraphs []string) string {
	out := ""
	for i, p := range paragraphs {
		if i > 0 {
			out += "\n\n"
		}
		out += p
	}
	return out
}
