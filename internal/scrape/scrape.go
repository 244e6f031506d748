// Package scrape implements the scrape orchestrator: URL validation,
// YouTube-transcript and document routing, a static-HTML fast path with a
// quality gate, and a JS-evaluation fallback for script-rendered pages.
// Results are cached by the caller via internal/cache under the
// "scrapePage" namespace.
package scrape

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/zoharbabin/google-research-mcp-sub000/internal/breaker"
	"github.com/zoharbabin/google-research-mcp-sub000/internal/logger"
	"github.com/zoharbabin/google-research-mcp-sub000/internal/render"
	"github.com/zoharbabin/google-research-mcp-sub000/internal/ssrf"
)

// Result is what a successful scrape produces.
type Result struct {
	Content  string    `json:"content"`
	RawHTML  string    `json:"rawHtml,omitempty"`
	Citation *Citation `json:"citation,omitempty"`
}

// Citation holds metadata extracted from a page's <head> for attribution.
type Citation struct {
	Title         string `json:"title,omitempty"`
	SiteName      string `json:"siteName,omitempty"`
	Author        string `json:"author,omitempty"`
	PublishedTime string `json:"publishedTime,omitempty"`
}

// ErrorKind classifies a scrape failure for callers that need to decide on
// retry/truncation behavior without string-matching error text.
type ErrorKind string

const (
	ErrKindSSRF           ErrorKind = "ssrf"
	ErrKindTranscript     ErrorKind = "transcript"
	ErrKindResourceTooBig ErrorKind = "resource_too_large"
	ErrKindFetch          ErrorKind = "fetch"
	ErrKindDocument       ErrorKind = "document"
)

// Error is the typed error surfaced by the orchestrator.
type Error struct {
	Kind ErrorKind
	URL  string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("scrape: %s: %s: %v", e.Kind, e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// TranscriptKind classifies why a YouTube transcript fetch failed.
type TranscriptKind string

const (
	TranscriptUnavailable TranscriptKind = "not_available"
	TranscriptDisabled    TranscriptKind = "disabled"
	TranscriptNetwork     TranscriptKind = "network"
	TranscriptOther       TranscriptKind = "other"
)

// TranscriptError is surfaced when a YouTube transcript cannot be fetched.
type TranscriptError struct {
	Kind    TranscriptKind
	VideoID string
	Err     error
}

func (e *TranscriptError) Error() string {
	return fmt.Sprintf("youtube transcript (%s) for %s: %v", e.Kind, e.VideoID, e.Err)
}

func (e *TranscriptError) Unwrap() error { return e.Err }

// TranscriptClient is the external collaborator that fetches a YouTube
// video's transcript. A concrete implementation is out of scope; only the
// interface and a fake for tests live in this module.
type TranscriptClient interface {
	FetchTranscript(ctx context.Context, videoID string) (string, error)
}

// DocumentParser is the external collaborator that turns a downloaded
// PDF/DOCX/PPTX byte buffer into plain text plus basic metadata.
type DocumentParser interface {
	Parse(ctx context.Context, contentType string, data []byte) (text string, metadata map[string]string, err error)
}

const (
	maxDocumentBytes = 25 * 1024 * 1024
	maxResultBytes   = 50 * 1024
	fetchTimeout     = 20 * time.Second

	// staticScrapeTimeout bounds the web-page fetch in scrapeWebPage.
	staticScrapeTimeout = 15 * time.Second
)

var youtubeVideoIDPattern = regexp.MustCompile(`(?:youtu\.be/|youtube\.com/watch\?v=)([A-Za-z0-9_-]{6,})`)

// Orchestrator implements Component I.
type Orchestrator struct {
	validator  *ssrf.Validator
	httpClient *http.Client
	breaker    *breaker.Breaker
	transcript TranscriptClient
	document   DocumentParser
	evaluator  *render.Evaluator
	log        *logger.Logger
	spaHosts   map[string]bool
}

// Options configures an Orchestrator.
type Options struct {
	Validator  *ssrf.Validator
	HTTPClient *http.Client
	Breaker    *breaker.Breaker
	Transcript TranscriptClient
	Document   DocumentParser
	Evaluator  *render.Evaluator
	Logger     *logger.Logger
	SPAHosts   []string
}

// New constructs an Orchestrator.
func New(opts Options) *Orchestrator {
	spaHosts := make(map[string]bool, len(opts.SPAHosts))
	for _, h := range opts.SPAHosts {
		spaHosts[strings.ToLower(h)] = true
	}
	return &Orchestrator{
		validator:  opts.Validator,
		httpClient: opts.HTTPClient,
		breaker:    opts.Breaker,
		transcript: opts.Transcript,
		document:   opts.Document,
		evaluator:  opts.Evaluator,
		log:        opts.Logger,
		spaHosts:   spaHosts,
	}
}

// Scrape runs the full decision tree described in the scrape orchestrator
// component and returns a size-capped Result.
func (o *Orchestrator) Scrape(ctx context.Context, rawURL string) (*Result, error) {
	if err := o.validator.Validate(ctx, rawURL); err != nil {
		return nil, &Error{Kind: ErrKindSSRF, URL: rawURL, Err: err}
	}

	if id := youtubeVideoID(rawURL); id != "" {
		return o.scrapeYouTube(ctx, rawURL, id)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &Error{Kind: ErrKindFetch, URL: rawURL, Err: err}
	}
	if kind := documentKind(u); kind != "" {
		return o.scrapeDocument(ctx, rawURL, kind)
	}

	var result *Result
	err = o.breaker.Call(func() error {
		r, scrapeErr := o.scrapeWebPage(ctx, rawURL)
		if scrapeErr != nil {
			return scrapeErr
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (o *Orchestrator) scrapeYouTube(ctx context.Context, rawURL, videoID string) (*Result, error) {
	if o.transcript == nil {
		return nil, &TranscriptError{Kind: TranscriptOther, VideoID: videoID, Err: fmt.Errorf("no transcript client configured")}
	}
	text, err := o.transcript.FetchTranscript(ctx, videoID)
	if err != nil {
		return nil, classifyTranscriptError(videoID, err)
	}
	return &Result{Content: capSize(text)}, nil
}

func classifyTranscriptError(videoID string, err error) *TranscriptError {
	if e, ok := err.(*TranscriptError); ok {
		return e
	}
	return &TranscriptError{Kind: TranscriptOther, VideoID: videoID, Err: err}
}

func documentKind(u *url.URL) string {
	lower := strings.ToLower(u.Path)
	switch {
	case strings.HasSuffix(lower, ".pdf"):
		return "application/pdf"
	case strings.HasSuffix(lower, ".docx"):
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case strings.HasSuffix(lower, ".pptx"):
		return "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	default:
		return ""
	}
}

func (o *Orchestrator) scrapeDocument(ctx context.Context, rawURL, contentTypeHint string) (*Result, error) {
	if o.document == nil {
		return nil, &Error{Kind: ErrKindDocument, URL: rawURL, Err: fmt.Errorf("no document parser configured")}
	}

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	data, contentType, err := o.fetchBytes(ctx, rawURL, maxDocumentBytes)
	if err != nil {
		return nil, err
	}
	if contentType == "" {
		contentType = contentTypeHint
	}

	text, _, err := o.document.Parse(ctx, contentType, data)
	if err != nil {
		return nil, &Error{Kind: ErrKindDocument, URL: rawURL, Err: err}
	}
	return &Result{Content: capSize(text)}, nil
}

// fetchBytes retrieves rawURL's body, re-validating SSRF on every redirect
// hop via the client's CheckRedirect (wired in internal/transport), and
// enforces maxBytes.
func (o *Orchestrator) fetchBytes(ctx context.Context, rawURL string, maxBytes int64) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", &Error{Kind: ErrKindFetch, URL: rawURL, Err: err}
	}
	req.Header.Set("Accept-Encoding", "gzip, br")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, "", &Error{Kind: ErrKindFetch, URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, "", &Error{Kind: ErrKindFetch, URL: rawURL, Err: fmt.Errorf("upstream status %d", resp.StatusCode)}
	}

	limited := io.LimitReader(resp.Body, maxBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, "", &Error{Kind: ErrKindFetch, URL: rawURL, Err: err}
	}
	if int64(len(body)) > maxBytes {
		return nil, "", &Error{Kind: ErrKindResourceTooBig, URL: rawURL, Err: fmt.Errorf("response exceeds %d bytes", maxBytes)}
	}

	decoded, err := decodeBody(body, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return nil, "", &Error{Kind: ErrKindFetch, URL: rawURL, Err: err}
	}
	return decoded, resp.Header.Get("Content-Type"), nil
}

func decodeBody(body []byte, contentEncoding string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "gzip":
		r, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case "br":
		return io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
	default:
		return body, nil
	}
}

func (o *Orchestrator) scrapeWebPage(ctx context.Context, rawURL string) (*Result, error) {
	u, _ := url.Parse(rawURL)
	isSPA := u != nil && o.spaHosts[strings.ToLower(u.Hostname())]

	ctx, cancel := context.WithTimeout(ctx, staticScrapeTimeout)
	defer cancel()

	data, contentType, err := o.fetchBytes(ctx, rawURL, maxDocumentBytes)
	if err != nil {
		return nil, err
	}
	utf8HTML, err := normalizeCharset(data, contentType)
	if err != nil {
		utf8HTML = string(data)
	}
	rawHTML := utf8HTML

	var fast *Result
	if !isSPA {
		fast = parseStaticHTML(utf8HTML)
		if !isLowQuality(fast.Content, rawHTML) {
			fast.Content = capSize(fast.Content)
			return fast, nil
		}
	}

	if o.evaluator == nil {
		if fast != nil {
			fast.Content = capSize(fast.Content)
			return fast, nil
		}
		return nil, &Error{Kind: ErrKindFetch, URL: rawURL, Err: fmt.Errorf("no JS evaluator configured for SPA fallback")}
	}

	evaluated, err := o.evaluateScripts(rawHTML)
	if err != nil {
		if fast != nil {
			fast.Content = capSize(fast.Content)
			return fast, nil
		}
		return nil, &Error{Kind: ErrKindFetch, URL: rawURL, Err: err}
	}
	evaluated.Content = capSize(evaluated.Content)
	if evaluated.Citation == nil {
		evaluated.Citation = extractCitation(rawHTML)
	}
	return evaluated, nil
}

// evaluateScripts runs every inline <script> body found in rawHTML through
// the JS evaluator once, in page order, and builds the result from the last
// non-empty title and body the scripts left in the document stub. The
// quality gate is not applied to this result.
func (o *Orchestrator) evaluateScripts(rawHTML string) (*Result, error) {
	scripts := extractInlineScripts(rawHTML)
	var lastResult render.Result
	for _, script := range scripts {
		res, err := o.evaluator.Eval(script)
		if err != nil {
			o.log.Debugf("scrape: script evaluation error: %v", err)
			continue
		}
		if res.Title != "" {
			lastResult.Title = res.Title
		}
		if res.Body != "" {
			lastResult.Body = res.Body
		}
	}

	var b strings.Builder
	if lastResult.Title != "" {
		b.WriteString("Title: ")
		b.WriteString(lastResult.Title)
		b.WriteString("\n\n")
	}
	b.WriteString(lastResult.Body)
	return &Result{Content: b.String()}, nil
}

// capSize enforces the 50KB result cap, keeping the first and last halves
// joined by a marker when the content is over budget.
func capSize(s string) string {
	if len(s) <= maxResultBytes {
		return s
	}
	half := maxResultBytes / 2
	return s[:half] + "\n\n...[truncated]...\n\n" + s[len(s)-half:]
}

// isLowQuality implements the quality gate: fast-path text under 100 bytes,
// or (after stripping script/json-like tokens) a readable remainder under
// 10% of raw HTML length or under 200 bytes.
func isLowQuality(text, rawHTML string) bool {
	if len(text) < 100 {
		return true
	}
	stripped := stripScriptLikeTokens(text)
	if len(rawHTML) > 0 && float64(len(stripped)) < 0.10*float64(len(rawHTML)) {
		return true
	}
	return len(stripped) < 200
}

var scriptLikeTokenPattern = regexp.MustCompile(`[{}\[\]";]+`)

func stripScriptLikeTokens(text string) string {
	return scriptLikeTokenPattern.ReplaceAllString(text, "")
}

func youtubeVideoID(rawURL string) string {
	m := youtubeVideoIDPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return ""
	}
	return m[1]
}

func normalizeCharset(data []byte, contentType string) (string, error) {
	enc, err := htmlindex.Get(charsetFromContentType(contentType))
	if err != nil || enc == nil {
		return string(data), nil
	}
	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return string(data), nil
	}
	return string(decoded), nil
}

func charsetFromContentType(contentType string) string {
	const key = "charset="
	idx := strings.Index(strings.ToLower(contentType), key)
	if idx == -1 {
		return "utf-8"
	}
	cs := contentType[idx+len(key):]
	if semi := strings.Index(cs, ";"); semi != -1 {
		cs = cs[:semi]
	}
	return strings.TrimSpace(cs)
}
