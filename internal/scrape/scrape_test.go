package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/zoharbabin/google-research-mcp-sub000/internal/breaker"
	"github.com/zoharbabin/google-research-mcp-sub000/internal/logger"
	"github.com/zoharbabin/google-research-mcp-sub000/internal/render"
	"github.com/zoharbabin/google-research-mcp-sub000/internal/ssrf"
)

func testOrchestrator(t *testing.T, transcript TranscriptClient, document DocumentParser) *Orchestrator {
	t.Helper()
	validator := ssrf.New(ssrf.Options{BlockLoopback: false, BlockPrivate: false})
	return New(Options{
		Validator:  validator,
		HTTPClient: http.DefaultClient,
		Breaker:    breaker.New(3, time.Second),
		Transcript: transcript,
		Document:   document,
		Logger:     logger.New(logger.LevelError),
	})
}

func TestYoutubeVideoID_ExtractsFromBothURLForms(t *testing.T) {
	cases := map[string]string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ": "dQw4w9WgXcQ",
		"https://youtu.be/dQw4w9WgXcQ":                "dQw4w9WgXcQ",
		"https://example.com/not-youtube":              "",
	}
	for url, want := range cases {
		if got := youtubeVideoID(url); got != want {
			t.Errorf("youtubeVideoID(%q) = %q, want %q", url, got, want)
		}
	}
}

func TestScrape_YouTubeTranscriptSuccess(t *testing.T) {
	o := testOrchestrator(t, &fakeTranscriptClient{transcript: "hello world transcript"}, nil)
	res, err := o.Scrape(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	if err != nil {
		t.Fatal(err)
	}
	if res.Content != "hello world transcript" {
		t.Fatalf("unexpected content: %q", res.Content)
	}
}

func TestScrape_YouTubeTranscriptTypedError(t *testing.T) {
	o := testOrchestrator(t, &fakeTranscriptClient{err: &TranscriptError{Kind: TranscriptDisabled, VideoID: "x"}}, nil)
	_, err := o.Scrape(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	te, ok := err.(*TranscriptError)
	if !ok {
		t.Fatalf("expected *TranscriptError, got %T: %v", err, err)
	}
	if te.Kind != TranscriptDisabled {
		t.Fatalf("expected TranscriptDisabled, got %v", te.Kind)
	}
}

func TestScrape_StaticHTMLFastPath(t *testing.T) {
	html := `<html><head><title>Example Page</title></head><body>` +
		`<h1>Welcome</h1><p>` + repeat("This is a long informative paragraph about Go. ", 10) + `</p>` +
		`</body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(html))
	}))
	defer srv.Close()

	o := testOrchestrator(t, nil, nil)
	res, err := o.Scrape(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if res.Citation == nil || res.Citation.Title != "Example Page" {
		t.Fatalf("expected citation title to be extracted, got %+v", res.Citation)
	}
	if len(res.Content) == 0 {
		t.Fatal("expected non-empty content")
	}
}

func TestScrape_SPAHostUsesJSEvaluationFallback(t *testing.T) {
	html := `<html><head><title>Loading...</title></head><body>` +
		`<div id="app"></div>` +
		`<script>
			var s = "";
			for (var i = 0; i < 30; i++) { s += "Rendered content from the SPA. "; }
			document.title = "SPA Title";
			document.body.innerText = s;
		</script>` +
		`</body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(html))
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	evaluator, err := render.NewEvaluator("test-agent")
	if err != nil {
		t.Fatal(err)
	}

	validator := ssrf.New(ssrf.Options{BlockLoopback: false, BlockPrivate: false})
	o := New(Options{
		Validator:  validator,
		HTTPClient: http.DefaultClient,
		Breaker:    breaker.New(3, time.Second),
		Evaluator:  evaluator,
		Logger:     logger.New(logger.LevelError),
		SPAHosts:   []string{u.Hostname()},
	})

	res, err := o.Scrape(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Content) <= 200 {
		t.Fatalf("expected evaluated SPA content over 200 bytes, got %d: %q", len(res.Content), res.Content)
	}
	if res.Citation == nil || res.Citation.Title != "Loading..." {
		t.Fatalf("expected citation to fall back to the raw document's <title>, got %+v", res.Citation)
	}
}

func TestScrape_SSRFRejectsLoopbackRedirectTarget(t *testing.T) {
	loopback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer loopback.Close()

	redirector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, loopback.URL, http.StatusFound)
	}))
	defer redirector.Close()

	validator := ssrf.New(ssrf.Options{BlockLoopback: true, BlockPrivate: true})
	client := &http.Client{CheckRedirect: validator.CheckRedirect()}
	o := New(Options{
		// Both test servers listen on 127.0.0.1, so the first hop is checked
		// by a permissive validator; the rejection must come from the
		// client's redirect check.
		Validator:  ssrf.New(ssrf.Options{}),
		HTTPClient: client,
		Breaker:    breaker.New(3, time.Second),
		Logger:     logger.New(logger.LevelError),
	})

	_, err := o.Scrape(context.Background(), redirector.URL)
	if err == nil {
		t.Fatal("expected an error for a redirect to a loopback target")
	}
}

func TestIsLowQuality(t *testing.T) {
	if !isLowQuality("short", "<html></html>") {
		t.Error("expected short text to be low quality")
	}
	longRaw := repeat("x", 5000)
	if !isLowQuality(repeat("a", 150), longRaw) {
		t.Error("expected text under 10% of a large raw document to be low quality")
	}
}

func TestCapSize_TruncatesOverBudget(t *testing.T) {
	big := repeat("a", maxResultBytes*2)
	out := capSize(big)
	if len(out) >= len(big) {
		t.Fatal("expected truncated output to be smaller than input")
	}
}

func repeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}
