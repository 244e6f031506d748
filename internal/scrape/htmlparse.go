package scrape

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// parseStaticHTML walks the parsed document tree once, collecting the
// title, headings, and paragraph-like text into the composite block format
// `Title: / Headings: / Paragraphs: / Body:` described for the fast path.
func parseStaticHTML(rawHTML string) *Result {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return &Result{Content: ""}
	}

	var title string
	var headings []string
	var paragraphs []string
	var bodyParts []string

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				return
			case "title":
				if title == "" {
					title = strings.TrimSpace(textContent(n))
				}
			case "h1", "h2", "h3", "h4", "h5", "h6":
				if t := strings.TrimSpace(textContent(n)); t != "" {
					headings = append(headings, t)
				}
			case "p":
				if t := strings.TrimSpace(textContent(n)); t != "" {
					paragraphs = append(paragraphs, t)
				}
			}
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" && !isScriptOrStyleParent(n) {
				bodyParts = append(bodyParts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	var b strings.Builder
	if title != "" {
		b.WriteString("Title: ")
		b.WriteString(title)
		b.WriteString("\n\n")
	}
	if len(headings) > 0 {
		b.WriteString("Headings:\n")
		for _, h := range headings {
			b.WriteString("- ")
			b.WriteString(h)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	if len(paragraphs) > 0 {
		b.WriteString("Paragraphs:\n")
		for _, p := range paragraphs {
			b.WriteString(p)
			b.WriteString("\n\n")
		}
	}
	if len(bodyParts) > 0 {
		b.WriteString("Body:\n")
		b.WriteString(strings.Join(bodyParts, " "))
	}

	return &Result{Content: b.String(), Citation: extractCitation(rawHTML)}
}

func isScriptOrStyleParent(n *html.Node) bool {
	p := n.Parent
	return p != nil && p.Type == html.ElementNode && (p.Data == "script" || p.Data == "style")
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

var (
	metaTagPattern  = regexp.MustCompile(`(?is)<meta\s+[^>]*>`)
	titleTagPattern = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	timeTagPattern  = regexp.MustCompile(`(?is)<time[^>]*datetime="([^"]*)"`)
	metaNamePattern = regexp.MustCompile(`(?is)(?:property|name)\s*=\s*"([^"]+)"`)
	metaContPattern = regexp.MustCompile(`(?is)content\s*=\s*"([^"]*)"`)
)

// extractCitation pulls <title>, og:*/article:* meta tags, and <time>
// elements out of the raw HTML via lightweight regex rather than a full
// tree walk, since citation extraction only needs the <head>.
func extractCitation(rawHTML string) *Citation {
	c := &Citation{}

	if m := titleTagPattern.FindStringSubmatch(rawHTML); m != nil {
		c.Title = strings.TrimSpace(stripTags(m[1]))
	}

	for _, tag := range metaTagPattern.FindAllString(rawHTML, -1) {
		nameMatch := metaNamePattern.FindStringSubmatch(tag)
		contentMatch := metaContPattern.FindStringSubmatch(tag)
		if nameMatch == nil || contentMatch == nil {
			continue
		}
		name := strings.ToLower(nameMatch[1])
		content := contentMatch[1]
		switch name {
		case "og:title":
			if c.Title == "" {
				c.Title = content
			}
		case "og:site_name":
			c.SiteName = content
		case "article:author", "author":
			c.Author = content
		case "article:published_time", "datepublished":
			c.PublishedTime = content
		}
	}

	if c.PublishedTime == "" {
		if m := timeTagPattern.FindStringSubmatch(rawHTML); m != nil {
			c.PublishedTime = m[1]
		}
	}

	if *c == (Citation{}) {
		return nil
	}
	return c
}

var tagPattern = regexp.MustCompile(`(?s)<[^>]*>`)

func stripTags(s string) string {
	return tagPattern.ReplaceAllString(s, "")
}

// extractInlineScripts returns the textual bodies of every inline <script>
// element (scripts with a src attribute are skipped: no network fetch of
// external scripts is attempted).
func extractInlineScripts(rawHTML string) []string {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil
	}
	var scripts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "script" {
			hasSrc := false
			for _, a := range n.Attr {
				if a.Key == "src" {
					hasSrc = true
					break
				}
			}
			if !hasSrc {
				if body := textContent(n); strings.TrimSpace(body) != "" {
					scripts = append(scripts, body)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return scripts
}
