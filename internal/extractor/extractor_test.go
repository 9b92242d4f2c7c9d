package extractor

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"unicode/utf8"
)

func testExtractor() *Extractor {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

const readableHTML = `<!DOCTYPE html>
<html>
<head>
<title>Go Concurrency Patterns</title>
<meta property="og:site_name" content="Example Blog">
<meta property="article:published_time" content="2024-03-15T09:30:00Z">
<meta property="article:tag" content="golang">
<meta property="article:tag" content="concurrency">
<meta property="article:section" content="Engineering">
</head>
<body>
<article>
<h1>Go Concurrency Patterns</h1>
<p>Goroutines are lightweight threads managed by the Go runtime. They make it
practical to structure programs around many small concurrent activities.</p>
<p>Channels connect goroutines and let them exchange values without explicit
locking. Select statements multiplex over several channels at once.</p>
<p>Together these primitives support patterns such as pipelines, fan-out and
fan-in, and cancellation that compose well in larger systems.</p>
</article>
</body>
</html>`

func TestExtract_ReadabilityPath(t *testing.T) {
	content, err := testExtractor().Extract("https://example.com/post", []byte(readableHTML))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if content.Title != "Go Concurrency Patterns" {
		t.Errorf("Title = %q", content.Title)
	}
	if !strings.Contains(content.Text, "Goroutines are lightweight threads") {
		t.Errorf("Text missing article body: %q", content.Text)
	}
	if content.URL != "https://example.com/post" {
		t.Errorf("URL = %q", content.URL)
	}
	if content.SiteName != "Example Blog" {
		t.Errorf("SiteName = %q", content.SiteName)
	}
	if content.Date != "2024-03-15" {
		t.Errorf("Date = %q", content.Date)
	}
	if len(content.Tags) != 2 || content.Tags[0] != "golang" || content.Tags[1] != "concurrency" {
		t.Errorf("Tags = %v", content.Tags)
	}
	if len(content.Categories) != 1 || content.Categories[0] != "Engineering" {
		t.Errorf("Categories = %v", content.Categories)
	}
}

func TestExtract_FallbackClassHeuristic(t *testing.T) {
	// Too little text for the readability gate, but a recognizable
	// content container class.
	html := `<html>
<head><title>Short note</title></head>
<body>
<nav>menu</nav>
<div class="sidebar">ads</div>
<div class="post-content">A short note worth keeping.</div>
<footer>(c)</footer>
</body>
</html>`

	content, err := testExtractor().Extract("https://example.com/note", []byte(html))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if content.Title != "Short note" {
		t.Errorf("Title = %q", content.Title)
	}
	if !strings.Contains(content.Text, "A short note worth keeping.") {
		t.Errorf("Text = %q", content.Text)
	}
	if strings.Contains(content.Text, "ads") || strings.Contains(content.Text, "(c)") {
		t.Errorf("Text contains stripped chrome: %q", content.Text)
	}
}

func TestExtract_FallbackStripsScriptsAndNav(t *testing.T) {
	html := `<html><head><title>t</title></head><body>
<script>var tracking = true;</script>
<header>hdr</header>
<main>Main body text to keep.</main>
<aside>links</aside>
</body></html>`

	content, err := testExtractor().Extract("https://example.com/a", []byte(html))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	for _, gone := range []string{"tracking", "hdr", "links"} {
		if strings.Contains(content.Text, gone) {
			t.Errorf("Text contains %q: %q", gone, content.Text)
		}
	}
	if !strings.Contains(content.Text, "Main body text") {
		t.Errorf("Text = %q", content.Text)
	}
}

func TestExtract_TitleFallbackChain(t *testing.T) {
	tests := []struct {
		name string
		head string
		body string
		want string
	}{
		{
			name: "og title when no title tag",
			head: `<meta property="og:title" content="From OpenGraph">`,
			body: `<div id="main-text">Words past the gate.</div>`,
			want: "From OpenGraph",
		},
		{
			name: "h1 when no meta",
			head: ``,
			body: `<h1>Heading Title</h1><div id="main-text">Words past the gate.</div>`,
			want: "Heading Title",
		},
		{
			name: "placeholder when nothing",
			head: ``,
			body: `<div id="main-text">Words past the gate.</div>`,
			want: fallbackTitle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			html := "<html><head>" + tt.head + "</head><body>" + tt.body + "</body></html>"
			content, err := testExtractor().Extract("https://example.com/a", []byte(html))
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if content.Title != tt.want {
				t.Errorf("Title = %q, want %q", content.Title, tt.want)
			}
		})
	}
}

func TestExtract_InsufficientContent(t *testing.T) {
	html := `<html><head><title>empty</title></head><body><div>hi</div></body></html>`
	_, err := testExtractor().Extract("https://example.com/empty", []byte(html))
	if !errors.Is(err, ErrInsufficient) {
		t.Errorf("error = %v, want ErrInsufficient", err)
	}
}

func TestExtract_InvalidURL(t *testing.T) {
	_, err := testExtractor().Extract("://not-a-url", []byte(readableHTML))
	if err == nil {
		t.Error("Extract() error = nil for malformed URL")
	}
}

func TestDetectLanguage(t *testing.T) {
	e := testExtractor()
	if got := e.DetectLanguage("The quick brown fox jumps over the lazy dog near the river bank."); got != "English" {
		t.Errorf("DetectLanguage = %q, want English", got)
	}
	if got := e.DetectLanguage(""); got != "" {
		t.Errorf("DetectLanguage(empty) = %q, want empty", got)
	}
}

func TestNormalizeText(t *testing.T) {
	in := "  first line  \n\n\n   second line\t\n"
	want := "first line\nsecond line"
	if got := normalizeText(in); got != want {
		t.Errorf("normalizeText = %q, want %q", got, want)
	}
}

func TestClampSample(t *testing.T) {
	if got := clampSample("short", 1000); got != "short" {
		t.Errorf("got %q, want input unchanged", got)
	}
	if got := clampSample("abcdef", 3); got != "abc" {
		t.Errorf("got %q, want %q", got, "abc")
	}

	// The cut point lands mid-rune; the sample must stay valid UTF-8 for the
	// language detector.
	sample := clampSample(strings.Repeat("ü", 600), 1001)
	if !utf8.ValidString(sample) {
		t.Error("sample is not valid UTF-8")
	}
	if len(sample) != 1000 {
		t.Errorf("sample length = %d, want 1000", len(sample))
	}
}
