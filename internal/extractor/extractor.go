package extractor

import (
	"bytes"
	"errors"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	"github.com/go-shiori/go-readability"
	"github.com/pemistahl/lingua-go"

	"github.com/linkbrief/linkbrief/internal/models"
)

// ErrInsufficient means both extraction passes ran but neither produced
// enough text to be worth summarizing.
var ErrInsufficient = errors.New("no usable article content")

const (
	minReadabilityChars = 50
	minFallbackChars    = 10

	fallbackTitle = "Untitled article"
)

var (
	containerClassPattern = regexp.MustCompile(`(?i)(post|content|article|text|body|entry|story|paragraph|reader)`)
	containerIDPattern    = regexp.MustCompile(`(?i)(post|content|article|text|body|entry|story|main)`)
)

// Extractor turns raw page HTML into structured article content. It tries
// readability first and falls back to a permissive goquery pass for pages
// readability gives up on.
type Extractor struct {
	logger *slog.Logger

	detectorOnce sync.Once
	detector     lingua.LanguageDetector
}

func New(logger *slog.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// Extract parses html fetched from rawURL. The returned content always has a
// non-empty Title and Text; everything else is best effort.
func (e *Extractor) Extract(rawURL string, html []byte) (*models.ArticleContent, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	doc, docErr := goquery.NewDocumentFromReader(bytes.NewReader(html))

	article, err := readability.FromReader(bytes.NewReader(html), parsedURL)
	if err == nil && len(strings.TrimSpace(article.TextContent)) > minReadabilityChars {
		content := e.fromReadability(rawURL, article)
		if docErr == nil {
			enrichFromMeta(content, doc)
		}
		return content, nil
	}
	if err != nil {
		e.logger.Debug("readability pass failed, trying permissive pass", "url", rawURL, "error", err)
	} else {
		e.logger.Debug("readability produced too little text, trying permissive pass", "url", rawURL)
	}

	if docErr != nil {
		return nil, docErr
	}
	content := e.fromDocument(rawURL, doc)
	if len(strings.TrimSpace(content.Text)) <= minFallbackChars {
		return nil, ErrInsufficient
	}
	return content, nil
}

func (e *Extractor) fromReadability(rawURL string, article readability.Article) *models.ArticleContent {
	content := &models.ArticleContent{
		URL:         rawURL,
		Title:       strings.TrimSpace(article.Title),
		Text:        normalizeText(article.TextContent),
		Author:      strings.TrimSpace(article.Byline),
		Description: strings.TrimSpace(article.Excerpt),
		SiteName:    strings.TrimSpace(article.SiteName),
	}
	if content.Title == "" {
		content.Title = fallbackTitle
	}
	if article.PublishedTime != nil {
		content.Date = article.PublishedTime.Format("2006-01-02")
	}
	if article.Image != "" {
		content.Images = append(content.Images, article.Image)
	}
	return content
}

// fromDocument is the permissive pass: strip obvious chrome, then walk a
// chain of container heuristics from most to least specific.
func (e *Extractor) fromDocument(rawURL string, doc *goquery.Document) *models.ArticleContent {
	doc.Find("script,style,header,footer,nav,aside,iframe").Remove()

	container := doc.Find("article").First()
	if container.Length() == 0 {
		container = doc.Find("main").First()
	}
	if container.Length() == 0 {
		container = findByAttr(doc, "class", containerClassPattern)
	}
	if container.Length() == 0 {
		container = findByAttr(doc, "id", containerIDPattern)
	}
	if container.Length() == 0 {
		container = doc.Find("body")
	}

	content := &models.ArticleContent{
		URL:   rawURL,
		Title: extractTitle(doc),
		Text:  normalizeText(container.Text()),
	}
	enrichFromMeta(content, doc)
	return content
}

// findByAttr returns the first element whose given attribute matches the
// pattern, or an empty selection.
func findByAttr(doc *goquery.Document, attr string, pattern *regexp.Regexp) *goquery.Selection {
	var match *goquery.Selection
	doc.Find("div,section,td").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		val, ok := s.Attr(attr)
		if ok && pattern.MatchString(val) {
			match = s
			return false
		}
		return true
	})
	if match == nil {
		return doc.Find("nothing-matched")
	}
	return match
}

func extractTitle(doc *goquery.Document) string {
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	for _, sel := range []string{`meta[property="og:title"]`, `meta[name="twitter:title"]`} {
		if val, ok := doc.Find(sel).First().Attr("content"); ok && strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val)
		}
	}
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	return fallbackTitle
}

// enrichFromMeta fills fields the main pass left empty from the page's meta
// tags.
func enrichFromMeta(content *models.ArticleContent, doc *goquery.Document) {
	meta := func(sel string) string {
		val, _ := doc.Find(sel).First().Attr("content")
		return strings.TrimSpace(val)
	}

	if content.Author == "" {
		content.Author = meta(`meta[name="author"]`)
	}
	if content.Description == "" {
		if desc := meta(`meta[property="og:description"]`); desc != "" {
			content.Description = desc
		} else {
			content.Description = meta(`meta[name="description"]`)
		}
	}
	if content.SiteName == "" {
		content.SiteName = meta(`meta[property="og:site_name"]`)
	}
	if content.Date == "" {
		for _, sel := range []string{`meta[property="article:published_time"]`, `meta[name="date"]`} {
			if raw := meta(sel); raw != "" {
				if ts, err := dateparse.ParseAny(raw); err == nil {
					content.Date = ts.Format("2006-01-02")
					break
				}
			}
		}
	}
	if len(content.Images) == 0 {
		if img := meta(`meta[property="og:image"]`); img != "" {
			content.Images = append(content.Images, img)
		}
	}

	doc.Find(`meta[property="article:tag"]`).Each(func(_ int, s *goquery.Selection) {
		if val, ok := s.Attr("content"); ok && strings.TrimSpace(val) != "" {
			content.Tags = append(content.Tags, strings.TrimSpace(val))
		}
	})
	if len(content.Tags) == 0 {
		if keywords := meta(`meta[name="keywords"]`); keywords != "" {
			for _, kw := range strings.Split(keywords, ",") {
				if kw = strings.TrimSpace(kw); kw != "" {
					content.Tags = append(content.Tags, kw)
				}
			}
		}
	}
	if section := meta(`meta[property="article:section"]`); section != "" {
		content.Categories = append(content.Categories, section)
	}
}

// DetectLanguage returns the display name of the dominant language of text,
// or the empty string when detection has no confident answer. The detector
// is built lazily since loading the language models is expensive.
func (e *Extractor) DetectLanguage(text string) string {
	const sampleLimit = 1000
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	text = clampSample(text, sampleLimit)

	e.detectorOnce.Do(func() {
		e.detector = lingua.NewLanguageDetectorBuilder().
			FromAllSpokenLanguages().
			WithLowAccuracyMode().
			Build()
	})

	language, ok := e.detector.DetectLanguageOf(text)
	if !ok {
		return ""
	}
	return language.String()
}

// clampSample cuts text to at most limit bytes, backing up so a multi-byte
// rune is never split.
func clampSample(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

func normalizeText(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for _, line := range strings.Split(input, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return strings.TrimSpace(b.String())
}
