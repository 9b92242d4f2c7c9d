package telegram

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/linkbrief/linkbrief/internal/models"
)

// Telegram rejects messages over 4096 characters; leave headroom for the
// header and hashtags.
const maxMessageLen = 4000

var (
	codeBlockPattern  = regexp.MustCompile("(?s)```(?:[a-zA-Z0-9_-]*\n)?(.*?)```")
	inlineCodePattern = regexp.MustCompile("`([^`\n]+)`")
	boldPattern       = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	italicPattern     = regexp.MustCompile(`(?m)(^|[^*\w])\*([^*\n]+)\*`)
	linkPattern       = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^)\s]+)\)`)
	headingPattern    = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
	bulletPattern     = regexp.MustCompile(`(?m)^\s*[*-]\s+`)
)

// markdownToHTML converts the markdown subset LLMs actually emit into
// Telegram's HTML flavor. Unknown constructs pass through as escaped text.
func markdownToHTML(text string) string {
	out := html.EscapeString(text)

	out = codeBlockPattern.ReplaceAllString(out, "<pre>$1</pre>")
	out = inlineCodePattern.ReplaceAllString(out, "<code>$1</code>")
	out = linkPattern.ReplaceAllString(out, `<a href="$2">$1</a>`)
	out = boldPattern.ReplaceAllString(out, "<b>$1</b>")
	out = italicPattern.ReplaceAllString(out, "$1<i>$2</i>")
	out = headingPattern.ReplaceAllString(out, "<b>$1</b>")
	out = bulletPattern.ReplaceAllString(out, "• ")

	return strings.TrimSpace(out)
}

// categoryEmojis give the summary header a small visual cue.
var categoryEmojis = map[string]string{
	"technology":     "💻",
	"engineering":    "💻",
	"science":        "🔬",
	"politics":       "🏛️",
	"finance":        "💰",
	"business":       "💼",
	"cryptocurrency": "🪙",
	"health":         "🩺",
	"sports":         "🏅",
	"entertainment":  "🎬",
}

func titleEmoji(article *models.ArticleContent) string {
	if article == nil {
		return "📰"
	}
	for _, category := range article.Categories {
		if emoji, ok := categoryEmojis[strings.ToLower(category)]; ok {
			return emoji
		}
	}
	for _, tag := range article.Tags {
		if emoji, ok := categoryEmojis[strings.ToLower(tag)]; ok {
			return emoji
		}
	}
	return "📰"
}

// formatSummary builds the delivered HTML message: header line, summary
// body, hashtags.
func formatSummary(article *models.ArticleContent, summary string, hashtags []string) string {
	var sb strings.Builder

	if article != nil {
		sb.WriteString(titleEmoji(article))
		sb.WriteString(" <b>")
		sb.WriteString(html.EscapeString(article.Title))
		sb.WriteString("</b>")
		if article.URL != "" {
			fmt.Fprintf(&sb, "\n<a href=%q>%s</a>", article.URL, html.EscapeString(displayHost(article.URL)))
		}
		sb.WriteString("\n\n")
	}

	sb.WriteString(markdownToHTML(summary))

	if len(hashtags) > 0 {
		sb.WriteString("\n\n")
		sb.WriteString(html.EscapeString(strings.Join(hashtags, " ")))
	}
	return sb.String()
}

// truncateText cuts s to at most limit bytes without splitting a UTF-8
// sequence. Short input comes back unchanged.
func truncateText(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

var hostPattern = regexp.MustCompile(`^https?://([^/]+)`)

func displayHost(url string) string {
	if m := hostPattern.FindStringSubmatch(url); m != nil {
		return strings.TrimPrefix(m[1], "www.")
	}
	return url
}
