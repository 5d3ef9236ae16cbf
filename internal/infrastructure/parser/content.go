package parser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// MaxSourceContent caps the cleaned text kept per source, in runes.
const MaxSourceContent = 2000

var (
	markdownImage  = regexp.MustCompile(`!\[[^\]]*]\([^)]*\)`)
	markdownLink   = regexp.MustCompile(`\[([^\]]+)]\([^)]*\)`)
	codeFence      = regexp.MustCompile("`{1,3}")
	linePrefix     = regexp.MustCompile(`(?m)^[>#*|\-+]+\s*`)
	whitespaceRuns = regexp.MustCompile(`\s+`)

	boilerplate = []*regexp.Regexp{
		regexp.MustCompile(`(?i)privacy policy`),
		regexp.MustCompile(`(?i)terms (of service|and conditions)`),
		regexp.MustCompile(`(?i)cookies? (policy|preferences)`),
		regexp.MustCompile(`(?i)subscribe to (our )?newsletter`),
		regexp.MustCompile(`(?i)sign in to (continue|read more)`),
		regexp.MustCompile(`(?i)advertisement`),
		regexp.MustCompile(`(?i)sponsored`),
		regexp.MustCompile(`(?i)related (articles|posts)`),
	}
)

// CleanMarkdown strips markup and site chrome from scraped markdown and
// truncates the result to MaxSourceContent runes.
func CleanMarkdown(markdown string) string {
	text := markdownImage.ReplaceAllString(markdown, " ")
	text = markdownLink.ReplaceAllString(text, "$1")
	text = codeFence.ReplaceAllString(text, " ")
	text = linePrefix.ReplaceAllString(text, " ")
	text = strings.ReplaceAll(text, "|", " ")

	for _, pattern := range boilerplate {
		text = pattern.ReplaceAllString(text, " ")
	}

	text = strings.TrimSpace(whitespaceRuns.ReplaceAllString(text, " "))
	return truncateAtSentence(text, MaxSourceContent)
}

// HTMLText extracts readable text from a page body when no markdown is available.
func HTMLText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript, nav, header, footer, aside, form").Remove()

	var parts []string
	doc.Find("h1, h2, h3, p, li, blockquote").Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	if len(parts) == 0 {
		return strings.TrimSpace(doc.Find("body").Text())
	}
	return strings.Join(parts, "\n")
}

// truncateAtSentence cuts at the last sentence end inside the limit when that
// keeps at least 60% of the allowed length.
func truncateAtSentence(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}

	candidate := runes[:limit]
	cutoff := -1
	for i := len(candidate) - 1; i >= 0; i-- {
		if r := candidate[i]; r == '.' || r == '!' || r == '?' {
			cutoff = i
			break
		}
	}

	if cutoff >= limit*6/10 {
		return strings.TrimSpace(string(candidate[:cutoff+1]))
	}
	return strings.TrimSpace(string(candidate))
}
