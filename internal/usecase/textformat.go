package usecase

import (
	"regexp"
	"strings"
)

var headingLine = regexp.MustCompile(`^[A-Z_]+:`)

// parseTextReview reads the heading format into the same loose shape the
// JSON path produces, so both go through coerceReview.
func parseTextReview(text string) map[string]any {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}

	value := func(prefix string) string {
		for _, line := range lines {
			if strings.HasPrefix(strings.ToUpper(line), prefix) {
				return strings.TrimSpace(line[len(prefix):])
			}
		}
		return ""
	}

	bullets := func(section string) []any {
		start := -1
		for i, line := range lines {
			if strings.ToUpper(line) == section {
				start = i
				break
			}
		}
		if start < 0 {
			return nil
		}

		var items []any
		for _, line := range lines[start+1:] {
			if headingLine.MatchString(line) {
				break
			}
			if item, ok := strings.CutPrefix(line, "- "); ok {
				if item = strings.TrimSpace(item); item != "" {
					items = append(items, item)
				}
			}
		}
		return items
	}

	var sources []any
	for _, bullet := range bullets("SOURCES:") {
		parts := strings.Split(bullet.(string), "|")
		if len(parts) < 2 {
			continue
		}
		title := strings.TrimSpace(parts[0])
		if title == "" {
			title = "Source"
		}
		sourceType := "blog"
		if len(parts) > 2 {
			switch t := strings.ToLower(strings.TrimSpace(parts[2])); t {
			case "ecommerce", "youtube":
				sourceType = t
			}
		}
		sources = append(sources, map[string]any{
			"title": title,
			"url":   strings.TrimSpace(parts[1]),
			"type":  sourceType,
		})
	}

	return map[string]any{
		"verdict":         strings.ToLower(value("VERDICT:")),
		"confidenceScore": value("CONFIDENCE:"),
		"bestFor":         value("BEST_FOR:"),
		"summary":         value("SUMMARY:"),
		"tldr":            value("TLDR:"),
		"pros":            bullets("PROS:"),
		"cons":            bullets("CONS:"),
		"sources":         sources,
	}
}
