package usecase

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"sunkelo/internal/domain"
)

const (
	defaultConfidence = 0.6
	defaultBestFor    = "General buyers"
	defaultPro        = "Balanced performance for typical users"
	defaultCon        = "Some trade-offs depend on budget and use-case"
	summaryFiller     = "This review is synthesized from multiple public sources and highlights practical trade-offs for buyers."
	tldrFiller        = "Solid option overall, but compare pricing and your usage before buying."
)

// ValidationIssue names one field of a review that broke its bounds.
type ValidationIssue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// SynthesisError reports which synthesis stage failed.
type SynthesisError struct {
	Stage  string
	Issues []ValidationIssue
	Err    error
}

func (e *SynthesisError) Error() string {
	switch {
	case len(e.Issues) > 0:
		parts := make([]string, 0, len(e.Issues))
		for _, issue := range e.Issues {
			parts = append(parts, issue.Path+": "+issue.Message)
		}
		return fmt.Sprintf("synthesis %s: invalid review: %s", e.Stage, strings.Join(parts, "; "))
	case e.Err != nil:
		return fmt.Sprintf("synthesis %s: %v", e.Stage, e.Err)
	default:
		return "synthesis " + e.Stage + " failed"
	}
}

func (e *SynthesisError) Unwrap() error {
	return e.Err
}

// coerceReview repairs a loosely shaped model answer into a review and validates it.
func coerceReview(candidate map[string]any, inputs []domain.NormalizedSource) (domain.SynthesizedReview, []ValidationIssue) {
	if candidate == nil {
		candidate = map[string]any{}
	}

	pros := coerceStringList(candidate["pros"])
	if len(pros) == 0 {
		pros = []string{defaultPro}
	}
	cons := coerceStringList(candidate["cons"])
	if len(cons) == 0 {
		cons = []string{defaultCon}
	}

	bestFor := coerceString(firstPresent(candidate, "bestFor", "best_for"))
	if bestFor == "" {
		bestFor = defaultBestFor
	}

	review := domain.SynthesizedReview{
		Verdict:         coerceVerdict(candidate["verdict"]),
		Pros:            pros,
		Cons:            cons,
		BestFor:         bestFor,
		Summary:         fitLength(coerceString(candidate["summary"]), domain.MinSummaryLength, domain.MaxSummaryLength, summaryFiller),
		TLDR:            fitLength(coerceString(firstPresent(candidate, "tldr", "tl_dr")), domain.MinTLDRLength, domain.MaxTLDRLength, tldrFiller),
		ConfidenceScore: coerceConfidence(firstPresent(candidate, "confidenceScore", "confidence_score")),
		Sources:         coerceSources(candidate["sources"], inputs),
	}
	return review, validateReview(review)
}

func firstPresent(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func coerceString(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

func coerceStringList(v any) []string {
	var items []string
	switch value := v.(type) {
	case []any:
		for _, item := range value {
			items = append(items, coerceString(item))
		}
	case []string:
		items = value
	case string:
		items = strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == '\n' })
	}

	out := make([]string, 0, domain.MaxListItems)
	for _, item := range items {
		if item = strings.TrimSpace(item); item == "" {
			continue
		}
		out = append(out, item)
		if len(out) == domain.MaxListItems {
			break
		}
	}
	return out
}

func coerceVerdict(v any) domain.Verdict {
	if verdict, ok := domain.ParseVerdict(strings.ToLower(coerceString(v))); ok {
		return verdict
	}
	return domain.VerdictWait
}

func coerceConfidence(v any) float64 {
	var score float64
	switch value := v.(type) {
	case float64:
		score = value
	case int:
		score = float64(value)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return defaultConfidence
		}
		score = parsed
	default:
		return defaultConfidence
	}
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return defaultConfidence
	}
	return math.Max(0, math.Min(1, score))
}

// fitLength pads short text with filler and clips long text, counting runes.
func fitLength(value string, minLen, maxLen int, filler string) string {
	base := strings.TrimSpace(value)
	if base == "" {
		base = filler
	}
	if runeLen(base) < minLen {
		base = strings.TrimSpace(base + " " + filler)
		if limit := max(minLen, runeLen(filler)); runeLen(base) > limit {
			base = string([]rune(base)[:limit])
		}
	}
	if runeLen(base) > maxLen {
		base = strings.TrimSpace(string([]rune(base)[:maxLen]))
	}
	return base
}

func coerceSources(v any, inputs []domain.NormalizedSource) []domain.ReviewSource {
	byURL := make(map[string]domain.NormalizedSource, len(inputs))
	for _, input := range inputs {
		byURL[urlKey(input.URL)] = input
	}

	var out []domain.ReviewSource
	if items, ok := v.([]any); ok {
		for _, item := range items {
			candidate, ok := item.(map[string]any)
			if !ok {
				continue
			}
			normalized, ok := normalizeURL(coerceString(candidate["url"]))
			if !ok {
				continue
			}
			// Citations must point at a source the model was actually given.
			input, found := byURL[urlKey(normalized)]
			if !found {
				continue
			}
			out = append(out, domain.ReviewSource{
				Title:             firstNonBlank(coerceString(candidate["title"]), input.Title),
				URL:               input.URL,
				Type:              input.Type,
				EcommerceOverview: input.Overview,
			})
		}
	}
	if len(out) > 0 {
		return out
	}

	limit := min(len(inputs), domain.MaxListItems)
	out = make([]domain.ReviewSource, 0, limit)
	for _, input := range inputs[:limit] {
		out = append(out, domain.ReviewSource{
			Title:             input.Title,
			URL:               input.URL,
			Type:              input.Type,
			EcommerceOverview: input.Overview,
		})
	}
	return out
}

func normalizeURL(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", false
	}
	return u.String(), true
}

func urlKey(raw string) string {
	return strings.TrimRight(raw, "/")
}

func validateReview(r domain.SynthesizedReview) []ValidationIssue {
	var issues []ValidationIssue
	add := func(path, format string, args ...any) {
		issues = append(issues, ValidationIssue{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if _, ok := domain.ParseVerdict(string(r.Verdict)); !ok {
		add("verdict", "must be buy, skip or wait")
	}
	validateList := func(path string, items []string) {
		if len(items) < 1 || len(items) > domain.MaxListItems {
			add(path, "must contain 1 to %d items", domain.MaxListItems)
		}
		for i, item := range items {
			if strings.TrimSpace(item) == "" {
				add(fmt.Sprintf("%s.%d", path, i), "must not be empty")
			}
		}
	}
	validateList("pros", r.Pros)
	validateList("cons", r.Cons)

	if strings.TrimSpace(r.BestFor) == "" {
		add("bestFor", "must not be empty")
	}
	if n := runeLen(r.Summary); n < domain.MinSummaryLength || n > domain.MaxSummaryLength {
		add("summary", "length %d outside %d..%d", n, domain.MinSummaryLength, domain.MaxSummaryLength)
	}
	if n := runeLen(r.TLDR); n < domain.MinTLDRLength || n > domain.MaxTLDRLength {
		add("tldr", "length %d outside %d..%d", n, domain.MinTLDRLength, domain.MaxTLDRLength)
	}
	if r.ConfidenceScore < 0 || r.ConfidenceScore > 1 {
		add("confidenceScore", "must be within 0..1")
	}
	if len(r.Sources) == 0 {
		add("sources", "must contain at least 1 item")
	}
	for i, s := range r.Sources {
		if strings.TrimSpace(s.Title) == "" {
			add(fmt.Sprintf("sources.%d.title", i), "must not be empty")
		}
		if _, ok := normalizeURL(s.URL); !ok {
			add(fmt.Sprintf("sources.%d.url", i), "must be an absolute http(s) url")
		}
	}
	return issues
}

func runeLen(s string) int {
	return len([]rune(s))
}
