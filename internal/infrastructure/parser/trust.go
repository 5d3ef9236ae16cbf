package parser

import (
	"regexp"
	"strings"

	"sunkelo/internal/domain"
)

var (
	reviewPagePattern   = regexp.MustCompile(`(?i)(product-reviews|/reviews?\b|customer-reviews|#customerreviews|ratings?\b|/p/|/dp/)`)
	reviewIntentPattern = regexp.MustCompile(`(?i)\b(review|reviews|hands[- ]on|unboxing|long[- ]term|pros and cons|vs|comparison|worth it|should you buy)\b`)
)

// FilterTrusted keeps hits on allowed domains, dropping duplicate URLs.
func FilterTrusted(hits []domain.SearchHit, domains []string) []domain.SearchHit {
	seen := make(map[string]struct{}, len(hits))
	trusted := make([]domain.SearchHit, 0, len(hits))
	for _, hit := range hits {
		if !domain.IsTrustedURL(hit.URL, domains) {
			continue
		}
		if _, ok := seen[hit.URL]; ok {
			continue
		}
		seen[hit.URL] = struct{}{}
		trusted = append(trusted, hit)
	}
	return trusted
}

// PreferReviewHits narrows trusted hits to the ones that look like review
// content for the category. When nothing matches the input is returned as is.
func PreferReviewHits(hits []domain.SearchHit, sourceType domain.SourceType) []domain.SearchHit {
	preferred := make([]domain.SearchHit, 0, len(hits))
	for _, hit := range hits {
		if looksLikeReview(hit, sourceType) {
			preferred = append(preferred, hit)
		}
	}
	if len(preferred) == 0 {
		return hits
	}
	return preferred
}

func looksLikeReview(hit domain.SearchHit, sourceType domain.SourceType) bool {
	if sourceType == domain.SourceEcommerce {
		return reviewPagePattern.MatchString(hit.URL) ||
			reviewPagePattern.MatchString(hit.Title) ||
			strings.Contains(strings.ToLower(hit.Description), "rating")
	}
	return reviewIntentPattern.MatchString(hit.Title) ||
		reviewIntentPattern.MatchString(hit.Description) ||
		reviewIntentPattern.MatchString(hit.URL)
}
