package usecase

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"sunkelo/internal/config"
	"sunkelo/internal/domain"
)

// Environment overrides for the strict evidence policy.
const (
	StrictEvidenceModeEnv        = "STRICT_REVIEW_EVIDENCE_MODE"
	StrictMinEcommerceSourcesEnv = "STRICT_REVIEW_MIN_ECOMMERCE_SOURCES"
	StrictMinReviewSignalHitsEnv = "STRICT_REVIEW_MIN_SIGNAL_HITS"
	defaultMinEvidenceThreshold  = 2
)

var userReviewDomains = []string{"amazon.in", "flipkart.com", "myntra.com", "ajio.com"}

var userReviewSignal = regexp.MustCompile(`(?i)(customer reviews?|verified purchase|ratings?|value for money|fit|size|delivery|quality|refund|return)`)

// CollectReviewEvidence counts e-commerce sources and those that read like buyer reviews.
func CollectReviewEvidence(sources []domain.NormalizedSource) domain.ReviewEvidence {
	evidence := domain.ReviewEvidence{TotalSources: len(sources), EcommerceDomains: []string{}}
	seen := map[string]struct{}{}

	for _, source := range sources {
		if source.Type != domain.SourceEcommerce {
			continue
		}
		evidence.EcommerceSourceCount++

		if host := domain.HostOf(source.URL); host != "" && isUserReviewHost(host) {
			if _, ok := seen[host]; !ok {
				seen[host] = struct{}{}
				evidence.EcommerceDomains = append(evidence.EcommerceDomains, host)
			}
		}
		if userReviewSignal.MatchString(source.Content) {
			evidence.ReviewSignalCount++
		}
	}

	evidence.HasUserReviewEvidence = len(evidence.EcommerceDomains) > 0 && evidence.ReviewSignalCount > 0
	return evidence
}

// HasEnoughUserReviewEvidence applies the policy. A disabled policy always passes.
func HasEnoughUserReviewEvidence(evidence domain.ReviewEvidence, policy domain.EvidencePolicy) bool {
	if !policy.Enabled {
		return true
	}
	return evidence.EcommerceSourceCount >= policy.MinEcommerceSources &&
		evidence.ReviewSignalCount >= policy.MinReviewSignals
}

// LoadEvidencePolicy overlays the environment on the configured defaults.
func LoadEvidencePolicy(defaults config.EvidenceConfig) domain.EvidencePolicy {
	return evidencePolicyFrom(defaults, os.Getenv)
}

func evidencePolicyFrom(defaults config.EvidenceConfig, getenv func(string) string) domain.EvidencePolicy {
	policy := domain.EvidencePolicy{
		Enabled:             defaults.Strict,
		MinEcommerceSources: positiveOr(defaults.MinEcommerceSources, defaultMinEvidenceThreshold),
		MinReviewSignals:    positiveOr(defaults.MinReviewSignals, defaultMinEvidenceThreshold),
	}

	if v := strings.TrimSpace(getenv(StrictEvidenceModeEnv)); v != "" {
		policy.Enabled = strings.EqualFold(v, "true")
	}
	if n, ok := parsePositive(getenv(StrictMinEcommerceSourcesEnv)); ok {
		policy.MinEcommerceSources = n
	}
	if n, ok := parsePositive(getenv(StrictMinReviewSignalHitsEnv)); ok {
		policy.MinReviewSignals = n
	}
	return policy
}

func isUserReviewHost(host string) bool {
	for _, d := range userReviewDomains {
		if domain.MatchesDomain(host, d) {
			return true
		}
	}
	return false
}

func parsePositive(value string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func positiveOr(n, fallback int) int {
	if n < 1 {
		return fallback
	}
	return n
}
