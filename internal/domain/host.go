package domain

import (
	"net/url"
	"strings"
)

// HostOf returns the lowercased hostname of a URL without a leading "www.".
func HostOf(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
}

// MatchesDomain reports whether host is the allowed domain or one of its subdomains.
func MatchesDomain(host, allowed string) bool {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	allowed = strings.ToLower(strings.TrimSpace(allowed))
	if host == "" || allowed == "" {
		return false
	}
	return host == allowed || strings.HasSuffix(host, "."+allowed)
}

// IsTrustedURL reports whether the URL belongs to one of the allowed domains.
func IsTrustedURL(rawURL string, domains []string) bool {
	host := HostOf(rawURL)
	for _, d := range domains {
		if MatchesDomain(host, d) {
			return true
		}
	}
	return false
}
