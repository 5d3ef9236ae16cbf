package parser

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"sunkelo/internal/domain"
)

var storefronts = map[string]string{
	"amazon.in":    "amazon",
	"flipkart.com": "flipkart",
	"myntra.com":   "myntra",
	"ajio.com":     "ajio",
}

var (
	overallRatingText = regexp.MustCompile(`(?i)(\d(?:\.\d)?)\s*out of\s*5(?:\s*stars)?`)
	ratingsCountText  = regexp.MustCompile(`(?i)([\d,]+)\s+(?:global\s+)?ratings`)
	reviewsCountText  = regexp.MustCompile(`(?i)([\d,]+)\s+reviews`)
	rupeePriceText    = regexp.MustCompile(`₹\s?([\d,]+(?:\.\d+)?)`)
	sampleStarsText   = regexp.MustCompile(`(?i)\b([1-5])(?:\.0)?\s*out of 5 stars\b`)
)

// StorefrontOf names the storefront behind a URL, or "unknown".
func StorefrontOf(rawURL string) string {
	host := domain.HostOf(rawURL)
	for d, name := range storefronts {
		if domain.MatchesDomain(host, d) {
			return name
		}
	}
	return "unknown"
}

// ExtractEcommerceOverview recovers listing metadata from a storefront page.
// Structured markup wins over text patterns.
func ExtractEcommerceOverview(pageURL, title, text, html string) *domain.EcommerceOverview {
	overview := &domain.EcommerceOverview{
		Site:         StorefrontOf(pageURL),
		ProductTitle: strings.TrimSpace(title),
	}

	if strings.TrimSpace(html) != "" {
		fillFromMarkup(overview, html)
	}
	fillFromText(overview, text)

	return overview
}

type ldProduct struct {
	Name            string `json:"name"`
	AggregateRating *struct {
		RatingValue any `json:"ratingValue"`
		RatingCount any `json:"ratingCount"`
		ReviewCount any `json:"reviewCount"`
	} `json:"aggregateRating"`
}

func fillFromMarkup(overview *domain.EcommerceOverview, html string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return
	}

	if v, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(v) != "" {
		overview.ProductTitle = strings.TrimSpace(v)
	}
	if v := attrOrText(doc.Find(`meta[property="product:price:amount"], [itemprop="price"]`).First()); v != "" {
		overview.Price = parseFloat(v)
	}
	if v := attrOrText(doc.Find(`meta[property="product:price:currency"], [itemprop="priceCurrency"]`).First()); v != "" {
		overview.Currency = strings.ToUpper(v)
	}
	if v := attrOrText(doc.Find(`[itemprop="ratingValue"]`).First()); v != "" {
		overview.OverallRating = parseFloat(v)
	}
	if v := attrOrText(doc.Find(`[itemprop="ratingCount"]`).First()); v != "" {
		overview.RatingsCount = parseInt(v)
	}
	if v := attrOrText(doc.Find(`[itemprop="reviewCount"]`).First()); v != "" {
		overview.ReviewsCount = parseInt(v)
	}

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var product ldProduct
		if err := json.Unmarshal([]byte(s.Text()), &product); err != nil || product.AggregateRating == nil {
			return
		}
		if overview.OverallRating == nil {
			overview.OverallRating = parseFloat(stringify(product.AggregateRating.RatingValue))
		}
		if overview.RatingsCount == nil {
			overview.RatingsCount = parseInt(stringify(product.AggregateRating.RatingCount))
		}
		if overview.ReviewsCount == nil {
			overview.ReviewsCount = parseInt(stringify(product.AggregateRating.ReviewCount))
		}
		if overview.ProductTitle == "" {
			overview.ProductTitle = strings.TrimSpace(product.Name)
		}
	})
}

func fillFromText(overview *domain.EcommerceOverview, text string) {
	if overview.OverallRating == nil {
		if m := overallRatingText.FindStringSubmatch(text); m != nil {
			overview.OverallRating = parseFloat(m[1])
		}
	}
	if overview.RatingsCount == nil {
		if m := ratingsCountText.FindStringSubmatch(text); m != nil {
			overview.RatingsCount = parseInt(m[1])
		}
	}
	if overview.ReviewsCount == nil {
		if m := reviewsCountText.FindStringSubmatch(text); m != nil {
			overview.ReviewsCount = parseInt(m[1])
		}
	}
	if overview.Price == nil {
		if m := rupeePriceText.FindStringSubmatch(text); m != nil {
			overview.Price = parseFloat(m[1])
			overview.Currency = "INR"
		}
	}

	samples := sampleStarsText.FindAllStringSubmatch(text, -1)
	if len(samples) == 0 {
		return
	}

	var (
		sum       float64
		sentiment domain.SentimentBreakdown
	)
	for _, m := range samples {
		stars, _ := strconv.Atoi(m[1])
		sum += float64(stars)
		switch {
		case stars >= 4:
			sentiment.Positive++
		case stars <= 2:
			sentiment.Negative++
		default:
			sentiment.Neutral++
		}
	}

	count := len(samples)
	average := float64(int(sum/float64(count)*100+0.5)) / 100
	overview.ReviewSampleCount = &count
	overview.AverageReviewRating = &average
	overview.SentimentBreakdown = &sentiment
}

func attrOrText(s *goquery.Selection) string {
	if s.Length() == 0 {
		return ""
	}
	if v, ok := s.Attr("content"); ok {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(s.Text())
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func parseFloat(s string) *float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseInt(s string) *int {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &v
}
