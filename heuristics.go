package identify

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// listingPatterns are URL substrings indicating category/search/listing pages
// rather than deep product links. The filter is deliberately conservative:
// rejecting a real product page is acceptable, letting a listing page through
// is not.
var listingPatterns = []string{
	"/category",
	"/cat/",
	"/search",
	"/recherche",
	"/famille",
	"/resultats",
	"filter=",
	"/collections/",
	"page=",
	"/shop?",
}

// trustedMarketplaces are domains of known DIY/hardware retailers. A candidate
// hosted on one of these starts with a higher base score.
var trustedMarketplaces = map[string]bool{
	"leroymerlin.fr":       true,
	"castorama.fr":         true,
	"bricodepot.fr":        true,
	"manomano.fr":          true,
	"mr-bricolage.fr":      true,
	"cedeo.fr":             true,
	"amazon.fr":            true,
	"amazon.com":           true,
	"union-materiaux.fr":   true,
	"auforumdubatiment.fr": true,
	"sikkens-solutions.fr": true,
}

var (
	// priceRe matches currency amounts like "19,90 €", "19.90 EUR" or "12 €".
	priceRe = regexp.MustCompile(`\d+(?:[.,]\d{2})?\s*(?:€|eur)`)

	// skuRe matches reference/SKU tokens ("reference: X123", "ref. AB-42",
	// "sku: 10412"). Input is accent-folded first so "référence" matches too.
	skuRe = regexp.MustCompile(`(?:reference|ref\.?|sku|code article|ean)\s*:?\s*[a-z0-9][a-z0-9_-]{2,}`)

	// dimensionRe matches explicit millimetre dimensions ("35mm", "15 mm").
	dimensionRe = regexp.MustCompile(`\d+\s*mm\b`)

	// productMarkup matches commerce microdata and shop-page markers.
	productMarkup = []string{
		`itemprop="price"`,
		`itemprop='price'`,
		`property="product:price:amount"`,
		`property="og:type" content="product"`,
		`content="product" property="og:type"`,
		`class="price`,
		`"@type":"product"`,
		`ajouter au panier`,
		`add to cart`,
		`add to basket`,
	}
)

// foldAccents strips diacritics so French commerce tokens ("référence",
// "réf.") can be matched with plain ASCII patterns.
func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// DomainOf returns the lowercased host of rawURL with any "www." prefix
// stripped. It returns "" on unparsable input, never an error.
func DomainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// IsTrustedMarketplace reports whether domain belongs to the retailer allowlist.
func IsTrustedMarketplace(domain string) bool {
	return trustedMarketplaces[domain]
}

// IsStructurallyValid reports whether rawURL could plausibly be a deep product
// link: non-empty, http(s), and free of listing/search/category markers.
func IsStructurallyValid(rawURL string) bool {
	if rawURL == "" || !strings.HasPrefix(rawURL, "http") {
		return false
	}
	lower := strings.ToLower(rawURL)
	for _, p := range listingPatterns {
		if strings.Contains(lower, p) {
			return false
		}
	}
	return true
}

// LooksLikeProductPage reports whether the page text carries commerce
// microdata or part-number/price/dimension mentions. Positive signal only,
// never used as a hard gate.
func LooksLikeProductPage(htmlText string) bool {
	folded := foldAccents(strings.ToLower(htmlText))
	for _, m := range productMarkup {
		if strings.Contains(folded, m) {
			return true
		}
	}
	if skuRe.MatchString(folded) {
		return true
	}
	if priceRe.MatchString(folded) && dimensionRe.MatchString(folded) {
		return true
	}
	return false
}

// HasPricePattern reports whether the text contains a currency amount.
func HasPricePattern(htmlText string) bool {
	return priceRe.MatchString(foldAccents(strings.ToLower(htmlText)))
}

// HasSKUPattern reports whether the text contains a reference/SKU token.
func HasSKUPattern(htmlText string) bool {
	return skuRe.MatchString(foldAccents(strings.ToLower(htmlText)))
}
