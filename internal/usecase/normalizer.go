package usecase

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Package-level compiled regex pattern for URLs embedded in free text
var embeddedURLRegex = regexp.MustCompile(`(?i)https?://[^\s"'<>]+`)

// defaultStopWords includes Spanish and English function words plus
// marketing modifiers that say nothing about which product is shown
var defaultStopWords = []string{
	// Spanish
	"de", "del", "la", "las", "el", "los", "un", "una", "unos", "unas",
	"y", "o", "con", "sin", "para", "por", "en", "al", "que", "su", "sus",
	"mi", "mis", "tu", "tus", "es", "muy", "mas", "este", "esta", "estos", "estas",
	// English
	"the", "and", "for", "with", "from", "this", "that", "your", "you", "are", "new",
	// Marketing
	"pro", "plus", "max", "ultra", "premium", "original", "nuevo", "nueva", "oferta",
	"envio", "gratis", "pack", "set", "kit",
}

// Normalize canonicalizes free text for comparison: lowercase, accents removed,
// emoji and punctuation turned into spaces, whitespace collapsed and trimmed.
// It is pure and idempotent.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	// Lowercase first: some uppercase letters lowercase into a base letter plus a combining mark
	lowered := strings.ToLower(text)

	stripper := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(stripper, lowered)
	if err != nil {
		stripped = lowered
	}

	var b strings.Builder
	b.Grow(len(stripped))
	for _, r := range stripped {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// Tokenize normalizes s and returns the tokens longer than minLength runes
// that are not stop words
func Tokenize(s string, minLength int, stopWords map[string]bool) []string {
	return tokenizeNormalized(Normalize(s), minLength, stopWords)
}

func tokenizeNormalized(normalized string, minLength int, stopWords map[string]bool) []string {
	var tokens []string
	for _, word := range strings.Fields(normalized) {
		if utf8.RuneCountInString(word) <= minLength {
			continue
		}
		if stopWords[word] {
			continue
		}
		tokens = append(tokens, word)
	}
	return tokens
}

// NormalizeURL reduces a product URL to host+path for equality checks.
// Scheme, "www."/"m." prefixes, query, fragment and trailing slashes are dropped.
// Unparsable input yields "".
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return ""
	}

	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimPrefix(host, "m.")

	path := strings.TrimRight(strings.ToLower(u.Path), "/")
	return host + path
}

// ExtractShopURLs returns the normalized shop/product URLs found in the given texts
func ExtractShopURLs(texts ...string) []string {
	var found []string
	seen := make(map[string]bool)
	for _, text := range texts {
		for _, raw := range embeddedURLRegex.FindAllString(text, -1) {
			normalized := NormalizeURL(strings.TrimRight(raw, ".,;:!?)"))
			if normalized == "" || seen[normalized] || !isShopURL(normalized) {
				continue
			}
			seen[normalized] = true
			found = append(found, normalized)
		}
	}
	return found
}

// isShopURL checks a normalized URL for a storefront host or a product path
func isShopURL(normalized string) bool {
	host, path, _ := strings.Cut(normalized, "/")
	for _, label := range strings.Split(host, ".") {
		if strings.Contains(label, "shop") {
			return true
		}
	}
	return strings.Contains("/"+path, "/product")
}
