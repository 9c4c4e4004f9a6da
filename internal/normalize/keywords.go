package normalize

import (
	"regexp"
	"strings"
)

var tokenPattern = regexp.MustCompile(`[A-Za-z][A-Za-z0-9']{2,}`)

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "that": {}, "this": {},
	"from": {}, "have": {}, "has": {}, "are": {}, "was": {}, "were": {},
	"will": {}, "should": {}, "could": {}, "would": {}, "into": {},
	"about": {}, "over": {}, "under": {}, "after": {}, "before": {},
	"been": {}, "being": {}, "not": {}, "but": {}, "all": {}, "any": {},
	"can": {}, "its": {}, "our": {}, "your": {}, "their": {},
}

// ExtractKeywordsFromText pulls up to n case-insensitively-deduped keyword
// candidates out of text: tokens of length >= 3 containing at least one
// letter, with stopwords and numeric-only tokens removed, in first-seen
// order.
func ExtractKeywordsFromText(text string, n int) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tok := range tokenPattern.FindAllString(text, -1) {
		lower := strings.ToLower(tok)
		if _, stop := stopwords[lower]; stop {
			continue
		}
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}
		out = append(out, lower)
		if len(out) >= n {
			break
		}
	}
	return out
}

// DedupeKeywordsCaseInsensitive removes case-insensitive duplicates from ks,
// keeping first occurrence, and truncates each entry to limit characters.
func DedupeKeywordsCaseInsensitive(ks []string, limit int) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, k := range ks {
		lower := strings.ToLower(strings.TrimSpace(k))
		if lower == "" {
			continue
		}
		if limit > 0 && len(lower) > limit {
			lower = lower[:limit]
		}
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}
		out = append(out, lower)
	}
	return out
}
