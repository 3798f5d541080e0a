package ledger

import (
	"sort"
	"strings"
)

// MaxTokens is the longest keyword kept in the ledger
const MaxTokens = 3

// TruncateKeyword shortens long-tail keywords. Keywords of up to MaxTokens
// tokens are returned unchanged. Longer ones lose their stopwords and, if
// still too long, are cut to the first MaxTokens tokens.
func TruncateKeyword(kw string, stops map[string]bool) string {
	tokens := strings.Fields(kw)
	if len(tokens) <= MaxTokens {
		return kw
	}

	content := tokens[:0:0]
	for _, tok := range tokens {
		if !stops[strings.ToLower(tok)] {
			content = append(content, tok)
		}
	}
	if len(content) > MaxTokens {
		content = content[:MaxTokens]
	}
	return strings.Join(content, " ")
}

// Truncate applies TruncateKeyword to every keyword and returns the
// distinct non-empty results sorted
func Truncate(keywords []string, stops map[string]bool) []string {
	seen := make(map[string]bool, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		t := TruncateKeyword(kw, stops)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// NewKeywords returns today's keywords that never appeared in history,
// truncated, deduplicated and sorted
func NewKeywords(today, history []string, stops map[string]bool) []string {
	seen := make(map[string]bool, len(history))
	for _, kw := range history {
		seen[kw] = true
	}

	var fresh []string
	for _, kw := range today {
		if !seen[kw] {
			fresh = append(fresh, kw)
		}
	}
	return Truncate(fresh, stops)
}
