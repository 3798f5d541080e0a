// Package seed builds the 2-, 3- and 4-letter autocomplete seeds from a
// noun list and a locale alphabet.
package seed

import (
	"sort"
	"strings"
)

// Result holds the generated seed layers
type Result struct {
	// Seeds2 is every unordered pair of alphabet letters, unfiltered
	Seeds2 []string
	// Filtered2 is every ordered pair that prefixes at least one noun
	Filtered2 []string
	Seeds3    []string
	Seeds4    []string
}

// Index answers "does any noun start with this prefix" over a sorted list
type Index struct {
	nouns []string
}

// NewIndex lowercases and sorts the nouns
func NewIndex(nouns []string) *Index {
	sorted := make([]string, 0, len(nouns))
	for _, n := range nouns {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" {
			sorted = append(sorted, n)
		}
	}
	sort.Strings(sorted)
	return &Index{nouns: sorted}
}

// HasPrefix reports whether at least one noun starts with prefix
func (ix *Index) HasPrefix(prefix string) bool {
	lo := sort.SearchStrings(ix.nouns, prefix)
	return lo < len(ix.nouns) && strings.HasPrefix(ix.nouns[lo], prefix)
}

// Expand generates all seed layers for the alphabet
func Expand(nouns []string, alphabet string) Result {
	ix := NewIndex(nouns)
	letters := uniqueLetters(alphabet)

	singles := make([]string, len(letters))
	for i, l := range letters {
		singles[i] = string(l)
	}

	filtered2 := Extend(ix, singles, letters)
	seeds3 := Extend(ix, filtered2, letters)
	seeds4 := Extend(ix, seeds3, letters)

	return Result{
		Seeds2:    Combinations(letters),
		Filtered2: filtered2,
		Seeds3:    seeds3,
		Seeds4:    seeds4,
	}
}

// Extend appends every letter to every prefix and keeps the extensions
// that start at least one noun, in prefix-then-alphabet order
func Extend(ix *Index, prefixes []string, letters []rune) []string {
	var out []string
	seen := make(map[string]bool)
	for _, p := range prefixes {
		for _, l := range letters {
			candidate := p + string(l)
			if seen[candidate] || !ix.HasPrefix(candidate) {
				continue
			}
			seen[candidate] = true
			out = append(out, candidate)
		}
	}
	return out
}

// Combinations returns all unordered 2-letter combinations in alphabet order
func Combinations(letters []rune) []string {
	var out []string
	for i := 0; i < len(letters); i++ {
		for j := i + 1; j < len(letters); j++ {
			out = append(out, string(letters[i])+string(letters[j]))
		}
	}
	return out
}

func uniqueLetters(alphabet string) []rune {
	var letters []rune
	seen := make(map[rune]bool)
	for _, r := range alphabet {
		if seen[r] {
			continue
		}
		seen[r] = true
		letters = append(letters, r)
	}
	return letters
}
