// Package snapshot parses and cleans the per-day raw keyword dumps.
package snapshot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ppiankov/kwharvest/internal/model"
)

// RankMarker separates the keyword from its rank in a raw line
const RankMarker = ":rank"

// MalformedRowError describes a raw line that could not be parsed
type MalformedRowError struct {
	Line   int // 1-based line number in the raw dump
	Text   string
	Reason string
}

func (e *MalformedRowError) Error() string {
	return fmt.Sprintf("malformed row %d %q: %s", e.Line, e.Text, e.Reason)
}

// Cleaned is the outcome of cleaning one raw dump
type Cleaned struct {
	Rows      []model.RankedKeywordRow
	Malformed []*MalformedRowError
}

// FormatRow renders a row in raw dump format
func FormatRow(row model.RankedKeywordRow) string {
	return row.Keyword + RankMarker + strconv.Itoa(row.Rank)
}

// ParseRow parses "<keyword>:rank<integer>"
func ParseRow(text string) (model.RankedKeywordRow, error) {
	keyword, rank, found := strings.Cut(text, RankMarker)
	if !found {
		return model.RankedKeywordRow{}, &MalformedRowError{Text: text, Reason: "missing " + RankMarker + " marker"}
	}
	n, err := strconv.Atoi(strings.TrimSpace(rank))
	if err != nil {
		return model.RankedKeywordRow{}, &MalformedRowError{Text: text, Reason: "rank is not an integer"}
	}
	if n <= 0 {
		return model.RankedKeywordRow{}, &MalformedRowError{Text: text, Reason: "rank must be positive"}
	}
	return model.RankedKeywordRow{Keyword: keyword, Rank: n}, nil
}

// Clean turns raw dump lines into a cleaned keyword set:
//   - exact duplicate lines are dropped
//   - malformed lines are skipped and reported
//   - sentinel ranks of the seed length are dropped
//   - the last row per keyword wins, kept at its own position
//   - single-token keywords are dropped
func Clean(lines []string, seedLength int) (*Cleaned, error) {
	sentinels, err := model.SentinelRanks(seedLength)
	if err != nil {
		return nil, err
	}

	out := &Cleaned{}
	seenLines := make(map[string]bool, len(lines))
	var parsed []model.RankedKeywordRow
	for i, line := range lines {
		line = strings.TrimRight(line, "\r\n")
		if line == "" || seenLines[line] {
			continue
		}
		seenLines[line] = true

		row, err := ParseRow(line)
		var merr *MalformedRowError
		if errors.As(err, &merr) {
			merr.Line = i + 1
			out.Malformed = append(out.Malformed, merr)
			continue
		}
		if sentinels[row.Rank] {
			continue
		}
		parsed = append(parsed, row)
	}

	last := make(map[string]int, len(parsed))
	for i, row := range parsed {
		last[row.Keyword] = i
	}

	for i, row := range parsed {
		if last[row.Keyword] != i {
			continue
		}
		if len(strings.Fields(row.Keyword)) <= 1 {
			continue
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

// NormalizeKeyword applies the keyword normalization used when comparing
// days: slashes become spaces and apostrophes are dropped
func NormalizeKeyword(kw string) string {
	kw = strings.ReplaceAll(kw, "/", " ")
	return strings.ReplaceAll(kw, "'", "")
}
