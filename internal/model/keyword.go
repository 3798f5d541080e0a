package model

import (
	"fmt"
	"time"
)

// Seed lengths supported by the harvester and the cleaner
var SeedLengths = []int{2, 3, 4}

// RankedKeywordRow is one "<keyword>:rank<n>" entry of a raw dump
type RankedKeywordRow struct {
	Keyword string `json:"keyword"`
	Rank    int    `json:"rank"`
}

// Snapshot is the cleaned keyword set of one day for one seed length
type Snapshot struct {
	Date       time.Time          `json:"date"`
	SeedLength int                `json:"seed_length"`
	Rows       []RankedKeywordRow `json:"rows"`
}

// Ranks returns the snapshot as a keyword -> rank map
func (s Snapshot) Ranks() map[string]int {
	ranks := make(map[string]int, len(s.Rows))
	for _, row := range s.Rows {
		ranks[row.Keyword] = row.Rank
	}
	return ranks
}

// TrendRow is one keyword present in both snapshots of a trend join.
// Positive Trend means the keyword moved up between the two days.
type TrendRow struct {
	Keyword      string `json:"keyword" yaml:"keyword"`
	RecentRank   int    `json:"rank_recent" yaml:"rank_recent"`
	PreviousRank int    `json:"rank_previous" yaml:"rank_previous"`
	Trend        int    `json:"trend" yaml:"trend"`
}

// Sentinel rank offsets written by the harvester. The base for a seed of
// length n is 10*(n+1), so 2-letter seeds use 30..32, 3-letter 40..42 and
// 4-letter 50..52.
const (
	SentinelEmpty    = 0 // engine returned no suggestions
	SentinelNetwork  = 1 // transport error
	SentinelNoProxy  = 2 // proxy unavailable, seed skipped
	sentinelSpan     = 3
	sentinelBaseStep = 10
)

// ValidateSeedLength fails fast for seed lengths other than 2, 3 or 4
func ValidateSeedLength(n int) error {
	for _, l := range SeedLengths {
		if l == n {
			return nil
		}
	}
	return &ValidationError{Field: "seed_length", Value: fmt.Sprint(n), Reason: "only 2, 3 or 4 are supported"}
}

// SentinelRank returns the sentinel rank for a seed length and offset
func SentinelRank(seedLength, offset int) int {
	return sentinelBaseStep*(seedLength+1) + offset
}

// SentinelRanks returns the set of "no further suggestion" ranks for a seed length
func SentinelRanks(seedLength int) (map[int]bool, error) {
	if err := ValidateSeedLength(seedLength); err != nil {
		return nil, err
	}
	ranks := make(map[int]bool, sentinelSpan)
	for off := 0; off < sentinelSpan; off++ {
		ranks[SentinelRank(seedLength, off)] = true
	}
	return ranks, nil
}
