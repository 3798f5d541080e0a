// Package trend joins two cleaned snapshots and ranks rising keywords.
package trend

import (
	"sort"

	"github.com/ppiankov/kwharvest/internal/model"
)

// DefaultTop is the size of the rising keywords report
const DefaultTop = 50

// Compute inner-joins recent and previous on keyword. Rows follow the
// order of the recent snapshot; Trend = PreviousRank - RecentRank.
func Compute(recent, previous model.Snapshot) []model.TrendRow {
	prev := previous.Ranks()

	rows := make([]model.TrendRow, 0, len(recent.Rows))
	seen := make(map[string]bool, len(recent.Rows))
	for _, r := range recent.Rows {
		p, ok := prev[r.Keyword]
		if !ok || seen[r.Keyword] {
			continue
		}
		seen[r.Keyword] = true
		rows = append(rows, model.TrendRow{
			Keyword:      r.Keyword,
			RecentRank:   r.Rank,
			PreviousRank: p,
			Trend:        p - r.Rank,
		})
	}
	return rows
}

// Rising keeps rows with a positive trend, sorted by descending trend
// (ties keep join order), and returns at most top of them
func Rising(rows []model.TrendRow, top int) []model.TrendRow {
	var rising []model.TrendRow
	for _, r := range rows {
		if r.Trend > 0 {
			rising = append(rising, r)
		}
	}
	sort.SliceStable(rising, func(i, j int) bool {
		return rising[i].Trend > rising[j].Trend
	})
	if top > 0 && len(rising) > top {
		rising = rising[:top]
	}
	return rising
}

// Filter returns the rows accepted by keep, for consumers that need
// something other than the rising report
func Filter(rows []model.TrendRow, keep func(model.TrendRow) bool) []model.TrendRow {
	var out []model.TrendRow
	for _, r := range rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
