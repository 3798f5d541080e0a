package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/kwharvest/internal/model"
)

func TestClean_DropsSentinelRanks(t *testing.T) {
	for n, sentinels := range map[int][]int{2: {30, 31, 32}, 3: {40, 41, 42}, 4: {50, 51, 52}} {
		var lines []string
		for _, r := range sentinels {
			lines = append(lines, FormatRow(model.RankedKeywordRow{Keyword: "no more results", Rank: r}))
		}
		lines = append(lines, "kept keyword:rank7")

		cleaned, err := Clean(lines, n)
		require.NoError(t, err)
		require.Len(t, cleaned.Rows, 1, "seed length %d", n)
		assert.Equal(t, model.RankedKeywordRow{Keyword: "kept keyword", Rank: 7}, cleaned.Rows[0])
	}
}

func TestClean_SentinelsAreLengthSpecific(t *testing.T) {
	// 40 is a sentinel for 3-letter seeds only
	cleaned, err := Clean([]string{"red dress:rank40"}, 2)
	require.NoError(t, err)
	assert.Len(t, cleaned.Rows, 1)

	cleaned, err = Clean([]string{"red dress:rank40"}, 3)
	require.NoError(t, err)
	assert.Empty(t, cleaned.Rows)
}

func TestClean_LastOccurrenceWins(t *testing.T) {
	lines := []string{
		"red dress:rank3",
		"blue jeans:rank1",
		"red dress:rank9",
		"red dress:rank3", // exact duplicate of line 1, dropped before dedup
	}

	cleaned, err := Clean(lines, 4)
	require.NoError(t, err)
	assert.Equal(t, []model.RankedKeywordRow{
		{Keyword: "blue jeans", Rank: 1},
		{Keyword: "red dress", Rank: 9},
	}, cleaned.Rows)
}

func TestClean_LastWinsAfterSentinelRemoval(t *testing.T) {
	lines := []string{"red dress:rank2", "red dress:rank51"}
	cleaned, err := Clean(lines, 4)
	require.NoError(t, err)
	assert.Equal(t, []model.RankedKeywordRow{{Keyword: "red dress", Rank: 2}}, cleaned.Rows)
}

func TestClean_DropsSingleTokenKeywords(t *testing.T) {
	cleaned, err := Clean([]string{"shoe:rank5", "running shoe:rank5", "  sandal  :rank2"}, 2)
	require.NoError(t, err)
	assert.Equal(t, []model.RankedKeywordRow{{Keyword: "running shoe", Rank: 5}}, cleaned.Rows)
}

func TestClean_SkipsMalformedRows(t *testing.T) {
	lines := []string{
		"good keyword:rank1",
		"no marker here",
		"bad rank:rankX",
		"zero rank:rank0",
		"other good:rank2\r",
	}

	cleaned, err := Clean(lines, 3)
	require.NoError(t, err)
	assert.Len(t, cleaned.Rows, 2)
	require.Len(t, cleaned.Malformed, 3)
	assert.Equal(t, 2, cleaned.Malformed[0].Line)
	assert.Equal(t, 3, cleaned.Malformed[1].Line)
	assert.Contains(t, cleaned.Malformed[1].Error(), "not an integer")
}

func TestClean_RejectsUnsupportedSeedLength(t *testing.T) {
	_, err := Clean([]string{"a b:rank1"}, 5)
	var verr *model.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestClean_NoDuplicateKeywords(t *testing.T) {
	lines := []string{"a b:rank1", "a b:rank2", "c d:rank3", "a b:rank4", "c d:rank5", "a b:rank1"}
	cleaned, err := Clean(lines, 2)
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, row := range cleaned.Rows {
		assert.False(t, seen[row.Keyword], "duplicate keyword %q", row.Keyword)
		seen[row.Keyword] = true
	}
	assert.Equal(t, []model.RankedKeywordRow{{Keyword: "a b", Rank: 4}, {Keyword: "c d", Rank: 5}}, cleaned.Rows)
}

func TestParseRow(t *testing.T) {
	row, err := ParseRow("usb c cable:rank12")
	require.NoError(t, err)
	assert.Equal(t, model.RankedKeywordRow{Keyword: "usb c cable", Rank: 12}, row)
	assert.Equal(t, "usb c cable:rank12", FormatRow(row))
}

func TestNormalizeKeyword(t *testing.T) {
	assert.Equal(t, "ac dc shirt", NormalizeKeyword("ac/dc shirt"))
	assert.Equal(t, "mens shoes", NormalizeKeyword("men's shoes"))
}

func TestLayout(t *testing.T) {
	root := t.TempDir()
	layout, err := NewLayout(root, "amazon", "en", nil)
	require.NoError(t, err)

	date := time.Date(2022, 5, 3, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, filepath.Join(root, "2022-5-3", "amazon_en_kwf4lets_2022-5-3.csv"), layout.RawPath(date, 4))

	_, err = NewLayout(root, "etsy", "en", nil)
	assert.Error(t, err)
	_, err = NewLayout(root, "amazon", "fr", nil)
	assert.Error(t, err)
}

func writeDump(t *testing.T, layout *Layout, date time.Time, n int, content string) {
	t.Helper()
	path := layout.RawPath(date, n)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLayout_DayKeywords(t *testing.T) {
	layout, err := NewLayout(t.TempDir(), "amazon", "en", nil)
	require.NoError(t, err)
	date := time.Date(2022, 7, 20, 0, 0, 0, 0, time.UTC)

	writeDump(t, layout, date, 2, "ac/dc shirt:rank1\nshirt:rank2\nab:rank30\n")
	writeDump(t, layout, date, 3, "men's shoes:rank1\n")
	writeDump(t, layout, date, 4, "ac/dc shirt:rank3\ngarbage\n")

	keywords, err := layout.DayKeywords(date)
	require.NoError(t, err)
	assert.Equal(t, []string{"ac dc shirt", "mens shoes", "ac dc shirt"}, keywords)
}

func TestLayout_DayKeywordsSkipsMissingLengths(t *testing.T) {
	layout, err := NewLayout(t.TempDir(), "amazon", "en", nil)
	require.NoError(t, err)
	date := time.Date(2022, 7, 21, 0, 0, 0, 0, time.UTC)

	// only 2- and 3-letter seeds were harvested
	writeDump(t, layout, date, 2, "red dress:rank1\n")
	writeDump(t, layout, date, 3, "sun hat:rank1\n")

	keywords, err := layout.DayKeywords(date)
	require.NoError(t, err)
	assert.Equal(t, []string{"red dress", "sun hat"}, keywords)

	_, err = layout.DayKeywords(date.AddDate(0, 0, 1))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLayout_LoadDayMissingFile(t *testing.T) {
	layout, err := NewLayout(t.TempDir(), "ebay", "de", nil)
	require.NoError(t, err)

	_, err = layout.LoadDay(time.Now(), 2)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2022-5-10")
	require.NoError(t, err)
	assert.Equal(t, "2022-5-10", FormatDate(d))

	d, err = ParseDate("2022-05-09")
	require.NoError(t, err)
	assert.Equal(t, "2022-5-9", FormatDate(d))

	_, err = ParseDate("10/05/2022")
	assert.Error(t, err)
}
