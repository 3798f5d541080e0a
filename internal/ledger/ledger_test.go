package ledger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/kwharvest/internal/snapshot"
)

func TestTruncateKeyword(t *testing.T) {
	stops := DefaultStopwords().For("english")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"short kept verbatim", "the red dress", "the red dress"},
		{"two stopwords removed to three tokens", "dress for the summer party", "dress summer party"},
		{"shorter result not padded", "the dress for the party", "dress party"},
		{"still long cut to three", "red summer dress with long sleeves", "red summer dress"},
		{"case insensitive stopwords", "The Dress For Summer Party", "Dress Summer Party"},
		{"all stopwords", "the and of a", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TruncateKeyword(tt.in, stops))
		})
	}
}

func TestTruncate_DedupesAndSorts(t *testing.T) {
	stops := DefaultStopwords().For("english")
	got := Truncate([]string{"zip hoodie", "red dress for the party night", "red dress party night", "the and of a", "zip hoodie"}, stops)
	assert.Equal(t, []string{"red dress party", "zip hoodie"}, got)
}

func TestNewKeywords(t *testing.T) {
	got := NewKeywords(
		[]string{"a b", "c d", "e f", "c d"},
		[]string{"c d", "x y"},
		nil,
	)
	assert.Equal(t, []string{"a b", "e f"}, got)
}

func TestStopwords(t *testing.T) {
	sw := DefaultStopwords()
	assert.True(t, sw.For("english")["the"])
	assert.True(t, sw.For("german")["und"])
	assert.True(t, sw.For("german")["über"])
	assert.Empty(t, sw.For("klingon"))

	path := filepath.Join(t.TempDir(), "stops.txt")
	require.NoError(t, os.WriteFile(path, []byte("# custom\nFoo bar\n\nbaz\n"), 0644))
	require.NoError(t, sw.LoadFile("english", path))
	assert.Equal(t, map[string]bool{"foo": true, "bar": true, "baz": true}, sw.For("english"))

	assert.Error(t, sw.LoadFile("english", filepath.Join(t.TempDir(), "missing")))
}

func TestLedger_AppendIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bucket", "googletrends", "googletrends_keywords.csv")
	l := Open(path)

	added, err := l.Append([]string{"a b", "c d"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a b", "c d"}, added)

	added, err = l.Append([]string{"a b", "c d"})
	require.NoError(t, err)
	assert.Empty(t, added)

	added, err = l.Append([]string{"c d", "e f", "e f"})
	require.NoError(t, err)
	assert.Equal(t, []string{"e f"}, added)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a b\nc d\ne f\n", string(data))
}

func TestLedger_UnterminatedLastLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.csv")
	require.NoError(t, os.WriteFile(path, []byte("a b\nc d"), 0644))
	l := Open(path)

	// "c d" has no trailing newline, so it is not a line-exact member
	added, err := l.Append([]string{"a b", "c d"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c d"}, added)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a b\nc d\nc d\n", string(data))
}

func TestLedger_SkipsInvalidKeywords(t *testing.T) {
	l := Open(filepath.Join(t.TempDir(), "ledger.csv"))
	added, err := l.Append([]string{"", "two\nlines", "ok now"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ok now"}, added)
}

func TestBucketStart(t *testing.T) {
	assert.Equal(t, 1, BucketStart(time.Date(2022, 5, 1, 0, 0, 0, 0, time.UTC)).Day())
	assert.Equal(t, 1, BucketStart(time.Date(2022, 5, 14, 23, 0, 0, 0, time.UTC)).Day())
	assert.Equal(t, 15, BucketStart(time.Date(2022, 5, 15, 0, 0, 0, 0, time.UTC)).Day())
	assert.Equal(t, 15, BucketStart(time.Date(2022, 5, 31, 0, 0, 0, 0, time.UTC)).Day())
}

type mapCache struct {
	data map[string][]byte
	sets int
}

func (m *mapCache) Get(key string) ([]byte, bool) {
	v, ok := m.data[key]
	return v, ok
}

func (m *mapCache) Set(key string, value []byte, ttl time.Duration) error {
	m.data[key] = value
	m.sets++
	return nil
}

func writeDay(t *testing.T, layout *snapshot.Layout, day time.Time, content map[int]string) {
	t.Helper()
	for _, n := range []int{2, 3, 4} {
		path := layout.RawPath(day, n)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content[n]), 0644))
	}
}

func TestAccumulator_Record(t *testing.T) {
	root := t.TempDir()
	layout, err := snapshot.NewLayout(root, "amazon", "en", nil)
	require.NoError(t, err)

	day := func(d int) time.Time { return time.Date(2022, 5, d, 0, 0, 0, 0, time.UTC) }

	// bucket 15..31: day 15 and 17 exist, 16 is missing
	writeDay(t, layout, day(15), map[int]string{2: "red dress:rank1\n", 3: "blue jeans:rank2\n"})
	writeDay(t, layout, day(17), map[int]string{4: "summer hat:rank1\n"})
	// day 14 belongs to the previous bucket and must be ignored
	writeDay(t, layout, day(14), map[int]string{2: "green scarf:rank1\n"})
	writeDay(t, layout, day(18), map[int]string{
		2: "red dress:rank3\ngreen scarf:rank1\n",
		3: "summer hat:rank9\nmen's shoes:rank4\n",
		4: "dress for the summer beach party:rank2\nshoe:rank1\n",
	})

	acc := NewAccumulator(layout, DefaultStopwords().For("english"))
	res, err := acc.Record(day(18))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "2022-5-15", "googletrends", "googletrends_keywords.csv"), res.LedgerPath)
	assert.Equal(t, 2, res.HistoryDays)
	require.Len(t, res.MissingDays, 1)
	assert.Equal(t, 16, res.MissingDays[0].Day())
	assert.Equal(t, []string{"dress summer beach", "green scarf", "mens shoes"}, res.New)
	assert.Equal(t, res.New, res.Appended)

	// second run on the same data appends nothing
	res, err = acc.Record(day(18))
	require.NoError(t, err)
	assert.Empty(t, res.Appended)

	data, err := os.ReadFile(res.LedgerPath)
	require.NoError(t, err)
	assert.Equal(t, "dress summer beach\ngreen scarf\nmens shoes\n", string(data))
}

func TestAccumulator_FirstDayOfBucket(t *testing.T) {
	layout, err := snapshot.NewLayout(t.TempDir(), "amazon", "en", nil)
	require.NoError(t, err)
	today := time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC)
	writeDay(t, layout, today, map[int]string{2: "a b:rank1\n"})

	res, err := NewAccumulator(layout, nil).Record(today)
	require.NoError(t, err)
	assert.Equal(t, 0, res.HistoryDays)
	assert.Equal(t, []string{"a b"}, res.Appended)
}

func TestAccumulator_MissingToday(t *testing.T) {
	layout, err := snapshot.NewLayout(t.TempDir(), "amazon", "en", nil)
	require.NoError(t, err)

	_, err = NewAccumulator(layout, nil).Record(time.Date(2022, 6, 3, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestAccumulator_WithCache(t *testing.T) {
	layout, err := snapshot.NewLayout(t.TempDir(), "amazon", "en", nil)
	require.NoError(t, err)
	day := func(d int) time.Time { return time.Date(2022, 6, d, 0, 0, 0, 0, time.UTC) }
	writeDay(t, layout, day(1), map[int]string{2: "a b:rank1\n"})
	writeDay(t, layout, day(2), map[int]string{2: "a b:rank1\nc d:rank2\n"})

	c := &mapCache{data: map[string][]byte{}}
	acc := NewAccumulator(layout, nil, WithCache(c, time.Hour))

	res, err := acc.Record(day(2))
	require.NoError(t, err)
	assert.Equal(t, []string{"c d"}, res.New)
	assert.Equal(t, 1, c.sets)
	assert.Contains(t, c.data, "amazon:en:2022-6-1")

	// cached history is used even if the file disappears
	require.NoError(t, os.RemoveAll(layout.DayDir(day(1))))
	res, err = acc.Record(day(2))
	require.NoError(t, err)
	assert.Equal(t, 1, res.HistoryDays)
	assert.Equal(t, []string{"c d"}, res.New)
	assert.Equal(t, 1, c.sets)
}
