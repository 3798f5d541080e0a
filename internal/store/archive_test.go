package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/kwharvest/internal/model"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "archive", "kwharvest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func day(d int) time.Time { return time.Date(2022, 5, d, 0, 0, 0, 0, time.UTC) }

func TestArchive_SaveLoad(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	snap := model.Snapshot{Date: day(3), SeedLength: 2, Rows: []model.RankedKeywordRow{
		{Keyword: "red dress", Rank: 4},
		{Keyword: "blue jeans", Rank: 1},
	}}
	require.NoError(t, a.Save(ctx, "amazon", "en", snap))

	got, err := a.Load(ctx, "amazon", "en", day(3), 2)
	require.NoError(t, err)
	assert.Equal(t, snap.Rows, got.Rows)
	assert.Equal(t, 2, got.SeedLength)

	// saving again replaces the rows
	snap.Rows = snap.Rows[:1]
	require.NoError(t, a.Save(ctx, "amazon", "en", snap))
	got, err = a.Load(ctx, "amazon", "en", day(3), 2)
	require.NoError(t, err)
	assert.Len(t, got.Rows, 1)
}

func TestArchive_NotFound(t *testing.T) {
	a := openTestArchive(t)

	_, err := a.Load(context.Background(), "ebay", "de", day(1), 3)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestArchive_Days(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	for _, d := range []int{10, 2, 9} {
		require.NoError(t, a.Save(ctx, "amazon", "en", model.Snapshot{Date: day(d), SeedLength: 2}))
		require.NoError(t, a.Save(ctx, "amazon", "en", model.Snapshot{Date: day(d), SeedLength: 3}))
	}
	require.NoError(t, a.Save(ctx, "ebay", "en", model.Snapshot{Date: day(5), SeedLength: 2}))

	days, err := a.Days(ctx, "amazon", "en")
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day(2), day(9), day(10)}, days)
}
