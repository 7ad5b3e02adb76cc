package table_test

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/flightdeals/dealsindex/internal/dealerrs"
	"github.com/flightdeals/dealsindex/internal/table"
)

type row struct {
	N int64
}

func newTable(t *testing.T, mockClock clock.Clock, maxPages, elementsPerPage int) *table.Table[row] {
	t.Helper()
	tbl, err := table.New[row]("t_"+t.Name(), table.Config{
		Dir:                 t.TempDir(),
		MaxPages:            maxPages,
		ElementsPerPage:     elementsPerPage,
		RecordExpireSeconds: 60,
		Clock:               mockClock,
	})
	require.NoError(t, err)
	return tbl
}

func TestAddRecordAndForEach(t *testing.T) {
	mc := clock.NewMock()
	tbl := newTable(t, mc, 4, 8)

	_, err := tbl.AddRecord(context.Background(), []row{{N: 1}, {N: 2}}, time.Minute)
	require.NoError(t, err)

	var seen []int64
	err = tbl.ForEach(nil, func(r row) { seen = append(seen, r.N) })
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{1, 2}, seen)
}

func TestAddRecordRejectsOversizeBatch(t *testing.T) {
	tbl := newTable(t, clock.NewMock(), 4, 2)
	_, err := tbl.AddRecord(context.Background(), []row{{1}, {2}, {3}}, time.Minute)
	require.Error(t, err)
	require.Equal(t, dealerrs.KindRecordTooLarge, dealerrs.KindOf(err))
}

func TestAddRecordRejectsEmptyBatch(t *testing.T) {
	tbl := newTable(t, clock.NewMock(), 4, 2)
	_, err := tbl.AddRecord(context.Background(), nil, time.Minute)
	require.Error(t, err)
	require.Equal(t, dealerrs.KindBadParameter, dealerrs.KindOf(err))
}

// S4: records past their lifetime stop being visible to ForEach even
// though the underlying page has not yet been swept away.
func TestRecordExpiresByLifetime(t *testing.T) {
	mc := clock.NewMock()
	mc.Set(time.Unix(1_000_000, 0))
	tbl := newTable(t, mc, 4, 8)

	_, err := tbl.AddRecord(context.Background(), []row{{N: 1}}, time.Minute)
	require.NoError(t, err)

	mc.Add(2 * time.Minute)

	var seen []int64
	err = tbl.ForEach(nil, func(r row) { seen = append(seen, r.N) })
	require.NoError(t, err)
	require.Empty(t, seen, "record should have aged out of its one-minute lifetime")
}

// Filling every page slot forces a new page; once the registry itself is
// full, AddRecord must evict the oldest entry to make room, grounded on
// spec.md §4.3's eviction policy.
func TestAddRecordEvictsOldestPageWhenRegistryFull(t *testing.T) {
	mc := clock.NewMock()
	mc.Set(time.Unix(1_000_000, 0))
	tbl := newTable(t, mc, 2, 1) // 2 pages max, 1 element per page

	_, err := tbl.AddRecord(context.Background(), []row{{N: 1}}, time.Second)
	require.NoError(t, err)
	mc.Add(2 * time.Second)
	_, err = tbl.AddRecord(context.Background(), []row{{N: 2}}, time.Second)
	require.NoError(t, err)
	mc.Add(10 * time.Second) // both pages past their lifetime but within the sweep grace, so eviction must make room

	_, err = tbl.AddRecord(context.Background(), []row{{N: 3}}, time.Minute)
	require.NoError(t, err, "expired pages must be evictable to make room")
}

func TestTruncateRemovesAllRecords(t *testing.T) {
	tbl := newTable(t, clock.NewMock(), 4, 8)
	_, err := tbl.AddRecord(context.Background(), []row{{N: 1}}, time.Minute)
	require.NoError(t, err)

	require.NoError(t, tbl.Truncate(context.Background()))

	var seen []int64
	require.NoError(t, tbl.ForEach(nil, func(r row) { seen = append(seen, r.N) }))
	require.Empty(t, seen)

	stats := tbl.Stats()
	require.Equal(t, 0, stats.Pages)
}

func TestReadAtResolvesWrittenSlice(t *testing.T) {
	tbl := newTable(t, clock.NewMock(), 4, 16)
	result, err := tbl.AddRecord(context.Background(), []row{{N: 7}, {N: 8}, {N: 9}}, time.Minute)
	require.NoError(t, err)

	got, err := tbl.ReadAt(result.PageName, result.Index, result.Count)
	require.NoError(t, err)
	require.Equal(t, []row{{N: 7}, {N: 8}, {N: 9}}, got)
}
