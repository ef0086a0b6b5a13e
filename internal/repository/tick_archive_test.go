package repository

import (
	"compress/gzip"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VolCast/internal/domain/models"
)

func writeArchiveGz(t *testing.T, dir, name string, rows [][]string) {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, name))
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	w := csv.NewWriter(gz)
	require.NoError(t, w.WriteAll(rows))
	w.Flush()
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
}

func archiveRow(symbol string, ts time.Time, price, size float64, side string) []string {
	return []string{
		symbol,
		strconv.FormatInt(ts.UnixNano(), 10),
		strconv.FormatFloat(price, 'f', -1, 64),
		strconv.FormatFloat(size, 'f', -1, 64),
		side,
	}
}

func newTestArchive(t *testing.T, dataDir string) *TickArchive {
	t.Helper()
	return NewTickArchive(dataDir, t.TempDir(), 0, nil, nil)
}

func TestLoadSymbolParsesSortsAndDedupes(t *testing.T) {
	dataDir := t.TempDir()
	base := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	// day one holds out-of-order rows, a header and a foreign symbol
	writeArchiveGz(t, dataDir, "trades-2024-04-01.csv.gz", [][]string{
		{"symbol", "ts_event", "price", "size", "side"},
		archiveRow("BTCUSDT", base.Add(2*time.Second), 101, 2, "A"),
		archiveRow("BTCUSDT", base, 100, 1, "B"),
		archiveRow("ETHUSDT", base, 50, 3, "B"),
	})
	// day two repeats a day-one row and adds an RFC3339 timestamp plus
	// rows the parser must reject
	writeArchiveGz(t, dataDir, "trades-2024-04-02.csv.gz", [][]string{
		archiveRow("BTCUSDT", base.Add(2*time.Second), 101, 2, "A"),
		{"BTCUSDT", "2024-04-01T00:00:05Z", "102.5", "0.5", "N"},
		{"BTCUSDT", "2024-04-01T00:00:06Z", "0", "1", "B"},
		{"BTCUSDT", "2024-04-01T00:00:07Z", "103", "-1", "B"},
		{"BTCUSDT", "not-a-time", "103", "1", "B"},
	})

	a := newTestArchive(t, dataDir)
	ticks, err := a.LoadSymbol(context.Background(), "BTCUSDT", nil, nil, false)
	require.NoError(t, err)

	require.Len(t, ticks, 3)
	assert.Equal(t, base, ticks[0].Timestamp)
	assert.Equal(t, base.Add(2*time.Second), ticks[1].Timestamp)
	assert.Equal(t, base.Add(5*time.Second), ticks[2].Timestamp)
	assert.Equal(t, 100.0, ticks[0].Price)
	assert.Equal(t, models.SideBuy, ticks[0].Side)
	assert.Equal(t, models.SideAsk, ticks[1].Side)
	assert.Equal(t, models.SideNeutral, ticks[2].Side)
	for _, tk := range ticks {
		assert.Equal(t, "BTCUSDT", tk.Symbol)
	}
}

func TestLoadSymbolRangeFilter(t *testing.T) {
	dataDir := t.TempDir()
	base := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	rows := make([][]string, 0, 10)
	for i := 0; i < 10; i++ {
		rows = append(rows, archiveRow("BTCUSDT", base.Add(time.Duration(i)*time.Minute), 100+float64(i), 1, "B"))
	}
	writeArchiveGz(t, dataDir, "trades.csv.gz", rows)

	a := newTestArchive(t, dataDir)
	from := base.Add(2 * time.Minute)
	to := base.Add(6 * time.Minute)
	ticks, err := a.LoadSymbol(context.Background(), "BTCUSDT", &from, &to, false)
	require.NoError(t, err)

	require.Len(t, ticks, 5)
	assert.Equal(t, from, ticks[0].Timestamp)
	assert.Equal(t, to, ticks[len(ticks)-1].Timestamp)
}

func TestLoadSymbolCacheServesAfterSourceRemoval(t *testing.T) {
	dataDir := t.TempDir()
	base := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	writeArchiveGz(t, dataDir, "trades.csv.gz", [][]string{
		archiveRow("BTCUSDT", base, 100, 1, "B"),
		archiveRow("BTCUSDT", base.Add(time.Second), 101, 2, "A"),
	})

	a := newTestArchive(t, dataDir)
	first, err := a.LoadSymbol(context.Background(), "BTCUSDT", nil, nil, true)
	require.NoError(t, err)
	require.Len(t, first, 2)

	require.NoError(t, os.Remove(filepath.Join(dataDir, "trades.csv.gz")))

	cached, err := a.LoadSymbol(context.Background(), "BTCUSDT", nil, nil, true)
	require.NoError(t, err)
	assert.Equal(t, first, cached)

	require.NoError(t, a.ClearCache("BTCUSDT"))
	_, err = a.LoadSymbol(context.Background(), "BTCUSDT", nil, nil, true)
	assert.ErrorIs(t, err, models.ErrDataNotFound)
}

func TestLoadSymbolUnknownSymbol(t *testing.T) {
	dataDir := t.TempDir()
	writeArchiveGz(t, dataDir, "trades.csv.gz", [][]string{
		archiveRow("ETHUSDT", time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), 50, 1, "B"),
	})

	a := newTestArchive(t, dataDir)
	_, err := a.LoadSymbol(context.Background(), "BTCUSDT", nil, nil, false)
	assert.ErrorIs(t, err, models.ErrDataNotFound)
}

func TestLoadSymbolEmptyDataDir(t *testing.T) {
	a := newTestArchive(t, t.TempDir())
	_, err := a.LoadSymbol(context.Background(), "BTCUSDT", nil, nil, false)
	assert.ErrorIs(t, err, models.ErrDataNotFound)
}

func TestLoadSymbolReadsPlainCSV(t *testing.T) {
	dataDir := t.TempDir()
	base := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	f, err := os.Create(filepath.Join(dataDir, "trades.csv"))
	require.NoError(t, err)
	w := csv.NewWriter(f)
	require.NoError(t, w.WriteAll([][]string{
		archiveRow("BTCUSDT", base, 100, 1, "B"),
	}))
	w.Flush()
	require.NoError(t, f.Close())

	a := newTestArchive(t, dataDir)
	ticks, err := a.LoadSymbol(context.Background(), "BTCUSDT", nil, nil, false)
	require.NoError(t, err)
	require.Len(t, ticks, 1)
	assert.Equal(t, 100.0, ticks[0].Price)
}

func TestLoadSymbolHonoursContextCancel(t *testing.T) {
	dataDir := t.TempDir()
	writeArchiveGz(t, dataDir, "trades.csv.gz", [][]string{
		archiveRow("BTCUSDT", time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), 100, 1, "B"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := newTestArchive(t, dataDir)
	_, err := a.LoadSymbol(ctx, "BTCUSDT", nil, nil, false)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestAvailableSymbols(t *testing.T) {
	dataDir := t.TempDir()
	base := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	writeArchiveGz(t, dataDir, "a.csv.gz", [][]string{
		{"symbol", "ts_event", "price", "size", "side"},
		archiveRow("ETHUSDT", base, 50, 1, "B"),
		archiveRow("BTCUSDT", base, 100, 1, "B"),
	})
	writeArchiveGz(t, dataDir, "b.csv.gz", [][]string{
		archiveRow("BTCUSDT", base, 100, 1, "B"),
		archiveRow("SOLUSDT", base, 20, 1, "B"),
	})

	a := newTestArchive(t, dataDir)
	symbols, err := a.AvailableSymbols(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}, symbols)
}
