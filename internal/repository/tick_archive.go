package repository

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/csv"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"VolCast/internal/domain/models"
	domrepo "VolCast/internal/domain/repository"
	applogger "VolCast/pkg/logger"
	"VolCast/pkg/util"
)

// decompression reads this much at a time into the accumulated buffer, so
// a day archive never needs a second full-size allocation
const chunkSize = 256 * 1024

// AvailableSymbols scans at most this many rows per sampled file.
const sampleRowLimit = 50000

// TickArchive loads per-day gzip CSV trade archives
// ({symbol, ts_event, price, size, side} rows) and keeps a per-symbol
// columnar cache so date-filtered reloads never rescan the source files.
type TickArchive struct {
	dataDir        string
	cacheDir       string
	maxSymbolFiles int
	l              *applogger.Logger
	metrics        domrepo.Metrics

	// cache rewrites must be mutually exclusive; readers are safe because
	// writes go to a temp file and replace atomically
	mu sync.Mutex
}

// NewTickArchive creates a loader over dataDir with caches in cacheDir.
func NewTickArchive(dataDir, cacheDir string, maxSymbolFiles int, l *applogger.Logger, m domrepo.Metrics) *TickArchive {
	if maxSymbolFiles <= 0 {
		maxSymbolFiles = 32
	}
	return &TickArchive{
		dataDir:        dataDir,
		cacheDir:       cacheDir,
		maxSymbolFiles: maxSymbolFiles,
		l:              l,
		metrics:        m,
	}
}

// LoadSymbol returns the symbol's ticks sorted ascending, deduplicated
// across source files and optionally filtered to [from, to].
func (a *TickArchive) LoadSymbol(ctx context.Context, symbol string, from, to *time.Time, useCache bool) ([]models.Tick, error) {
	start := time.Now()
	defer func() {
		if a.metrics != nil {
			a.metrics.RecordStageLatency("load", time.Since(start).Seconds())
		}
	}()

	if useCache {
		if ticks, ok := a.readCache(symbol); ok {
			a.logInfo("tick cache hit", symbol, len(ticks))
			return filterRange(ticks, from, to), nil
		}
	}

	files, err := a.archiveFiles()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("load %s: %w", symbol, models.ErrDataNotFound)
	}

	seen := make(map[tickKey]struct{}, 1<<16)
	var ticks []models.Tick
	for _, path := range files {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if _, err := a.parseFile(path, symbol, seen, &ticks, 0); err != nil {
			if a.metrics != nil {
				a.metrics.RecordError("load")
			}
			if a.l != nil {
				a.l.Error("archive parse failed",
					applogger.String("stage", "load"),
					applogger.String("file", filepath.Base(path)),
					applogger.String("symbol", symbol),
					applogger.Error(err),
				)
			}
			continue
		}
	}
	if len(ticks) == 0 {
		return nil, fmt.Errorf("load %s: %w", symbol, models.ErrDataNotFound)
	}

	sort.SliceStable(ticks, func(i, j int) bool {
		return ticks[i].Timestamp.Before(ticks[j].Timestamp)
	})

	if useCache {
		if err := a.writeCache(symbol, ticks); err != nil && a.l != nil {
			a.l.Warn("tick cache write failed",
				applogger.String("stage", "load"),
				applogger.String("symbol", symbol),
				applogger.Error(err),
			)
		}
	}

	a.logInfo("archives loaded", symbol, len(ticks))
	return filterRange(ticks, from, to), nil
}

// AvailableSymbols samples a bounded prefix of archive files. It is an
// approximation, not an exhaustive scan.
func (a *TickArchive) AvailableSymbols(ctx context.Context) ([]string, error) {
	files, err := a.archiveFiles()
	if err != nil {
		return nil, err
	}
	if len(files) > a.maxSymbolFiles {
		files = files[:a.maxSymbolFiles]
	}

	set := make(map[string]struct{})
	for _, path := range files {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if err := a.sampleSymbols(path, set); err != nil && a.l != nil {
			a.l.Warn("symbol sample failed",
				applogger.String("stage", "load"),
				applogger.String("file", filepath.Base(path)),
				applogger.Error(err),
			)
		}
	}

	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

// ClearCache removes the symbol's cached ticks, or every tick cache when
// symbol is empty.
func (a *TickArchive) ClearCache(symbol string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if symbol != "" {
		err := os.Remove(a.cachePath(symbol))
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	matches, err := filepath.Glob(filepath.Join(a.cacheDir, "ticks_*.gob"))
	if err != nil {
		return err
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

type tickKey struct {
	ts    int64
	price float64
	size  float64
	side  models.Side
}

func (a *TickArchive) archiveFiles() ([]string, error) {
	var files []string
	for _, pattern := range []string{"*.csv.gz", "*.csv"} {
		matches, err := filepath.Glob(filepath.Join(a.dataDir, pattern))
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", a.dataDir, err)
		}
		files = append(files, matches...)
	}
	sort.Strings(files)
	return files, nil
}

// parseFile decompresses path chunk by chunk into one buffer, parses it
// once and appends the symbol's rows. rowLimit 0 means unbounded.
func (a *TickArchive) parseFile(path, symbol string, seen map[tickKey]struct{}, out *[]models.Tick, rowLimit int) (int, error) {
	buf, err := readArchive(path)
	if err != nil {
		return 0, err
	}

	r := csv.NewReader(bytes.NewReader(buf))
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	added := 0
	rows := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return added, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
		}
		rows++
		if rowLimit > 0 && rows > rowLimit {
			break
		}
		t, ok := parseRow(rec)
		if !ok {
			continue
		}
		if symbol != "" && t.Symbol != symbol {
			continue
		}
		key := tickKey{ts: t.Timestamp.UnixNano(), price: t.Price, size: t.Size, side: t.Side}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		*out = append(*out, t)
		added++
	}
	return added, nil
}

func (a *TickArchive) sampleSymbols(path string, set map[string]struct{}) error {
	buf, err := readArchive(path)
	if err != nil {
		return err
	}
	r := csv.NewReader(bytes.NewReader(buf))
	r.FieldsPerRecord = -1
	r.ReuseRecord = true
	rows := 0
	for rows < sampleRowLimit {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		rows++
		if len(rec) > 0 && rec[0] != "" && rec[0] != "symbol" {
			set[rec[0]] = struct{}{}
		}
	}
	return nil
}

// readArchive streams the (possibly gzipped) file through a bounded chunk
// into a single growing buffer.
func readArchive(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	var src io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("gunzip %s: %w", filepath.Base(path), err)
		}
		defer gz.Close()
		src = gz
	}

	var buf bytes.Buffer
	chunk := make([]byte, chunkSize)
	for {
		n, err := src.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
		}
	}
	return buf.Bytes(), nil
}

// parseRow decodes {symbol, ts_event, price, size, side}. Rows with a
// non-positive price or negative size are dropped.
func parseRow(rec []string) (models.Tick, bool) {
	if len(rec) < 5 || rec[0] == "symbol" {
		return models.Tick{}, false
	}
	ts, ok := parseEventTime(rec[1])
	if !ok {
		return models.Tick{}, false
	}
	price, err := strconv.ParseFloat(rec[2], 64)
	if err != nil || price <= 0 {
		return models.Tick{}, false
	}
	size, err := strconv.ParseFloat(rec[3], 64)
	if err != nil || size < 0 {
		return models.Tick{}, false
	}
	return models.Tick{
		Symbol:    rec[0],
		Timestamp: ts,
		Price:     price,
		Size:      size,
		Side:      models.ParseSide(rec[4]),
	}, true
}

// parseEventTime accepts unix nanoseconds or any layout util.ParseTime
// understands.
func parseEventTime(s string) (time.Time, bool) {
	if ns, err := strconv.ParseInt(s, 10, 64); err == nil && ns > 1e15 {
		return time.Unix(0, ns).UTC(), true
	}
	if t, ok := util.ParseTime(s); ok {
		return t.UTC(), true
	}
	return time.Time{}, false
}

func (a *TickArchive) cachePath(symbol string) string {
	return filepath.Join(a.cacheDir, "ticks_"+symbol+".gob")
}

func (a *TickArchive) readCache(symbol string) ([]models.Tick, bool) {
	f, err := os.Open(a.cachePath(symbol))
	if err != nil {
		return nil, false
	}
	defer f.Close()

	var ticks []models.Tick
	if err := gob.NewDecoder(f).Decode(&ticks); err != nil {
		return nil, false
	}
	return ticks, len(ticks) > 0
}

func (a *TickArchive) writeCache(symbol string, ticks []models.Tick) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(a.cacheDir, 0o755); err != nil {
		return fmt.Errorf("cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(a.cacheDir, "ticks_*.tmp")
	if err != nil {
		return fmt.Errorf("cache temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(ticks); err != nil {
		tmp.Close()
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cache close: %w", err)
	}
	return os.Rename(tmp.Name(), a.cachePath(symbol))
}

func filterRange(ticks []models.Tick, from, to *time.Time) []models.Tick {
	if from == nil && to == nil {
		return ticks
	}
	out := make([]models.Tick, 0, len(ticks))
	for _, t := range ticks {
		if from != nil && t.Timestamp.Before(*from) {
			continue
		}
		if to != nil && t.Timestamp.After(*to) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (a *TickArchive) logInfo(msg, symbol string, n int) {
	if a.l == nil {
		return
	}
	a.l.Info(msg,
		applogger.String("stage", "load"),
		applogger.String("symbol", symbol),
		applogger.Int("ticks", n),
	)
}

var _ domrepo.TickSource = (*TickArchive)(nil)
