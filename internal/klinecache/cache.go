// Package klinecache stores historical klines on disk so replay runs fetch
// each range from the exchange at most once. Coverage is tracked as merged
// half-open millisecond ranges per symbol/interval; EnsureCoverage only
// fetches the gaps.
package klinecache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"perp-trading-lab/internal/domain"
)

// Fetcher is the slice of exchange capability the cache needs.
type Fetcher interface {
	GetHistoricalKlines(ctx context.Context, symbol, interval string, startMs, endMs int64) ([]domain.Kline, error)
}

// Range is a half-open covered interval [StartMs, EndMs).
type Range struct {
	StartMs int64 `json:"start_ms"`
	EndMs   int64 `json:"end_ms"`
}

// entry is the on-disk cache file layout for one symbol/interval.
type entry struct {
	Symbol   string         `json:"symbol"`
	Interval string         `json:"interval"`
	Coverage []Range        `json:"coverage"`
	Klines   []domain.Kline `json:"klines"`
}

// Cache is a directory-backed kline cache.
type Cache struct {
	dir     string
	fetcher Fetcher
	logger  *zap.SugaredLogger

	mu sync.Mutex
}

// New opens a cache over dir, creating it if needed.
func New(dir string, fetcher Fetcher, logger *zap.SugaredLogger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Cache{dir: dir, fetcher: fetcher, logger: logger}, nil
}

// EnsureCoverage guarantees the cache covers [startMs, endMs) for
// symbol/interval, fetching only uncovered gaps, and returns the klines in
// that range oldest first. A second call over the same range hits disk only.
func (c *Cache) EnsureCoverage(ctx context.Context, symbol, interval string, startMs, endMs int64) ([]domain.Kline, error) {
	if startMs >= endMs {
		return nil, fmt.Errorf("invalid range [%d, %d)", startMs, endMs)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.load(symbol, interval)

	gaps := uncovered(e.Coverage, Range{StartMs: startMs, EndMs: endMs})
	if len(gaps) > 0 {
		for _, gap := range gaps {
			if c.logger != nil {
				c.logger.Infow("fetching kline gap",
					"symbol", symbol, "interval", interval,
					"start", time.UnixMilli(gap.StartMs).UTC(), "end", time.UnixMilli(gap.EndMs).UTC())
			}
			fetched, err := c.fetcher.GetHistoricalKlines(ctx, symbol, interval, gap.StartMs, gap.EndMs)
			if err != nil {
				return nil, fmt.Errorf("fetch %s %s gap: %w", symbol, interval, err)
			}
			e.Klines = mergeKlines(e.Klines, fetched)
			e.Coverage = addRange(e.Coverage, gap)
		}
		if err := c.persist(e); err != nil {
			return nil, err
		}
	}

	return slice(e.Klines, startMs, endMs), nil
}

// Cached returns klines already on disk for [startMs, endMs) without
// fetching. Uncovered parts of the range are simply absent from the result.
func (c *Cache) Cached(symbol, interval string, startMs, endMs int64) []domain.Kline {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slice(c.load(symbol, interval).Klines, startMs, endMs)
}

// load reads the cache file for symbol/interval. A missing or corrupt file
// is a cache miss, never an error; corrupt coverage must not poison replay.
func (c *Cache) load(symbol, interval string) *entry {
	e := &entry{Symbol: symbol, Interval: interval}

	data, err := os.ReadFile(c.path(symbol, interval))
	if err != nil {
		return e
	}
	var stored entry
	if err := json.Unmarshal(data, &stored); err != nil {
		if c.logger != nil {
			c.logger.Warnw("discarding corrupt cache file",
				"symbol", symbol, "interval", interval, "error", err)
		}
		return e
	}
	return &stored
}

// persist writes the entry atomically under an advisory lock file so two
// processes sharing a cache directory do not interleave writes.
func (c *Cache) persist(e *entry) error {
	path := c.path(e.Symbol, e.Interval)

	unlock, err := acquireLock(path + ".lock")
	if err != nil {
		return err
	}
	defer unlock()

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close cache file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace cache file: %w", err)
	}
	return nil
}

func (c *Cache) path(symbol, interval string) string {
	name := strings.ToUpper(symbol) + "-" + interval + ".json"
	return filepath.Join(c.dir, name)
}

// acquireLock creates the advisory lock file, waiting briefly for a holder
// to release it.
func acquireLock(path string) (func(), error) {
	deadline := time.Now().Add(10 * time.Second)
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			f.Close()
			return func() { os.Remove(path) }, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("acquire cache lock: %w", err)
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("acquire cache lock: %s held too long", path)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// uncovered returns the parts of want not covered by the existing ranges.
func uncovered(covered []Range, want Range) []Range {
	var gaps []Range
	cursor := want.StartMs
	for _, r := range covered {
		if r.EndMs <= cursor || r.StartMs >= want.EndMs {
			continue
		}
		if r.StartMs > cursor {
			gaps = append(gaps, Range{StartMs: cursor, EndMs: r.StartMs})
		}
		if r.EndMs > cursor {
			cursor = r.EndMs
		}
	}
	if cursor < want.EndMs {
		gaps = append(gaps, Range{StartMs: cursor, EndMs: want.EndMs})
	}
	return gaps
}

// addRange inserts r and merges overlapping or adjacent ranges.
func addRange(ranges []Range, r Range) []Range {
	ranges = append(ranges, r)
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].StartMs < ranges[j].StartMs })

	merged := ranges[:1]
	for _, next := range ranges[1:] {
		last := &merged[len(merged)-1]
		if next.StartMs <= last.EndMs {
			if next.EndMs > last.EndMs {
				last.EndMs = next.EndMs
			}
			continue
		}
		merged = append(merged, next)
	}
	return merged
}

// mergeKlines combines two series, deduplicating by open time with the
// freshly fetched series winning, sorted ascending.
func mergeKlines(existing, fetched []domain.Kline) []domain.Kline {
	byOpen := make(map[int64]domain.Kline, len(existing)+len(fetched))
	for _, k := range existing {
		byOpen[k.OpenTime] = k
	}
	for _, k := range fetched {
		byOpen[k.OpenTime] = k
	}

	out := make([]domain.Kline, 0, len(byOpen))
	for _, k := range byOpen {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenTime < out[j].OpenTime })
	return out
}

// slice returns klines with open time in [startMs, endMs).
func slice(klines []domain.Kline, startMs, endMs int64) []domain.Kline {
	lo := sort.Search(len(klines), func(i int) bool { return klines[i].OpenTime >= startMs })
	hi := sort.Search(len(klines), func(i int) bool { return klines[i].OpenTime >= endMs })
	out := make([]domain.Kline, hi-lo)
	copy(out, klines[lo:hi])
	return out
}
