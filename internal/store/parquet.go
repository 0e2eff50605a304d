package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"backlab/internal/domain"
	"backlab/internal/executor"
)

// Compile-time interface checks.
var _ BarStore = (*ParquetStore)(nil)
var _ executor.SeriesLoader = (*ParquetStore)(nil)

// ParquetStore implements BarStore with Parquet files on disk.
//
// Layout: <DataDir>/bars/<TICKER>/<label>.parquet
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a ParquetStore rooted at dataDir.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// BarRecord is the on-disk Parquet schema for bar data.
type BarRecord struct {
	Ticker    string  `parquet:"ticker"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
}

// WriteSeries persists bars for one ticker under a range label, merging
// with any existing file by timestamp.
func (s *ParquetStore) WriteSeries(_ context.Context, ticker, label string, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	records := make([]BarRecord, len(bars))
	for i, b := range bars {
		records[i] = BarRecord{
			Ticker:    ticker,
			Timestamp: b.Timestamp.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		}
	}

	path := s.seriesPath(ticker, label)
	existing, _ := readParquetFile[BarRecord](path)
	merged := mergeBarRecords(existing, records)

	if err := writeParquetFile(path, merged); err != nil {
		return fmt.Errorf("writing series %s/%s: %w", ticker, label, err)
	}
	return nil
}

// LoadSeries reads the bars stored for the range's label, filtered to
// [Start, End] when those are set. A missing file is not an error.
func (s *ParquetStore) LoadSeries(ticker string, dr domain.DateRange) ([]domain.Bar, error) {
	path := s.seriesPath(ticker, dr.Label)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	records, err := readParquetFile[BarRecord](path)
	if err != nil {
		return nil, fmt.Errorf("reading series %s/%s: %w", ticker, dr.Label, err)
	}

	bars := make([]domain.Bar, 0, len(records))
	for _, r := range records {
		b := domain.Bar{
			Ticker:    r.Ticker,
			Timestamp: time.UnixMilli(r.Timestamp).UTC(),
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		}
		if !dr.Start.IsZero() && b.Timestamp.Before(dr.Start) {
			continue
		}
		if !dr.End.IsZero() && b.Timestamp.After(dr.End) {
			continue
		}
		bars = append(bars, b)
	}
	return bars, nil
}

// ListTickers returns all tickers that have stored series, sorted.
func (s *ParquetStore) ListTickers(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.DataDir, "bars"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var tickers []string
	for _, e := range entries {
		if e.IsDir() {
			tickers = append(tickers, e.Name())
		}
	}
	sort.Strings(tickers)
	return tickers, nil
}

func (s *ParquetStore) seriesPath(ticker, label string) string {
	return filepath.Join(s.DataDir, "bars", strings.ToUpper(ticker), label+".parquet")
}

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	return parquet.ReadFile[T](path)
}

// mergeBarRecords deduplicates by timestamp, preferring incoming records,
// and returns the result sorted by timestamp.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	seen := make(map[int64]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Timestamp] = r
	}
	for _, r := range incoming {
		seen[r.Timestamp] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
