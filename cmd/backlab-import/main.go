// backlab-import loads OHLCV bars from a CSV file into the Parquet archive
// so they can be backtested.
//
// CSV layout, with header: timestamp,open,high,low,close,volume
// Timestamps are RFC 3339 or YYYY-MM-DD.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"backlab/internal/domain"
	"backlab/internal/store"
	"backlab/internal/util"
)

func main() {
	dataDir := flag.String("data-dir", "data", "root of the bar archive")
	ticker := flag.String("ticker", "", "ticker to store the bars under (required)")
	label := flag.String("label", "full", "range label for the stored series")
	flag.Parse()

	if *ticker == "" || flag.NArg() != 1 {
		log.Fatal("usage: backlab-import -ticker SYM [-data-dir DIR] [-label LABEL] bars.csv")
	}

	logger := util.NewLogger("info")
	util.SetDefault(logger)

	bars, err := readCSV(flag.Arg(0), *ticker)
	if err != nil {
		log.Fatalf("failed to read %s: %v", flag.Arg(0), err)
	}
	if err := domain.ValidateBars(bars); err != nil {
		log.Fatalf("series rejected: %v", err)
	}

	s := store.NewParquetStore(*dataDir)
	if err := s.WriteSeries(context.Background(), *ticker, *label, bars); err != nil {
		log.Fatalf("failed to write series: %v", err)
	}
	logger.Info("imported series",
		"ticker", *ticker, "label", *label, "bars", len(bars),
		"first", bars[0].Timestamp, "last", bars[len(bars)-1].Timestamp)
}

func readCSV(path, ticker string) ([]domain.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	if len(header) < 6 {
		return nil, fmt.Errorf("expected 6 columns, got %d", len(header))
	}

	var bars []domain.Bar
	for line := 2; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		ts, err := parseTime(rec[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: timestamp: %w", line, err)
		}
		fields := make([]float64, 5)
		for i := 0; i < 5; i++ {
			fields[i], err = strconv.ParseFloat(rec[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: column %s: %w", line, header[i+1], err)
			}
		}
		bars = append(bars, domain.Bar{
			Ticker:    ticker,
			Timestamp: ts,
			Open:      fields[0],
			High:      fields[1],
			Low:       fields[2],
			Close:     fields[3],
			Volume:    fields[4],
		})
	}
	if len(bars) == 0 {
		return nil, domain.ErrNoData
	}
	return bars, nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
