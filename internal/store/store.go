// Package store persists bar series and backtest results. Bars live in
// Parquet files on disk; run results go to SQLite for later inspection.
package store

import (
	"context"

	"backlab/internal/domain"
	"backlab/internal/executor"
)

// BarStore persists and retrieves OHLCV bar series.
type BarStore interface {
	// WriteSeries persists one ticker's bars under a range label.
	WriteSeries(ctx context.Context, ticker, label string, bars []domain.Bar) error

	// LoadSeries returns the bars for ticker within the range. A missing
	// series yields nil with no error.
	LoadSeries(ticker string, dr domain.DateRange) ([]domain.Bar, error)

	// ListTickers returns all tickers with stored bars.
	ListTickers(ctx context.Context) ([]string, error)
}

// ResultRecorder persists finished task results.
type ResultRecorder interface {
	RecordResult(ctx context.Context, res executor.Result) error
	Close() error
}

// NoopRecorder discards results. Used when no database is configured.
type NoopRecorder struct{}

var _ ResultRecorder = NoopRecorder{}

func (NoopRecorder) RecordResult(context.Context, executor.Result) error { return nil }
func (NoopRecorder) Close() error                                        { return nil }
