package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"backlab/internal/domain"
	"backlab/internal/executor"
	"backlab/internal/risk"
	"backlab/internal/stats"
)

func sampleBars(n int) []domain.Bar {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, n)
	for i := range bars {
		price := 100 + float64(i)
		bars[i] = domain.Bar{
			Ticker:    "AAPL",
			Timestamp: start.AddDate(0, 0, i),
			Open:      price,
			High:      price + 1,
			Low:       price - 1,
			Close:     price + 0.5,
			Volume:    1e6,
		}
	}
	return bars
}

func TestParquetWriteLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewParquetStore(t.TempDir())
	bars := sampleBars(10)

	if err := s.WriteSeries(ctx, "aapl", "2024q1", bars); err != nil {
		t.Fatalf("WriteSeries: %v", err)
	}

	got, err := s.LoadSeries("AAPL", domain.DateRange{Label: "2024q1"})
	if err != nil {
		t.Fatalf("LoadSeries: %v", err)
	}
	if len(got) != 10 {
		t.Fatalf("loaded %d bars, want 10", len(got))
	}
	if !got[0].Timestamp.Equal(bars[0].Timestamp) || got[0].Close != bars[0].Close {
		t.Errorf("first bar = %+v, want %+v", got[0], bars[0])
	}
	if got[9].Volume != 1e6 {
		t.Errorf("volume = %v, want 1e6", got[9].Volume)
	}
}

func TestParquetLoadFiltersByRange(t *testing.T) {
	ctx := context.Background()
	s := NewParquetStore(t.TempDir())
	bars := sampleBars(10)
	if err := s.WriteSeries(ctx, "AAPL", "2024q1", bars); err != nil {
		t.Fatalf("WriteSeries: %v", err)
	}

	dr := domain.DateRange{
		Label: "2024q1",
		Start: bars[3].Timestamp,
		End:   bars[6].Timestamp,
	}
	got, err := s.LoadSeries("AAPL", dr)
	if err != nil {
		t.Fatalf("LoadSeries: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("loaded %d bars, want 4 inside the range", len(got))
	}
	if !got[0].Timestamp.Equal(bars[3].Timestamp) || !got[3].Timestamp.Equal(bars[6].Timestamp) {
		t.Error("range filter returned wrong bounds")
	}
}

func TestParquetMissingSeriesIsNil(t *testing.T) {
	s := NewParquetStore(t.TempDir())
	got, err := s.LoadSeries("NOPE", domain.DateRange{Label: "2024q1"})
	if err != nil {
		t.Fatalf("LoadSeries on missing file: %v", err)
	}
	if got != nil {
		t.Errorf("got %d bars, want nil", len(got))
	}
}

func TestParquetWriteMergesByTimestamp(t *testing.T) {
	ctx := context.Background()
	s := NewParquetStore(t.TempDir())
	bars := sampleBars(5)
	if err := s.WriteSeries(ctx, "AAPL", "2024q1", bars); err != nil {
		t.Fatal(err)
	}

	// Rewrite bar 2 with a corrected close and append a new bar.
	update := []domain.Bar{bars[2], bars[4]}
	update[0].Close = 999
	update[1].Timestamp = bars[4].Timestamp.AddDate(0, 0, 1)
	if err := s.WriteSeries(ctx, "AAPL", "2024q1", update); err != nil {
		t.Fatal(err)
	}

	got, err := s.LoadSeries("AAPL", domain.DateRange{Label: "2024q1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 6 {
		t.Fatalf("merged series has %d bars, want 6", len(got))
	}
	if got[2].Close != 999 {
		t.Errorf("corrected close = %v, want 999", got[2].Close)
	}
	for i := 1; i < len(got); i++ {
		if !got[i].Timestamp.After(got[i-1].Timestamp) {
			t.Fatal("merged series not sorted by timestamp")
		}
	}
}

func TestParquetListTickers(t *testing.T) {
	ctx := context.Background()
	s := NewParquetStore(t.TempDir())

	if tickers, err := s.ListTickers(ctx); err != nil || tickers != nil {
		t.Fatalf("empty store = %v, %v, want nil, nil", tickers, err)
	}

	for _, ticker := range []string{"MSFT", "AAPL"} {
		if err := s.WriteSeries(ctx, ticker, "2024q1", sampleBars(3)); err != nil {
			t.Fatal(err)
		}
	}
	tickers, err := s.ListTickers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(tickers) != 2 || tickers[0] != "AAPL" || tickers[1] != "MSFT" {
		t.Errorf("tickers = %v, want [AAPL MSFT]", tickers)
	}
}

func sampleResult() executor.Result {
	entry := time.Date(2024, 2, 12, 10, 0, 0, 0, time.UTC)
	trades := []domain.Trade{{
		Ticker:      "AAPL",
		Direction:   domain.DirectionLong,
		EntryTime:   entry,
		ExitTime:    entry.Add(3 * time.Hour),
		EntryPrice:  100,
		ExitPrice:   104,
		Size:        1000,
		GrossProfit: 4000,
		TotalCost:   120,
		NetProfit:   3880,
		ProfitPct:   4,
		DurationMin: 180,
	}}
	return executor.Result{
		Task: executor.Task{
			Ticker:   "AAPL",
			Range:    domain.DateRange{Label: "2024q1"},
			Strategy: "sma-cross",
		},
		Trades:      trades,
		Report:      stats.Compute(trades, 1_000_000),
		Signals:     2,
		Approved:    1,
		Attribution: risk.AttrPartialRejection,
		Risk: risk.Stats{
			Rejections: []risk.Rejection{{
				Ticker: "AAPL",
				Time:   entry.Add(time.Hour),
				Value:  500_000,
				Failed: []string{risk.CheckPositionSize, risk.CheckLeverage},
			}},
		},
	}
}

func TestSQLiteRecordResult(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")
	rec, err := NewSQLiteRecorder(path)
	if err != nil {
		t.Fatalf("NewSQLiteRecorder: %v", err)
	}
	defer rec.Close()

	if err := rec.RecordResult(context.Background(), sampleResult()); err != nil {
		t.Fatalf("RecordResult: %v", err)
	}

	var strategyName, attribution string
	var tradeCount int
	var wlr any
	err = rec.db.QueryRow(
		`SELECT strategy, attribution, trade_count, win_loss_ratio FROM run_results`,
	).Scan(&strategyName, &attribution, &tradeCount, &wlr)
	if err != nil {
		t.Fatalf("query run_results: %v", err)
	}
	if strategyName != "sma-cross" || attribution != risk.AttrPartialRejection || tradeCount != 1 {
		t.Errorf("run row = %s/%s/%d", strategyName, attribution, tradeCount)
	}
	// One win, no losses: the ratio is +Inf in memory and NULL on disk.
	if wlr != nil {
		t.Errorf("win_loss_ratio = %v, want NULL for +Inf", wlr)
	}

	var direction string
	var netProfit float64
	if err := rec.db.QueryRow(`SELECT direction, net_profit FROM trades`).Scan(&direction, &netProfit); err != nil {
		t.Fatalf("query trades: %v", err)
	}
	if direction != "long" || netProfit != 3880 {
		t.Errorf("trade row = %s/%v", direction, netProfit)
	}

	var failed string
	if err := rec.db.QueryRow(`SELECT failed FROM risk_rejections`).Scan(&failed); err != nil {
		t.Fatalf("query risk_rejections: %v", err)
	}
	if failed != "position_size,leverage" {
		t.Errorf("failed = %q", failed)
	}
}

func TestSQLiteRecorderReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")
	rec, err := NewSQLiteRecorder(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := rec.RecordResult(context.Background(), sampleResult()); err != nil {
		t.Fatal(err)
	}
	rec.Close()

	// Reopening must not clobber existing rows.
	rec, err = NewSQLiteRecorder(path)
	if err != nil {
		t.Fatal(err)
	}
	defer rec.Close()
	var n int
	if err := rec.db.QueryRow(`SELECT COUNT(*) FROM run_results`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("rows after reopen = %d, want 1", n)
	}
}

func TestNoopRecorder(t *testing.T) {
	var r ResultRecorder = NoopRecorder{}
	if err := r.RecordResult(context.Background(), executor.Result{}); err != nil {
		t.Errorf("RecordResult: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
