package stats

import (
	"math"
	"reflect"
	"testing"
	"time"

	"backlab/internal/domain"
)

func mkTrade(dir domain.Direction, exitDay int, profitPct, netProfit, ddPct float64) domain.Trade {
	exit := time.Date(2024, 3, 4, 16, 0, 0, 0, time.UTC).AddDate(0, 0, exitDay)
	return domain.Trade{
		Ticker:      "TEST",
		Direction:   dir,
		EntryTime:   exit.Add(-4 * time.Hour),
		ExitTime:    exit,
		ProfitPct:   profitPct,
		NetProfit:   netProfit,
		DrawdownPct: ddPct,
		DurationMin: 240,
		RewardRisk:  1.5,
		RecoveryMin: 30,
	}
}

func TestSummarizeBasics(t *testing.T) {
	trades := []domain.Trade{
		mkTrade(domain.DirectionLong, 0, 2, 2000, 1),
		mkTrade(domain.DirectionLong, 1, -1, -1000, 3),
		mkTrade(domain.DirectionShort, 2, 4, 4000, 2),
	}

	s := Summarize(trades)
	if s.Trades != 3 || s.Wins != 2 || s.Losses != 1 {
		t.Fatalf("counts = %d/%d/%d, want 3 trades, 2 wins, 1 loss", s.Trades, s.Wins, s.Losses)
	}
	if s.Wins+s.Losses != s.Trades {
		t.Error("wins + losses must equal total trades")
	}
	if s.WinLossRatio != 2 {
		t.Errorf("WinLossRatio = %v, want 2", s.WinLossRatio)
	}
	if math.Abs(s.Accuracy-2.0/3) > 1e-12 {
		t.Errorf("Accuracy = %v, want 2/3", s.Accuracy)
	}
	if math.Abs(s.MeanProfitPct-5.0/3) > 1e-12 {
		t.Errorf("MeanProfitPct = %v, want 5/3", s.MeanProfitPct)
	}
	if s.MedianProfitPct != 2 {
		t.Errorf("MedianProfitPct = %v, want 2", s.MedianProfitPct)
	}
	// Currency figures: nets are 2000, -1000, 4000.
	if math.Abs(s.MeanProfit-5000.0/3) > 1e-9 {
		t.Errorf("MeanProfit = %v, want 5000/3", s.MeanProfit)
	}
	if s.MedianProfit != 2000 {
		t.Errorf("MedianProfit = %v, want 2000", s.MedianProfit)
	}
	if s.TotalNetProfit != 5000 {
		t.Errorf("TotalNetProfit = %v, want 5000", s.TotalNetProfit)
	}
	if s.MaxDrawdownPct != 3 || s.MeanDrawdownPct != 2 {
		t.Errorf("drawdowns = %v/%v, want max 3, mean 2", s.MaxDrawdownPct, s.MeanDrawdownPct)
	}
	if s.MeanDurationMin != 240 || s.MeanRewardRisk != 1.5 || s.MeanRecoveryMin != 30 {
		t.Errorf("means = %v/%v/%v", s.MeanDurationMin, s.MeanRewardRisk, s.MeanRecoveryMin)
	}
	if s.ReturnStd <= 0 || s.Sharpe <= 0 {
		t.Errorf("ReturnStd/Sharpe = %v/%v, want both positive", s.ReturnStd, s.Sharpe)
	}
}

func TestSummarizeNoLossesIsInf(t *testing.T) {
	trades := []domain.Trade{
		mkTrade(domain.DirectionLong, 0, 2, 2000, 1),
		mkTrade(domain.DirectionLong, 1, 3, 3000, 1),
	}
	s := Summarize(trades)
	if !math.IsInf(s.WinLossRatio, 1) {
		t.Errorf("WinLossRatio = %v, want +Inf with no losses", s.WinLossRatio)
	}
	if s.Accuracy != 1 {
		t.Errorf("Accuracy = %v, want 1", s.Accuracy)
	}
}

func TestZeroTradesZeroReport(t *testing.T) {
	r := Compute(nil, 1_000_000)
	if !reflect.DeepEqual(r, Report{}) {
		t.Errorf("zero-trade report = %+v, want zero value", r)
	}
}

func TestComputeSplitsByDirection(t *testing.T) {
	trades := []domain.Trade{
		mkTrade(domain.DirectionLong, 0, 2, 2000, 1),
		mkTrade(domain.DirectionShort, 1, -1, -1000, 2),
		mkTrade(domain.DirectionShort, 2, 3, 3000, 1),
	}
	r := Compute(trades, 1_000_000)
	if r.All.Trades != 3 || r.Long.Trades != 1 || r.Short.Trades != 2 {
		t.Errorf("split = %d/%d/%d, want 3 all, 1 long, 2 short",
			r.All.Trades, r.Long.Trades, r.Short.Trades)
	}
	if r.Long.Wins != 1 || r.Short.Wins != 1 || r.Short.Losses != 1 {
		t.Error("direction sub-summaries miscounted wins and losses")
	}
}

func TestComputeIsIdempotent(t *testing.T) {
	trades := []domain.Trade{
		mkTrade(domain.DirectionLong, 2, 2, 2000, 1),
		mkTrade(domain.DirectionLong, 0, -1, -1000, 2),
		mkTrade(domain.DirectionShort, 1, 3, 3000, 1),
	}
	first := Compute(trades, 1_000_000)
	second := Compute(trades, 1_000_000)
	if !reflect.DeepEqual(first, second) {
		t.Error("Compute must not mutate its input between calls")
	}
}

func TestAdvancedMetrics(t *testing.T) {
	// Steady gains with one losing day spread over ten distinct days.
	var trades []domain.Trade
	for day := 0; day < 10; day++ {
		net := 5000.0
		pct := 1.0
		if day == 6 {
			net = -3000
			pct = -0.6
		}
		trades = append(trades, mkTrade(domain.DirectionLong, day, pct, net, 1))
	}

	a := ComputeAdvanced(trades, 1_000_000)
	if a.TradingDays != 10 {
		t.Fatalf("TradingDays = %d, want 10", a.TradingDays)
	}
	if a.AnnualizedSharpe <= 0 {
		t.Errorf("AnnualizedSharpe = %v, want positive for a profitable run", a.AnnualizedSharpe)
	}
	if a.Sortino <= 0 {
		t.Errorf("Sortino = %v, want positive", a.Sortino)
	}
	// Gross wins 45000, gross losses 3000.
	if math.Abs(a.ProfitFactor-15) > 1e-9 {
		t.Errorf("ProfitFactor = %v, want 15", a.ProfitFactor)
	}
	// Only dip: equity falls 3000 from its peak of 1030000 on day 6.
	wantDD := 3000.0 / 1_030_000.0
	if math.Abs(a.MaxDrawdown-wantDD) > 1e-12 {
		t.Errorf("MaxDrawdown = %v, want %v", a.MaxDrawdown, wantDD)
	}
	if a.MaxDrawdownDays != 1 {
		t.Errorf("MaxDrawdownDays = %v, want 1", a.MaxDrawdownDays)
	}
	if a.Stability <= 0.8 {
		t.Errorf("Stability = %v, want > 0.8 for near-linear growth", a.Stability)
	}
	if a.Calmar <= 0 {
		t.Errorf("Calmar = %v, want positive", a.Calmar)
	}
	if a.TailRatio <= 0 {
		t.Errorf("TailRatio = %v, want positive", a.TailRatio)
	}
}

func TestAdvancedAllWinsInfiniteProfitFactor(t *testing.T) {
	trades := []domain.Trade{
		mkTrade(domain.DirectionLong, 0, 1, 1000, 1),
		mkTrade(domain.DirectionLong, 1, 1, 1000, 1),
		mkTrade(domain.DirectionLong, 2, 1, 1000, 1),
	}
	a := ComputeAdvanced(trades, 1_000_000)
	if !math.IsInf(a.ProfitFactor, 1) {
		t.Errorf("ProfitFactor = %v, want +Inf with no losing trades", a.ProfitFactor)
	}
	if a.MaxDrawdown != 0 || a.MaxDrawdownDays != 0 {
		t.Errorf("drawdown = %v over %v days, want none", a.MaxDrawdown, a.MaxDrawdownDays)
	}
}

func TestAdvancedSingleDayIsZero(t *testing.T) {
	trades := []domain.Trade{
		mkTrade(domain.DirectionLong, 0, 1, 1000, 1),
		mkTrade(domain.DirectionShort, 0, 2, 2000, 1),
	}
	a := ComputeAdvanced(trades, 1_000_000)
	if a.TradingDays != 1 {
		t.Fatalf("TradingDays = %d, want 1 (same exit day)", a.TradingDays)
	}
	if a.AnnualizedSharpe != 0 || a.MaxDrawdown != 0 {
		t.Error("metrics need at least two equity points")
	}
}
