package bias

import (
	"strings"
	"testing"
	"time"

	"backlab/internal/domain"
)

func mkRow(min int, sourceMin map[string]int) domain.AlignedRow {
	base := time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)
	r := domain.AlignedRow{
		Bar: domain.Bar{
			Ticker:    "TEST",
			Timestamp: base.Add(time.Duration(min) * time.Minute),
			Close:     100,
		},
		SourceTS: make(map[string]time.Time),
	}
	for col, m := range sourceMin {
		r.SourceTS[col] = base.Add(time.Duration(m) * time.Minute)
	}
	return r
}

func TestCleanRunHasNoViolations(t *testing.T) {
	rows := []domain.AlignedRow{
		mkRow(0, map[string]int{"sma": 0}),
		mkRow(1, map[string]int{"sma": 1}),
		mkRow(2, map[string]int{"sma": 2}),
	}
	flags := make([]domain.SignalFlags, 3)
	flags[2].EntryLong = true

	if v := ValidateNoLookahead(rows, flags, []string{"sma"}); v != nil {
		t.Errorf("clean run flagged: %v", v)
	}
}

func TestSignalReadingFutureSourceIsFlagged(t *testing.T) {
	// The indicator on row 1 is stamped at minute 2, the same instant the
	// signal on row 2 fires. Not strictly before, so it leaks.
	rows := []domain.AlignedRow{
		mkRow(0, map[string]int{"macd": 0}),
		mkRow(1, map[string]int{"macd": 2}),
		mkRow(2, map[string]int{"macd": 2}),
	}
	flags := make([]domain.SignalFlags, 3)
	flags[2].EntryLong = true
	flags[2].ExitShort = true

	got := ValidateNoLookahead(rows, flags, []string{"macd"})

	// Row 1's own source postdates its bar, plus one violation per fired
	// signal on row 2.
	if len(got) != 3 {
		t.Fatalf("got %d violations, want 3: %v", len(got), got)
	}
	if got[0].Signal != "row" || got[0].Index != 1 {
		t.Errorf("first violation = %+v, want structural violation at row 1", got[0])
	}
	sigs := map[string]bool{}
	for _, v := range got[1:] {
		sigs[v.Signal] = true
		if v.Index != 2 || v.Indicator != "macd" {
			t.Errorf("violation = %+v, want row 2 on macd", v)
		}
	}
	if !sigs["entry_long"] || !sigs["exit_short"] {
		t.Errorf("flagged signals = %v, want entry_long and exit_short", sigs)
	}
}

func TestSignalOnFirstRowSkipped(t *testing.T) {
	rows := []domain.AlignedRow{mkRow(0, map[string]int{"sma": 0})}
	flags := []domain.SignalFlags{{EntryLong: true}}
	if v := ValidateNoLookahead(rows, flags, []string{"sma"}); v != nil {
		t.Errorf("first-row signal has no prior bar to audit, got %v", v)
	}
}

func TestMissingColumnIgnored(t *testing.T) {
	rows := []domain.AlignedRow{
		mkRow(0, nil),
		mkRow(1, nil),
	}
	flags := make([]domain.SignalFlags, 2)
	flags[1].EntryShort = true
	if v := ValidateNoLookahead(rows, flags, []string{"absent"}); v != nil {
		t.Errorf("columns without source stamps should be skipped, got %v", v)
	}
}

func TestViolationString(t *testing.T) {
	v := Violation{
		Index:         7,
		Signal:        "entry_long",
		Indicator:     "r15_macd_hist",
		SignalTime:    time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC),
		IndicatorTime: time.Date(2024, 3, 4, 10, 15, 0, 0, time.UTC),
	}
	s := v.String()
	for _, want := range []string{"row 7", "entry_long", "r15_macd_hist"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %q, missing %q", s, want)
		}
	}
}
