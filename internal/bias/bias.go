// Package bias audits a prepared run for look-ahead leaks. Signals are
// allowed to read only data that existed strictly before the bar they fire
// on; any indicator value sourced at or after the signal's timestamp is a
// leak from the future.
package bias

import (
	"fmt"
	"time"

	"backlab/internal/domain"
)

// Violation pins one leak to a row, a signal, and the offending column.
type Violation struct {
	Index         int
	Signal        string
	Indicator     string
	SignalTime    time.Time
	IndicatorTime time.Time
}

func (v Violation) String() string {
	return fmt.Sprintf("row %d: %s at %s reads %s sourced at %s",
		v.Index, v.Signal, v.SignalTime.Format(time.RFC3339),
		v.Indicator, v.IndicatorTime.Format(time.RFC3339))
}

func signalNames(f domain.SignalFlags) []string {
	var names []string
	if f.EntryLong {
		names = append(names, "entry_long")
	}
	if f.ExitLong {
		names = append(names, "exit_long")
	}
	if f.EntryShort {
		names = append(names, "entry_short")
	}
	if f.ExitShort {
		names = append(names, "exit_short")
	}
	return names
}

// ValidateNoLookahead checks every fired signal against the source
// timestamps of the indicator columns it could have read. Signals at row i
// consult indicators at row i-1, so each consulted value must have been
// sourced strictly before row i's timestamp. Rows whose own indicator
// sources postdate the row are flagged too. Returns nil when clean.
func ValidateNoLookahead(rows []domain.AlignedRow, flags []domain.SignalFlags, columns []string) []Violation {
	var out []Violation
	n := len(rows)
	if len(flags) < n {
		n = len(flags)
	}

	for i := 0; i < n; i++ {
		// Structural causality of the row itself.
		for _, col := range columns {
			src, ok := rows[i].SourceTS[col]
			if ok && src.After(rows[i].Bar.Timestamp) {
				out = append(out, Violation{
					Index:         i,
					Signal:        "row",
					Indicator:     col,
					SignalTime:    rows[i].Bar.Timestamp,
					IndicatorTime: src,
				})
			}
		}

		fired := signalNames(flags[i])
		if len(fired) == 0 || i == 0 {
			continue
		}
		for _, col := range columns {
			src, ok := rows[i-1].SourceTS[col]
			if !ok {
				continue
			}
			if !src.Before(rows[i].Bar.Timestamp) {
				for _, sig := range fired {
					out = append(out, Violation{
						Index:         i,
						Signal:        sig,
						Indicator:     col,
						SignalTime:    rows[i].Bar.Timestamp,
						IndicatorTime: src,
					})
				}
			}
		}
	}
	return out
}
