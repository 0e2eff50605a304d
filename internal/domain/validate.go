package domain

import "fmt"

// ValidateBars performs structural validation of a bar series before it
// enters the pipeline. It checks for emptiness, OHLC consistency
// (low <= open,close <= high), strictly increasing unique timestamps, and
// non-negative volume. Errors wrap ErrNoData or ErrBadSeries so callers can
// classify the failure without string matching.
func ValidateBars(bars []Bar) error {
	if len(bars) == 0 {
		return fmt.Errorf("%w: empty series", ErrNoData)
	}

	for i, b := range bars {
		if b.Timestamp.IsZero() {
			return fmt.Errorf("%w: bar %d has zero timestamp", ErrBadSeries, i)
		}
		if b.High < b.Low {
			return fmt.Errorf("%w: bar %d at %s has high %.4f < low %.4f",
				ErrBadSeries, i, b.Timestamp.Format("2006-01-02T15:04:05Z07:00"), b.High, b.Low)
		}
		if b.Open > b.High || b.Open < b.Low {
			return fmt.Errorf("%w: bar %d open %.4f outside [%.4f, %.4f]",
				ErrBadSeries, i, b.Open, b.Low, b.High)
		}
		if b.Close > b.High || b.Close < b.Low {
			return fmt.Errorf("%w: bar %d close %.4f outside [%.4f, %.4f]",
				ErrBadSeries, i, b.Close, b.Low, b.High)
		}
		if b.Volume < 0 {
			return fmt.Errorf("%w: bar %d has negative volume %.0f", ErrBadSeries, i, b.Volume)
		}
		if i > 0 && !bars[i-1].Timestamp.Before(b.Timestamp) {
			return fmt.Errorf("%w: timestamps not strictly increasing at index %d", ErrBadSeries, i)
		}
	}
	return nil
}
