// Package stats computes trailing indicator values from daily bars: true
// range, ATR, and average volume. All functions operate on history the
// caller has already restricted to bars before the decision point, so no
// look-ahead can occur here.
package stats

import (
	"errors"
	"fmt"
)

// ErrInsufficientHistory is returned when fewer bars are available than an
// indicator window requires. Callers treat this as "symbol excluded for the
// day", never as a zero value.
var ErrInsufficientHistory = errors.New("insufficient trailing history")

// TrueRange returns the true range of a bar given the previous close:
// max(high-low, |high-prevClose|, |low-prevClose|).
func TrueRange(high, low, prevClose float64) float64 {
	tr := high - low
	if d := abs(high - prevClose); d > tr {
		tr = d
	}
	if d := abs(low - prevClose); d > tr {
		tr = d
	}
	return tr
}

// OHLCV is the minimal daily bar view the indicator functions need.
type OHLCV struct {
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// ATR computes the average true range over the last `period` bars of the
// given ascending daily series. It needs period+1 bars so the first true
// range has a previous close.
func ATR(bars []OHLCV, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("atr period %d: must be positive", period)
	}
	if len(bars) < period+1 {
		return 0, fmt.Errorf("atr(%d) needs %d bars, have %d: %w",
			period, period+1, len(bars), ErrInsufficientHistory)
	}

	window := bars[len(bars)-period-1:]
	sum := 0.0
	for i := 1; i < len(window); i++ {
		sum += TrueRange(window[i].High, window[i].Low, window[i-1].Close)
	}
	return sum / float64(period), nil
}

// AvgVolume computes the simple average volume over the last `period` bars
// of the given ascending daily series.
func AvgVolume(bars []OHLCV, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("avg volume period %d: must be positive", period)
	}
	if len(bars) < period {
		return 0, fmt.Errorf("avg volume(%d) needs %d bars, have %d: %w",
			period, period, len(bars), ErrInsufficientHistory)
	}

	window := bars[len(bars)-period:]
	var sum int64
	for _, b := range window {
		sum += b.Volume
	}
	return float64(sum) / float64(period), nil
}

// Mean returns the arithmetic mean of xs, or an error for an empty slice.
func Mean(xs []float64) (float64, error) {
	if len(xs) == 0 {
		return 0, ErrInsufficientHistory
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs)), nil
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
