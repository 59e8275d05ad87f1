package backtest

import "errors"

// Sentinel errors for per-symbol, per-day conditions. All of them are
// recovered locally by excluding the symbol for the day; only required-input
// failures can escalate to the whole day or run.
var (
	// ErrNoOpeningRange marks a symbol whose opening window has no bars on
	// a given day (halted, not yet listed, or a data gap).
	ErrNoOpeningRange = errors.New("no bars in opening window")

	// ErrDataGap marks missing or unreadable bars for a symbol/day.
	ErrDataGap = errors.New("bar data gap")

	// ErrInsufficientRVOLHistory marks a symbol without enough valid prior
	// opening ranges to compute relative volume.
	ErrInsufficientRVOLHistory = errors.New("insufficient opening range history")
)

// Exclusion records why a symbol produced no candidate on a day. Exclusions
// are outcomes, not failures: the run continues.
type Exclusion struct {
	Symbol string
	Reason string
	Err    error // underlying cause, nil for plain filter rejections
}
