// Package universe decides which symbols are eligible candidates for a
// trading day: static floors on price, trailing average volume, and trailing
// ATR, plus an optional per-day allowlist. Missing data always fails closed.
package universe

// Reason is a machine-readable exclusion code attached to symbols that do
// not make a day's candidate pool.
type Reason string

const (
	ReasonEligible            Reason = ""
	ReasonPriceFloor          Reason = "price_below_floor"
	ReasonVolumeFloor         Reason = "avg_volume_below_floor"
	ReasonATRFloor            Reason = "atr_below_floor"
	ReasonNotAllowed          Reason = "not_in_allowlist"
	ReasonInsufficientHistory Reason = "insufficient_history"
	ReasonDataGap             Reason = "data_gap"
)

// Metrics carries the per-symbol trailing statistics the filter inspects.
// All values derive strictly from bars before the trading day. Valid is
// false when a required statistic could not be computed; such symbols are
// excluded, never defaulted to pass.
type Metrics struct {
	LastClose float64
	AvgVolume float64
	ATR       float64
	Valid     bool
}

// Filter applies the static eligibility rules.
type Filter struct {
	PriceFloor     float64
	AvgVolumeFloor float64
	ATRFloor       float64
}

// Check returns ReasonEligible when the symbol passes every floor, or the
// first failing reason otherwise.
func (f *Filter) Check(m Metrics) Reason {
	if !m.Valid {
		return ReasonInsufficientHistory
	}
	if m.LastClose < f.PriceFloor {
		return ReasonPriceFloor
	}
	if m.AvgVolume < f.AvgVolumeFloor {
		return ReasonVolumeFloor
	}
	if m.ATR < f.ATRFloor {
		return ReasonATRFloor
	}
	return ReasonEligible
}
