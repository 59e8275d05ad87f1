package backtest

// Commission models per-share transaction costs with a minimum ticket,
// applied independently to the entry and exit legs. Either leg can be
// configured fee-free, e.g. to model limit-order exits.
type Commission struct {
	PerShare float64
	Min      float64
	OnEntry  bool
	OnExit   bool
}

// Leg returns the cost of a single fill of the given size.
func (c Commission) Leg(shares int64) float64 {
	if shares <= 0 {
		return 0
	}
	cost := c.PerShare * float64(shares)
	if cost < c.Min {
		cost = c.Min
	}
	return cost
}

// RoundTrip returns the total commission for an entered trade, honouring
// the per-leg toggles.
func (c Commission) RoundTrip(shares int64) float64 {
	total := 0.0
	if c.OnEntry {
		total += c.Leg(shares)
	}
	if c.OnExit {
		total += c.Leg(shares)
	}
	return total
}
