package collar

// PriceOracle supplies the opening and settlement prices for one asset pair.
// Prices are fixed-point integers at the price scale and must be nonzero.
type PriceOracle interface {
	// CurrentPrice returns the latest manipulation-resistant price.
	CurrentPrice() (int64, error)

	// PastPriceWithFallback returns the price observed at (or nearest before)
	// the given timestamp. If the historical observation window has lapsed it
	// degrades to the current price and reports historical=false — callers
	// must preserve that flag rather than silently substituting.
	PastPriceWithFallback(timestampMicros int64) (price int64, historical bool, err error)
}
