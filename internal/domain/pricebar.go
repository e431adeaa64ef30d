package domain

import "time"

// PriceBar is one day's OHLCV record for an equity.
// Corresponds to the equity_prices table, keyed by (isin, symbol, price_date).
type PriceBar struct {
	Date     time.Time // trading date, UTC midnight
	Open     *float64
	High     *float64
	Low      *float64
	Close    float64  // bars without a close are dropped at the gateway
	AdjClose *float64 // provider adjusted close; may be missing or non-positive
	Volume   *int64
}

// AdjustedClose returns the adjusted close to store. The stored value is
// always positive: if the provider supplied nothing, zero, or a negative
// value, the raw close is used instead.
func (b PriceBar) AdjustedClose() float64 {
	if b.AdjClose != nil && *b.AdjClose > 0 {
		return *b.AdjClose
	}
	return b.Close
}

// Counts is the session bookkeeping recomputed from stored bars after an
// upsert. OneYear is never larger than Total.
type Counts struct {
	Total   int
	OneYear int
	FiveDay int
}

// Day truncates a timestamp to its UTC calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
