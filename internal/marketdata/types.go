package marketdata

import (
	"time"

	"equity-price-pipeline/internal/domain"
)

// chartResponse mirrors the provider's chart endpoint JSON. Values come
// back as parallel arrays indexed by timestamp; holes are JSON nulls.
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResult struct {
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*int64   `json:"volume"`
		} `json:"quote"`
		AdjClose []struct {
			AdjClose []*float64 `json:"adjclose"`
		} `json:"adjclose"`
	} `json:"indicators"`
}

// bars converts the parallel arrays into price bars. Sessions without a
// close are dropped; intraday duplicates of the same date collapse to
// the last one seen.
func (r chartResult) bars() []domain.PriceBar {
	if len(r.Indicators.Quote) == 0 {
		return nil
	}
	quote := r.Indicators.Quote[0]

	var adj []*float64
	if len(r.Indicators.AdjClose) > 0 {
		adj = r.Indicators.AdjClose[0].AdjClose
	}

	at := func(vs []*float64, i int) *float64 {
		if i < len(vs) {
			return vs[i]
		}
		return nil
	}

	byDate := make(map[time.Time]int, len(r.Timestamp))
	bars := make([]domain.PriceBar, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		closePrice := at(quote.Close, i)
		if closePrice == nil {
			continue
		}

		bar := domain.PriceBar{
			Date:     domain.Day(time.Unix(ts, 0)),
			Open:     at(quote.Open, i),
			High:     at(quote.High, i),
			Low:      at(quote.Low, i),
			Close:    *closePrice,
			AdjClose: at(adj, i),
		}
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			v := *quote.Volume[i]
			bar.Volume = &v
		}

		if idx, seen := byDate[bar.Date]; seen {
			bars[idx] = bar
			continue
		}
		byDate[bar.Date] = len(bars)
		bars = append(bars, bar)
	}

	return bars
}
