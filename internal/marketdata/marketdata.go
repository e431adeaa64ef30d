// Package marketdata fetches daily price history from the external
// quotes provider.
package marketdata

import (
	"context"
	"time"

	"equity-price-pipeline/internal/domain"
)

// HistoryProvider fetches daily bars for a provider ticker. If since is
// set, history is requested from one day earlier to give the upsert an
// overlap; if nil, the maximum available history is requested.
//
// An empty result is not an error: it means nothing new.
type HistoryProvider interface {
	DownloadHistory(ctx context.Context, ticker string, since *time.Time) ([]domain.PriceBar, error)
}
