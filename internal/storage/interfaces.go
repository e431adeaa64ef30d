package storage

import (
	"context"
	"time"

	"equity-price-pipeline/internal/domain"
)

// TargetFilter narrows the rows selected by EquityStore.GetTargets.
type TargetFilter struct {
	// Limit caps the number of targets returned. 0 means no cap.
	Limit int

	// Only restricts selection to the given exchange symbols.
	Only []string

	// Claim atomically stamps last_attempt_date to today at selection
	// time, so concurrent runs cannot pick up the same row twice on the
	// same day. A claimed row that later fails is not retried until the
	// next calendar day.
	Claim bool
}

// EquityStore provides access to the equities table.
type EquityStore interface {
	// GetTargets selects rows whose last attempt is absent or before
	// today, excluding delisted equities, ordered by (symbol, isin).
	GetTargets(ctx context.Context, f TargetFilter) ([]domain.Target, error)

	// GetExistingTicker returns the previously resolved provider ticker
	// for the pair, or "" if none is recorded. Returns ErrNotFound if
	// the equity row does not exist.
	GetExistingTicker(ctx context.Context, isin, symbol string) (string, error)

	// MarkAttempt records the outcome of one update pass: ticker,
	// provider tag, validity flags and counts on success; cleared tag,
	// is_valid=false and zero counts on failure. last_attempt_date is
	// stamped only when a.Touch is set.
	MarkAttempt(ctx context.Context, a domain.Attempt) error
}

// QuoteRow is one row of the downstream read view. The column set
// {date, ticker, open, high, low, close, adjusted_close, volume} is a
// compatibility contract.
type QuoteRow struct {
	Date     time.Time
	Ticker   *string
	Open     *float64
	High     *float64
	Low      *float64
	Close    float64
	AdjClose float64
	Volume   *int64
}

// PriceStore provides access to the equity_prices table and the
// canonical read view.
type PriceStore interface {
	// LastPriceDate returns the most recent stored price date for the
	// pair. ok is false when no bars are stored.
	LastPriceDate(ctx context.Context, isin, symbol string) (d time.Time, ok bool, err error)

	// UpsertBars inserts or updates bars keyed by (isin, symbol, date).
	// Conflicts overwrite fields (last-write-wins); the stored adjusted
	// close is forced positive via close fallback. Writing under a
	// non-canonical symbol for the ISIN returns ErrNonCanonicalSymbol
	// and writes nothing. Returns the number of rows written.
	UpsertBars(ctx context.Context, isin, symbol string, bars []domain.PriceBar) (int, error)

	// RecomputeCounts counts stored bars in total and within the
	// one-year and five-day windows.
	RecomputeCounts(ctx context.Context, isin, symbol string) (domain.Counts, error)

	// UpdateBounds refreshes first_quote_date / last_quote_date on the
	// equity row from the stored bars. A pair without bars keeps its
	// previous bounds.
	UpdateBounds(ctx context.Context, isin, symbol string) error

	// CanonicalPrices reads the downstream view: canonical-symbol bars
	// for the ISIN, ordered by date ASC.
	CanonicalPrices(ctx context.Context, isin string) ([]QuoteRow, error)
}
