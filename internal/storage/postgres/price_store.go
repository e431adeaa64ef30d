package postgres

import (
	"context"
	"fmt"
	"time"

	"equity-price-pipeline/internal/domain"
	"equity-price-pipeline/internal/storage"
)

// PriceStore implements storage.PriceStore using PostgreSQL.
type PriceStore struct {
	pool *Pool
}

// NewPriceStore creates a new PriceStore.
func NewPriceStore(pool *Pool) *PriceStore {
	return &PriceStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PriceStore = (*PriceStore)(nil)

// LastPriceDate returns the most recent stored price date for the pair.
func (s *PriceStore) LastPriceDate(ctx context.Context, isin, symbol string) (time.Time, bool, error) {
	query := `
		SELECT MAX(price_date)::date
		FROM equity_prices
		WHERE isin = $1 AND symbol = $2`

	var d *time.Time
	if err := s.pool.QueryRow(ctx, query, isin, symbol).Scan(&d); err != nil {
		return time.Time{}, false, fmt.Errorf("last price date: %w", err)
	}
	if d == nil {
		return time.Time{}, false, nil
	}
	return domain.Day(*d), true, nil
}

// UpsertBars writes bars for the pair inside one transaction, keyed by
// (isin, symbol, price_date). Re-running with an overlapping range
// converges to the same stored values. The canonical-symbol trigger
// rejects writes for a non-canonical symbol; nothing is committed then.
func (s *PriceStore) UpsertBars(ctx context.Context, isin, symbol string, bars []domain.PriceBar) (int, error) {
	if isin == "" || symbol == "" {
		return 0, storage.ErrInvalidInput
	}
	if len(bars) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO equity_prices (
			isin, symbol, price_date, open, high, low, close, adjusted_close, volume
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (isin, symbol, price_date) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			adjusted_close = EXCLUDED.adjusted_close,
			volume = EXCLUDED.volume`

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin upsert tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var written int
	for _, b := range bars {
		tag, err := tx.Exec(ctx, query,
			isin,
			symbol,
			domain.Day(b.Date),
			b.Open,
			b.High,
			b.Low,
			b.Close,
			b.AdjustedClose(),
			b.Volume,
		)
		if err != nil {
			if isCanonicalViolation(err) {
				return 0, storage.ErrNonCanonicalSymbol
			}
			return 0, fmt.Errorf("upsert bar %s: %w", b.Date.Format("2006-01-02"), err)
		}
		written += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit upsert tx: %w", err)
	}
	return written, nil
}

// RecomputeCounts counts stored bars in total and within the rolling
// windows. The windows are calendar-day based, matching the attempt
// selection which is also calendar-day based.
func (s *PriceStore) RecomputeCounts(ctx context.Context, isin, symbol string) (domain.Counts, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE price_date >= CURRENT_DATE - INTERVAL '366 days'),
			COUNT(*) FILTER (WHERE price_date >= CURRENT_DATE - INTERVAL '5 days')
		FROM equity_prices
		WHERE isin = $1 AND symbol = $2`

	var c domain.Counts
	if err := s.pool.QueryRow(ctx, query, isin, symbol).Scan(&c.Total, &c.OneYear, &c.FiveDay); err != nil {
		return domain.Counts{}, fmt.Errorf("recompute counts: %w", err)
	}
	if c.OneYear > c.Total {
		c.OneYear = c.Total
	}
	return c, nil
}

// UpdateBounds refreshes the cached first/last quote dates on the equity
// row. A pair without stored bars keeps its previous bounds.
func (s *PriceStore) UpdateBounds(ctx context.Context, isin, symbol string) error {
	query := `
		UPDATE equities e
		SET first_quote_date = COALESCE(b.first_d, e.first_quote_date),
		    last_quote_date  = COALESCE(b.last_d, e.last_quote_date)
		FROM (
			SELECT MIN(price_date)::date AS first_d, MAX(price_date)::date AS last_d
			FROM equity_prices
			WHERE isin = $1 AND symbol = $2
		) b
		WHERE e.isin = $1 AND e.symbol = $2`

	if _, err := s.pool.Exec(ctx, query, isin, symbol); err != nil {
		return fmt.Errorf("update quote bounds: %w", err)
	}
	return nil
}

// CanonicalPrices reads the downstream view v_equity_prices: only rows
// stored under the canonical symbol for the ISIN, joined with the
// equity's resolved ticker.
func (s *PriceStore) CanonicalPrices(ctx context.Context, isin string) ([]storage.QuoteRow, error) {
	query := `
		SELECT date, ticker, open, high, low, close, adjusted_close, volume
		FROM v_equity_prices
		WHERE isin = $1
		ORDER BY date ASC`

	rows, err := s.pool.Query(ctx, query, isin)
	if err != nil {
		return nil, fmt.Errorf("canonical prices: %w", err)
	}
	defer rows.Close()

	var out []storage.QuoteRow
	for rows.Next() {
		var q storage.QuoteRow
		if err := rows.Scan(&q.Date, &q.Ticker, &q.Open, &q.High, &q.Low, &q.Close, &q.AdjClose, &q.Volume); err != nil {
			return nil, fmt.Errorf("scan quote row: %w", err)
		}
		q.Date = domain.Day(q.Date)
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quote rows: %w", err)
	}

	return out, nil
}
