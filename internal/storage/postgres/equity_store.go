package postgres

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"equity-price-pipeline/internal/domain"
	"equity-price-pipeline/internal/storage"
)

// EquityStore implements storage.EquityStore using PostgreSQL.
type EquityStore struct {
	pool *Pool
}

// NewEquityStore creates a new EquityStore.
func NewEquityStore(pool *Pool) *EquityStore {
	return &EquityStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EquityStore = (*EquityStore)(nil)

// GetTargets selects unclaimed rows for an update pass. With f.Claim set
// the selection and the last_attempt_date stamp happen in one statement,
// with SKIP LOCKED so concurrent runs split the work instead of blocking.
func (s *EquityStore) GetTargets(ctx context.Context, f storage.TargetFilter) ([]domain.Target, error) {
	var sb strings.Builder
	var args []any

	sb.WriteString(`
		SELECT isin, symbol
		FROM equities
		WHERE (last_attempt_date IS NULL OR last_attempt_date < CURRENT_DATE)
		  AND NOT is_delisted`)
	if len(f.Only) > 0 {
		args = append(args, f.Only)
		sb.WriteString(" AND symbol = ANY($" + strconv.Itoa(len(args)) + ")")
	}
	sb.WriteString(" ORDER BY symbol, isin")
	if f.Limit > 0 {
		args = append(args, f.Limit)
		sb.WriteString(" LIMIT $" + strconv.Itoa(len(args)))
	}

	query := sb.String()
	if f.Claim {
		query = `
		UPDATE equities e
		SET last_attempt_date = CURRENT_DATE
		FROM (` + query + `
			FOR UPDATE SKIP LOCKED
		) sel
		WHERE e.isin = sel.isin AND e.symbol = sel.symbol
		RETURNING e.isin, e.symbol`
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get targets: %w", err)
	}
	defer rows.Close()

	var targets []domain.Target
	for rows.Next() {
		var t domain.Target
		if err := rows.Scan(&t.ISIN, &t.Symbol); err != nil {
			return nil, fmt.Errorf("scan target row: %w", err)
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate target rows: %w", err)
	}

	// RETURNING does not preserve the inner ORDER BY.
	if f.Claim {
		sort.Slice(targets, func(i, j int) bool {
			if targets[i].Symbol != targets[j].Symbol {
				return targets[i].Symbol < targets[j].Symbol
			}
			return targets[i].ISIN < targets[j].ISIN
		})
	}

	return targets, nil
}

// GetExistingTicker returns the resolved provider ticker for the pair,
// or "" when none is recorded. Returns ErrNotFound for an unknown pair.
func (s *EquityStore) GetExistingTicker(ctx context.Context, isin, symbol string) (string, error) {
	query := `SELECT ticker FROM equities WHERE isin = $1 AND symbol = $2`

	var ticker *string
	err := s.pool.QueryRow(ctx, query, isin, symbol).Scan(&ticker)
	if err != nil {
		if isNotFoundError(err) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("get existing ticker: %w", err)
	}
	if ticker == nil {
		return "", nil
	}
	return *ticker, nil
}

// MarkAttempt writes the per-attempt bookkeeping back to the equity row.
// A failed attempt clears the provider tag and validity but leaves
// is_active alone: activity is a long-window property and one bad pass
// says nothing about it.
func (s *EquityStore) MarkAttempt(ctx context.Context, a domain.Attempt) error {
	if a.ISIN == "" || a.Symbol == "" {
		return storage.ErrInvalidInput
	}

	var query string
	var args []any
	if a.Success {
		query = `
			UPDATE equities
			SET ticker = $3,
			    source_tag = $4,
			    is_valid = $5,
			    is_active = $6,
			    count_5d = $7,
			    count_1y = $8,
			    count_total = $9,
			    last_attempt_date = CASE WHEN $10 THEN CURRENT_DATE ELSE last_attempt_date END
			WHERE isin = $1 AND symbol = $2`
		args = []any{a.ISIN, a.Symbol, a.Ticker, domain.SourceYahoo, a.IsValid, a.IsActive,
			a.Counts.FiveDay, a.Counts.OneYear, a.Counts.Total, a.Touch}
	} else {
		query = `
			UPDATE equities
			SET ticker = NULL,
			    source_tag = NULL,
			    is_valid = FALSE,
			    count_5d = 0,
			    count_1y = 0,
			    count_total = 0,
			    last_attempt_date = CASE WHEN $3 THEN CURRENT_DATE ELSE last_attempt_date END
			WHERE isin = $1 AND symbol = $2`
		args = []any{a.ISIN, a.Symbol, a.Touch}
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("mark attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
