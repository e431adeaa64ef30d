// Package memory provides in-memory storage implementations for tests
// and offline experiments. The equity and price state live in one Store
// because quote bounds and counts cross the two tables.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"equity-price-pipeline/internal/domain"
	"equity-price-pipeline/internal/storage"
)

type pairKey struct {
	isin   string
	symbol string
}

// Store is an in-memory implementation of storage.EquityStore and
// storage.PriceStore.
type Store struct {
	mu        sync.RWMutex
	equities  map[pairKey]*domain.Equity
	bars      map[pairKey]map[time.Time]domain.PriceBar
	canonical map[string]string // isin -> canonical symbol

	now func() time.Time
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		equities:  make(map[pairKey]*domain.Equity),
		bars:      make(map[pairKey]map[time.Time]domain.PriceBar),
		canonical: make(map[string]string),
		now:       time.Now,
	}
}

// Compile-time interface checks.
var (
	_ storage.EquityStore = (*Store)(nil)
	_ storage.PriceStore  = (*Store)(nil)
)

// AddEquity seeds a reference-data row, as the external importer would.
func (s *Store) AddEquity(e domain.Equity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	eq := e
	s.equities[pairKey{e.ISIN, e.Symbol}] = &eq
}

// Equity returns a copy of the stored row, or false if absent.
func (s *Store) Equity(isin, symbol string) (domain.Equity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.equities[pairKey{isin, symbol}]
	if !ok {
		return domain.Equity{}, false
	}
	return *e, true
}

// SetCanonicalSymbol seeds the read-only canonical mapping for an ISIN.
func (s *Store) SetCanonicalSymbol(isin, symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.canonical[isin] = symbol
}

// GetTargets selects rows whose last attempt is absent or before today,
// excluding delisted equities. With f.Claim set, the attempt date is
// stamped under the same lock, so a concurrent selection cannot return
// the same row twice on the same day.
func (s *Store) GetTargets(_ context.Context, f storage.TargetFilter) ([]domain.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	today := domain.Day(s.now())

	only := make(map[string]bool, len(f.Only))
	for _, sym := range f.Only {
		only[sym] = true
	}

	var selected []*domain.Equity
	for _, e := range s.equities {
		if e.IsDelisted {
			continue
		}
		if e.LastAttemptDate != nil && !e.LastAttemptDate.Before(today) {
			continue
		}
		if len(only) > 0 && !only[e.Symbol] {
			continue
		}
		selected = append(selected, e)
	}

	sort.Slice(selected, func(i, j int) bool {
		if selected[i].Symbol != selected[j].Symbol {
			return selected[i].Symbol < selected[j].Symbol
		}
		return selected[i].ISIN < selected[j].ISIN
	})

	if f.Limit > 0 && len(selected) > f.Limit {
		selected = selected[:f.Limit]
	}

	targets := make([]domain.Target, 0, len(selected))
	for _, e := range selected {
		if f.Claim {
			d := today
			e.LastAttemptDate = &d
		}
		targets = append(targets, domain.Target{ISIN: e.ISIN, Symbol: e.Symbol})
	}

	return targets, nil
}

// GetExistingTicker returns the resolved ticker for the pair, or "" when
// none is recorded. Returns ErrNotFound for an unknown pair.
func (s *Store) GetExistingTicker(_ context.Context, isin, symbol string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.equities[pairKey{isin, symbol}]
	if !ok {
		return "", storage.ErrNotFound
	}
	if e.Ticker == nil {
		return "", nil
	}
	return *e.Ticker, nil
}

// MarkAttempt writes the per-attempt bookkeeping back to the equity row.
func (s *Store) MarkAttempt(_ context.Context, a domain.Attempt) error {
	if a.ISIN == "" || a.Symbol == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.equities[pairKey{a.ISIN, a.Symbol}]
	if !ok {
		return storage.ErrNotFound
	}

	if a.Success {
		e.Ticker = a.Ticker
		tag := domain.SourceYahoo
		e.SourceTag = &tag
		e.IsValid = a.IsValid
		e.IsActive = a.IsActive
		e.Count5D = a.Counts.FiveDay
		e.Count1Y = a.Counts.OneYear
		e.CountTotal = a.Counts.Total
	} else {
		e.Ticker = nil
		e.SourceTag = nil
		e.IsValid = false
		e.Count5D = 0
		e.Count1Y = 0
		e.CountTotal = 0
	}
	if a.Touch {
		d := domain.Day(s.now())
		e.LastAttemptDate = &d
	}

	return nil
}

// LastPriceDate returns the most recent stored price date for the pair.
func (s *Store) LastPriceDate(_ context.Context, isin, symbol string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dates := s.bars[pairKey{isin, symbol}]
	if len(dates) == 0 {
		return time.Time{}, false, nil
	}

	var last time.Time
	for d := range dates {
		if d.After(last) {
			last = d
		}
	}
	return last, true, nil
}

// UpsertBars inserts or updates bars keyed by date, last write wins.
// Writes for a non-canonical symbol are rejected wholesale.
func (s *Store) UpsertBars(_ context.Context, isin, symbol string, bars []domain.PriceBar) (int, error) {
	if isin == "" || symbol == "" {
		return 0, storage.ErrInvalidInput
	}
	if len(bars) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if canon, ok := s.canonical[isin]; ok && canon != symbol {
		return 0, storage.ErrNonCanonicalSymbol
	}

	key := pairKey{isin, symbol}
	if s.bars[key] == nil {
		s.bars[key] = make(map[time.Time]domain.PriceBar)
	}
	for _, b := range bars {
		stored := b
		adj := b.AdjustedClose()
		stored.AdjClose = &adj
		s.bars[key][domain.Day(b.Date)] = stored
	}
	return len(bars), nil
}

// RecomputeCounts counts stored bars in total and within the windows.
func (s *Store) RecomputeCounts(_ context.Context, isin, symbol string) (domain.Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	today := domain.Day(s.now())
	yearAgo := today.AddDate(0, 0, -366)
	fiveDaysAgo := today.AddDate(0, 0, -5)

	var c domain.Counts
	for d := range s.bars[pairKey{isin, symbol}] {
		c.Total++
		if !d.Before(yearAgo) {
			c.OneYear++
		}
		if !d.Before(fiveDaysAgo) {
			c.FiveDay++
		}
	}
	if c.OneYear > c.Total {
		c.OneYear = c.Total
	}
	return c, nil
}

// UpdateBounds refreshes first/last quote dates on the equity row.
func (s *Store) UpdateBounds(_ context.Context, isin, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dates := s.bars[pairKey{isin, symbol}]
	if len(dates) == 0 {
		return nil
	}
	e, ok := s.equities[pairKey{isin, symbol}]
	if !ok {
		return nil
	}

	var first, last time.Time
	for d := range dates {
		if first.IsZero() || d.Before(first) {
			first = d
		}
		if d.After(last) {
			last = d
		}
	}
	f, l := first, last
	e.FirstQuoteDate = &f
	e.LastQuoteDate = &l
	return nil
}

// CanonicalPrices returns bars stored under the canonical symbol for the
// ISIN, ordered by date ASC.
func (s *Store) CanonicalPrices(_ context.Context, isin string) ([]storage.QuoteRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	canon, ok := s.canonical[isin]
	if !ok {
		return nil, nil
	}

	var ticker *string
	if e, ok := s.equities[pairKey{isin, canon}]; ok && e.Ticker != nil {
		t := *e.Ticker
		ticker = &t
	}

	var out []storage.QuoteRow
	for d, b := range s.bars[pairKey{isin, canon}] {
		out = append(out, storage.QuoteRow{
			Date:     d,
			Ticker:   ticker,
			Open:     b.Open,
			High:     b.High,
			Low:      b.Low,
			Close:    b.Close,
			AdjClose: b.AdjustedClose(),
			Volume:   b.Volume,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}
