package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equity-price-pipeline/internal/domain"
	"equity-price-pipeline/internal/storage"
)

var fixedNow = time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)

func newFixedStore() *Store {
	s := NewStore()
	s.now = func() time.Time { return fixedNow }
	return s
}

func ptr[T any](v T) *T { return &v }

func bar(date time.Time, closePrice float64) domain.PriceBar {
	return domain.PriceBar{Date: date, Close: closePrice}
}

func TestGetTargets_SkipsAttemptedTodayAndDelisted(t *testing.T) {
	s := newFixedStore()
	today := domain.Day(fixedNow)
	yesterday := today.AddDate(0, 0, -1)

	s.AddEquity(domain.Equity{ISIN: "FR0000120271", Symbol: "TTE"})
	s.AddEquity(domain.Equity{ISIN: "NL0010273215", Symbol: "ASML", LastAttemptDate: &yesterday})
	s.AddEquity(domain.Equity{ISIN: "FR0000131906", Symbol: "RNO", LastAttemptDate: &today})
	s.AddEquity(domain.Equity{ISIN: "FR0000120172", Symbol: "CA", IsDelisted: true})

	targets, err := s.GetTargets(context.Background(), storage.TargetFilter{})
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, "ASML", targets[0].Symbol)
	assert.Equal(t, "TTE", targets[1].Symbol)
}

func TestGetTargets_OnlyAndLimit(t *testing.T) {
	s := newFixedStore()
	s.AddEquity(domain.Equity{ISIN: "FR0000120271", Symbol: "TTE"})
	s.AddEquity(domain.Equity{ISIN: "NL0010273215", Symbol: "ASML"})
	s.AddEquity(domain.Equity{ISIN: "FR0000131906", Symbol: "RNO"})

	targets, err := s.GetTargets(context.Background(), storage.TargetFilter{Only: []string{"RNO", "TTE"}})
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, "RNO", targets[0].Symbol)
	assert.Equal(t, "TTE", targets[1].Symbol)

	targets, err = s.GetTargets(context.Background(), storage.TargetFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, "ASML", targets[0].Symbol)
}

func TestGetTargets_ClaimIsExclusive(t *testing.T) {
	s := newFixedStore()
	s.AddEquity(domain.Equity{ISIN: "FR0000120271", Symbol: "TTE"})

	first, err := s.GetTargets(context.Background(), storage.TargetFilter{Claim: true})
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := s.GetTargets(context.Background(), storage.TargetFilter{Claim: true})
	require.NoError(t, err)
	assert.Empty(t, second, "a claimed row is not selectable again the same day")

	e, ok := s.Equity("FR0000120271", "TTE")
	require.True(t, ok)
	require.NotNil(t, e.LastAttemptDate)
	assert.Equal(t, domain.Day(fixedNow), *e.LastAttemptDate)
}

func TestGetExistingTicker(t *testing.T) {
	s := newFixedStore()
	s.AddEquity(domain.Equity{ISIN: "FR0000120271", Symbol: "TTE", Ticker: ptr("TTE.PA")})
	s.AddEquity(domain.Equity{ISIN: "NL0010273215", Symbol: "ASML"})

	ticker, err := s.GetExistingTicker(context.Background(), "FR0000120271", "TTE")
	require.NoError(t, err)
	assert.Equal(t, "TTE.PA", ticker)

	ticker, err = s.GetExistingTicker(context.Background(), "NL0010273215", "ASML")
	require.NoError(t, err)
	assert.Empty(t, ticker)

	_, err = s.GetExistingTicker(context.Background(), "XX0000000000", "NOPE")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMarkAttempt_SuccessAndFailure(t *testing.T) {
	s := newFixedStore()
	s.AddEquity(domain.Equity{ISIN: "FR0000120271", Symbol: "TTE"})

	err := s.MarkAttempt(context.Background(), domain.Attempt{
		ISIN:     "FR0000120271",
		Symbol:   "TTE",
		Success:  true,
		Ticker:   ptr("TTE.PA"),
		Counts:   domain.Counts{Total: 500, OneYear: 250, FiveDay: 4},
		IsValid:  true,
		IsActive: true,
		Touch:    true,
	})
	require.NoError(t, err)

	e, _ := s.Equity("FR0000120271", "TTE")
	require.NotNil(t, e.Ticker)
	assert.Equal(t, "TTE.PA", *e.Ticker)
	require.NotNil(t, e.SourceTag)
	assert.Equal(t, domain.SourceYahoo, *e.SourceTag)
	assert.True(t, e.IsValid)
	assert.True(t, e.IsActive)
	assert.Equal(t, 250, e.Count1Y)
	require.NotNil(t, e.LastAttemptDate)
	assert.Equal(t, domain.Day(fixedNow), *e.LastAttemptDate)

	// A failed attempt clears resolution state but keeps the attempt stamp.
	err = s.MarkAttempt(context.Background(), domain.Attempt{
		ISIN: "FR0000120271", Symbol: "TTE", Success: false, Touch: true,
	})
	require.NoError(t, err)

	e, _ = s.Equity("FR0000120271", "TTE")
	assert.Nil(t, e.Ticker)
	assert.Nil(t, e.SourceTag)
	assert.False(t, e.IsValid)
	assert.Zero(t, e.Count1Y)
	assert.Zero(t, e.CountTotal)
	assert.NotNil(t, e.LastAttemptDate)
}

func TestMarkAttempt_Validation(t *testing.T) {
	s := newFixedStore()

	err := s.MarkAttempt(context.Background(), domain.Attempt{Symbol: "TTE"})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	err = s.MarkAttempt(context.Background(), domain.Attempt{ISIN: "XX0000000000", Symbol: "NOPE"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpsertBars_IdempotentByDate(t *testing.T) {
	s := newFixedStore()
	s.AddEquity(domain.Equity{ISIN: "FR0000120271", Symbol: "TTE"})
	d := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	n, err := s.UpsertBars(context.Background(), "FR0000120271", "TTE", []domain.PriceBar{bar(d, 60.0)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Same session again with a revised close: still one stored bar.
	n, err = s.UpsertBars(context.Background(), "FR0000120271", "TTE", []domain.PriceBar{bar(d, 61.5)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	counts, err := s.RecomputeCounts(context.Background(), "FR0000120271", "TTE")
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Total)
}

func TestUpsertBars_RejectsNonCanonicalSymbol(t *testing.T) {
	s := newFixedStore()
	s.AddEquity(domain.Equity{ISIN: "FR0000120271", Symbol: "TTE"})
	s.AddEquity(domain.Equity{ISIN: "FR0000120271", Symbol: "TOTB"})
	s.SetCanonicalSymbol("FR0000120271", "TTE")
	d := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	_, err := s.UpsertBars(context.Background(), "FR0000120271", "TOTB", []domain.PriceBar{bar(d, 60.0)})
	assert.ErrorIs(t, err, storage.ErrNonCanonicalSymbol)

	n, err := s.UpsertBars(context.Background(), "FR0000120271", "TTE", []domain.PriceBar{bar(d, 60.0)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRecomputeCounts_Windows(t *testing.T) {
	s := newFixedStore()
	s.AddEquity(domain.Equity{ISIN: "FR0000120271", Symbol: "TTE"})
	today := domain.Day(fixedNow)

	bars := []domain.PriceBar{
		bar(today.AddDate(0, 0, -1), 60),   // inside 5d and 1y
		bar(today.AddDate(0, 0, -100), 59), // inside 1y only
		bar(today.AddDate(0, 0, -400), 58), // outside both windows
	}
	_, err := s.UpsertBars(context.Background(), "FR0000120271", "TTE", bars)
	require.NoError(t, err)

	counts, err := s.RecomputeCounts(context.Background(), "FR0000120271", "TTE")
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Total)
	assert.Equal(t, 2, counts.OneYear)
	assert.Equal(t, 1, counts.FiveDay)
}

func TestUpdateBounds(t *testing.T) {
	s := newFixedStore()
	s.AddEquity(domain.Equity{ISIN: "FR0000120271", Symbol: "TTE"})

	first := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC)
	_, err := s.UpsertBars(context.Background(), "FR0000120271", "TTE", []domain.PriceBar{
		bar(last, 61), bar(first, 55), bar(time.Date(2023, 8, 7, 0, 0, 0, 0, time.UTC), 58),
	})
	require.NoError(t, err)

	require.NoError(t, s.UpdateBounds(context.Background(), "FR0000120271", "TTE"))

	e, _ := s.Equity("FR0000120271", "TTE")
	require.NotNil(t, e.FirstQuoteDate)
	require.NotNil(t, e.LastQuoteDate)
	assert.Equal(t, first, *e.FirstQuoteDate)
	assert.Equal(t, last, *e.LastQuoteDate)
}

func TestLastPriceDate(t *testing.T) {
	s := newFixedStore()
	s.AddEquity(domain.Equity{ISIN: "FR0000120271", Symbol: "TTE"})

	_, ok, err := s.LastPriceDate(context.Background(), "FR0000120271", "TTE")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.UpsertBars(context.Background(), "FR0000120271", "TTE", []domain.PriceBar{
		bar(time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC), 60),
		bar(time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), 61),
	})
	require.NoError(t, err)

	d, ok, err := s.LastPriceDate(context.Background(), "FR0000120271", "TTE")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), d)
}

func TestCanonicalPrices(t *testing.T) {
	s := newFixedStore()
	s.AddEquity(domain.Equity{ISIN: "FR0000120271", Symbol: "TTE", Ticker: ptr("TTE.PA")})
	s.AddEquity(domain.Equity{ISIN: "FR0000120271", Symbol: "TOTB"})
	s.SetCanonicalSymbol("FR0000120271", "TTE")

	d1 := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	_, err := s.UpsertBars(context.Background(), "FR0000120271", "TTE", []domain.PriceBar{
		{Date: d2, Close: 61, AdjClose: ptr(60.5)},
		{Date: d1, Close: 60},
	})
	require.NoError(t, err)

	rows, err := s.CanonicalPrices(context.Background(), "FR0000120271")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, d1, rows[0].Date)
	assert.Equal(t, d2, rows[1].Date)
	assert.Equal(t, 60.0, rows[0].AdjClose, "missing adjusted close falls back to close")
	assert.Equal(t, 60.5, rows[1].AdjClose)
	require.NotNil(t, rows[0].Ticker)
	assert.Equal(t, "TTE.PA", *rows[0].Ticker)

	rows, err = s.CanonicalPrices(context.Background(), "XX0000000000")
	require.NoError(t, err)
	assert.Empty(t, rows)
}
