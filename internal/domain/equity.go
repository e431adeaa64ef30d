package domain

import "time"

// SourceYahoo is the tag recorded on an equity row whose prices come
// from the live quotes provider.
const SourceYahoo = "yahoo"

// Equity represents one reference-data row.
// Corresponds to the equities table in PostgreSQL.
// Identity is the (ISIN, Symbol) pair; ISIN is the stable cross-market
// identifier, Symbol the exchange-local one.
type Equity struct {
	ISIN            string     // PRIMARY KEY part 1
	Symbol          string     // PRIMARY KEY part 2
	Ticker          *string    // resolved provider ticker (nullable)
	SourceTag       *string    // provider tag, e.g. "yahoo" (nullable)
	IsValid         bool       // enough priced sessions in the short window
	IsActive        bool       // enough priced sessions in the long window
	IsDelisted      bool       // delisted rows are never selected as targets
	Count5D         int        // priced sessions in the last ~5 calendar days
	Count1Y         int        // priced sessions in the last ~1 year
	CountTotal      int        // priced sessions stored in total
	FirstQuoteDate  *time.Time // earliest stored price date
	LastQuoteDate   *time.Time // latest stored price date
	LastAttemptDate *time.Time // date of the last update attempt (claim stamp)
}

// Target identifies one equity row selected for an update pass.
type Target struct {
	ISIN   string
	Symbol string
}

// Attempt is the outcome of one update pass over a target, written back
// to the equities row in a single call. All bookkeeping flows through
// this value; nothing is mutated in place.
type Attempt struct {
	ISIN     string
	Symbol   string
	Success  bool
	Ticker   *string // nil on failure
	Counts   Counts
	IsValid  bool
	IsActive bool
	// Touch controls whether last_attempt_date is stamped. A dry run
	// without bookkeeping leaves the row untouched entirely.
	Touch bool
}

// Thresholds define how session counts map to the validity flags.
type Thresholds struct {
	MinValidSessions  int // short-window minimum for is_valid
	MinActiveSessions int // long-window minimum for is_active
}

// DefaultThresholds returns the standard validity thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinValidSessions:  1,
		MinActiveSessions: 200,
	}
}

// Evaluate derives the validity flags from recomputed counts.
func (t Thresholds) Evaluate(c Counts) (isValid, isActive bool) {
	return c.FiveDay >= t.MinValidSessions, c.OneYear >= t.MinActiveSessions
}
