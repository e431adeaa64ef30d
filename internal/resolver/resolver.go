// Package resolver finds a usable provider ticker for an exchange
// symbol by probing suffix candidates in a fixed priority order.
package resolver

import (
	"context"
	"time"

	"equity-price-pipeline/internal/marketdata"
	"equity-price-pipeline/internal/observability"
)

// euronextSuffixes is the candidate priority order. The first candidate
// with enough history wins; there is no scoring.
var euronextSuffixes = []string{".PA", ".AS", ".BR", ".LS", ".IR"}

// milanSuffix is the proxy market probed for purely numeric symbols
// when the proxy option is enabled.
const milanSuffix = ".MI"

// DefaultMinSessions is the minimum number of priced sessions within
// one year for a candidate to qualify.
const DefaultMinSessions = 10

// Options configure a Resolver.
type Options struct {
	// MinSessions overrides DefaultMinSessions when > 0.
	MinSessions int

	// AllowMilanProxy probes the Milan suffix for numeric symbols.
	AllowMilanProxy bool

	// Relaxed additionally tries the bare symbol as a last resort.
	// The default is strict: suffixed candidates only.
	Relaxed bool

	// Metrics counts candidate probes when set.
	Metrics *observability.Metrics
}

// Resolver probes the quotes provider for ticker candidates.
type Resolver struct {
	provider    marketdata.HistoryProvider
	minSessions int
	allowProxy  bool
	relaxed     bool
	metrics     *observability.Metrics
}

// New creates a Resolver backed by the given provider.
func New(provider marketdata.HistoryProvider, opts Options) *Resolver {
	min := opts.MinSessions
	if min <= 0 {
		min = DefaultMinSessions
	}
	return &Resolver{
		provider:    provider,
		minSessions: min,
		allowProxy:  opts.AllowMilanProxy,
		relaxed:     opts.Relaxed,
		metrics:     opts.Metrics,
	}
}

// Candidates returns the ordered ticker candidates for a symbol.
func (r *Resolver) Candidates(symbol string) []string {
	cands := make([]string, 0, len(euronextSuffixes)+2)
	for _, suf := range euronextSuffixes {
		cands = append(cands, symbol+suf)
	}
	if r.allowProxy && isNumericSymbol(symbol) {
		cands = append(cands, symbol+milanSuffix)
	}
	if r.relaxed {
		cands = append(cands, symbol)
	}

	seen := make(map[string]bool, len(cands))
	out := cands[:0]
	for _, c := range cands {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// HasEnoughHistory reports whether ticker has at least the minimum
// number of priced sessions within the last year, and how many it has.
// Provider failures count as "not enough" for this pass.
func (r *Resolver) HasEnoughHistory(ctx context.Context, ticker string) (bool, int) {
	since := time.Now().AddDate(-1, 0, 0)
	bars, err := r.provider.DownloadHistory(ctx, ticker, &since)
	if err != nil {
		return false, 0
	}
	return len(bars) >= r.minSessions, len(bars)
}

// Resolve returns the first qualifying candidate for symbol and its
// one-year session count, or ("", 0) when no candidate qualifies. A
// miss is a normal outcome, not an error.
func (r *Resolver) Resolve(ctx context.Context, symbol string) (string, int) {
	for _, cand := range r.Candidates(symbol) {
		if r.metrics != nil {
			r.metrics.CandidatesProbed.Inc()
		}
		if ok, cnt := r.HasEnoughHistory(ctx, cand); ok {
			return cand, cnt
		}
	}
	return "", 0
}

func isNumericSymbol(symbol string) bool {
	return len(symbol) > 0 && symbol[0] >= '0' && symbol[0] <= '9'
}
