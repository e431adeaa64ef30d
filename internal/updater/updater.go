// Package updater runs the update-prices pass: resolve a ticker per
// target, fetch new bars, upsert them and write back bookkeeping.
// One target's failure never blocks the others.
package updater

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"golang.org/x/time/rate"

	"equity-price-pipeline/internal/domain"
	"equity-price-pipeline/internal/marketdata"
	"equity-price-pipeline/internal/observability"
	"equity-price-pipeline/internal/resolver"
	"equity-price-pipeline/internal/storage"
)

// ErrNoTicker marks a target for which no provider ticker qualifies.
// This is an expected outcome, recorded as a failed attempt.
var ErrNoTicker = errors.New("no qualifying ticker")

// Options for creating an Updater.
type Options struct {
	// Required collaborators
	Equities storage.EquityStore
	Prices   storage.PriceStore
	Provider marketdata.HistoryProvider
	Resolver *resolver.Resolver

	// Optional metrics; nil disables instrumentation.
	Metrics *observability.Metrics

	// Run options
	Since         *time.Time // overrides the last stored date
	Limit         int        // cap on targets, 0 = all
	Only          []string   // symbol allow-list
	Pace          time.Duration
	DryRun        bool
	TouchOnDryRun bool
	ClaimBefore   bool
	Thresholds    domain.Thresholds

	Verbose bool
	Logger  *log.Logger
}

// Updater coordinates one update pass over the selected targets.
type Updater struct {
	equities storage.EquityStore
	prices   storage.PriceStore
	provider marketdata.HistoryProvider
	resolver *resolver.Resolver
	metrics  *observability.Metrics

	since         *time.Time
	limit         int
	only          []string
	limiter       *rate.Limiter
	dryRun        bool
	touchOnDryRun bool
	claimBefore   bool
	thresholds    domain.Thresholds

	verbose bool
	logger  *log.Logger
}

// New creates a new Updater.
func New(opts Options) *Updater {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[update-prices] ", log.LstdFlags)
	}

	var limiter *rate.Limiter
	if opts.Pace > 0 {
		limiter = rate.NewLimiter(rate.Every(opts.Pace), 1)
	}

	thresholds := opts.Thresholds
	if thresholds == (domain.Thresholds{}) {
		thresholds = domain.DefaultThresholds()
	}

	return &Updater{
		equities:      opts.Equities,
		prices:        opts.Prices,
		provider:      opts.Provider,
		resolver:      opts.Resolver,
		metrics:       opts.Metrics,
		since:         opts.Since,
		limit:         opts.Limit,
		only:          opts.Only,
		limiter:       limiter,
		dryRun:        opts.DryRun,
		touchOnDryRun: opts.TouchOnDryRun,
		claimBefore:   opts.ClaimBefore,
		thresholds:    thresholds,
		verbose:       opts.Verbose,
		logger:        logger,
	}
}

// RunResult contains the summary of one update pass.
type RunResult struct {
	Targets   int
	Succeeded int
	Failed    int
	Errors    []string
}

// Run executes one pass. Only target selection errors abort the run;
// per-target failures are recorded as failed attempts and the loop
// continues. Cancellation stops the run with prior targets fully
// committed and the current target left as it was, not marked failed.
func (u *Updater) Run(ctx context.Context) (*RunResult, error) {
	targets, err := u.equities.GetTargets(ctx, storage.TargetFilter{
		Limit: u.limit,
		Only:  u.only,
		Claim: u.claimBefore,
	})
	if err != nil {
		return nil, fmt.Errorf("select targets: %w", err)
	}

	result := &RunResult{Targets: len(targets)}
	u.logger.Printf("%d equities to analyse / update", len(targets))

	for i, t := range targets {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if u.limiter != nil {
			if err := u.limiter.Wait(ctx); err != nil {
				return result, err
			}
		}

		if u.metrics != nil {
			u.metrics.TargetsProcessed.Inc()
		}

		if err := u.processTarget(ctx, i+1, len(targets), t); err != nil {
			// A cancellation mid-target is an abort, not a failed
			// attempt: the row keeps whatever state it had so the
			// next run picks it up cleanly.
			if errors.Is(err, context.Canceled) {
				return result, err
			}
			if cerr := ctx.Err(); cerr != nil {
				return result, cerr
			}
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s (ISIN %s): %v", t.Symbol, t.ISIN, err))
			u.logger.Printf("[%d/%d] %s: update failed (%v)", i+1, len(targets), t.Symbol, err)
			u.recordFailure(ctx, t)
			if u.metrics != nil {
				u.metrics.TargetsFailed.Inc()
			}
			continue
		}

		result.Succeeded++
		if u.metrics != nil {
			u.metrics.TargetsSucceeded.Inc()
		}
	}

	u.logger.Printf("done: %d/%d targets succeeded, %d failed", result.Succeeded, result.Targets, result.Failed)
	return result, nil
}

// processTarget walks one target through the pass:
// resolve ticker, fetch bars since the last known date, upsert,
// recompute bookkeeping, record the attempt.
func (u *Updater) processTarget(ctx context.Context, idx, total int, t domain.Target) error {
	u.logf("[%d/%d] processing %s (ISIN %s)", idx, total, t.Symbol, t.ISIN)

	ticker, probe := u.pickTicker(ctx, t)
	if ticker == "" {
		return ErrNoTicker
	}

	// Explicit override wins over the last stored date; with neither,
	// the full available history is fetched.
	since := u.since
	if since == nil {
		last, ok, err := u.prices.LastPriceDate(ctx, t.ISIN, t.Symbol)
		if err != nil {
			return fmt.Errorf("last price date: %w", err)
		}
		if ok {
			since = &last
		}
	}

	bars, err := u.provider.DownloadHistory(ctx, ticker, since)
	if err != nil {
		return fmt.Errorf("download %s: %w", ticker, err)
	}

	if u.dryRun {
		u.logf("[%d/%d] dry-run %s -> %s | %d bars fetched", idx, total, t.Symbol, ticker, len(bars))
		if !u.touchOnDryRun {
			return nil
		}
		// No recompute happened; record the probe counts instead.
		counts := domain.Counts{Total: len(bars), OneYear: probe}
		_, isActive := u.thresholds.Evaluate(counts)
		return u.equities.MarkAttempt(ctx, domain.Attempt{
			ISIN:     t.ISIN,
			Symbol:   t.Symbol,
			Success:  true,
			Ticker:   &ticker,
			Counts:   counts,
			IsValid:  true,
			IsActive: isActive,
			Touch:    true,
		})
	}

	written, err := u.prices.UpsertBars(ctx, t.ISIN, t.Symbol, bars)
	if err != nil {
		return fmt.Errorf("upsert bars: %w", err)
	}
	if u.metrics != nil {
		u.metrics.BarsUpserted.Add(float64(written))
	}

	counts, err := u.prices.RecomputeCounts(ctx, t.ISIN, t.Symbol)
	if err != nil {
		return fmt.Errorf("recompute counts: %w", err)
	}
	if err := u.prices.UpdateBounds(ctx, t.ISIN, t.Symbol); err != nil {
		return fmt.Errorf("update bounds: %w", err)
	}

	isValid, isActive := u.thresholds.Evaluate(counts)
	if err := u.equities.MarkAttempt(ctx, domain.Attempt{
		ISIN:     t.ISIN,
		Symbol:   t.Symbol,
		Success:  true,
		Ticker:   &ticker,
		Counts:   counts,
		IsValid:  isValid,
		IsActive: isActive,
		Touch:    true,
	}); err != nil {
		return fmt.Errorf("mark attempt: %w", err)
	}

	u.logf("[%d/%d] %s -> %s | +%d bars | 1y=%d total=%d", idx, total, t.Symbol, ticker, written, counts.OneYear, counts.Total)
	return nil
}

// pickTicker prefers the previously resolved ticker when it still has
// enough history, and only then probes the suffix candidates.
func (u *Updater) pickTicker(ctx context.Context, t domain.Target) (string, int) {
	existing, err := u.equities.GetExistingTicker(ctx, t.ISIN, t.Symbol)
	if err == nil && existing != "" {
		if ok, cnt := u.resolver.HasEnoughHistory(ctx, existing); ok {
			if u.metrics != nil {
				u.metrics.TickersKept.Inc()
			}
			return existing, cnt
		}
		u.logf("   existing ticker %s no longer qualifies, rediscovering", existing)
	}

	ticker, cnt := u.resolver.Resolve(ctx, t.Symbol)
	if u.metrics != nil {
		if ticker != "" {
			u.metrics.TickersResolved.Inc()
		} else {
			u.metrics.ResolutionMisses.Inc()
		}
	}
	return ticker, cnt
}

// recordFailure writes a failed attempt. A dry run without the touch
// flag is a true no-op and leaves the row untouched.
func (u *Updater) recordFailure(ctx context.Context, t domain.Target) {
	if u.dryRun && !u.touchOnDryRun {
		return
	}
	if err := u.equities.MarkAttempt(ctx, domain.Attempt{
		ISIN:    t.ISIN,
		Symbol:  t.Symbol,
		Success: false,
		Touch:   true,
	}); err != nil {
		u.logger.Printf("mark failed attempt %s (ISIN %s): %v", t.Symbol, t.ISIN, err)
	}
}

func (u *Updater) logf(format string, args ...interface{}) {
	if u.verbose {
		u.logger.Printf(format, args...)
	}
}
