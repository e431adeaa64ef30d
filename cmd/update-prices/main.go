// Package main runs the update-prices pass: it selects equities whose
// prices have not been attempted today, resolves a provider ticker for
// each, downloads new daily bars and upserts them into Postgres.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"equity-price-pipeline/internal/domain"
	"equity-price-pipeline/internal/marketdata"
	"equity-price-pipeline/internal/observability"
	"equity-price-pipeline/internal/resolver"
	"equity-price-pipeline/internal/storage/migrations"
	pgstore "equity-price-pipeline/internal/storage/postgres"
	"equity-price-pipeline/internal/updater"
)

func main() {
	// Parse flags
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string (defaults to DATABASE_URL)")
	since := flag.String("since", "", "Fetch history from this date (YYYY-MM-DD) instead of the last stored date")
	limit := flag.Int("limit", 0, "Cap the number of target rows (0 = all)")
	only := flag.String("only", "", "Comma-separated symbol allow-list")
	sleep := flag.Duration("sleep", 0, "Pacing delay between targets (e.g. 600ms)")
	dryRun := flag.Bool("dry-run", false, "Resolve and fetch without writing price rows")
	touchOnDryRun := flag.Bool("touch-on-dry-run", false, "Still stamp the attempt date during a dry run")
	claimBefore := flag.Bool("claim-before", false, "Claim rows at selection time (stamp attempt date before processing)")
	allowMIProxy := flag.Bool("allow-mi-proxy", false, "Probe the Milan suffix for numeric symbols")
	strictExchange := flag.Bool("strict-exchange", true, "Only try suffixed ticker candidates (disable to also try the bare symbol)")
	minSessions := flag.Int("min-sessions", resolver.DefaultMinSessions, "Minimum 1y sessions for a ticker candidate to qualify")
	validMin := flag.Int("valid-min", 1, "Minimum short-window sessions for is_valid")
	activeMin := flag.Int("active-min", 200, "Minimum 1y sessions for is_active")
	retries := flag.Int("retries", marketdata.DefaultMaxRetries, "Retry count for provider requests")
	retryDelay := flag.Duration("retry-delay", marketdata.DefaultRetryDelay, "Initial backoff delay for provider retries")
	timeout := flag.Duration("timeout", marketdata.DefaultTimeout, "Timeout per provider request")
	migrate := flag.Bool("migrate", false, "Apply the embedded schema migrations before running")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics HTTP address (empty to disable)")
	verbose := flag.Bool("verbose", false, "Log each target")

	flag.Parse()

	logger := log.New(os.Stdout, "[update-prices] ", log.LstdFlags)

	dsn := *postgresDSN
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		logger.Fatal("No database configured. Use -postgres-dsn or set DATABASE_URL")
	}

	var sinceDate *time.Time
	if *since != "" {
		d, err := time.Parse("2006-01-02", *since)
		if err != nil {
			logger.Fatalf("Invalid -since %q: %v", *since, err)
		}
		sinceDate = &d
	}

	var onlySymbols []string
	for _, s := range strings.Split(*only, ",") {
		if s = strings.TrimSpace(s); s != "" {
			onlySymbols = append(onlySymbols, s)
		}
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals: the run stops cleanly between targets.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, stopping after current target...", sig)
		cancel()
	}()

	// Connect to storage. Failing here is the only fatal outcome.
	pool, err := pgstore.NewPool(ctx, dsn)
	if err != nil {
		logger.Fatalf("Connect to postgres: %v", err)
	}
	defer pool.Close()

	if *migrate {
		if err := migrations.RunPostgres(ctx, pool); err != nil {
			logger.Fatalf("Apply migrations: %v", err)
		}
		logger.Println("Migrations applied")
	}

	// Start metrics server if enabled
	var metrics *observability.Metrics
	if *metricsAddr != "" {
		metrics = observability.New("")
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			logger.Printf("Starting metrics server on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	provider := marketdata.NewClient(
		marketdata.WithTimeout(*timeout),
		marketdata.WithMaxRetries(*retries),
		marketdata.WithRetryDelay(*retryDelay),
		marketdata.WithMetrics(metrics),
	)

	u := updater.New(updater.Options{
		Equities: pgstore.NewEquityStore(pool),
		Prices:   pgstore.NewPriceStore(pool),
		Provider: provider,
		Resolver: resolver.New(provider, resolver.Options{
			MinSessions:     *minSessions,
			AllowMilanProxy: *allowMIProxy,
			Relaxed:         !*strictExchange,
			Metrics:         metrics,
		}),
		Metrics:       metrics,
		Since:         sinceDate,
		Limit:         *limit,
		Only:          onlySymbols,
		Pace:          *sleep,
		DryRun:        *dryRun,
		TouchOnDryRun: *touchOnDryRun,
		ClaimBefore:   *claimBefore,
		Thresholds: domain.Thresholds{
			MinValidSessions:  *validMin,
			MinActiveSessions: *activeMin,
		},
		Verbose: *verbose,
		Logger:  logger,
	})

	result, err := u.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Run aborted: %v", err)
	}

	// Per-target failures are visible in the summary and logs only;
	// the process exits zero unless setup failed.
	fmt.Printf("Update pass completed:\n")
	fmt.Printf("  Targets:   %d\n", result.Targets)
	fmt.Printf("  Succeeded: %d\n", result.Succeeded)
	fmt.Printf("  Failed:    %d\n", result.Failed)
	for _, e := range result.Errors {
		fmt.Printf("    - %s\n", e)
	}
}
