package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nexconsult/rera-harvester/internal/config"
	"github.com/nexconsult/rera-harvester/internal/metrics"
	"github.com/nexconsult/rera-harvester/internal/service/browser"
	"github.com/nexconsult/rera-harvester/internal/service/captcha"
	"github.com/nexconsult/rera-harvester/internal/service/extractor"
	"github.com/nexconsult/rera-harvester/internal/service/navigator"
	"github.com/nexconsult/rera-harvester/internal/storage"
	"github.com/nexconsult/rera-harvester/internal/worker"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var (
		start, end, workers, retryWorkers, maxRetries int
		skipExisting, includeFailed                   bool
		metricsAddr                                   string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Harvest a range of project IDs",
		Example: `  harvester run --start 1 --end 5000 --workers 4
  harvester run --start 1 --end 5000 --include-failed --metrics-addr :9090`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			h := &a.cfg.Harvest
			flags := cmd.Flags()
			if flags.Changed("start") {
				h.StartID = start
			}
			if flags.Changed("end") {
				h.EndID = end
			}
			if flags.Changed("workers") {
				h.Workers = workers
			}
			if flags.Changed("retry-workers") {
				h.RetryWorkers = retryWorkers
			}
			if flags.Changed("max-retry-attempts") {
				h.MaxRetryAttempts = maxRetries
			}
			if flags.Changed("skip-existing") {
				h.SkipExisting = skipExisting
			}
			if flags.Changed("include-failed") {
				h.IncludeFailed = includeFailed
			}
			if flags.Changed("metrics-addr") {
				h.MetricsAddr = metricsAddr
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}

			return runHarvest(cmd.Context(), a)
		},
	}

	cmd.Flags().IntVar(&start, "start", 1, "first project ID (inclusive)")
	cmd.Flags().IntVar(&end, "end", 1, "last project ID (inclusive)")
	cmd.Flags().IntVar(&workers, "workers", 4, "primary workers, one browser each")
	cmd.Flags().IntVar(&retryWorkers, "retry-workers", 2, "retry workers, one browser each")
	cmd.Flags().IntVar(&maxRetries, "max-retry-attempts", 0, "dead-letter a project after this many failed attempts (0 retries forever)")
	cmd.Flags().BoolVar(&skipExisting, "skip-existing", true, "skip IDs already in the record table")
	cmd.Flags().BoolVar(&includeFailed, "include-failed", false, "seed the retry queue with the failed ledger")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")

	return cmd
}

func runHarvest(ctx context.Context, a *app) error {
	h := a.cfg.Harvest

	records, err := storage.OpenRecordTable(h.RecordsFile)
	if err != nil {
		return err
	}
	ledger, err := storage.OpenFailedLedger(h.FailedFile)
	if err != nil {
		return err
	}
	metrics.SetLedgerSize(ledger.Len())

	plan := worker.PlanRange(h.StartID, h.EndID, records, ledger, h.SkipExisting, h.IncludeFailed)
	a.logger.WithFields(logrus.Fields{
		"start_id":       h.StartID,
		"end_id":         h.EndID,
		"scheduled":      len(plan.IDs),
		"seeded_retries": len(plan.RetryIDs),
		"skipped":        plan.Skipped,
		"records_file":   records.Path(),
		"failed_file":    ledger.Path(),
	}).Info("Harvest planned")

	if h.MetricsAddr != "" {
		stopMetrics := serveMetrics(h.MetricsAddr, a.logger)
		defer stopMetrics()
	}

	factory := browser.NewFactory(a.cfg.Browser, a.cfg.Captcha.SubmitTimeout, a.logger)
	pool, err := worker.NewPool(worker.ConfigFrom(h), worker.Deps{
		Sessions: worker.BrowserSessions(factory),
		Runner:   newNavigator(a.cfg, a.logger),
		Records:  records,
		Ledger:   ledger,
	}, a.logger)
	if err != nil {
		return err
	}

	stats, err := pool.RunSeeded(ctx, plan.IDs, plan.RetryIDs)
	a.logger.WithFields(logrus.Fields{
		"records": records.Len(),
		"failed":  ledger.Len(),
	}).Info("Harvest finished")

	if errors.Is(err, context.Canceled) {
		a.logger.WithField("dropped", stats.Dropped).Warn("Harvest interrupted, rerun the same range with --include-failed to resume")
		return nil
	}
	return err
}

func newNavigator(cfg *config.Config, logger *logrus.Logger) *navigator.Navigator {
	solver := captcha.NewSolver(cfg.Captcha, nil, logger)
	return navigator.New(cfg.Harvest.ProjectURL, solver, extractor.NewEngine(logger), cfg.Captcha, logger)
}

// serveMetrics exposes /metrics in the background and returns its shutdown func.
func serveMetrics(addr string, logger *logrus.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.WithField("addr", addr).Info("Metrics server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Metrics server failed")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.WithError(fmt.Errorf("metrics server shutdown: %w", err)).Warn("Metrics server did not stop cleanly")
		}
	}
}
