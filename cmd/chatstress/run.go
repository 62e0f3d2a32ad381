package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/torosent/chatstress/internal/analysis"
	"github.com/torosent/chatstress/internal/config"
	"github.com/torosent/chatstress/internal/corpus"
	"github.com/torosent/chatstress/internal/dashboard"
	"github.com/torosent/chatstress/internal/executor"
	"github.com/torosent/chatstress/internal/httpclient"
	"github.com/torosent/chatstress/internal/logging"
	"github.com/torosent/chatstress/internal/metrics"
	"github.com/torosent/chatstress/internal/output"
	"github.com/torosent/chatstress/internal/promexport"
	"github.com/torosent/chatstress/internal/runner"
	"github.com/torosent/chatstress/internal/threshold"
	"github.com/torosent/chatstress/internal/tracing"
)

const (
	shutdownTimeout = 5 * time.Second
	saveTimeout     = 30 * time.Second
)

// thresholdError reports a completed run that missed one or more thresholds.
// The report has already been printed when it is returned.
type thresholdError struct {
	failed int
}

func (e *thresholdError) Error() string {
	return fmt.Sprintf("%d threshold(s) failed", e.failed)
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a load test with custom parameters",
		Example: `  chatstress run --base-url https://api.openai.com --model gpt-4o-mini -c 10 -r 100
  chatstress run --config chatstress.yaml --rate 5 -r 300
  chatstress run --config chatstress.yaml --duration 5m --threshold 'latency:p95 < 3000'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.NewLoader().Load(cmd.Flags())
			if err != nil {
				return err
			}
			return runLoadTest(cmd.Context(), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	config.RegisterFlags(cmd)
	return cmd
}

// simplePreset is the quick smoke-run load shape. Flags given explicitly on
// the command line take precedence.
var simplePreset = []struct {
	flag  string
	value string
}{
	{"concurrency", "100"},
	{"requests", "200"},
	{"interval", "100ms"},
	{"timeout", "30s"},
}

func newSimpleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simple",
		Short: "Run a quick smoke test (100 concurrent, 200 requests)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fs := cmd.Flags()
			for _, p := range simplePreset {
				if fs.Changed(p.flag) {
					continue
				}
				if err := fs.Set(p.flag, p.value); err != nil {
					return err
				}
			}
			cfg, err := config.NewLoader().Load(fs)
			if err != nil {
				return err
			}
			return runLoadTest(cmd.Context(), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	config.RegisterFlags(cmd)
	return cmd
}

// runLoadTest wires every component for one run, prints the report and
// persists the result files. Failed requests do not make it return an error;
// invalid configuration, unsaved results and missed thresholds do.
func runLoadTest(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, stderr)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}

	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	prompts, err := buildCorpus(cfg.Corpus)
	if err != nil {
		return err
	}

	provider, err := buildAuthProvider(cfg.API)
	if err != nil {
		return err
	}
	defer provider.Close()

	builder, err := httpclient.NewRequestBuilder(cfg.API, cfg.TargetURL(), provider)
	if err != nil {
		return err
	}

	tp, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(sctx); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	agg := metrics.NewAggregator()
	execOpts := executor.Options{
		// Per-request deadlines are applied by the executor.
		Client:     httpclient.NewClient(0),
		Builder:    builder,
		Corpus:     prompts,
		Aggregator: agg,
		Timeout:    cfg.Timeout,
		Model:      cfg.API.Model,
		Logger:     logger,
		LogErrors:  cfg.LogErrors,
		Propagate:  tp.ShouldPropagate(),
	}
	if tp.Enabled() {
		execOpts.Tracer = tp.Tracer()
	}
	exec, err := executor.New(execOpts)
	if err != nil {
		return err
	}

	r, err := runner.New(runner.Options{
		Concurrency:   cfg.Concurrency,
		TotalRequests: cfg.Requests,
		Duration:      cfg.Duration,
		Interval:      cfg.Interval,
		Rate:          cfg.Rate,
		Executor:      exec,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	inFlight := func() int64 { return int64(r.InFlight()) }

	if cfg.MetricsAddr != "" {
		srv, err := promexport.Serve(cfg.MetricsAddr, promexport.NewCollector(agg, inFlight), logger)
		if err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	testID := output.NewTestID()
	logger.Info("load test configured",
		zap.String("test_id", testID),
		zap.String("url", builder.Target()),
		zap.String("model", cfg.API.Model),
		zap.Int("corpus_size", prompts.Len()),
	)

	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()

	var (
		progress *output.ProgressReporter
		dash     *dashboard.Dashboard
	)
	switch {
	case cfg.Output.Dashboard:
		dash, err = dashboard.New(agg, inFlight, dashboard.RunInfo{
			Target:      builder.Target(),
			Model:       cfg.API.Model,
			Mode:        r.Mode().String(),
			Concurrency: cfg.Concurrency,
			Requests:    cfg.Requests,
			Duration:    cfg.Duration,
			Rate:        cfg.Rate,
			Timeout:     cfg.Timeout,
			Scenario:    cfg.Scenario,
			ConfigFile:  cfg.ConfigFile,
		}, stopRun)
		if err != nil {
			return err
		}
		dash.Start()
	case cfg.Output.Progress && !cfg.Output.JSON:
		progress = output.NewProgressReporter(agg, inFlight, cfg.Output.ProgressInterval, stdout)
		progress.Start()
	}

	res := r.Run(runCtx)
	if progress != nil {
		progress.Stop()
	}
	if dash != nil {
		dash.Stop()
	}

	stats := agg.Snapshot(res.Elapsed)
	failures := analysis.Analyze(res.Outcomes, stats)
	results := threshold.NewEvaluator(thresholds).Evaluate(stats)
	report := output.Report{
		TestID:      testID,
		Mode:        res.Mode.String(),
		Interrupted: res.Interrupted,
		Stats:       stats,
		Analysis:    &failures,
		Assessment:  threshold.Assess(stats, cfg.Analysis),
		Thresholds:  results,
	}

	var saveErr error
	if cfg.Output.Save {
		files, err := saveResults(ctx, cfg, testID, res, stats, failures)
		if err != nil {
			saveErr = fmt.Errorf("save results: %w", err)
			logger.Error("saving results failed", zap.Error(err))
		} else {
			report.Files = &files
			logger.Info("results saved", zap.String("dir", cfg.Output.Dir), zap.String("test_id", testID))
		}
	}

	if cfg.Output.JSON {
		if err := output.PrintJSONReport(stdout, report); err != nil {
			return err
		}
	} else {
		output.PrintReport(stdout, report)
	}

	if saveErr != nil {
		return saveErr
	}
	if !threshold.AllPassed(results) {
		failed := 0
		for _, tr := range results {
			if !tr.Pass {
				failed++
			}
		}
		return &thresholdError{failed: failed}
	}
	return nil
}

func buildCorpus(cc config.CorpusConfig) (*corpus.Corpus, error) {
	selection, err := corpus.ParseSelection(cc.Selection)
	if err != nil {
		return nil, err
	}
	msgs := corpus.Builtin()
	if cc.Path != "" {
		msgs, err = corpus.LoadFile(cc.Path, corpus.Format(cc.Type))
		if err != nil {
			return nil, err
		}
	}
	return corpus.New(msgs, selection)
}

func saveResults(ctx context.Context, cfg *config.Config, testID string, res runner.Result, stats metrics.RunStatistics, failures analysis.Report) (output.Files, error) {
	// The results of an interrupted run are still written.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()

	return output.NewWriter(cfg.Output.Dir).Write(wctx, output.RunRecord{
		TestID: testID,
		Settings: output.RunSettings{
			Model:       cfg.API.Model,
			Target:      cfg.TargetURL(),
			Mode:        res.Mode.String(),
			Concurrency: cfg.Concurrency,
			Requests:    cfg.Requests,
			DurationMs:  cfg.Duration.Milliseconds(),
			IntervalMs:  cfg.Interval.Milliseconds(),
			TimeoutMs:   cfg.Timeout.Milliseconds(),
			Rate:        cfg.Rate,
			Scenario:    cfg.Scenario,
		},
		Stats:    stats,
		Outcomes: res.Outcomes,
		Analysis: failures,
		Start:    res.Start,
		End:      res.End,
	})
}
