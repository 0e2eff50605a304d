package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"strings"
	"syscall"

	"backlab/internal/config"
	"backlab/internal/cost"
	"backlab/internal/domain"
	"backlab/internal/executor"
	"backlab/internal/store"
	"backlab/internal/strategy"
	"backlab/internal/strategy/builtins"
	"backlab/internal/util"
)

func main() {
	cfgPath := flag.String("config", "", "path to YAML config (defaults used when empty)")
	strategies := flag.String("strategy", "", "comma-separated strategy names, overrides config")
	tickers := flag.String("tickers", "", "comma-separated tickers, overrides config")
	ranges := flag.String("ranges", "", "comma-separated range labels, filters config ranges")
	parallel := flag.Int("parallel", 0, "worker count, overrides config (0 = all cores)")
	portfolio := flag.Bool("portfolio", false, "run sequentially against shared capital")
	noDB := flag.Bool("no-db", false, "skip recording results to SQLite")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *strategies != "" {
		cfg.Backtest.Strategies = splitList(*strategies)
	}
	if *tickers != "" {
		cfg.Backtest.Tickers = splitList(*tickers)
	}
	if *ranges != "" {
		keep := make(map[string]bool)
		for _, label := range splitList(*ranges) {
			keep[label] = true
		}
		var filtered []config.RangeSpec
		for _, spec := range cfg.Backtest.Ranges {
			if keep[spec.Label] {
				filtered = append(filtered, spec)
			}
		}
		cfg.Backtest.Ranges = filtered
	}
	if *parallel > 0 {
		cfg.Execution.Parallel = *parallel
	}
	if *portfolio {
		cfg.Execution.PortfolioMode = true
	}

	logger := util.NewLogger(cfg.Logging.Level)
	util.SetDefault(logger)

	registry := builtins.NewRegistry()
	tasks, err := buildTasks(cfg, registry)
	if err != nil {
		log.Fatalf("invalid run: %v", err)
	}
	if len(tasks) == 0 {
		log.Fatal("nothing to run: need at least one strategy, ticker, and range")
	}

	bars := store.NewParquetStore(cfg.Storage.DataDir)

	var recorder store.ResultRecorder = store.NoopRecorder{}
	if !*noDB && cfg.Storage.SQLitePath != "" {
		rec, err := store.NewSQLiteRecorder(cfg.Storage.SQLitePath)
		if err != nil {
			log.Fatalf("failed to open results database: %v", err)
		}
		recorder = rec
	}
	defer recorder.Close()

	exec := executor.New(
		cfg.Execution,
		bars,
		registry,
		cost.NewModel(cfg.Cost),
		cfg.Risk,
		logger,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting run",
		"strategies", cfg.Backtest.Strategies,
		"tickers", cfg.Backtest.Tickers,
		"tasks", len(tasks),
		"portfolio", cfg.Execution.PortfolioMode)

	results := exec.Run(ctx, tasks)

	var done, failed, totalTrades int
	var totalNet float64
	for _, byRange := range results {
		for _, byTicker := range byRange {
			for _, res := range byTicker {
				if err := recorder.RecordResult(ctx, res); err != nil {
					logger.Error("failed to record result",
						"strategy", res.Task.Strategy, "ticker", res.Task.Ticker, "err", err)
				}
				if res.Err != "" {
					failed++
					continue
				}
				done++
				totalTrades += len(res.Trades)
				totalNet += res.Report.All.TotalNetProfit
				logger.Info("result",
					"strategy", res.Task.Strategy,
					"range", res.Task.Range.Label,
					"ticker", res.Task.Ticker,
					"trades", len(res.Trades),
					"net", res.Report.All.TotalNetProfit,
					"sharpe", res.Report.Advanced.AnnualizedSharpe,
					"attribution", res.Attribution,
					"violations", len(res.Violations))
			}
		}
	}
	logger.Info("run finished",
		"done", done, "failed", failed, "trades", totalTrades, "net", totalNet)
	if done == 0 && failed > 0 {
		log.Fatal("all tasks failed")
	}
}

// buildTasks expands the configured strategies, ranges, and tickers into the
// task cross product, resolving range specs and per-strategy parameters.
func buildTasks(cfg config.Config, registry *strategy.Registry) ([]executor.Task, error) {
	var ranges []domain.DateRange
	for _, spec := range cfg.Backtest.Ranges {
		dr, err := spec.Resolve()
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, dr)
	}
	if len(ranges) == 0 {
		// No explicit ranges: run each ticker's full stored series.
		ranges = []domain.DateRange{{Label: "full"}}
	}

	var tasks []executor.Task
	for _, name := range cfg.Backtest.Strategies {
		// Fail before dispatch on unknown strategies or bad parameters.
		params := strategy.Params(cfg.Backtest.Params[name])
		if _, err := registry.New(name, params); err != nil {
			return nil, err
		}
		for _, dr := range ranges {
			for _, ticker := range cfg.Backtest.Tickers {
				tasks = append(tasks, executor.Task{
					Ticker:   ticker,
					Range:    dr,
					Strategy: name,
					Params:   params,
				})
			}
		}
	}
	return tasks, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
