package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/riskadapt/config"
	"github.com/alejandrodnm/riskadapt/internal/adapters/csvlog"
	"github.com/alejandrodnm/riskadapt/internal/adapters/engineapi"
	"github.com/alejandrodnm/riskadapt/internal/adapters/metrics"
	"github.com/alejandrodnm/riskadapt/internal/adapters/notify"
	"github.com/alejandrodnm/riskadapt/internal/adapters/storage"
	"github.com/alejandrodnm/riskadapt/internal/domain"
	"github.com/alejandrodnm/riskadapt/internal/manager"
	"github.com/alejandrodnm/riskadapt/internal/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one reevaluation and exit")
	summary := flag.Bool("summary", false, "print per-window and per-size tables, never apply")
	table := flag.Bool("table", false, "print the per-window table on every reevaluation")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	overrides := registerOverrides(flag.CommandLine)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("config file not found, using defaults", "path", *configPath)
		cfg, err = config.Default(), nil
	}
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}
	overrides.apply(flag.CommandLine, cfg)

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "err", err)
		os.Exit(1)
	}
	setupLogger(cfg.Log)

	windows, _ := domain.ParseWindows(cfg.Optimizer.Windows) // ya validado

	slog.Info("riskadapt starting",
		"config", *configPath,
		"engine", cfg.Engine.BaseURL,
		"windows", domain.FormatWindows(windows),
		"apply", cfg.Apply.Enabled,
		"dry_run", cfg.Apply.DryRun,
		"once", *once,
		"summary", *summary,
	)

	client := engineapi.NewClient(cfg.Engine.BaseURL, engineapi.Options{
		Timeout:    cfg.EngineTimeout(),
		RatePerSec: cfg.Engine.RatePerSec,
		Retry: &engineapi.RetryPolicy{
			MaxRetries: cfg.Engine.Retry.MaxRetries,
			BaseWait:   time.Duration(cfg.Engine.Retry.BaseWaitMs) * time.Millisecond,
			MaxWait:    time.Duration(cfg.Engine.Retry.MaxWaitMs) * time.Millisecond,
			Statuses:   cfg.Engine.Retry.Statuses,
		},
	})

	console := notify.NewConsole(*table)
	deps := manager.Deps{
		Params:    client,
		Trades:    client,
		Updater:   client,
		Notifiers: []ports.Notifier{console},
	}

	if cfg.Storage.DSN != "" {
		store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
		if err != nil {
			slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
			os.Exit(1)
		}
		defer store.Close()
		deps.Storage = store
	}
	if cfg.Storage.LogCSV != "" && !*summary {
		deps.Log = csvlog.New(cfg.Storage.LogCSV)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Metrics.Addr != "" && !*summary {
		deps.Notifiers = append(deps.Notifiers, metrics.New(prometheus.DefaultRegisterer))
		go serveMetrics(ctx, cfg.Metrics.Addr)
	}

	m := manager.New(manager.Config{
		PollInterval:       cfg.PollInterval(),
		ReevaluateInterval: cfg.ReevaluateInterval(),
		Windows:            windows,
		Ensemble: domain.EnsembleConfig{
			Size:       cfg.Optimizer.PrimarySize,
			Grid:       cfg.Grid(),
			SLQuantile: cfg.Optimizer.SLQuantile,
			SLFloor:    cfg.Optimizer.SLFloor,
			SLCap:      cfg.Optimizer.SLCap,
		},
		Gate: domain.GateConfig{
			HysteresisBps: cfg.Apply.HysteresisBps,
			Cooldown:      cfg.Cooldown(),
		},
		ApplyEnabled: cfg.Apply.Enabled,
		DryRun:       cfg.Apply.DryRun,
		RestoreState: cfg.Apply.RestoreState,
		SummarySizes: cfg.Optimizer.SummarySizes,
	}, deps)

	if *summary {
		runSummary(ctx, m, console)
		return
	}

	if err := m.Restore(ctx); err != nil {
		slog.Warn("could not restore applied state, starting fresh", "err", err)
	}

	if *once {
		if _, ok, err := m.RunOnce(ctx); err != nil {
			slog.Error("reevaluation failed", "err", err)
			os.Exit(1)
		} else if !ok {
			slog.Info("no round trips to evaluate")
		}
		return
	}

	if err := m.Run(ctx); err != nil {
		slog.Error("risk manager exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("riskadapt stopped cleanly")
}

func runSummary(ctx context.Context, m *manager.Manager, console *notify.Console) {
	s, err := m.Summarize(ctx)
	if err != nil {
		slog.Error("summary failed", "err", err)
		os.Exit(1)
	}

	slog.Info("summary",
		"round_trips", s.RoundTrips,
		"stored_round_trips_30d", s.Stored,
		"fees", s.Params.Profile(),
		"default_params", !s.ParamsOK,
		"unmatched_sells", s.Report.UnmatchedSells,
		"discarded", s.Report.Discarded,
	)
	if s.RoundTrips > 0 {
		console.PrintWindows(s.Result)
	}
	console.PrintSizes(s.Sizes, s.RoundTrips)
}

// serveMetrics expone /metrics y /healthz hasta que ctx se cancele.
func serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("metrics server failed", "err", err)
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
