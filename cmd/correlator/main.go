package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/davidleathers/causal-correlation-engine/internal/infrastructure/config"
	"github.com/davidleathers/causal-correlation-engine/internal/infrastructure/telemetry"
	"github.com/davidleathers/causal-correlation-engine/internal/metrics"
	"github.com/davidleathers/causal-correlation-engine/internal/service/sectorimpact"
)

type flags struct {
	configPath  string
	scenarios   string
	save        bool
	serve       bool
	metricsAddr string
	sector      string
	category    string
	magnitude   float64
}

func parseFlags(args []string) (*flags, error) {
	f := &flags{}
	fs := flag.NewFlagSet("correlator", flag.ContinueOnError)
	fs.StringVar(&f.configPath, "config", "", "Path to configuration file")
	fs.StringVar(&f.scenarios, "scenario", "all", "Comma separated scenarios to run, or all")
	fs.BoolVar(&f.save, "save", false, "Save each session to the configured Redis and PostgreSQL stores")
	fs.BoolVar(&f.serve, "serve", false, "Keep serving metrics after the run until interrupted")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "Prometheus listen address (overrides metrics.addr)")
	fs.StringVar(&f.sector, "sector", string(sectorimpact.SectorAI), "Sector receiving the sample impact; empty skips propagation")
	fs.StringVar(&f.category, "category", sectorimpact.Breakthrough.String(), "Impact category: breakthrough, crisis or regulation")
	fs.Float64Var(&f.magnitude, "magnitude", 0.25, "Relative size of the sample impact")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	f, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	cfg, err := config.Load(f.configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slogger, err := telemetry.SetupLogger(cfg.LogLevel)
	if err != nil {
		slog.Error("failed to setup logger", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(slogger)

	logger, err := telemetry.NewZapLogger(cfg.LogLevel)
	if err != nil {
		slog.Error("failed to setup zap logger", "error", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(ctx, cfg, f, logger); err != nil {
		slog.Error("correlator failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, f *flags, logger *zap.Logger) error {
	slog.Info("starting causal correlation engine",
		"version", cfg.Version,
		"environment", cfg.Environment,
		"scenarios", f.scenarios)

	names, err := parseScenarios(f.scenarios)
	if err != nil {
		return err
	}

	telCfg := cfg.Telemetry
	telCfg.ServiceVersion = cfg.Version
	telCfg.Environment = cfg.Environment
	provider, err := telemetry.InitializeOpenTelemetry(ctx, &telCfg)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	reg, err := metrics.NewRegistry("correlator")
	if err != nil {
		return fmt.Errorf("creating metrics registry: %w", err)
	}

	addr := cfg.Metrics.Addr
	if f.metricsAddr != "" {
		addr = f.metricsAddr
	}
	if addr != "" {
		srv := startMetricsServer(addr, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	a, err := newApp(ctx, cfg, logger, reg, os.Stdout)
	if err != nil {
		return err
	}
	defer a.close()

	if _, err := a.runScenarios(ctx, names, f.save); err != nil {
		return err
	}

	if f.sector != "" {
		category, err := sectorimpact.ParseCategory(f.category)
		if err != nil {
			return err
		}
		impact := sectorimpact.Impact{
			Sector:    sectorimpact.Sector(f.sector),
			Magnitude: f.magnitude,
			Category:  category,
		}
		if _, err := a.propagate(impact); err != nil {
			return err
		}
	}

	if f.serve && addr != "" {
		logger.Info("run complete, serving metrics until interrupted", zap.String("addr", addr))
		<-ctx.Done()
	}
	slog.Info("shutting down gracefully")
	return nil
}

func startMetricsServer(addr string, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	logger.Info("metrics server listening", zap.String("addr", addr))
	return srv
}
