package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.uber.org/zap"

	"github.com/davidleathers/causal-correlation-engine/internal/infrastructure/config"
	"github.com/davidleathers/causal-correlation-engine/internal/infrastructure/database"
	"github.com/davidleathers/causal-correlation-engine/internal/infrastructure/telemetry"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to configuration file")
		action     = flag.String("action", "up", "Migration action: up, down, version")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := telemetry.NewZapLogger(cfg.LogLevel)
	if err != nil {
		slog.Error("failed to setup logger", "error", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(context.Background(), cfg, *action, logger, os.Stdout); err != nil {
		logger.Error("migration failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, action string, logger *zap.Logger, out io.Writer) error {
	act, err := database.ParseMigrationAction(action)
	if err != nil {
		return err
	}
	if !cfg.Database.Enabled() {
		return fmt.Errorf("database.url is not configured")
	}

	pool, err := database.NewConnectionPool(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	db := pool.DB()
	defer db.Close()

	status, err := database.Migrate(db, act, logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "version=%d dirty=%t applied=%t\n", status.Version, status.Dirty, status.Applied)
	return nil
}
