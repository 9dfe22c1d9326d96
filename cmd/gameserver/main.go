package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/udisondev/la2go-idfactory/internal/config"
	"github.com/udisondev/la2go-idfactory/internal/db"
)

const GameConfigPath = "config/gameserver.yaml"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	if err := config.LoadEnv(); err != nil {
		return err
	}

	cfgPath := GameConfigPath
	if p := os.Getenv(config.EnvGameConfig); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadGameServer(cfgPath)
	if err != nil {
		return fmt.Errorf("loading game config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))

	slog.Info("la2go server starting",
		"log_level", cfg.LogLevel,
		"first_id", fmt.Sprintf("%#x", cfg.IDFactory.FirstID),
		"last_id", fmt.Sprintf("%#x", cfg.IDFactory.LastID))

	database, err := db.New(ctx, cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()
	slog.Info("database connected")

	if err := db.RunMigrations(ctx, cfg.Database.DSN()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database migrations applied")

	svc, err := newServices(ctx, database.Pool(), cfg.IDFactory)
	if err != nil {
		return fmt.Errorf("initializing id factory: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting id factory growth loop", "interval", cfg.IDFactory.GrowthInterval)
		if err := svc.IDs.RunGrowthLoop(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("id factory growth loop: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	st := svc.IDs.Stats()
	slog.Info("la2go server stopped", "free_ids", st.Free, "used_ids", st.Used, "capacity", st.Capacity)
	return nil
}

// parseLogLevel converts string log level to slog.Level.
// Defaults to Info if invalid or empty.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
