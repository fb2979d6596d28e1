// The sweeper times out jobs that outlived their per-tool deadline without
// a live poller, typically after an API restart. It runs alongside the API
// against the same database.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"server/internal/adapter/repo"
	"server/internal/credit"
	"server/internal/infra"
	"server/internal/sweep"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("sweeper: db connection failed")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)
	jobs := repo.NewJobRepository(runner)
	gate := credit.NewGate(repo.NewCreditLedger(runner), logger)

	sweeper := sweep.New(jobs, gate, sweep.Config{
		Batch:           cfg.SweepBatch,
		RefundOnTimeout: cfg.RefundOnTimeout,
	}, logger)

	logger.Info().Dur("interval", cfg.SweepInterval).Msg("sweeper started")
	if err := sweeper.Run(ctx, cfg.SweepInterval); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("sweeper stopped unexpectedly")
	}
	logger.Info().Msg("sweeper stopped")
}
