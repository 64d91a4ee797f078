// Command worker runs the asynq consumer for background deletes and the
// periodic expiry sweep.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/TobyX424242/ZeroShare/internal/app"
	"github.com/TobyX424242/ZeroShare/internal/config"
	"github.com/TobyX424242/ZeroShare/internal/logging"
	"github.com/TobyX424242/ZeroShare/internal/metrics"
	"github.com/TobyX424242/ZeroShare/internal/queue"
	"github.com/TobyX424242/ZeroShare/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(ctx, cfg, logger); err != nil {
		logger.Errorw("worker stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) error {
	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	m := metrics.New(nil)
	sw := app.NewSweeper(cfg, stores, m, logger)
	processor := worker.NewProcessor(sw, stores.Blobs, logger)

	redisOpt := app.AsynqRedis(cfg)
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Logger:      logger,
	})
	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Logger: logger})
	entryID, err := queue.RegisterSweep(scheduler, cfg.SweepSchedule)
	if err != nil {
		return err
	}
	logger.Infow("sweep scheduled", "entry_id", entryID, "schedule", cfg.SweepSchedule)

	if err := server.Start(processor.Handler()); err != nil {
		return err
	}
	if err := scheduler.Start(); err != nil {
		server.Shutdown()
		return err
	}

	<-ctx.Done()
	logger.Infow("shutting down worker")
	scheduler.Shutdown()
	server.Shutdown()
	return nil
}
