// Command server runs the ZeroShare HTTP API.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/TobyX424242/ZeroShare/internal/api"
	"github.com/TobyX424242/ZeroShare/internal/app"
	"github.com/TobyX424242/ZeroShare/internal/config"
	"github.com/TobyX424242/ZeroShare/internal/logging"
	"github.com/TobyX424242/ZeroShare/internal/metrics"
	"github.com/TobyX424242/ZeroShare/internal/processing"
	"github.com/TobyX424242/ZeroShare/internal/queue"
	"github.com/TobyX424242/ZeroShare/internal/shares"
	"github.com/TobyX424242/ZeroShare/internal/signing"
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
		logger.Errorw("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) error {
	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	janitor := processing.New(stores.Blobs, cfg.JanitorWorkers, processing.WithLogger(logger))
	janitor.Start(ctx)
	defer janitor.Wait()

	var reporter shares.OrphanReporter = janitor
	if cfg.BlobBackend != config.BlobMemory {
		// A worker process can reach the same blob store; hand orphans to it
		// and keep the janitor for when Redis is unavailable.
		client := asynq.NewClient(app.AsynqRedis(cfg))
		defer client.Close()
		reporter = queue.NewOrphanQueue(client, janitor, logger)
	}

	svc := app.NewService(cfg, stores, reporter, m, logger)
	sw := app.NewSweeper(cfg, stores, m, logger)
	signer := signing.NewSigner(cfg.SigningSecret)
	if cfg.AdminSecret == "" {
		logger.Warnw("ADMIN_SECRET not set; signed sweep triggers are disabled")
	}

	srv := api.New(cfg, svc, sw, signer, logger, api.WithMetrics(m, reg))
	return srv.Run(ctx)
}
