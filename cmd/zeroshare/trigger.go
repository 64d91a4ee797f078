package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/TobyX424242/ZeroShare/internal/app"
	"github.com/TobyX424242/ZeroShare/internal/queue"
	"github.com/TobyX424242/ZeroShare/internal/signing"
	"github.com/TobyX424242/ZeroShare/internal/sweeper"
)

func newTriggerSweepCmd() *cobra.Command {
	var (
		serverURL string
		ttl       time.Duration
		viaQueue  bool
	)
	cmd := &cobra.Command{
		Use:   "trigger-sweep",
		Short: "Ask a running server to sweep, using a URL signed with ADMIN_SECRET",
		Long: `trigger-sweep POSTs a signed request to /internal/sweep and prints the result.
With --queue it instead enqueues a sweep task for cmd/worker through Redis.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadEnv()
			if err != nil {
				return err
			}
			if viaQueue {
				client := asynq.NewClient(app.AsynqRedis(cfg))
				defer client.Close()
				if err := queue.EnqueueSweep(cmd.Context(), client); err != nil {
					return err
				}
				logger.Infow("sweep task enqueued", "redis", cfg.RedisAddr)
				return nil
			}
			if cfg.AdminSecret == "" {
				return errors.New("ADMIN_SECRET is not set")
			}
			signer := signing.NewSigner([]byte(cfg.AdminSecret))
			res, err := triggerSweep(cmd.Context(), http.DefaultClient, serverURL, signer, ttl)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&serverURL, "url", "http://localhost:8080", "Base URL of the server")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Minute, "Validity of the signed URL")
	cmd.Flags().BoolVar(&viaQueue, "queue", false, "Enqueue a sweep task for the worker instead of calling the server")
	return cmd
}

func triggerSweep(ctx context.Context, client *http.Client, baseURL string, signer *signing.Signer, ttl time.Duration) (sweeper.Result, error) {
	q := signer.Query(signing.ActionSweep, ttl, time.Now())
	endpoint := strings.TrimRight(baseURL, "/") + "/internal/sweep?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return sweeper.Result{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return sweeper.Result{}, fmt.Errorf("trigger sweep: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return sweeper.Result{}, fmt.Errorf("trigger sweep: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	var res sweeper.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return sweeper.Result{}, fmt.Errorf("decode sweep result: %w", err)
	}
	return res, nil
}
