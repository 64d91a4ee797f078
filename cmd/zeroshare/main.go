// Command zeroshare is the operator CLI: one-off sweeps, share inspection,
// schema migrations and signed sweep triggers against a running server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TobyX424242/ZeroShare/internal/config"
	"github.com/TobyX424242/ZeroShare/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "zeroshare: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "zeroshare",
		Short: "ZeroShare operator CLI",
		Long: `zeroshare runs maintenance against the stores configured in the environment
(or .env): sweeping expired shares, inspecting a share record, applying database
migrations and triggering a sweep on a running server with a signed URL.`,
		SilenceUsage: true,
	}
	cmd.AddCommand(
		newSweepCmd(),
		newInspectCmd(),
		newMigrateCmd(),
		newTriggerSweepCmd(),
		newHashPasswordCmd(),
	)
	return cmd
}

// loadEnv reads the configuration and builds a console logger on stderr.
func loadEnv() (*config.Config, *zap.SugaredLogger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.LogLevel, "console")
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
