package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/TobyX424242/ZeroShare/internal/app"
	"github.com/TobyX424242/ZeroShare/internal/blobstore"
	"github.com/TobyX424242/ZeroShare/internal/database"
	"github.com/TobyX424242/ZeroShare/internal/metastore"
	"github.com/TobyX424242/ZeroShare/internal/password"
	"github.com/TobyX424242/ZeroShare/internal/share"
)

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete every expired share once and print the counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := loadEnv()
			if err != nil {
				return err
			}
			stores, err := app.OpenStores(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer stores.Close()

			res, err := app.NewSweeper(cfg, stores, nil, logger).Run(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}

type inspection struct {
	ShareID          string      `json:"shareId"`
	State            share.State `json:"state"`
	PasswordRequired bool        `json:"passwordRequired"`
	ExpiresAt        time.Time   `json:"expiresAt"`
	MaxViews         int         `json:"maxViews"`
	CurrentViews     int         `json:"currentViews"`
	ViewsRemaining   int         `json:"viewsRemaining"`
	BurnAfterRead    bool        `json:"burnAfterRead"`
	CreatedAt        time.Time   `json:"createdAt"`
	BlobKey          string      `json:"blobKey"`
	BlobPresent      bool        `json:"blobPresent"`
	BlobSize         int64       `json:"blobSize,omitempty"`
	LegacyPassword   bool        `json:"legacyPassword,omitempty"`
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <shareId>",
		Short: "Show a share record without consuming a view",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := share.NormalizeID(args[0])
			if err != nil {
				return err
			}
			cfg, logger, err := loadEnv()
			if err != nil {
				return err
			}
			stores, err := app.OpenStores(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer stores.Close()

			rec, err := stores.Meta.Get(ctx, id)
			if errors.Is(err, metastore.ErrNotFound) {
				return fmt.Errorf("share %s: %w", id, share.ErrNotFound)
			}
			if err != nil {
				return err
			}
			out := inspection{
				ShareID:          rec.ID,
				State:            rec.State(time.Now()),
				PasswordRequired: rec.PasswordRequired(),
				ExpiresAt:        rec.ExpiresAt,
				MaxViews:         rec.MaxViews,
				CurrentViews:     rec.CurrentViews,
				ViewsRemaining:   rec.ViewsRemaining(),
				BurnAfterRead:    rec.BurnAfterRead,
				CreatedAt:        rec.CreatedAt,
				BlobKey:          rec.BlobKey,
				LegacyPassword:   rec.Password != nil && rec.Password.IsLegacy(),
			}
			obj, err := stores.Blobs.Get(ctx, rec.BlobKey)
			switch {
			case err == nil:
				out.BlobPresent = true
				out.BlobSize = obj.Size
				_ = obj.Body.Close()
			case !errors.Is(err, blobstore.ErrNotFound):
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := loadEnv()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is not set")
			}
			db, err := database.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := database.Migrate(ctx, db); err != nil {
				return err
			}
			logger.Infow("migrations applied")
			return nil
		},
	}
}

func newHashPasswordCmd() *cobra.Command {
	var iterations int
	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Read a password from stdin and print its stored digest",
		Long: `hash-password prints the JSON digest the server would store for a password.
The password is read from the first line of stdin so it stays out of shell history.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read password: %w", err)
			}
			pass := strings.TrimRight(line, "\r\n")
			if pass == "" {
				return errors.New("empty password")
			}
			digest, err := password.NewHasher(iterations).Hash(pass)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), digest)
		},
	}
	cmd.Flags().IntVar(&iterations, "iterations", password.DefaultIterations, "PBKDF2 iteration count")
	return cmd
}
