package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/nexconsult/rera-harvester/internal/config"
	"github.com/nexconsult/rera-harvester/internal/logger"
	"github.com/nexconsult/rera-harvester/internal/metrics"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type appKeyType string

const appKey appKeyType = "app"

// app is what every subcommand gets: validated config and a logger.
type app struct {
	cfg    *config.Config
	logger *logrus.Logger
}

var envFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Harvest project records from the MahaRERA public registry",
		Long: `harvester walks a range of MahaRERA project IDs with a pool of stealth
browser sessions, solves each page's image challenge with tesseract, and
writes one flat record per project. Projects that fail are kept in a failed
ledger and retried until they succeed.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("load %s: %w", envFile, err)
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a := &app{cfg: cfg, logger: logger.New(cfg.Log)}
			metrics.Init()

			cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "environment file loaded before configuration")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newScrapeCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newExportCmd())
	cmd.AddCommand(newExtractCmd())

	return cmd
}

func resolveApp(ctx context.Context) (*app, error) {
	a, ok := ctx.Value(appKey).(*app)
	if !ok || a == nil {
		return nil, errors.New("application not initialized")
	}
	return a, nil
}
