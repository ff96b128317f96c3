package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/tour-ingest/internal/config"
	"github.com/JakeFAU/tour-ingest/internal/logging"
)

// envKey is the context key for the loaded environment.
type envKey struct{}

// env is what every subcommand needs: validated config and a logger.
type env struct {
	cfg    config.Config
	logger *zap.Logger
}

// loadEnv builds the environment. It's a variable so tests can swap in a
// fixed configuration.
var loadEnv = func(path string) (*env, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return &env{cfg: cfg, logger: logger}, nil
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "tourpipe",
		Short: "Extracts structured tour records from operator websites.",
		Long: `tourpipe fetches tour pages, reduces them to the text that matters,
asks a language model for structured records and reconciles those records
into a durable table without disturbing columns owned by other systems.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEnv(cfgFile)
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), envKey{}, e))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if e, ok := cmd.Context().Value(envKey{}).(*env); ok && e != nil {
				if err := e.logger.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) {
					fmt.Fprintf(cmd.ErrOrStderr(), "logger sync failed: %v\n", err)
				}
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON)")
	cmd.AddCommand(newRunCmd(), newMergeCmd(), newDedupeCmd())
	return cmd
}

func resolveEnv(ctx context.Context) (*env, error) {
	e, ok := ctx.Value(envKey{}).(*env)
	if !ok || e == nil {
		return nil, errors.New("environment not initialized")
	}
	return e, nil
}
