// File: cmd/app/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ebook-queue/internal/config"
	"ebook-queue/internal/infra/logging"
	"ebook-queue/internal/infra/metrics"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// set with -ldflags "-X main.version=... -X main.commit=..."
var (
	version = "dev"
	commit  = "none"
)

var (
	cfgPath string
	devMode bool

	cfg    *config.Config
	logger *zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ebookq",
	Short: "Queue-driven ebook generation service",
	Long: `ebookq turns an ebook request (title, description, page titles) into a set of
page work units, generates each page with a language model through a shared
dispatch queue, and tracks per-job progress counters.

Run "serve" for the HTTP API, "worker" for standalone worker loops and
"reconcile" for a one-off repair pass.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(cfgPath, devMode)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		cfg = c
		logger = logging.New(cfg.Log, cfg.Runtime.Dev)
		if cfg.Runtime.Dev {
			logger.Warn().Msg("developer mode enabled")
		}
		metrics.MustRegister()
		metrics.SetBuildInfo(version, commit)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "path to YAML config file")
	rootCmd.PersistentFlags().BoolVar(&devMode, "dev", false, "developer mode: console logs, noop generator without credentials")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if logger != nil {
			logger.Error().Err(err).Msg("command failed")
		} else {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		stop()
		os.Exit(1)
	}
}
