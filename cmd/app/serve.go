package main

import (
	"context"
	"sync"
	"time"

	"ebook-queue/internal/domain/model"
	"ebook-queue/internal/infra/api"
	apiv1 "ebook-queue/internal/infra/api/apiv1"
	"ebook-queue/internal/infra/worker"
	"ebook-queue/internal/usecase"

	"github.com/spf13/cobra"
)

var (
	servePort     int
	serveWorkers  int
	serveNoRecon  bool
	serveEmbedded bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API together with the reconciler and, when enabled, embedded
worker loops. The memory store always runs embedded workers since no other
process can reach its queue.

Examples:
  ebookq serve
  ebookq serve --port 3000 --embedded --workers 4`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		if cmd.Flags().Changed("port") {
			cfg.HTTP.Port = servePort
		}
		if cmd.Flags().Changed("embedded") {
			cfg.Worker.Embedded = serveEmbedded
		}
		if cmd.Flags().Changed("workers") {
			cfg.Worker.Concurrency = serveWorkers
		}

		a, err := openApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()

		gen, err := newGenerator(ctx)
		if err != nil {
			return err
		}
		proc := a.newProcessor(gen)

		var wg sync.WaitGroup
		if cfg.Worker.Embedded || cfg.Store.Driver == "memory" {
			pool := worker.NewPool(cfg.Worker.Concurrency, logger)
			pool.Start(ctx, proc.Run)
			wg.Add(1)
			go func() {
				defer wg.Done()
				pool.Wait()
			}()
		}
		if !serveNoRecon {
			rec := a.newReconciler()
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = rec.Run(ctx)
			}()
		}

		srv := apiv1.NewServer(apiv1.Deps{
			Registry:       a.registry,
			Outline:        usecase.NewOutlineUseCase(gen, usecase.RetryPolicyFromConfig(cfg.Generation), logger),
			Export:         usecase.NewExportUseCase(a.registry),
			Library:        a.library,
			Worker:         proc,
			Limiter:        a.limiter,
			Auth:           apiv1.NewAuth(cfg.HTTP.AuthSecret, cfg.HTTP.TokenTTL),
			CreateLimit:    cfg.HTTP.CreateLimit,
			CreateWindow:   cfg.HTTP.CreateWindow,
			RequestTimeout: cfg.Generation.MaxTimeout * 3,
			DrainTimeout:   drainBudget(),
		}, logger)
		if cfg.HTTP.AuthSecret == "" {
			logger.Warn().Msg("http.auth_secret is empty; operator routes are disabled")
		}
		err = api.Serve(ctx, cfg.HTTP.Port, api.NewRouter(srv, a.store, logger), logger)
		cancel()
		wg.Wait()
		return err
	},
}

// drainBudget is the worst case for one unit: every chunk of the largest mode
// running all attempts at the capped timeout, plus the delays between them.
func drainBudget() time.Duration {
	attempts := time.Duration(cfg.Generation.MaxRetries + 1)
	perChunk := attempts * (cfg.Generation.MaxTimeout + cfg.Generation.MaxDelay)
	return perChunk * time.Duration(model.ContentModeFull.Spec().Chunks)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "port to listen on (overrides http.port)")
	serveCmd.Flags().IntVar(&serveWorkers, "workers", 2, "embedded worker loops (overrides worker.concurrency)")
	serveCmd.Flags().BoolVar(&serveEmbedded, "embedded", false, "run worker loops inside the server (overrides worker.embedded)")
	serveCmd.Flags().BoolVar(&serveNoRecon, "no-reconciler", false, "do not run the periodic reconciler")

	rootCmd.AddCommand(serveCmd)
}
