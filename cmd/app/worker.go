package main

import (
	"ebook-queue/internal/infra/worker"

	"github.com/spf13/cobra"
)

var (
	workerCount int
	workerDrain int
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run worker loops against the shared dispatch queue",
	Long: `Run N worker loops that pop dispatch records and generate pages until
SIGINT or SIGTERM. A unit in flight at shutdown is marked failed so it can be
requeued.

With --drain the command processes at most that many records and exits,
which suits cron-style triggering.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if cmd.Flags().Changed("concurrency") {
			cfg.Worker.Concurrency = workerCount
		}
		if cfg.Store.Driver == "memory" {
			logger.Warn().Msg("memory store: this worker only sees jobs created in this process")
		}

		a, err := openApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		gen, err := newGenerator(ctx)
		if err != nil {
			return err
		}
		proc := a.newProcessor(gen)

		if workerDrain > 0 {
			results, err := proc.Drain(ctx, workerDrain)
			if perr := printOut(cmd.OutOrStdout(), results); perr != nil {
				return perr
			}
			return err
		}

		pool := worker.NewPool(cfg.Worker.Concurrency, logger)
		pool.Start(ctx, proc.Run)
		<-ctx.Done()
		pool.Wait()
		return nil
	},
}

func init() {
	workerCmd.Flags().IntVarP(&workerCount, "concurrency", "n", 2, "number of worker loops (overrides worker.concurrency)")
	workerCmd.Flags().IntVar(&workerDrain, "drain", 0, "process at most this many records, then exit")

	rootCmd.AddCommand(workerCmd)
}
