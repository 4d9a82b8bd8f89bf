package main

import (
	"github.com/spf13/cobra"
)

var reconcileArchive bool

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run one reconciler pass and print its report",
	Long: `Recompute job counters from the unit records, fail units stuck in
processing and retire finished jobs. Exits with an error when another
process holds the reconciler lock.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if cmd.Flags().Changed("archive") {
			cfg.Reconciler.ArchiveFinished = reconcileArchive
		}
		a, err := openApp(ctx, cfg.Reconciler.ArchiveFinished)
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.newReconciler().RunOnce(ctx)
		if err != nil {
			return err
		}
		return printOut(cmd.OutOrStdout(), report)
	},
}

func init() {
	reconcileCmd.Flags().BoolVar(&reconcileArchive, "archive", false, "archive finished jobs to the library (overrides reconciler.archive_finished)")
	rootCmd.AddCommand(reconcileCmd)
}
