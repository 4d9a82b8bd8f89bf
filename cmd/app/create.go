package main

import (
	"errors"

	"ebook-queue/internal/usecase"

	"github.com/spf13/cobra"
)

var (
	createTitle       string
	createDescription string
	createMode        string
	createPages       []string
	createPageCount   int
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an ebook job and enqueue its pages",
	Long: `Create an ebook job from the shell. Pass page titles with repeated --page
flags, or --pages N to have the generator draft the outline (and the
description when none is given).

Examples:
  ebookq create --title "Home Gardening" --page Soil --page Seeds --page Harvest
  ebookq create --title "Home Gardening" --pages 8 --mode MINIMAL`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if createTitle == "" {
			return errors.New("--title is required")
		}
		if cfg.Store.Driver == "memory" {
			logger.Warn().Msg("memory store: the job disappears when this command exits")
		}
		a, err := openApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		titles := createPages
		desc := createDescription
		if len(titles) == 0 {
			gen, err := newGenerator(ctx)
			if err != nil {
				return err
			}
			outline := usecase.NewOutlineUseCase(gen, usecase.RetryPolicyFromConfig(cfg.Generation), logger)
			if desc == "" {
				if desc, err = outline.GenerateDescription(ctx, createTitle); err != nil {
					return err
				}
			}
			if titles, err = outline.GenerateOutline(ctx, createTitle, desc, createPageCount); err != nil {
				return err
			}
		}

		job, err := a.registry.CreateJob(ctx, usecase.CreateJobInput{
			Title:       createTitle,
			Description: desc,
			ContentMode: createMode,
			UnitTitles:  titles,
		})
		if err != nil {
			return err
		}
		return printOut(cmd.OutOrStdout(), job)
	},
}

func init() {
	f := createCmd.Flags()
	f.StringVar(&createTitle, "title", "", "ebook title")
	f.StringVar(&createDescription, "description", "", "ebook description")
	f.StringVar(&createMode, "mode", "", "content mode: FULL, MEDIUM, MINIMAL or ULTRA_MINIMAL")
	f.StringArrayVar(&createPages, "page", nil, "page title (repeatable)")
	f.IntVar(&createPageCount, "pages", 10, "number of pages to outline when no --page is given")

	rootCmd.AddCommand(createCmd)
}
