package main

import (
	"fmt"
	"time"

	apiv1 "ebook-queue/internal/infra/api/apiv1"

	"github.com/spf13/cobra"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an operator token for the requeue and worker routes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ttl := cfg.HTTP.TokenTTL
		if cmd.Flags().Changed("ttl") {
			ttl = tokenTTL
		}
		tok, err := apiv1.NewAuth(cfg.HTTP.AuthSecret, ttl).Mint(tokenSubject)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
		return err
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "operator", "token subject")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime (overrides http.token_ttl)")
	rootCmd.AddCommand(tokenCmd)
}
