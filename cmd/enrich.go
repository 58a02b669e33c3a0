package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	enrichCompany string
	enrichDomain  string
	enrichForce   bool
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Enrich a single company and print the result as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnrich(ctx, "enrich")
		if err != nil {
			return err
		}
		defer env.Close(cmd.Context())

		result := env.Orchestrator.EnrichCompany(ctx, enrichCompany, enrichDomain, enrichForce)
		if result.Failed() {
			zap.L().Error("enrichment failed",
				zap.String("company", enrichCompany),
				zap.String("error", result.ErrorDetails),
			)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return eris.Wrap(err, "enrich: encode result")
		}
		if result.Failed() {
			return eris.New(result.ErrorDetails)
		}
		return nil
	},
}

func init() {
	enrichCmd.Flags().StringVar(&enrichCompany, "company", "", "company name (required)")
	enrichCmd.Flags().StringVar(&enrichDomain, "domain", "", "company email domain")
	enrichCmd.Flags().BoolVar(&enrichForce, "force", false, "bypass the result cache")
	_ = enrichCmd.MarkFlagRequired("company")
	rootCmd.AddCommand(enrichCmd)
}
