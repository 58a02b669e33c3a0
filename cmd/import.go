package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-enrich/internal/input"
	"github.com/sells-group/lead-enrich/internal/model"
	"github.com/sells-group/lead-enrich/pkg/notion"
)

var importFile string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Queue companies from a file as leads in the Notion lead database",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cfg.Notion.Token == "" || cfg.Notion.LeadDB == "" {
			return eris.New("import: notion.token and notion.lead_db are required")
		}

		companies, err := input.ReadCompanies(ctx, importFile)
		if err != nil {
			return eris.Wrap(err, "read companies")
		}

		client := notion.NewClient(cfg.Notion.Token)
		created, err := notion.ImportLeads(ctx, client, cfg.Notion.LeadDB, companyLeads(companies))
		if err != nil {
			return eris.Wrap(err, "import leads")
		}

		zap.L().Info("import complete",
			zap.Int("companies", len(companies)),
			zap.Int("created", created),
		)
		fmt.Printf("queued %d of %d companies\n", created, len(companies))
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "CSV, XLSX or JSON file of companies (required)")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}

func companyLeads(companies []model.Company) []notion.Lead {
	leads := make([]notion.Lead, len(companies))
	for i, c := range companies {
		leads[i] = notion.Lead{Name: c.Name, Domain: c.Domain}
	}
	return leads
}
