package main

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lead-enrich/internal/store"
)

var resultsCompany string

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Show stored contacts for a company, or store statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("offline"); err != nil {
			return err
		}
		st, err := store.Open(cmd.Context(), cfg.Store)
		if err != nil {
			return eris.Wrap(err, "open result store")
		}
		defer st.Close() //nolint:errcheck

		return showResults(cmd.Context(), st, resultsCompany, os.Stdout)
	},
}

func init() {
	resultsCmd.Flags().StringVar(&resultsCompany, "company", "", "company name (omit for store statistics)")
	rootCmd.AddCommand(resultsCmd)
}

// showResults writes the company's records, or the store stats when
// company is empty, as indented JSON.
func showResults(ctx context.Context, st store.ResultStore, company string, w io.Writer) error {
	var out any
	if company == "" {
		stats, err := st.Stats(ctx)
		if err != nil {
			return eris.Wrap(err, "results: stats")
		}
		out = stats
	} else {
		records, err := st.GetCompanyResults(ctx, company)
		if err != nil {
			return eris.Wrapf(err, "results: company %s", company)
		}
		if records == nil {
			records = []store.Record{}
		}
		out = records
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
