package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lead-enrich/internal/enrich"
)

var (
	exportFormat    string
	exportOut       string
	exportNoMetrics bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export every stored contact to CSV or Excel",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnrich(cmd.Context(), "offline")
		if err != nil {
			return err
		}
		defer env.Close(cmd.Context())

		path := env.Orchestrator.ExportResults(cmd.Context(), enrich.ExportOptions{
			Format:         exportFormat,
			Path:           exportOut,
			IncludeMetrics: !exportNoMetrics,
		})
		if path == "" {
			return eris.New("export: nothing written")
		}
		fmt.Println(path)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", enrich.FormatCSV, "output format (csv or xlsx)")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output path (default: timestamped file in export.dir)")
	exportCmd.Flags().BoolVar(&exportNoMetrics, "no-metrics", false, "omit processing metrics columns")
	rootCmd.AddCommand(exportCmd)
}
