package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/internal/report"
	"github.com/jackzampolin/folio/internal/svcctx"
)

var reportXLSX bool

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Rebuild reports from the result logs",
	Long: `Rebuild output.csv, output_parts.csv, usage.csv and report.xlsx from
the step1 and step2 logs in the home directory. Costs are priced from the
current model catalog.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s := svcctx.ServicesFrom(cmd.Context())
		opts := reportOptions(s)
		if cmd.Flags().Changed("xlsx") {
			opts.XLSX = reportXLSX
		}
		r, err := report.Rebuild(cmd.Context(), opts)
		if err != nil {
			return err
		}
		return api.Output(map[string]any{
			"dir":       opts.OutputDir,
			"sections":  len(r.Sections),
			"parts":     len(r.Parts),
			"documents": len(r.Usage),
		})
	},
}

func init() {
	reportCmd.Flags().BoolVar(&reportXLSX, "xlsx", true, "also write report.xlsx")
	rootCmd.AddCommand(reportCmd)
}
