package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/internal/catalog"
	"github.com/jackzampolin/folio/internal/svcctx"
)

var modelsAll bool

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List catalog models",
	Long: `List the models in the catalog. By default only models whose provider
is configured with a usable API key are shown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s := svcctx.ServicesFrom(cmd.Context())
		var models []catalog.Model
		if modelsAll {
			models = s.Catalog.Models()
		} else {
			models = s.Available().Models()
		}
		return api.Output(models)
	},
}

func init() {
	modelsCmd.Flags().BoolVar(&modelsAll, "all", false, "include models without a usable provider")
	rootCmd.AddCommand(modelsCmd)
}
