package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/internal/svcctx"
	"github.com/jackzampolin/folio/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
	debug        bool
)

// noServices marks commands that run without config, providers or prompts.
const noServices = "folio/no-services"

var rootCmd = &cobra.Command{
	Use:   "folio",
	Short: "Structural summaries of multi-page PDF documents",
	Long: `Folio watches a directory for PDF documents and builds a structural
summary of each one with a vision-capable LLM.

For every document it:
  - extracts the section code and part headings of each page
  - repairs section boundaries across pages
  - summarizes every section and its parts
  - appends results to JSONL logs and rebuilds CSV/XLSX reports`,
	Version:       version.GitRelease,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := api.SetOutputFormat(outputFormat); err != nil {
			return err
		}
		if _, ok := cmd.Annotations[noServices]; ok {
			return nil
		}
		s, err := svcctx.Load(svcctx.Options{
			ConfigFile: cfgFile,
			HomeDir:    homeDir,
			Debug:      debug,
		})
		if err != nil {
			return err
		}
		cmd.SetContext(svcctx.WithServices(cmd.Context(), s))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.folio/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "folio home directory (default: ~/.folio)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)
	rootCmd.PersistentFlags().BoolVar(
		&debug, "debug", false, "enable debug logging",
	)

	rootCmd.AddCommand(versionCmd)
}
