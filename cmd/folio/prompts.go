package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/internal/svcctx"
)

var promptsFull bool

type promptInfo struct {
	Key       string   `json:"key" yaml:"key"`
	Source    string   `json:"source" yaml:"source"`
	Hash      string   `json:"hash" yaml:"hash"`
	Variables []string `json:"variables,omitempty" yaml:"variables,omitempty"`
	Text      string   `json:"text,omitempty" yaml:"text,omitempty"`
}

var promptsCmd = &cobra.Command{
	Use:   "prompts [key]",
	Short: "List the resolved prompts",
	Long: `List every prompt with its source (embedded or the prompts_file
override). Pass a key to print one prompt in full.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resolver := svcctx.ServicesFrom(cmd.Context()).Prompts
		if len(args) == 1 {
			p, err := resolver.Resolve(args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), p.Text)
			return nil
		}

		var out []promptInfo
		for _, p := range resolver.All() {
			info := promptInfo{Key: p.Key, Source: p.Source, Hash: p.Hash, Variables: p.Variables}
			if promptsFull {
				info.Text = p.Text
			}
			out = append(out, info)
		}
		return api.Output(out)
	},
}

func init() {
	promptsCmd.Flags().BoolVar(&promptsFull, "full", false, "include prompt text")
	rootCmd.AddCommand(promptsCmd)
}
