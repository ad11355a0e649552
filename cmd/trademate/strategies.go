package main

import (
	"encoding/json"

	"github.com/newthinker/trademate/internal/report"
	"github.com/newthinker/trademate/internal/strategy"
	"github.com/spf13/cobra"
)

var strategiesJSON bool

var strategiesCmd = &cobra.Command{
	Use:   "strategies",
	Short: "List available strategies and their default parameters",
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog := strategy.Catalog()
		if strategiesJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(catalog)
		}
		return report.WriteStrategies(cmd.OutOrStdout(), catalog)
	},
}

func init() {
	strategiesCmd.Flags().BoolVar(&strategiesJSON, "json", false, "print the catalog as JSON")
	rootCmd.AddCommand(strategiesCmd)
}
