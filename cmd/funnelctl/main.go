// Package main provides funnelctl, an offline runner for the funnel analysis
// over JSON lead exports.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "funnelctl",
		Short: "Lead funnel analytics over CRM exports",
		Long: `funnelctl groups CRM leads by UTM campaign, source or medium, computes
funnel rates, classifies insights and ranks the groups.

Input files are JSON arrays of leads as returned by the CRM export.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config with threshold overrides")

	cmd.AddCommand(analyzeCmd(&configPath), thresholdsCmd(&configPath))
	return cmd
}
