package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AngelCh415/funnel-insights/internal/analytics"
	"github.com/AngelCh415/funnel-insights/internal/config"
	"github.com/AngelCh415/funnel-insights/internal/export"
	"github.com/AngelCh415/funnel-insights/internal/models"
)

type analyzeFlags struct {
	input     string
	prior     string
	dimension string
	metric    string
	minVolume int
	format    string
	out       string
	verbose   bool
}

func analyzeCmd(configPath *string) *cobra.Command {
	var f analyzeFlags
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a lead export",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			th := cfg.Thresholds
			if cmd.Flags().Changed("min-volume") {
				th = analytics.ThresholdOverrides{MinVolume: &f.minVolume}.Apply(th)
			}
			return runAnalyze(cmd, f, th)
		},
	}
	cmd.Flags().StringVarP(&f.input, "input", "i", "", "Current period leads (JSON array, - for stdin)")
	cmd.Flags().StringVar(&f.prior, "prior", "", "Prior period leads (JSON array)")
	cmd.Flags().StringVarP(&f.dimension, "dimension", "d", "campaign", "Grouping: campaign, source or medium")
	cmd.Flags().StringVarP(&f.metric, "metric", "m", string(analytics.RankConversionRate), "Ranking metric")
	cmd.Flags().IntVar(&f.minVolume, "min-volume", 0, "Minimum leads for ranking and best-of insights")
	cmd.Flags().StringVarP(&f.format, "format", "f", "json", "Output format: json, csv or xlsx")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "Output file (default stdout)")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "Log dropped rows to stderr")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func runAnalyze(cmd *cobra.Command, f analyzeFlags, th analytics.Thresholds) error {
	format := strings.ToLower(f.format)
	if format != "json" && format != "csv" && format != "xlsx" {
		return fmt.Errorf("unknown format %q", f.format)
	}
	lvl := slog.LevelWarn
	if f.verbose {
		lvl = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: lvl}))

	eng, err := analytics.NewEngine(th, analytics.WithEngineLogger(log))
	if err != nil {
		return err
	}
	current, err := readLeads(cmd.InOrStdin(), f.input)
	if err != nil {
		return err
	}
	req := analytics.Request{
		Current:   current,
		Dimension: models.Dimension(f.dimension),
		Metric:    analytics.RankMetric(f.metric),
	}
	if f.prior != "" {
		if req.Prior, err = readLeads(cmd.InOrStdin(), f.prior); err != nil {
			return err
		}
		if req.Prior == nil {
			req.Prior = []models.RawLead{}
		}
	}
	rep, err := eng.Analyze(req)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if f.out != "" {
		fh, err := os.Create(f.out)
		if err != nil {
			return err
		}
		defer fh.Close()
		w = fh
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	case "csv":
		return export.WriteCSV(w, export.CampaignTable(rep.Metrics))
	default:
		return export.WriteXLSX(w, export.CampaignTable(rep.Metrics), export.RankingTable(rep.Ranking))
	}
}

func readLeads(stdin io.Reader, path string) ([]models.RawLead, error) {
	var (
		b   []byte
		err error
	)
	if path == "-" {
		b, err = io.ReadAll(stdin)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read leads: %w", err)
	}
	var leads []models.RawLead
	if err := json.Unmarshal(b, &leads); err != nil {
		return nil, fmt.Errorf("parse leads %s: %w", path, err)
	}
	return leads, nil
}

func thresholdsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "thresholds",
		Short: "Print the effective thresholds and rule order",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"thresholds": cfg.Thresholds,
				"rules":      analytics.RuleNames(),
			})
		},
	}
}
