// Package export renders analysis results as spreadsheets. Rates are shown as
// percentages rounded to one decimal; nothing upstream of this package rounds.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/AngelCh415/funnel-insights/internal/models"
)

const (
	SheetCampaigns = "Campaigns"
	SheetRanking   = "Ranking"
)

// Table is one sheet worth of cells.
type Table struct {
	Name    string
	Headers []string
	Rows    [][]any
}

func CampaignTable(metrics []models.CampaignMetrics) Table {
	t := Table{
		Name: SheetCampaigns,
		Headers: []string{
			"group", "leads", "scheduled", "realized", "noshows", "disqualified", "sales",
			"scheduling_pct", "realization_pct", "disqualification_pct", "conversion_pct",
			"noshow_pct", "utilization_pct", "funnel_efficiency_pct",
		},
	}
	for _, m := range metrics {
		t.Rows = append(t.Rows, []any{
			m.Key, m.Leads, m.Scheduled, m.Realized, m.NoShows, m.Disqualified, m.Sales,
			Percent(m.SchedulingRate), Percent(m.RealizationRate), Percent(m.DisqualificationRate),
			Percent(m.ConversionRate), Percent(m.NoShowRate), Percent(m.UtilizationRate),
			Percent(m.FunnelEfficiency),
		})
	}
	return t
}

// RankingTable shows rate metrics as percentages and counts as is.
func RankingTable(ranking []models.RankedCampaign) Table {
	t := Table{
		Name:    SheetRanking,
		Headers: []string{"position", "group", "metric", "value", "leads", "realized", "sales"},
	}
	for _, r := range ranking {
		var v any
		if isRate(r.Metric) {
			v = Percent(r.Value)
		} else {
			v = int(r.Value)
		}
		t.Rows = append(t.Rows, []any{r.Position, r.Key, r.Metric, v, r.Leads, r.Realized, r.Sales})
	}
	return t
}

func isRate(metric string) bool {
	switch metric {
	case "leads", "scheduled", "realized", "sales":
		return false
	}
	return true
}

// Percent turns a fraction into a percentage with one decimal.
func Percent(f float64) float64 {
	return math.Round(f*1000) / 10
}

// WriteCSV writes a single table. Floats keep exactly one decimal.
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Headers); err != nil {
		return err
	}
	rec := make([]string, len(t.Headers))
	for _, row := range t.Rows {
		rec = rec[:0]
		for _, v := range row {
			rec = append(rec, cell(v))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func cell(v any) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'f', 1, 64)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// WriteXLSX writes one sheet per table, in order, into a single workbook.
func WriteXLSX(w io.Writer, tables ...Table) error {
	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	for i, t := range tables {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", t.Name); err != nil {
				return err
			}
		} else if _, err := f.NewSheet(t.Name); err != nil {
			return err
		}
		if err := writeSheet(f, t, header); err != nil {
			return fmt.Errorf("sheet %s: %w", t.Name, err)
		}
	}
	f.SetActiveSheet(0)
	return f.Write(w)
}

func writeSheet(f *excelize.File, t Table, headerStyle int) error {
	for i, h := range t.Headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(t.Name, cell, h); err != nil {
			return err
		}
	}
	if len(t.Headers) > 0 {
		if err := f.SetRowStyle(t.Name, 1, 1, headerStyle); err != nil {
			return err
		}
	}
	for r, row := range t.Rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(t.Name, cell, v); err != nil {
				return err
			}
		}
	}
	return nil
}
