package export

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/AngelCh415/funnel-insights/internal/models"
)

func sample() ([]models.CampaignMetrics, []models.RankedCampaign) {
	a := models.NewCampaignMetrics("A", models.FunnelCounts{Leads: 100, Scheduled: 40, Realized: 30, Disqualified: 20, Sales: 2})
	b := models.NewCampaignMetrics("B", models.FunnelCounts{Leads: 10})
	ranking := []models.RankedCampaign{
		{Position: 1, Key: "A", Metric: "conversion_rate", Value: a.ConversionRate, Leads: 100, Realized: 30, Sales: 2},
	}
	return []models.CampaignMetrics{a, b}, ranking
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 66.7, Percent(2.0/3))
	assert.Equal(t, 6.7, Percent(2.0/30))
	assert.Equal(t, 0.0, Percent(0))
	assert.Equal(t, 100.0, Percent(1))
}

func TestWriteCSV(t *testing.T) {
	metrics, _ := sample()
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, CampaignTable(metrics)))

	recs, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "group", recs[0][0])
	assert.Equal(t, []string{"A", "100", "40", "30", "0", "20", "2", "40.0", "75.0", "66.7", "6.7", "0.0", "33.3", "2.0"}, recs[1])
	assert.Equal(t, "0.0", recs[2][10], "zero denominators render as 0")
}

func TestRankingTableKeepsCountsWhole(t *testing.T) {
	tbl := RankingTable([]models.RankedCampaign{{Position: 1, Key: "A", Metric: "leads", Value: 12}})
	assert.Equal(t, 12, tbl.Rows[0][3])
}

func TestWriteXLSX(t *testing.T) {
	metrics, ranking := sample()
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, CampaignTable(metrics), RankingTable(ranking)))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetCampaigns, SheetRanking}, f.GetSheetList())
	v, err := f.GetCellValue(SheetCampaigns, "A2")
	require.NoError(t, err)
	assert.Equal(t, "A", v)
	v, err = f.GetCellValue(SheetCampaigns, "J2")
	require.NoError(t, err)
	assert.Equal(t, "66.7", v)
	v, err = f.GetCellValue(SheetRanking, "D2")
	require.NoError(t, err)
	assert.Equal(t, "6.7", v)
}
