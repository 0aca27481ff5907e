package analytics

import (
	"sort"

	"github.com/AngelCh415/funnel-insights/internal/models"
)

// Aggregate groups records by dim and returns one CampaignMetrics per key that has
// at least one record, ordered by lead count desc then key asc.
func Aggregate(records []models.LeadRecord, dim models.Dimension) []models.CampaignMetrics {
	counts := make(map[string]*models.FunnelCounts)
	for i := range records {
		key := records[i].Key(dim)
		c, ok := counts[key]
		if !ok {
			c = &models.FunnelCounts{}
			counts[key] = c
		}
		addRecord(c, &records[i])
	}

	out := make([]models.CampaignMetrics, 0, len(counts))
	for key, c := range counts {
		out = append(out, models.NewCampaignMetrics(key, *c))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Leads != out[j].Leads {
			return out[i].Leads > out[j].Leads
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// Totals sums the funnel counts of every group.
func Totals(metrics []models.CampaignMetrics) models.DashboardTotals {
	var t models.DashboardTotals
	for _, m := range metrics {
		t.Leads += m.Leads
		t.Scheduled += m.Scheduled
		t.Realized += m.Realized
		t.NoShows += m.NoShows
		t.Disqualified += m.Disqualified
		t.Sales += m.Sales
	}
	return t
}

func addRecord(c *models.FunnelCounts, r *models.LeadRecord) {
	c.Leads++
	if r.DemoScheduledAt != nil {
		c.Scheduled++
	}
	if r.DemoOccurredAt != nil {
		c.Realized++
	}
	if r.NoShowAt != nil {
		c.NoShows++
	}
	if r.DisqualifiedAt != nil {
		c.Disqualified++
	}
	if r.SaleAt != nil {
		c.Sales++
	}
}

func byKey(metrics []models.CampaignMetrics) []models.CampaignMetrics {
	out := make([]models.CampaignMetrics, len(metrics))
	copy(out, metrics)
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
