package analytics

import (
	"sort"

	"github.com/AngelCh415/funnel-insights/internal/models"
)

// Compare joins current and prior metrics by key. A key missing on either side
// is compared against a zero baseline; missing from prior marks IsNewGroup.
func Compare(current, prior []models.CampaignMetrics) []models.PeriodComparison {
	cur := indexByKey(current)
	prev := indexByKey(prior)

	keys := make([]string, 0, len(cur)+len(prev))
	for k := range cur {
		keys = append(keys, k)
	}
	for k := range prev {
		if _, ok := cur[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := make([]models.PeriodComparison, 0, len(keys))
	for _, k := range keys {
		c, ok := cur[k]
		if !ok {
			c = models.NewCampaignMetrics(k, models.FunnelCounts{})
		}
		p, inPrior := prev[k]
		if !inPrior {
			p = models.NewCampaignMetrics(k, models.FunnelCounts{})
		}
		out = append(out, models.PeriodComparison{
			Key:        k,
			Current:    c,
			Prior:      p,
			IsNewGroup: !inPrior,
			LeadDelta:  c.Leads - p.Leads,
			SaleDelta:  c.Sales - p.Sales,
			LeadChange: PctChange(c.Leads, p.Leads),
			SaleChange: PctChange(c.Sales, p.Sales),
		})
	}
	return out
}

// PctChange is (cur-prior)/prior. From a zero baseline a positive cur is New and
// zero-to-zero is no change.
func PctChange(cur, prior int) models.PercentChange {
	if prior > 0 {
		return models.PercentChange{Value: float64(cur-prior) / float64(prior)}
	}
	if cur > 0 {
		return models.PercentChange{New: true}
	}
	return models.PercentChange{}
}

func indexByKey(metrics []models.CampaignMetrics) map[string]models.CampaignMetrics {
	m := make(map[string]models.CampaignMetrics, len(metrics))
	for _, cm := range metrics {
		m[cm.Key] = cm
	}
	return m
}
