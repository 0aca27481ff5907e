package analytics_test

import (
	"fmt"

	"github.com/AngelCh415/funnel-insights/internal/models"
)

const ts = "2024-03-04T10:00:00Z"

type funnel struct {
	leads, scheduled, realized, noshows, disqualified, sales int
}

// campaignLeads builds f.leads raw leads for campaign key. The first f.scheduled
// leads scheduled a demo, the first f.realized of them attended, the next
// f.noshows missed it. Disqualifications and sales are handed out from the
// start independently, so counts are exact.
func campaignLeads(key string, f funnel) []models.RawLead {
	out := make([]models.RawLead, 0, f.leads)
	for i := 0; i < f.leads; i++ {
		l := models.RawLead{
			ID:          fmt.Sprintf("%s-%03d", key, i),
			CreatedAt:   fmt.Sprintf("2024-03-%02dT10:00:00Z", 1+i%3),
			UTMCampaign: key,
			UTMSource:   "google",
			UTMMedium:   "cpc",
		}
		if i < f.scheduled {
			l.DemoScheduledAt = ts
		}
		if i < f.realized {
			l.DemoOccurredAt = ts
		}
		if i >= f.realized && i < f.realized+f.noshows {
			l.NoShowAt = ts
		}
		if i < f.disqualified {
			l.DisqualifiedAt = ts
		}
		if i >= f.leads-f.sales {
			l.SaleAt = ts
		}
		out = append(out, l)
	}
	return out
}

func metricsFor(key string, f funnel) models.CampaignMetrics {
	return models.NewCampaignMetrics(key, models.FunnelCounts{
		Leads:        f.leads,
		Scheduled:    f.scheduled,
		Realized:     f.realized,
		NoShows:      f.noshows,
		Disqualified: f.disqualified,
		Sales:        f.sales,
	})
}

func rulesOf(ins []models.MarketingInsight) []string {
	out := make([]string, 0, len(ins))
	for _, i := range ins {
		out = append(out, i.Rule)
	}
	return out
}

func filterRule(ins []models.MarketingInsight, rule string) []models.MarketingInsight {
	var out []models.MarketingInsight
	for _, i := range ins {
		if i.Rule == rule {
			out = append(out, i)
		}
	}
	return out
}
