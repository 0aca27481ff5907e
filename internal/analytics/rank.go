package analytics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/AngelCh415/funnel-insights/internal/models"
)

type RankMetric string

const (
	RankLeads                RankMetric = "leads"
	RankScheduled            RankMetric = "scheduled"
	RankRealized             RankMetric = "realized"
	RankSales                RankMetric = "sales"
	RankSchedulingRate       RankMetric = "scheduling_rate"
	RankRealizationRate      RankMetric = "realization_rate"
	RankDisqualificationRate RankMetric = "disqualification_rate"
	RankConversionRate       RankMetric = "conversion_rate"
	RankNoShowRate           RankMetric = "noshow_rate"
	RankUtilizationRate      RankMetric = "utilization_rate"
	RankFunnelEfficiency     RankMetric = "funnel_efficiency"
)

var rankValues = map[RankMetric]func(models.CampaignMetrics) float64{
	RankLeads:                func(m models.CampaignMetrics) float64 { return float64(m.Leads) },
	RankScheduled:            func(m models.CampaignMetrics) float64 { return float64(m.Scheduled) },
	RankRealized:             func(m models.CampaignMetrics) float64 { return float64(m.Realized) },
	RankSales:                func(m models.CampaignMetrics) float64 { return float64(m.Sales) },
	RankSchedulingRate:       func(m models.CampaignMetrics) float64 { return m.SchedulingRate },
	RankRealizationRate:      func(m models.CampaignMetrics) float64 { return m.RealizationRate },
	RankDisqualificationRate: func(m models.CampaignMetrics) float64 { return m.DisqualificationRate },
	RankConversionRate:       func(m models.CampaignMetrics) float64 { return m.ConversionRate },
	RankNoShowRate:           func(m models.CampaignMetrics) float64 { return m.NoShowRate },
	RankUtilizationRate:      func(m models.CampaignMetrics) float64 { return m.UtilizationRate },
	RankFunnelEfficiency:     func(m models.CampaignMetrics) float64 { return m.FunnelEfficiency },
}

// ParseRankMetric resolves a metric name. Empty means conversion_rate.
func ParseRankMetric(s string) (RankMetric, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return RankConversionRate, nil
	}
	if _, ok := rankValues[RankMetric(s)]; !ok {
		return "", fmt.Errorf("unknown ranking metric %q", s)
	}
	return RankMetric(s), nil
}

// Value reads the metric off m. Unknown metrics read as 0.
func (r RankMetric) Value(m models.CampaignMetrics) float64 {
	if fn, ok := rankValues[r]; ok {
		return fn(m)
	}
	return 0
}

// Rank orders groups with at least minVolume leads by metric desc, then leads
// desc, then key asc.
func Rank(metrics []models.CampaignMetrics, metric RankMetric, minVolume int) []models.RankedCampaign {
	eligible := make([]models.CampaignMetrics, 0, len(metrics))
	for _, m := range metrics {
		if m.Leads >= minVolume {
			eligible = append(eligible, m)
		}
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		return ranksBefore(eligible[i], eligible[j], metric.Value)
	})

	out := make([]models.RankedCampaign, 0, len(eligible))
	for i, m := range eligible {
		out = append(out, models.RankedCampaign{
			Position: i + 1,
			Key:      m.Key,
			Metric:   string(metric),
			Value:    metric.Value(m),
			Leads:    m.Leads,
			Realized: m.Realized,
			Sales:    m.Sales,
		})
	}
	return out
}

func ranksBefore(a, b models.CampaignMetrics, value func(models.CampaignMetrics) float64) bool {
	va, vb := value(a), value(b)
	if va != vb {
		return va > vb
	}
	if a.Leads != b.Leads {
		return a.Leads > b.Leads
	}
	return a.Key < b.Key
}
