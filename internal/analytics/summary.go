package analytics

import (
	"sort"

	"github.com/AngelCh415/funnel-insights/internal/models"
)

// Summarize builds the dashboard header figures. Best/worst/most-sales picks
// only consider tracked campaigns with at least minVolume leads.
func Summarize(records []models.LeadRecord, minVolume int) models.Summary {
	s := models.Summary{TotalLeads: len(records)}
	if len(records) == 0 {
		return s
	}
	s.ActiveCampaigns = trackedKeys(records, models.DimCampaign)
	s.ActiveSources = trackedKeys(records, models.DimSource)
	s.ActiveMedia = trackedKeys(records, models.DimMedium)

	for i := range records {
		if records[i].UTMCampaign != models.NotTracked {
			s.TrackedLeads++
		}
		if records[i].SaleAt != nil {
			s.TotalSales++
		}
	}
	s.TrackedShare = float64(s.TrackedLeads) / float64(s.TotalLeads)
	s.OverallConversion = float64(s.TotalSales) / float64(s.TotalLeads)

	var eligible []models.CampaignMetrics
	for _, m := range Aggregate(records, models.DimCampaign) {
		if m.Key != models.NotTracked && m.Leads >= minVolume {
			eligible = append(eligible, m)
		}
	}
	conversion := func(m models.CampaignMetrics) float64 { return m.ConversionRate }
	disq := func(m models.CampaignMetrics) float64 { return m.DisqualificationRate }
	sales := func(m models.CampaignMetrics) float64 { return float64(m.Sales) }

	if m, ok := top(eligible, conversion); ok && m.Sales > 0 {
		s.BestCampaign = &models.CampaignHighlight{Key: m.Key, Value: m.ConversionRate, Count: m.Sales}
	}
	if m, ok := top(eligible, disq); ok && m.DisqualificationRate > 0 {
		s.WorstCampaign = &models.CampaignHighlight{Key: m.Key, Value: m.DisqualificationRate, Count: m.Disqualified}
	}
	if m, ok := top(eligible, sales); ok && m.Sales > 0 {
		s.MostSales = &models.CampaignHighlight{Key: m.Key, Value: float64(m.Sales), Count: m.Leads}
	}
	return s
}

// AvailableDimensions returns the dimensions holding at least one tracked value.
func AvailableDimensions(records []models.LeadRecord) []models.Dimension {
	out := []models.Dimension{}
	for _, d := range models.Dimensions {
		if trackedKeys(records, d) > 0 {
			out = append(out, d)
		}
	}
	return out
}

// DisqualificationBreakdown counts disqualified leads per key and reason. Leads
// without a reason are grouped under "(no reason)".
func DisqualificationBreakdown(records []models.LeadRecord, dim models.Dimension) []models.DisqualificationReason {
	type pair struct{ key, reason string }
	counts := map[pair]int{}
	totals := map[string]int{}
	for i := range records {
		r := &records[i]
		if r.DisqualifiedAt == nil {
			continue
		}
		reason := r.DisqualificationReason
		if reason == "" {
			reason = "(no reason)"
		}
		key := r.Key(dim)
		counts[pair{key, reason}]++
		totals[key]++
	}

	out := make([]models.DisqualificationReason, 0, len(counts))
	for p, n := range counts {
		out = append(out, models.DisqualificationReason{
			Key:      p.key,
			Reason:   p.reason,
			Count:    n,
			KeyTotal: totals[p.key],
			Share:    float64(n) / float64(totals[p.key]),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.KeyTotal != b.KeyTotal {
			return a.KeyTotal > b.KeyTotal
		}
		if a.Key != b.Key {
			return a.Key < b.Key
		}
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Reason < b.Reason
	})
	return out
}

// Trend returns daily lead counts (UTC days) for the topN keys by volume,
// ordered by date then key.
func Trend(records []models.LeadRecord, dim models.Dimension, topN int) []models.TrendPoint {
	if topN <= 0 {
		return []models.TrendPoint{}
	}
	groups := Aggregate(records, dim)
	if len(groups) > topN {
		groups = groups[:topN]
	}
	keep := make(map[string]struct{}, len(groups))
	for _, g := range groups {
		keep[g.Key] = struct{}{}
	}

	type day struct{ date, key string }
	counts := map[day]int{}
	for i := range records {
		key := records[i].Key(dim)
		if _, ok := keep[key]; !ok {
			continue
		}
		counts[day{records[i].CreatedAt.UTC().Format("2006-01-02"), key}]++
	}

	out := make([]models.TrendPoint, 0, len(counts))
	for d, n := range counts {
		out = append(out, models.TrendPoint{Date: d.date, Key: d.key, Leads: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func trackedKeys(records []models.LeadRecord, dim models.Dimension) int {
	seen := map[string]struct{}{}
	for i := range records {
		if k := records[i].Key(dim); k != models.NotTracked {
			seen[k] = struct{}{}
		}
	}
	return len(seen)
}

func top(metrics []models.CampaignMetrics, value func(models.CampaignMetrics) float64) (models.CampaignMetrics, bool) {
	if len(metrics) == 0 {
		return models.CampaignMetrics{}, false
	}
	best := metrics[0]
	for _, m := range metrics[1:] {
		if ranksBefore(m, best, value) {
			best = m
		}
	}
	return best, true
}
