package analytics

import (
	"fmt"
	"strings"

	"github.com/AngelCh415/funnel-insights/internal/models"
)

const (
	RuleBestVolume              = "best_volume"
	RuleBestConversion          = "best_conversion"
	RuleBestEfficiency          = "best_efficiency"
	RuleHighDisqualification    = "high_disqualification"
	RuleHighNoShow              = "high_noshow"
	RuleUntrackedVolume         = "untracked_volume"
	RuleSevereDisqualification  = "severe_disqualification"
	RuleSalesDrop               = "sales_drop"
	RuleVolumeWithoutConversion = "volume_without_conversion"
	RuleDisqualificationRise    = "disqualification_rise"
	RuleNoSales                 = "no_sales"
	RuleInsufficientData        = "insufficient_data"
)

// ClassifierInput is what a classification pass sees. Comparisons may be nil
// when no prior period was selected. A zero Totals is derived from Current.
type ClassifierInput struct {
	Current     []models.CampaignMetrics
	Comparisons []models.PeriodComparison
	Totals      models.DashboardTotals
}

type rule struct {
	name string
	eval func(in *ClassifierInput, th Thresholds) []models.MarketingInsight
}

// rules run in this order and never short-circuit each other. Append new rules
// at the end.
var rules = []rule{
	{RuleBestVolume, bestOf(
		func(m models.CampaignMetrics, _ Thresholds) bool { return true },
		func(m models.CampaignMetrics) float64 { return float64(m.Leads) },
		false,
		bestVolumeInsight,
	)},
	{RuleBestConversion, bestOf(
		aboveFloor,
		func(m models.CampaignMetrics) float64 { return m.ConversionRate },
		true,
		bestConversionInsight,
	)},
	{RuleBestEfficiency, bestOf(
		aboveFloor,
		func(m models.CampaignMetrics) float64 { return m.FunnelEfficiency },
		true,
		bestEfficiencyInsight,
	)},
	{RuleHighDisqualification, perGroup(
		func(m models.CampaignMetrics, th Thresholds) bool {
			return m.DisqualificationRate > th.DisqualificationWarning
		},
		highDisqualificationInsight,
	)},
	{RuleHighNoShow, perGroup(
		func(m models.CampaignMetrics, th Thresholds) bool { return m.NoShowRate > th.NoShowWarning },
		highNoShowInsight,
	)},
	{RuleUntrackedVolume, untrackedVolume},
	{RuleSevereDisqualification, perGroup(
		func(m models.CampaignMetrics, th Thresholds) bool {
			return m.DisqualificationRate > th.DisqualificationCritical
		},
		severeDisqualificationInsight,
	)},
	{RuleSalesDrop, salesDrop},
	{RuleVolumeWithoutConversion, perGroup(
		func(m models.CampaignMetrics, th Thresholds) bool {
			return m.Leads >= th.MinVolume && m.ConversionRate < th.LowConversionCeiling
		},
		volumeWithoutConversionInsight,
	)},
	{RuleDisqualificationRise, disqualificationRise},
	{RuleNoSales, noSales},
	{RuleInsufficientData, insufficientData},
}

// RuleNames lists the classifier rules in evaluation order.
func RuleNames() []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.name
	}
	return out
}

// Classify evaluates every rule in order and concatenates their insights. The
// result is in rule order, not severity order.
func Classify(in ClassifierInput, th Thresholds) []models.MarketingInsight {
	if in.Totals == (models.DashboardTotals{}) {
		in.Totals = Totals(in.Current)
	}
	out := []models.MarketingInsight{}
	for _, r := range rules {
		for _, ins := range r.eval(&in, th) {
			ins.Rule = r.name
			out = append(out, ins)
		}
	}
	return out
}

func aboveFloor(m models.CampaignMetrics, th Thresholds) bool { return m.Leads >= th.MinVolume }

// bestOf picks the single group with the highest value among eligible ones. Ties
// go to higher lead count, then smaller key. With skipZero a best value of 0
// emits nothing.
func bestOf(
	eligible func(models.CampaignMetrics, Thresholds) bool,
	value func(models.CampaignMetrics) float64,
	skipZero bool,
	factory func(models.CampaignMetrics, models.DashboardTotals) models.MarketingInsight,
) func(*ClassifierInput, Thresholds) []models.MarketingInsight {
	return func(in *ClassifierInput, th Thresholds) []models.MarketingInsight {
		var best *models.CampaignMetrics
		for i := range in.Current {
			m := &in.Current[i]
			if !eligible(*m, th) {
				continue
			}
			if best == nil || ranksBefore(*m, *best, value) {
				best = m
			}
		}
		if best == nil || (skipZero && value(*best) == 0) {
			return nil
		}
		return []models.MarketingInsight{factory(*best, in.Totals)}
	}
}

// perGroup emits one insight per group matching pred, in key order.
func perGroup(
	pred func(models.CampaignMetrics, Thresholds) bool,
	factory func(models.CampaignMetrics, Thresholds) models.MarketingInsight,
) func(*ClassifierInput, Thresholds) []models.MarketingInsight {
	return func(in *ClassifierInput, th Thresholds) []models.MarketingInsight {
		var out []models.MarketingInsight
		for _, m := range byKey(in.Current) {
			if pred(m, th) {
				out = append(out, factory(m, th))
			}
		}
		return out
	}
}

func untrackedVolume(in *ClassifierInput, th Thresholds) []models.MarketingInsight {
	if in.Totals.Leads <= 0 {
		return nil
	}
	var untracked int
	for _, m := range in.Current {
		if m.Key == models.NotTracked {
			untracked += m.Leads
		}
	}
	share := float64(untracked) / float64(in.Totals.Leads)
	if untracked == 0 || share <= th.UntrackedShare {
		return nil
	}
	return []models.MarketingInsight{{
		Kind:           models.InsightWarning,
		Title:          "Incomplete tracking",
		Message:        fmt.Sprintf("%s of leads (%d of %d) carry no UTM attribution.", pct(share), untracked, in.Totals.Leads),
		Recommendation: "Review UTM tagging on campaigns and landing pages.",
		Values:         map[string]float64{"untracked_leads": float64(untracked), "total_leads": float64(in.Totals.Leads), "share": share},
	}}
}

func salesDrop(in *ClassifierInput, th Thresholds) []models.MarketingInsight {
	var out []models.MarketingInsight
	for _, c := range in.Comparisons {
		if c.SaleChange.New || c.Prior.Sales <= 0 || c.SaleChange.Value > th.SalesDropCritical {
			continue
		}
		out = append(out, models.MarketingInsight{
			Kind:           models.InsightCritical,
			Subject:        subject(c.Key),
			Title:          "Sales drop",
			Message:        fmt.Sprintf("'%s' sales fell %s versus the previous period (%d, was %d).", c.Key, pct(-c.SaleChange.Value), c.Current.Sales, c.Prior.Sales),
			Recommendation: "Investigate changes in the campaign or its market.",
			Values: map[string]float64{
				"current_sales": float64(c.Current.Sales),
				"prior_sales":   float64(c.Prior.Sales),
				"sale_change":   c.SaleChange.Value,
			},
		})
	}
	return out
}

// disqualificationRise flags groups whose disqualification rate climbed by more
// than DisqualificationRise and now sits at or above DisqualificationRiseFloor.
// Groups new in the current period have no baseline and are skipped.
func disqualificationRise(in *ClassifierInput, th Thresholds) []models.MarketingInsight {
	var out []models.MarketingInsight
	for _, c := range in.Comparisons {
		if c.IsNewGroup {
			continue
		}
		rise := c.Current.DisqualificationRate - c.Prior.DisqualificationRate
		if rise <= th.DisqualificationRise || c.Current.DisqualificationRate < th.DisqualificationRiseFloor {
			continue
		}
		out = append(out, models.MarketingInsight{
			Kind:           models.InsightWarning,
			Subject:        subject(c.Key),
			Title:          "Disqualification on the rise",
			Message:        fmt.Sprintf("'%s' disqualification rose %.1fpp (from %s to %s).", c.Key, rise*100, pct(c.Prior.DisqualificationRate), pct(c.Current.DisqualificationRate)),
			Recommendation: "Check the quality of leads coming from this source.",
			Values: map[string]float64{
				"rise":                  rise,
				"disqualification_rate": c.Current.DisqualificationRate,
				"prior_rate":            c.Prior.DisqualificationRate,
			},
		})
	}
	return out
}

// noSales emits one dashboard-wide warning naming up to three groups that
// realized at least NoSalesMinRealized demos without a single sale.
func noSales(in *ClassifierInput, th Thresholds) []models.MarketingInsight {
	var names []string
	for _, m := range byKey(in.Current) {
		if m.Sales == 0 && m.Realized >= th.NoSalesMinRealized {
			names = append(names, m.Key)
		}
	}
	if len(names) == 0 {
		return nil
	}
	shown := names
	if len(shown) > 3 {
		shown = shown[:3]
	}
	return []models.MarketingInsight{{
		Kind:           models.InsightWarning,
		Title:          "Groups without sales",
		Message:        fmt.Sprintf("%d group(s) realized demos but sold nothing: %s.", len(names), strings.Join(shown, ", ")),
		Recommendation: "Check whether the audience is right or discontinue.",
		Values:         map[string]float64{"groups": float64(len(names))},
	}}
}

func insufficientData(in *ClassifierInput, th Thresholds) []models.MarketingInsight {
	if in.Totals.Leads <= 0 {
		return nil
	}
	for _, m := range in.Current {
		if aboveFloor(m, th) {
			return nil
		}
	}
	return []models.MarketingInsight{{
		Kind:    models.InsightInfo,
		Title:   "Not enough data",
		Message: fmt.Sprintf("No group reaches the minimum volume of %d leads for analysis.", th.MinVolume),
		Values:  map[string]float64{"min_volume": float64(th.MinVolume), "total_leads": float64(in.Totals.Leads)},
	}}
}

func bestVolumeInsight(m models.CampaignMetrics, totals models.DashboardTotals) models.MarketingInsight {
	share := 0.0
	if totals.Leads > 0 {
		share = float64(m.Leads) / float64(totals.Leads)
	}
	return models.MarketingInsight{
		Kind:    models.InsightPositive,
		Subject: subject(m.Key),
		Title:   "Highest lead volume",
		Message: fmt.Sprintf("'%s' leads with %d leads (%s of total).", m.Key, m.Leads, pct(share)),
		Values:  map[string]float64{"leads": float64(m.Leads), "share": share},
	}
}

func bestConversionInsight(m models.CampaignMetrics, _ models.DashboardTotals) models.MarketingInsight {
	return models.MarketingInsight{
		Kind:           models.InsightPositive,
		Subject:        subject(m.Key),
		Title:          "Best conversion rate",
		Message:        fmt.Sprintf("'%s' converts %s of realized demos into sales (%d sales from %d demos).", m.Key, pct(m.ConversionRate), m.Sales, m.Realized),
		Recommendation: "More investment in this campaign is likely to raise sales.",
		Values:         map[string]float64{"conversion_rate": m.ConversionRate, "sales": float64(m.Sales), "realized": float64(m.Realized)},
	}
}

func bestEfficiencyInsight(m models.CampaignMetrics, _ models.DashboardTotals) models.MarketingInsight {
	return models.MarketingInsight{
		Kind:    models.InsightPositive,
		Subject: subject(m.Key),
		Title:   "Best funnel efficiency",
		Message: fmt.Sprintf("'%s' turns %s of its leads into sales.", m.Key, pct(m.FunnelEfficiency)),
		Values:  map[string]float64{"funnel_efficiency": m.FunnelEfficiency, "sales": float64(m.Sales), "leads": float64(m.Leads)},
	}
}

func highDisqualificationInsight(m models.CampaignMetrics, _ Thresholds) models.MarketingInsight {
	return models.MarketingInsight{
		Kind:           models.InsightWarning,
		Subject:        subject(m.Key),
		Title:          "High disqualification rate",
		Message:        fmt.Sprintf("'%s' disqualifies %s of realized demos (%d of %d).", m.Key, pct(m.DisqualificationRate), m.Disqualified, m.Realized),
		Recommendation: "Review the target audience and early lead qualification.",
		Values:         map[string]float64{"disqualification_rate": m.DisqualificationRate, "disqualified": float64(m.Disqualified), "realized": float64(m.Realized)},
	}
}

func severeDisqualificationInsight(m models.CampaignMetrics, _ Thresholds) models.MarketingInsight {
	return models.MarketingInsight{
		Kind:           models.InsightCritical,
		Subject:        subject(m.Key),
		Title:          "Severe disqualification rate",
		Message:        fmt.Sprintf("'%s' disqualifies %s of realized demos (%d of %d).", m.Key, pct(m.DisqualificationRate), m.Disqualified, m.Realized),
		Recommendation: "Pause or retarget the campaign until lead quality recovers.",
		Values:         map[string]float64{"disqualification_rate": m.DisqualificationRate, "disqualified": float64(m.Disqualified), "realized": float64(m.Realized)},
	}
}

func highNoShowInsight(m models.CampaignMetrics, _ Thresholds) models.MarketingInsight {
	return models.MarketingInsight{
		Kind:           models.InsightWarning,
		Subject:        subject(m.Key),
		Title:          "High no-show rate",
		Message:        fmt.Sprintf("'%s' has %s no-shows (%d of %d scheduled demos).", m.Key, pct(m.NoShowRate), m.NoShows, m.Scheduled),
		Recommendation: "Add reminders and attendance confirmation.",
		Values:         map[string]float64{"noshow_rate": m.NoShowRate, "noshows": float64(m.NoShows), "scheduled": float64(m.Scheduled)},
	}
}

func volumeWithoutConversionInsight(m models.CampaignMetrics, _ Thresholds) models.MarketingInsight {
	return models.MarketingInsight{
		Kind:           models.InsightOpportunity,
		Subject:        subject(m.Key),
		Title:          "Volume without conversion",
		Message:        fmt.Sprintf("'%s' brings %d leads but converts only %s of realized demos.", m.Key, m.Leads, pct(m.ConversionRate)),
		Recommendation: "Investigate the funnel stages between demo and sale for this group.",
		Values:         map[string]float64{"leads": float64(m.Leads), "conversion_rate": m.ConversionRate},
	}
}

func subject(key string) *string { return &key }

func pct(f float64) string { return fmt.Sprintf("%.1f%%", f*100) }
