package analytics_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/funnel-insights/internal/analytics"
	"github.com/AngelCh415/funnel-insights/internal/models"
)

func classify(current []models.CampaignMetrics, comparisons []models.PeriodComparison) []models.MarketingInsight {
	return analytics.Classify(analytics.ClassifierInput{Current: current, Comparisons: comparisons}, analytics.DefaultThresholds())
}

func TestRuleOrder(t *testing.T) {
	want := []string{
		analytics.RuleBestVolume,
		analytics.RuleBestConversion,
		analytics.RuleBestEfficiency,
		analytics.RuleHighDisqualification,
		analytics.RuleHighNoShow,
		analytics.RuleUntrackedVolume,
		analytics.RuleSevereDisqualification,
		analytics.RuleSalesDrop,
		analytics.RuleVolumeWithoutConversion,
		analytics.RuleDisqualificationRise,
		analytics.RuleNoSales,
		analytics.RuleInsufficientData,
	}
	if diff := cmp.Diff(want, analytics.RuleNames()); diff != "" {
		t.Fatalf("rule order (-want +got):\n%s", diff)
	}
}

func TestClassifyDisqualificationWarningAndCritical(t *testing.T) {
	a := metricsFor("A", funnel{leads: 100, scheduled: 40, realized: 30, disqualified: 20, sales: 2})
	got := classify([]models.CampaignMetrics{a}, nil)

	assert.Equal(t, []string{
		analytics.RuleBestVolume,
		analytics.RuleBestConversion,
		analytics.RuleBestEfficiency,
		analytics.RuleHighDisqualification,
		analytics.RuleSevereDisqualification,
	}, rulesOf(got))

	warn := filterRule(got, analytics.RuleHighDisqualification)[0]
	crit := filterRule(got, analytics.RuleSevereDisqualification)[0]
	assert.Equal(t, models.InsightWarning, warn.Kind)
	assert.Equal(t, models.InsightCritical, crit.Kind)
	require.NotNil(t, crit.Subject)
	assert.Equal(t, "A", *crit.Subject)
	assert.InDelta(t, 0.667, crit.Values["disqualification_rate"], 1e-3)
	assert.Contains(t, crit.Message, "66.7%")
}

func TestClassifySalesDrop(t *testing.T) {
	cur := metricsFor("B", funnel{leads: 200, scheduled: 120, realized: 100, sales: 30})
	prev := metricsFor("B", funnel{leads: 200, scheduled: 120, realized: 100, sales: 50})
	comps := analytics.Compare([]models.CampaignMetrics{cur}, []models.CampaignMetrics{prev})

	drops := filterRule(classify([]models.CampaignMetrics{cur}, comps), analytics.RuleSalesDrop)
	require.Len(t, drops, 1)
	assert.Equal(t, models.InsightCritical, drops[0].Kind)
	assert.Equal(t, "B", *drops[0].Subject)
	assert.InDelta(t, -0.4, drops[0].Values["sale_change"], 1e-9)
	assert.Contains(t, drops[0].Message, "40.0%")
}

func TestClassifySalesDropSkipsNewAndSmallDrops(t *testing.T) {
	current := []models.CampaignMetrics{
		metricsFor("fresh", funnel{leads: 20, realized: 10, sales: 3}),
		metricsFor("steady", funnel{leads: 20, realized: 10, sales: 9}),
	}
	prior := []models.CampaignMetrics{
		metricsFor("steady", funnel{leads: 20, realized: 10, sales: 10}),
		metricsFor("gone", funnel{leads: 20, realized: 10, sales: 4}),
		metricsFor("never", funnel{leads: 20}),
	}
	drops := filterRule(classify(current, analytics.Compare(current, prior)), analytics.RuleSalesDrop)
	require.Len(t, drops, 1)
	assert.Equal(t, "gone", *drops[0].Subject)
	assert.InDelta(t, -1.0, drops[0].Values["sale_change"], 1e-9)
}

func TestClassifyUntrackedOnly(t *testing.T) {
	raw := campaignLeads("", funnel{leads: 20, scheduled: 10, realized: 10, sales: 2})
	for i := range raw {
		raw[i].UTMCampaign = ""
	}
	metrics := analytics.Aggregate(analytics.Normalize(raw, models.DimCampaign), models.DimCampaign)
	require.Len(t, metrics, 1)
	require.Equal(t, models.NotTracked, metrics[0].Key)

	got := classify(metrics, nil)
	var warnings []models.MarketingInsight
	for _, ins := range got {
		if ins.Kind == models.InsightWarning || ins.Kind == models.InsightCritical {
			warnings = append(warnings, ins)
		}
	}
	require.Len(t, warnings, 1)
	assert.Equal(t, analytics.RuleUntrackedVolume, warnings[0].Rule)
	assert.Nil(t, warnings[0].Subject)
	assert.InDelta(t, 1.0, warnings[0].Values["share"], 1e-9)
}

func TestClassifyUntrackedBelowShare(t *testing.T) {
	metrics := []models.CampaignMetrics{
		metricsFor("paid", funnel{leads: 95}),
		metricsFor(models.NotTracked, funnel{leads: 5}),
	}
	assert.Empty(t, filterRule(classify(metrics, nil), analytics.RuleUntrackedVolume))
}

func TestClassifyBestOfTieBreaks(t *testing.T) {
	metrics := []models.CampaignMetrics{
		metricsFor("zeta", funnel{leads: 40, realized: 10, sales: 5}),
		metricsFor("alpha", funnel{leads: 20, realized: 10, sales: 5}),
		metricsFor("beta", funnel{leads: 20, realized: 10, sales: 5}),
		metricsFor("tiny", funnel{leads: 3, realized: 1, sales: 1}),
	}
	got := classify(metrics, nil)

	conv := filterRule(got, analytics.RuleBestConversion)
	require.Len(t, conv, 1)
	assert.Equal(t, "zeta", *conv[0].Subject, "higher lead count breaks conversion ties; tiny is under the floor")

	eff := filterRule(got, analytics.RuleBestEfficiency)
	require.Len(t, eff, 1)
	assert.Equal(t, "alpha", *eff[0].Subject, "equal efficiency and leads falls back to the smaller key")

	vol := filterRule(got, analytics.RuleBestVolume)
	require.Len(t, vol, 1)
	assert.Equal(t, "zeta", *vol[0].Subject)
}

func TestClassifyBestConversionNeedsSales(t *testing.T) {
	metrics := []models.CampaignMetrics{metricsFor("a", funnel{leads: 50, realized: 20})}
	got := classify(metrics, nil)
	assert.Empty(t, filterRule(got, analytics.RuleBestConversion))
	assert.Empty(t, filterRule(got, analytics.RuleBestEfficiency))
	assert.Len(t, filterRule(got, analytics.RuleBestVolume), 1)
}

func TestClassifyNoShowAndLowConversion(t *testing.T) {
	metrics := []models.CampaignMetrics{
		metricsFor("b", funnel{leads: 50, scheduled: 20, realized: 10, noshows: 10, sales: 0}),
		metricsFor("a", funnel{leads: 60, scheduled: 10, realized: 9, noshows: 1, sales: 3}),
		metricsFor("small", funnel{leads: 5, scheduled: 4, realized: 1, noshows: 3}),
	}
	got := classify(metrics, nil)

	noshow := filterRule(got, analytics.RuleHighNoShow)
	require.Len(t, noshow, 2)
	assert.Equal(t, "b", *noshow[0].Subject, "per-group insights come in key order")
	assert.Equal(t, "small", *noshow[1].Subject)

	low := filterRule(got, analytics.RuleVolumeWithoutConversion)
	require.Len(t, low, 1)
	assert.Equal(t, "b", *low[0].Subject)
	assert.Equal(t, models.InsightOpportunity, low[0].Kind)
}

func TestClassifyThresholdsAreArguments(t *testing.T) {
	metrics := []models.CampaignMetrics{metricsFor("a", funnel{leads: 50, realized: 20, disqualified: 7, sales: 1})}

	lenient := analytics.DefaultThresholds()
	strict := analytics.DefaultThresholds()
	strict.DisqualificationWarning = 0.30

	assert.Empty(t, filterRule(analytics.Classify(analytics.ClassifierInput{Current: metrics}, lenient), analytics.RuleHighDisqualification))
	assert.Len(t, filterRule(analytics.Classify(analytics.ClassifierInput{Current: metrics}, strict), analytics.RuleHighDisqualification), 1)
}

func TestClassifyEmpty(t *testing.T) {
	got := classify(nil, nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestClassifyDisqualificationRise(t *testing.T) {
	current := []models.CampaignMetrics{
		metricsFor("climb", funnel{leads: 40, realized: 20, disqualified: 8, sales: 2}),
		metricsFor("low", funnel{leads: 40, realized: 20, disqualified: 5, sales: 2}),
		metricsFor("flat", funnel{leads: 40, realized: 20, disqualified: 8, sales: 2}),
		metricsFor("fresh", funnel{leads: 40, realized: 20, disqualified: 10, sales: 2}),
	}
	prior := []models.CampaignMetrics{
		metricsFor("climb", funnel{leads: 40, realized: 20, disqualified: 2, sales: 2}),
		metricsFor("low", funnel{leads: 40, realized: 20}),
		metricsFor("flat", funnel{leads: 40, realized: 20, disqualified: 6, sales: 2}),
	}
	got := filterRule(classify(current, analytics.Compare(current, prior)), analytics.RuleDisqualificationRise)

	require.Len(t, got, 1, "low stays under 30%, flat rose 10pp, fresh has no baseline")
	assert.Equal(t, "climb", *got[0].Subject)
	assert.Equal(t, models.InsightWarning, got[0].Kind)
	assert.InDelta(t, 0.30, got[0].Values["rise"], 1e-9)
	assert.Contains(t, got[0].Message, "30.0pp")

	assert.Empty(t, filterRule(classify(current, nil), analytics.RuleDisqualificationRise))
}

func TestClassifyNoSales(t *testing.T) {
	metrics := []models.CampaignMetrics{
		metricsFor("e", funnel{leads: 20, realized: 5}),
		metricsFor("d", funnel{leads: 20, realized: 9}),
		metricsFor("c", funnel{leads: 20, realized: 6}),
		metricsFor("b", funnel{leads: 20, realized: 4}),
		metricsFor("a", funnel{leads: 20, realized: 7}),
		metricsFor("seller", funnel{leads: 20, realized: 9, sales: 1}),
	}
	got := filterRule(classify(metrics, nil), analytics.RuleNoSales)

	require.Len(t, got, 1)
	assert.Nil(t, got[0].Subject)
	assert.Equal(t, models.InsightWarning, got[0].Kind)
	assert.Equal(t, 4.0, got[0].Values["groups"])
	assert.Contains(t, got[0].Message, "4 group(s)")
	assert.Contains(t, got[0].Message, "a, c, d.")

	assert.Empty(t, filterRule(classify(metrics[3:4], nil), analytics.RuleNoSales), "4 demos are under the minimum")
}

func TestClassifyInsufficientData(t *testing.T) {
	small := []models.CampaignMetrics{
		metricsFor("a", funnel{leads: 4}),
		metricsFor("b", funnel{leads: 9}),
	}
	got := filterRule(classify(small, nil), analytics.RuleInsufficientData)
	require.Len(t, got, 1)
	assert.Equal(t, models.InsightInfo, got[0].Kind)
	assert.Nil(t, got[0].Subject)
	assert.Equal(t, 13.0, got[0].Values["total_leads"])

	enough := append(small, metricsFor("c", funnel{leads: 10}))
	assert.Empty(t, filterRule(classify(enough, nil), analytics.RuleInsufficientData))
}
