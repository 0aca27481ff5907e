package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const NotTracked = "(not tracked)"

type Dimension string

const (
	DimCampaign Dimension = "campaign"
	DimSource   Dimension = "source"
	DimMedium   Dimension = "medium"
)

var Dimensions = []Dimension{DimCampaign, DimSource, DimMedium}

// ParseDimension accepts "campaign", "utm_campaign" and the like. Empty means campaign.
func ParseDimension(s string) (Dimension, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "utm_")
	switch Dimension(s) {
	case "":
		return DimCampaign, nil
	case DimCampaign, DimSource, DimMedium:
		return Dimension(s), nil
	}
	return "", fmt.Errorf("unknown dimension %q", s)
}

// RawLead is a lead row as handed over by the data-access layer. Timestamps are
// kept as text; they are parsed by the normalizer.
type RawLead struct {
	ID                     string `json:"id"`
	CreatedAt              string `json:"created_at"`
	UTMCampaign            string `json:"utm_campaign"`
	UTMSource              string `json:"utm_source"`
	UTMMedium              string `json:"utm_medium"`
	DemoScheduledAt        string `json:"demo_scheduled_at"`
	DemoOccurredAt         string `json:"demo_occurred_at"`
	NoShowAt               string `json:"noshow_at"`
	DisqualifiedAt         string `json:"disqualified_at"`
	SaleAt                 string `json:"sale_at"`
	Status                 string `json:"status,omitempty"`
	DisqualificationReason string `json:"disqualification_reason,omitempty"`
}

type LeadRecord struct {
	ID                     string
	CreatedAt              time.Time
	UTMCampaign            string
	UTMSource              string
	UTMMedium              string
	DemoScheduledAt        *time.Time
	DemoOccurredAt         *time.Time
	NoShowAt               *time.Time
	DisqualifiedAt         *time.Time
	SaleAt                 *time.Time
	Status                 string
	DisqualificationReason string
}

func (l LeadRecord) Key(d Dimension) string {
	switch d {
	case DimSource:
		return l.UTMSource
	case DimMedium:
		return l.UTMMedium
	}
	return l.UTMCampaign
}

// FunnelCounts are the raw stage counts of one group.
type FunnelCounts struct {
	Leads        int `json:"leads"`
	Scheduled    int `json:"scheduled"`
	Realized     int `json:"realized"`
	NoShows      int `json:"noshows"`
	Disqualified int `json:"disqualified"`
	Sales        int `json:"sales"`
}

type CampaignMetrics struct {
	Key string `json:"key"`
	FunnelCounts

	SchedulingRate       float64 `json:"scheduling_rate"`
	RealizationRate      float64 `json:"realization_rate"`
	DisqualificationRate float64 `json:"disqualification_rate"`
	ConversionRate       float64 `json:"conversion_rate"`
	NoShowRate           float64 `json:"noshow_rate"`
	UtilizationRate      float64 `json:"utilization_rate"`
	FunnelEfficiency     float64 `json:"funnel_efficiency"`
}

// NewCampaignMetrics derives all rates from c. A zero denominator yields 0.
func NewCampaignMetrics(key string, c FunnelCounts) CampaignMetrics {
	return CampaignMetrics{
		Key:                  key,
		FunnelCounts:         c,
		SchedulingRate:       rate(c.Scheduled, c.Leads),
		RealizationRate:      rate(c.Realized, c.Scheduled),
		DisqualificationRate: rate(c.Disqualified, c.Realized),
		ConversionRate:       rate(c.Sales, c.Realized),
		NoShowRate:           rate(c.NoShows, c.Scheduled),
		UtilizationRate:      rate(c.Realized-c.Disqualified, c.Realized),
		FunnelEfficiency:     rate(c.Sales, c.Leads),
	}
}

func rate(num, den int) float64 {
	if den <= 0 || num <= 0 {
		return 0
	}
	r := float64(num) / float64(den)
	if r > 1 {
		return 1
	}
	return r
}

type InsightKind string

const (
	InsightPositive    InsightKind = "positive"
	InsightWarning     InsightKind = "warning"
	InsightCritical    InsightKind = "critical"
	InsightOpportunity InsightKind = "opportunity"
	InsightInfo        InsightKind = "info"
)

type MarketingInsight struct {
	Kind           InsightKind        `json:"kind"`
	Rule           string             `json:"rule"`
	Subject        *string            `json:"subject"`
	Title          string             `json:"title"`
	Message        string             `json:"message"`
	Recommendation string             `json:"recommendation,omitempty"`
	Values         map[string]float64 `json:"values,omitempty"`
}

// PercentChange is a fractional change. New marks a change from a zero baseline,
// which has no numeric value.
type PercentChange struct {
	Value float64
	New   bool
}

func (p PercentChange) MarshalJSON() ([]byte, error) {
	if p.New {
		return []byte(`"new"`), nil
	}
	return strconv.AppendFloat(nil, p.Value, 'g', -1, 64), nil
}

func (p *PercentChange) UnmarshalJSON(b []byte) error {
	if string(b) == `"new"` {
		*p = PercentChange{New: true}
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("percent change: %w", err)
	}
	*p = PercentChange{Value: v}
	return nil
}

type PeriodComparison struct {
	Key        string          `json:"key"`
	Current    CampaignMetrics `json:"current"`
	Prior      CampaignMetrics `json:"prior"`
	IsNewGroup bool            `json:"is_new_group"`
	LeadDelta  int             `json:"lead_delta"`
	SaleDelta  int             `json:"sale_delta"`
	LeadChange PercentChange   `json:"lead_change"`
	SaleChange PercentChange   `json:"sale_change"`
}

type RankedCampaign struct {
	Position int     `json:"position"`
	Key      string  `json:"key"`
	Metric   string  `json:"metric"`
	Value    float64 `json:"value"`
	Leads    int     `json:"leads"`
	Realized int     `json:"realized"`
	Sales    int     `json:"sales"`
}

// DashboardTotals are counts across every group of an analysis.
type DashboardTotals = FunnelCounts

type CampaignHighlight struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
	Count int     `json:"count"`
}

type Summary struct {
	TotalLeads        int                `json:"total_leads"`
	ActiveCampaigns   int                `json:"active_campaigns"`
	ActiveSources     int                `json:"active_sources"`
	ActiveMedia       int                `json:"active_media"`
	TrackedLeads      int                `json:"tracked_leads"`
	TrackedShare      float64            `json:"tracked_share"`
	TotalSales        int                `json:"total_sales"`
	OverallConversion float64            `json:"overall_conversion"`
	BestCampaign      *CampaignHighlight `json:"best_campaign"`
	WorstCampaign     *CampaignHighlight `json:"worst_campaign"`
	MostSales         *CampaignHighlight `json:"most_sales"`
}

type DisqualificationReason struct {
	Key      string  `json:"key"`
	Reason   string  `json:"reason"`
	Count    int     `json:"count"`
	KeyTotal int     `json:"key_total"`
	Share    float64 `json:"share"`
}

type TrendPoint struct {
	Date  string `json:"date"`
	Key   string `json:"key"`
	Leads int    `json:"leads"`
}
