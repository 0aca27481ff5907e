// Package analytics turns CRM lead snapshots into per-group funnel metrics,
// classified insights, period comparisons and rankings.
//
// Every function in this package is a pure computation over its arguments. An
// Engine only carries validated thresholds and optional instrumentation, so one
// Engine may serve concurrent analyses.
package analytics

import (
	"log/slog"
	"time"

	"github.com/AngelCh415/funnel-insights/internal/models"
)

const DefaultTrendTopN = 5

// Recorder receives instrumentation events from an Engine.
type Recorder interface {
	LeadsNormalized(n int)
	LeadDropped(reason string)
	InsightEmitted(kind models.InsightKind)
	AnalysisObserved(dim models.Dimension, d time.Duration)
}

type Engine struct {
	th  Thresholds
	log *slog.Logger
	rec Recorder
}

type EngineOption func(*Engine)

func WithEngineLogger(l *slog.Logger) EngineOption { return func(e *Engine) { e.log = l } }

func WithRecorder(r Recorder) EngineOption { return func(e *Engine) { e.rec = r } }

// NewEngine rejects invalid thresholds up front.
func NewEngine(th Thresholds, opts ...EngineOption) (*Engine, error) {
	if err := th.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{th: th}
	for _, fn := range opts {
		fn(e)
	}
	return e, nil
}

func (e *Engine) Thresholds() Thresholds { return e.th }

// WithThresholds returns an Engine sharing e's instrumentation but using th.
func (e *Engine) WithThresholds(th Thresholds) (*Engine, error) {
	if err := th.Validate(); err != nil {
		return nil, err
	}
	cp := *e
	cp.th = th
	return &cp, nil
}

// Request is one analysis. A nil Prior means no prior period was selected; a
// non-nil empty Prior compares against an empty period.
type Request struct {
	Current   []models.RawLead
	Prior     []models.RawLead
	Dimension models.Dimension
	Metric    RankMetric
	TrendTopN int
}

type Report struct {
	Dimension           models.Dimension                `json:"dimension"`
	Metric              RankMetric                      `json:"metric"`
	Thresholds          Thresholds                      `json:"thresholds"`
	Totals              models.DashboardTotals          `json:"totals"`
	Metrics             []models.CampaignMetrics        `json:"metrics"`
	Comparisons         []models.PeriodComparison       `json:"comparisons"`
	Insights            []models.MarketingInsight       `json:"insights"`
	Ranking             []models.RankedCampaign         `json:"ranking"`
	Summary             models.Summary                  `json:"summary"`
	Disqualifications   []models.DisqualificationReason `json:"disqualifications"`
	Trend               []models.TrendPoint             `json:"trend"`
	AvailableDimensions []models.Dimension              `json:"available_dimensions"`
	HasPrior            bool                            `json:"has_prior"`
}

// Analyze runs normalize, aggregate, compare, classify and rank in that order.
func (e *Engine) Analyze(req Request) (Report, error) {
	start := time.Now()
	dim, err := models.ParseDimension(string(req.Dimension))
	if err != nil {
		return Report{}, err
	}
	metric, err := ParseRankMetric(string(req.Metric))
	if err != nil {
		return Report{}, err
	}
	topN := req.TrendTopN
	if topN == 0 {
		topN = DefaultTrendTopN
	}

	current := e.normalize(req.Current, dim)
	metrics := Aggregate(current, dim)
	totals := Totals(metrics)

	comparisons := []models.PeriodComparison{}
	if req.Prior != nil {
		prior := Aggregate(e.normalize(req.Prior, dim), dim)
		comparisons = Compare(metrics, prior)
	}

	insights := Classify(ClassifierInput{Current: metrics, Comparisons: comparisons, Totals: totals}, e.th)
	ranking := Rank(metrics, metric, e.th.MinVolume)

	rep := Report{
		Dimension:           dim,
		Metric:              metric,
		Thresholds:          e.th,
		Totals:              totals,
		Metrics:             metrics,
		Comparisons:         comparisons,
		Insights:            insights,
		Ranking:             ranking,
		Summary:             Summarize(current, e.th.MinVolume),
		Disqualifications:   DisqualificationBreakdown(current, dim),
		Trend:               Trend(current, dim, topN),
		AvailableDimensions: AvailableDimensions(current),
		HasPrior:            req.Prior != nil,
	}

	if e.rec != nil {
		for _, ins := range insights {
			e.rec.InsightEmitted(ins.Kind)
		}
		e.rec.AnalysisObserved(dim, time.Since(start))
	}
	if e.log != nil {
		e.log.Debug("analysis complete",
			slog.String("dimension", string(dim)),
			slog.Int("leads", totals.Leads),
			slog.Int("groups", len(metrics)),
			slog.Int("insights", len(insights)),
			slog.Bool("has_prior", rep.HasPrior),
		)
	}
	return rep, nil
}

func (e *Engine) normalize(raw []models.RawLead, dim models.Dimension) []models.LeadRecord {
	opts := []NormalizeOption{WithLogger(e.log)}
	if e.rec != nil {
		opts = append(opts, WithDropHook(e.rec.LeadDropped))
	}
	recs := Normalize(raw, dim, opts...)
	if e.rec != nil {
		e.rec.LeadsNormalized(len(recs))
	}
	return recs
}
