package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/AngelCh415/funnel-insights/internal/analytics"
	"github.com/AngelCh415/funnel-insights/internal/models"
	"github.com/AngelCh415/funnel-insights/internal/store"
)

var (
	ErrBadRequest = errors.New("bad request")
	ErrSource     = errors.New("lead source unavailable")
)

const (
	dateLayout   = "2006-01-02"
	defaultLimit = 100
	maxLimit     = 1000
)

// Window is a created_at range [From, To). Zero bounds are open.
type Window struct {
	From time.Time
	To   time.Time
}

type Query struct {
	Current   Window
	Prior     *Window
	Dimension models.Dimension
	Metric    analytics.RankMetric
	Overrides analytics.ThresholdOverrides
	TrendTopN int
	Keys      map[string]struct{}
	Limit     int
	Offset    int
}

// Report is an analysis as served by the dashboard.
type Report struct {
	ID          string     `json:"id"`
	GeneratedAt time.Time  `json:"generated_at"`
	From        *time.Time `json:"from,omitempty"`
	To          *time.Time `json:"to,omitempty"`
	PriorFrom   *time.Time `json:"prior_from,omitempty"`
	PriorTo     *time.Time `json:"prior_to,omitempty"`
	analytics.Report
}

type Service struct {
	src store.LeadSource
	eng *analytics.Engine
	log *slog.Logger
	now func() time.Time
}

func NewService(src store.LeadSource, eng *analytics.Engine, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{src: src, eng: eng, log: log, now: time.Now}
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func csvSet(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, p := range strings.Split(s, ",") {
		p = norm(p)
		if p != "" {
			out[p] = struct{}{}
		}
	}
	return out
}

// ParseQuery reads dashboard query parameters. "to" and "prior_to" are
// inclusive days. compare=previous selects the window of equal length that ends
// where the current one starts.
func ParseQuery(v url.Values) (Query, error) {
	var q Query
	var err error

	if q.Current.From, err = parseDay(v, "from", false); err != nil {
		return q, err
	}
	if q.Current.To, err = parseDay(v, "to", true); err != nil {
		return q, err
	}
	if !q.Current.From.IsZero() && !q.Current.To.IsZero() && !q.Current.From.Before(q.Current.To) {
		return q, fmt.Errorf("%w: from must not be after to", ErrBadRequest)
	}

	switch norm(v.Get("compare")) {
	case "", "none":
		pf, err := parseDay(v, "prior_from", false)
		if err != nil {
			return q, err
		}
		pt, err := parseDay(v, "prior_to", true)
		if err != nil {
			return q, err
		}
		if !pf.IsZero() || !pt.IsZero() {
			q.Prior = &Window{From: pf, To: pt}
		}
	case "previous":
		if q.Current.From.IsZero() || q.Current.To.IsZero() {
			return q, fmt.Errorf("%w: compare=previous needs from and to", ErrBadRequest)
		}
		span := q.Current.To.Sub(q.Current.From)
		q.Prior = &Window{From: q.Current.From.Add(-span), To: q.Current.From}
	default:
		return q, fmt.Errorf("%w: unknown compare mode %q", ErrBadRequest, v.Get("compare"))
	}

	if q.Dimension, err = models.ParseDimension(v.Get("dimension")); err != nil {
		return q, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if q.Metric, err = analytics.ParseRankMetric(v.Get("metric")); err != nil {
		return q, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if q.Overrides, err = parseOverrides(v); err != nil {
		return q, err
	}
	if s := v.Get("top_n"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return q, fmt.Errorf("%w: top_n must be a non-negative integer", ErrBadRequest)
		}
		q.TrendTopN = n
	}
	q.Keys = csvSet(v.Get("keys"))
	q.Limit = atoiDef(v.Get("limit"), defaultLimit)
	q.Offset = atoiDef(v.Get("offset"), 0)
	return q, nil
}

func parseDay(v url.Values, name string, inclusiveEnd bool) (time.Time, error) {
	s := strings.TrimSpace(v.Get(name))
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM-DD", ErrBadRequest, name)
	}
	if inclusiveEnd {
		t = t.AddDate(0, 0, 1)
	}
	return t, nil
}

var floatOverrides = []struct {
	param string
	dst   func(*analytics.ThresholdOverrides) **float64
}{
	{"disqualification_warning", func(o *analytics.ThresholdOverrides) **float64 { return &o.DisqualificationWarning }},
	{"disqualification_critical", func(o *analytics.ThresholdOverrides) **float64 { return &o.DisqualificationCritical }},
	{"noshow_warning", func(o *analytics.ThresholdOverrides) **float64 { return &o.NoShowWarning }},
	{"sales_drop_critical", func(o *analytics.ThresholdOverrides) **float64 { return &o.SalesDropCritical }},
	{"untracked_share", func(o *analytics.ThresholdOverrides) **float64 { return &o.UntrackedShare }},
	{"low_conversion_ceiling", func(o *analytics.ThresholdOverrides) **float64 { return &o.LowConversionCeiling }},
	{"disqualification_rise", func(o *analytics.ThresholdOverrides) **float64 { return &o.DisqualificationRise }},
	{"disqualification_rise_floor", func(o *analytics.ThresholdOverrides) **float64 { return &o.DisqualificationRiseFloor }},
}

func parseOverrides(v url.Values) (analytics.ThresholdOverrides, error) {
	var o analytics.ThresholdOverrides
	if s := v.Get("min_volume"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return o, fmt.Errorf("%w: min_volume must be an integer", ErrBadRequest)
		}
		o.MinVolume = &n
	}
	if s := v.Get("no_sales_min_realized"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return o, fmt.Errorf("%w: no_sales_min_realized must be an integer", ErrBadRequest)
		}
		o.NoSalesMinRealized = &n
	}
	for _, f := range floatOverrides {
		s := v.Get(f.param)
		if s == "" {
			continue
		}
		x, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return o, fmt.Errorf("%w: %s must be a number", ErrBadRequest, f.param)
		}
		*f.dst(&o) = &x
	}
	return o, nil
}

// Report fetches the current and prior windows in parallel and analyzes them.
// Invalid threshold overrides surface as analytics.ErrInvalidThresholds.
func (s *Service) Report(ctx context.Context, q Query) (Report, error) {
	eng, err := s.eng.WithThresholds(q.Overrides.Apply(s.eng.Thresholds()))
	if err != nil {
		return Report{}, err
	}

	var current, prior []models.RawLead
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		current, err = s.src.Leads(gctx, q.Current.From, q.Current.To)
		return err
	})
	if q.Prior != nil {
		g.Go(func() error {
			leads, err := s.src.Leads(gctx, q.Prior.From, q.Prior.To)
			if leads == nil {
				leads = []models.RawLead{}
			}
			prior = leads
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrSource, err)
	}

	rep, err := eng.Analyze(analytics.Request{
		Current:   current,
		Prior:     prior,
		Dimension: q.Dimension,
		Metric:    q.Metric,
		TrendTopN: q.TrendTopN,
	})
	if err != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	out := Report{
		ID:          uuid.NewString(),
		GeneratedAt: s.now().UTC(),
		From:        bound(q.Current.From),
		To:          bound(q.Current.To),
		Report:      rep,
	}
	if q.Prior != nil {
		out.PriorFrom = bound(q.Prior.From)
		out.PriorTo = bound(q.Prior.To)
	}
	s.log.Info("report built",
		slog.String("report_id", out.ID),
		slog.String("dimension", string(rep.Dimension)),
		slog.Int("leads", rep.Totals.Leads),
		slog.Int("insights", len(rep.Insights)))
	return out, nil
}

func bound(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// FilterKeys keeps the groups named in keys (case-insensitive). An empty set
// keeps everything.
func FilterKeys(metrics []models.CampaignMetrics, keys map[string]struct{}) []models.CampaignMetrics {
	if len(keys) == 0 {
		return metrics
	}
	out := make([]models.CampaignMetrics, 0, len(metrics))
	for _, m := range metrics {
		if _, ok := keys[norm(m.Key)]; ok {
			out = append(out, m)
		}
	}
	return out
}

// Paginate slices rows after clamping limit to [1, 1000] and offset to the row count.
func Paginate[T any](rows []T, limit, offset int) []T {
	limit, offset = clampLimitOffset(limit, offset, len(rows))
	return paginate(rows, limit, offset)
}

func atoiDef(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func clampLimitOffset(limit, offset, n int) (int, int) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	if offset > n {
		offset = n
	}
	return limit, offset
}

func paginate[T any](rows []T, limit, offset int) []T {
	end := offset + limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end]
}
