package metrics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/funnel-insights/internal/analytics"
	"github.com/AngelCh415/funnel-insights/internal/models"
	"github.com/AngelCh415/funnel-insights/internal/store"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func day(s string) time.Time {
	t, _ := time.Parse(dateLayout, s)
	return t
}

func TestParseQueryWindows(t *testing.T) {
	q, err := ParseQuery(url.Values{"from": {"2024-03-08"}, "to": {"2024-03-14"}, "compare": {"previous"}})
	require.NoError(t, err)
	assert.Equal(t, Window{From: day("2024-03-08"), To: day("2024-03-15")}, q.Current)
	require.NotNil(t, q.Prior)
	assert.Equal(t, Window{From: day("2024-03-01"), To: day("2024-03-08")}, *q.Prior)

	q, err = ParseQuery(url.Values{"prior_from": {"2024-01-01"}, "prior_to": {"2024-01-31"}})
	require.NoError(t, err)
	assert.Equal(t, Window{From: day("2024-01-01"), To: day("2024-02-01")}, *q.Prior)
	assert.True(t, q.Current.From.IsZero())

	q, err = ParseQuery(url.Values{})
	require.NoError(t, err)
	assert.Nil(t, q.Prior)
	assert.Equal(t, models.DimCampaign, q.Dimension)
	assert.Equal(t, analytics.RankConversionRate, q.Metric)
	assert.Equal(t, defaultLimit, q.Limit)
}

func TestParseQueryOverridesAndFilters(t *testing.T) {
	q, err := ParseQuery(url.Values{
		"dimension":      {"utm_source"},
		"metric":         {"sales"},
		"min_volume":     {"3"},
		"noshow_warning": {"0.5"},
		"keys":           {"Google, meta"},
		"top_n":          {"2"},

		"disqualification_rise": {"0.2"},
		"no_sales_min_realized": {"8"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.DimSource, q.Dimension)
	assert.Equal(t, analytics.RankSales, q.Metric)
	require.NotNil(t, q.Overrides.MinVolume)
	assert.Equal(t, 3, *q.Overrides.MinVolume)
	assert.Equal(t, 0.5, *q.Overrides.NoShowWarning)
	assert.Nil(t, q.Overrides.UntrackedShare)
	assert.Equal(t, 0.2, *q.Overrides.DisqualificationRise)
	assert.Equal(t, 8, *q.Overrides.NoSalesMinRealized)
	assert.Equal(t, map[string]struct{}{"google": {}, "meta": {}}, q.Keys)
	assert.Equal(t, 2, q.TrendTopN)
}

func TestParseQueryRejects(t *testing.T) {
	for name, v := range map[string]url.Values{
		"bad date":           {"from": {"03/01/2024"}},
		"inverted window":    {"from": {"2024-03-10"}, "to": {"2024-03-01"}},
		"previous unbound":   {"compare": {"previous"}, "from": {"2024-03-01"}},
		"unknown compare":    {"compare": {"yoy"}},
		"unknown dimension":  {"dimension": {"utm_term"}},
		"unknown metric":     {"metric": {"revenue"}},
		"bad min volume":     {"min_volume": {"lots"}},
		"bad fraction":       {"untracked_share": {"10%"}},
		"negative top_n":     {"top_n": {"-1"}},
		"bad no-sales floor": {"no_sales_min_realized": {"five"}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseQuery(v)
			assert.ErrorIs(t, err, ErrBadRequest)
		})
	}
}

type windowSource struct {
	mu      sync.Mutex
	windows []Window
	st      *store.MemoryStore
	err     error
}

func (w *windowSource) Leads(ctx context.Context, from, to time.Time) ([]models.RawLead, error) {
	w.mu.Lock()
	w.windows = append(w.windows, Window{from, to})
	w.mu.Unlock()
	if w.err != nil {
		return nil, w.err
	}
	return w.st.Leads(ctx, from, to)
}

func seeded(t *testing.T) *store.MemoryStore {
	t.Helper()
	st := store.NewMemoryStore()
	for _, l := range []models.RawLead{
		{ID: "p1", CreatedAt: "2024-03-02T10:00:00Z", UTMCampaign: "brand", SaleAt: "2024-03-03"},
		{ID: "p2", CreatedAt: "2024-03-03T10:00:00Z", UTMCampaign: "brand", SaleAt: "2024-03-04"},
		{ID: "c1", CreatedAt: "2024-03-09T10:00:00Z", UTMCampaign: "brand"},
		{ID: "c2", CreatedAt: "2024-03-10T10:00:00Z", UTMCampaign: "promo"},
	} {
		require.NoError(t, st.Upsert(l))
	}
	return st
}

func newService(t *testing.T, src store.LeadSource) *Service {
	t.Helper()
	eng, err := analytics.NewEngine(analytics.DefaultThresholds())
	require.NoError(t, err)
	s := NewService(src, eng, quiet)
	s.now = func() time.Time { return time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestServiceReportWithPreviousPeriod(t *testing.T) {
	src := &windowSource{st: seeded(t)}
	svc := newService(t, src)

	q, err := ParseQuery(url.Values{"from": {"2024-03-08"}, "to": {"2024-03-14"}, "compare": {"previous"}, "min_volume": {"1"}})
	require.NoError(t, err)
	rep, err := svc.Report(context.Background(), q)
	require.NoError(t, err)

	assert.NotEmpty(t, rep.ID)
	assert.Equal(t, time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC), rep.GeneratedAt)
	assert.Len(t, src.windows, 2)
	assert.True(t, rep.HasPrior)
	assert.Equal(t, 2, rep.Totals.Leads)
	assert.Equal(t, 1, rep.Thresholds.MinVolume)

	drops := 0
	for _, ins := range rep.Insights {
		if ins.Rule == analytics.RuleSalesDrop {
			drops++
			assert.Equal(t, "brand", *ins.Subject)
		}
	}
	assert.Equal(t, 1, drops)
}

func TestServiceReportInvalidOverride(t *testing.T) {
	svc := newService(t, &windowSource{st: store.NewMemoryStore()})
	q, err := ParseQuery(url.Values{"disqualification_critical": {"0.1"}})
	require.NoError(t, err)

	_, err = svc.Report(context.Background(), q)
	assert.ErrorIs(t, err, analytics.ErrInvalidThresholds)
}

func TestServiceReportSourceError(t *testing.T) {
	svc := newService(t, &windowSource{st: store.NewMemoryStore(), err: errors.New("db down")})
	_, err := svc.Report(context.Background(), Query{Metric: analytics.RankLeads})
	assert.ErrorIs(t, err, ErrSource)
}

func TestPaginate(t *testing.T) {
	rows := []int{1, 2, 3, 4, 5}
	assert.Equal(t, []int{3, 4}, Paginate(rows, 2, 2))
	assert.Equal(t, []int{1, 2, 3, 4, 5}, Paginate(rows, 0, -3))
	assert.Empty(t, Paginate(rows, 10, 99))
	assert.Len(t, Paginate(make([]int, 2000), 5000, 0), maxLimit)
}

func TestFilterKeys(t *testing.T) {
	metrics := []models.CampaignMetrics{{Key: "Brand"}, {Key: "promo"}}
	assert.Equal(t, []models.CampaignMetrics{{Key: "Brand"}}, FilterKeys(metrics, csvSet("brand")))
	assert.Equal(t, metrics, FilterKeys(metrics, nil))
}
