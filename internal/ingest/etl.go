package ingest

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/AngelCh415/funnel-insights/internal/analytics"
	"github.com/AngelCh415/funnel-insights/internal/config"
	"github.com/AngelCh415/funnel-insights/internal/models"
)

var ErrSinkNotConfigured = errors.New("sink not configured")

// LeadSink persists a batch of CRM leads, replacing earlier versions by id.
type LeadSink interface {
	UpsertLeads(ctx context.Context, leads []models.RawLead) error
}

// Seen remembers which lead versions were already loaded. Forget undoes a
// MarkSeen whose write did not make it to the sink.
type Seen interface {
	MarkSeen(key string) bool
	Forget(key string)
}

type ETL struct {
	c        HTTPClient
	sink     LeadSink
	seen     Seen
	log      *slog.Logger
	cfg      config.Config
	onIngest func(n int)
}

func NewETL(c HTTPClient, sink LeadSink, seen Seen, log *slog.Logger, cfg config.Config) *ETL {
	return &ETL{c: c, sink: sink, seen: seen, log: log, cfg: cfg}
}

// OnIngest registers a callback with the number of leads written per run.
func (e *ETL) OnIngest(fn func(n int)) { e.onIngest = fn }

// Run pulls the CRM export, keeps leads created on or after since (day
// granularity, UTC) and upserts the versions not loaded before.
func (e *ETL) Run(ctx context.Context, since *time.Time) (int, error) {
	var resp []models.RawLead
	if err := GetJSONWithRetry(ctx, e.c, e.cfg.CrmURL, &resp); err != nil {
		return 0, fmt.Errorf("fetch crm: %w", err)
	}

	batch := make([]models.RawLead, 0, len(resp))
	keys := make([]string, 0, len(resp))
	skipped := 0
	for _, r := range resp {
		r.ID = strings.TrimSpace(r.ID)
		created := analytics.ParseTimestamp(r.CreatedAt)
		if r.ID == "" || created == nil {
			skipped++
			continue
		}
		if since != nil && dayUTC(*created).Before(dayUTC(*since)) {
			continue
		}
		key := versionKey(r)
		if !e.seen.MarkSeen(key) {
			continue
		} // idempotencia por versión
		keys = append(keys, key)
		batch = append(batch, r)
	}

	if len(batch) > 0 {
		if err := e.sink.UpsertLeads(ctx, batch); err != nil {
			for _, k := range keys {
				e.seen.Forget(k)
			}
			return 0, fmt.Errorf("store leads: %w", err)
		}
	}
	if e.onIngest != nil {
		e.onIngest(len(batch))
	}
	e.log.Info("ingest complete",
		slog.Int("fetched", len(resp)),
		slog.Int("written", len(batch)),
		slog.Int("skipped", skipped))
	return len(batch), nil
}

// versionKey changes whenever a funnel stage or the status of a lead moves.
func versionKey(r models.RawLead) string {
	return strings.Join([]string{
		"crm", r.ID,
		r.DemoScheduledAt, r.DemoOccurredAt, r.NoShowAt, r.DisqualifiedAt, r.SaleAt,
		r.Status,
	}, "|")
}

type exportPayload struct {
	Dimension models.Dimension          `json:"dimension"`
	Totals    models.DashboardTotals    `json:"totals"`
	Campaigns []models.CampaignMetrics  `json:"campaigns"`
	Insights  []models.MarketingInsight `json:"insights"`
}

// ExportReport posts the per-group metrics and insights to the sink, signed
// with HMAC-SHA256 in X-Signature. It returns the number of groups sent.
func (e *ETL) ExportReport(ctx context.Context, rep analytics.Report) (int, error) {
	if e.cfg.SinkURL == "" || e.cfg.SinkSecret == "" {
		return 0, ErrSinkNotConfigured
	}
	if len(rep.Metrics) == 0 {
		return 0, nil
	}
	b, err := json.Marshal(exportPayload{
		Dimension: rep.Dimension,
		Totals:    rep.Totals,
		Campaigns: rep.Metrics,
		Insights:  rep.Insights,
	})
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.SinkURL, bytes.NewReader(b))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", Sign(e.cfg.SinkSecret, b))
	resp, err := e.c.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, &StatusError{Code: resp.StatusCode}
	}
	return len(rep.Metrics), nil
}

// Sign is the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func dayUTC(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
