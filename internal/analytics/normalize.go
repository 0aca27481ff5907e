package analytics

import (
	"log/slog"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/AngelCh415/funnel-insights/internal/models"
)

const (
	DropMissingID      = "missing_id"
	DropMissingCreated = "missing_created_at"
)

type normalizeOpts struct {
	log    *slog.Logger
	onDrop func(reason string)
}

type NormalizeOption func(*normalizeOpts)

// WithLogger reports dropped records at debug level.
func WithLogger(l *slog.Logger) NormalizeOption {
	return func(o *normalizeOpts) { o.log = l }
}

// WithDropHook is called once per dropped record with the drop reason.
func WithDropHook(fn func(reason string)) NormalizeOption {
	return func(o *normalizeOpts) { o.onDrop = fn }
}

// Normalize shapes raw rows into LeadRecords. Rows without an id or a parseable
// creation time are dropped; other unparseable timestamps become nil. dim is the
// grouping the caller is about to run; every UTM field is defaulted regardless.
func Normalize(raw []models.RawLead, dim models.Dimension, opts ...NormalizeOption) []models.LeadRecord {
	var o normalizeOpts
	for _, fn := range opts {
		fn(&o)
	}
	out := make([]models.LeadRecord, 0, len(raw))
	for i, r := range raw {
		id := strings.TrimSpace(r.ID)
		if id == "" {
			o.drop(DropMissingID, i, r.ID)
			continue
		}
		created := ParseTimestamp(r.CreatedAt)
		if created == nil {
			o.drop(DropMissingCreated, i, id)
			continue
		}
		out = append(out, models.LeadRecord{
			ID:                     id,
			CreatedAt:              *created,
			UTMCampaign:            utmOrSentinel(r.UTMCampaign),
			UTMSource:              utmOrSentinel(r.UTMSource),
			UTMMedium:              utmOrSentinel(r.UTMMedium),
			DemoScheduledAt:        ParseTimestamp(r.DemoScheduledAt),
			DemoOccurredAt:         ParseTimestamp(r.DemoOccurredAt),
			NoShowAt:               ParseTimestamp(r.NoShowAt),
			DisqualifiedAt:         ParseTimestamp(r.DisqualifiedAt),
			SaleAt:                 ParseTimestamp(r.SaleAt),
			Status:                 strings.TrimSpace(r.Status),
			DisqualificationReason: strings.TrimSpace(r.DisqualificationReason),
		})
	}
	if o.log != nil && len(out) != len(raw) {
		o.log.Debug("normalize", slog.String("dimension", string(dim)), slog.Int("in", len(raw)), slog.Int("kept", len(out)))
	}
	return out
}

func (o normalizeOpts) drop(reason string, idx int, id string) {
	if o.log != nil {
		o.log.Debug("lead dropped", slog.String("reason", reason), slog.Int("index", idx), slog.String("id", id))
	}
	if o.onDrop != nil {
		o.onDrop(reason)
	}
}

// ParseTimestamp parses the CRM's assorted timestamp formats in UTC. Blank,
// null-ish and malformed values yield nil.
func ParseTimestamp(s string) *time.Time {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "null", "none", "nat", "nan":
		return nil
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil || t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}

func utmOrSentinel(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return models.NotTracked
	}
	return s
}
