package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"github.com/AngelCh415/funnel-insights/internal/models"
)

// schemaSQL lets a fresh database bootstrap itself.
//
//go:embed schema.sql
var schemaSQL string

const leadColumns = `id, created_at::text,
	COALESCE(utm_campaign, ''), COALESCE(utm_source, ''), COALESCE(utm_medium, ''),
	COALESCE(demo_scheduled_at::text, ''), COALESCE(demo_occurred_at::text, ''),
	COALESCE(noshow_at::text, ''), COALESCE(disqualified_at::text, ''), COALESCE(sale_at::text, ''),
	COALESCE(status, ''), COALESCE(disqualification_reason, '')`

// OpenPostgres opens a pgx-backed *sql.DB and fails fast if it is unreachable.
func OpenPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// PostgresLeads reads the CRM lead table. Leads whose status is in excluded are
// skipped (test pipelines, internal contacts).
type PostgresLeads struct {
	db       *sql.DB
	excluded []string
}

func NewPostgresLeads(db *sql.DB, excluded []string) *PostgresLeads {
	return &PostgresLeads{db: db, excluded: excluded}
}

// EnsureSchema applies schema.sql. Safe to run multiple times.
func (p *PostgresLeads) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, schemaSQL)
	return err
}

func (p *PostgresLeads) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Leads returns leads created in [from, to), ordered by creation then id.
func (p *PostgresLeads) Leads(ctx context.Context, from, to time.Time) ([]models.RawLead, error) {
	var (
		where []string
		args  []any
	)
	if !from.IsZero() {
		args = append(args, from)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !to.IsZero() {
		args = append(args, to)
		where = append(where, fmt.Sprintf("created_at < $%d", len(args)))
	}
	if len(p.excluded) > 0 {
		args = append(args, pq.Array(p.excluded))
		where = append(where, fmt.Sprintf("NOT (COALESCE(status, '') = ANY($%d))", len(args)))
	}
	query := `SELECT ` + leadColumns + ` FROM crm_leads`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at, id`

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query leads: %w", err)
	}
	defer rows.Close()

	out := []models.RawLead{}
	for rows.Next() {
		var l models.RawLead
		if err := rows.Scan(&l.ID, &l.CreatedAt, &l.UTMCampaign, &l.UTMSource, &l.UTMMedium,
			&l.DemoScheduledAt, &l.DemoOccurredAt, &l.NoShowAt, &l.DisqualifiedAt, &l.SaleAt,
			&l.Status, &l.DisqualificationReason); err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leads: %w", err)
	}
	return out, nil
}

// UpsertLeads writes leads in one transaction, replacing rows with the same id.
// Blank timestamps are stored as NULL.
func (p *PostgresLeads) UpsertLeads(ctx context.Context, leads []models.RawLead) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO crm_leads
		(id, created_at, utm_campaign, utm_source, utm_medium, demo_scheduled_at, demo_occurred_at,
		 noshow_at, disqualified_at, sale_at, status, disqualification_reason)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO UPDATE SET
		 created_at=EXCLUDED.created_at, utm_campaign=EXCLUDED.utm_campaign, utm_source=EXCLUDED.utm_source,
		 utm_medium=EXCLUDED.utm_medium, demo_scheduled_at=EXCLUDED.demo_scheduled_at,
		 demo_occurred_at=EXCLUDED.demo_occurred_at, noshow_at=EXCLUDED.noshow_at,
		 disqualified_at=EXCLUDED.disqualified_at, sale_at=EXCLUDED.sale_at, status=EXCLUDED.status,
		 disqualification_reason=EXCLUDED.disqualification_reason`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, l := range leads {
		if _, err := stmt.ExecContext(ctx, l.ID, l.CreatedAt, nullable(l.UTMCampaign), nullable(l.UTMSource),
			nullable(l.UTMMedium), nullable(l.DemoScheduledAt), nullable(l.DemoOccurredAt), nullable(l.NoShowAt),
			nullable(l.DisqualifiedAt), nullable(l.SaleAt), nullable(l.Status), nullable(l.DisqualificationReason)); err != nil {
			return fmt.Errorf("upsert lead %s: %w", l.ID, err)
		}
	}
	return tx.Commit()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
