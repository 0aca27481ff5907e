package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/funnel-insights/internal/models"
)

var leadCols = []string{
	"id", "created_at", "utm_campaign", "utm_source", "utm_medium",
	"demo_scheduled_at", "demo_occurred_at", "noshow_at", "disqualified_at", "sale_at",
	"status", "disqualification_reason",
}

func TestPostgresLeadsWindowQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	from, to := day("2024-03-01"), day("2024-04-01")
	rows := sqlmock.NewRows(leadCols).
		AddRow("L1", "2024-03-02 10:00:00+00", "brand", "google", "cpc", "2024-03-03 09:00:00+00", "", "", "", "", "open", "").
		AddRow("L2", "2024-03-05 11:00:00+00", "", "", "", "", "", "", "2024-03-06 00:00:00+00", "", "lost", "no budget")
	mock.ExpectQuery(`SELECT .* FROM crm_leads WHERE created_at >= \$1 AND created_at < \$2 AND NOT \(COALESCE\(status, ''\) = ANY\(\$3\)\) ORDER BY created_at, id`).
		WithArgs(from, to, sqlmock.AnyArg()).
		WillReturnRows(rows)

	pg := NewPostgresLeads(db, []string{"test"})
	got, err := pg.Leads(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, models.RawLead{
		ID: "L1", CreatedAt: "2024-03-02 10:00:00+00", UTMCampaign: "brand", UTMSource: "google", UTMMedium: "cpc",
		DemoScheduledAt: "2024-03-03 09:00:00+00", Status: "open",
	}, got[0])
	assert.Equal(t, "no budget", got[1].DisqualificationReason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLeadsOpenWindow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM crm_leads ORDER BY created_at, id`).
		WithoutArgs().
		WillReturnRows(sqlmock.NewRows(leadCols))

	got, err := NewPostgresLeads(db, nil).Leads(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLeadsQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	boom := errors.New("connection reset")
	mock.ExpectQuery(`SELECT .* FROM crm_leads`).WillReturnError(boom)

	_, err = NewPostgresLeads(db, nil).Leads(context.Background(), day("2024-03-01"), day("2024-03-02"))
	assert.ErrorIs(t, err, boom)
}

func TestPostgresUpsertLeads(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`INSERT INTO crm_leads`)
	prep.ExpectExec().
		WithArgs("L1", "2024-03-02T10:00:00Z", "brand", nil, nil, nil, nil, nil, nil, "2024-03-09T00:00:00Z", nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().
		WithArgs("L2", "2024-03-03T10:00:00Z", nil, nil, nil, nil, nil, nil, nil, nil, "lost", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = NewPostgresLeads(db, nil).UpsertLeads(context.Background(), []models.RawLead{
		{ID: "L1", CreatedAt: "2024-03-02T10:00:00Z", UTMCampaign: "brand", SaleAt: "2024-03-09T00:00:00Z"},
		{ID: "L2", CreatedAt: "2024-03-03T10:00:00Z", Status: "lost"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpsertRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectPrepare(`INSERT INTO crm_leads`).ExpectExec().WillReturnError(errors.New("constraint"))
	mock.ExpectRollback()

	err = NewPostgresLeads(db, nil).UpsertLeads(context.Background(), []models.RawLead{{ID: "L1", CreatedAt: "2024-03-02"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert lead L1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS crm_leads`).WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, NewPostgresLeads(db, nil).EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
