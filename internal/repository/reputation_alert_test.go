package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailgovernor/internal/enum"
	"github.com/customeros/mailgovernor/internal/models"
)

func alertRows(inserted bool, occurrences int, detected float64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "account_id", "alert_type", "severity", "detected_value", "threshold", "occurrence_count", "is_resolved", "inserted"}).
		AddRow("alert_1", "acc_1", "high_bounce_rate", "warning", detected, 0.02, occurrences, false, inserted)
}

func TestReputationAlertRepository_Upsert(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewReputationAlertRepository(db)

	mock.ExpectQuery(`INSERT INTO reputation_alerts .* ON CONFLICT \(account_id, alert_type\) WHERE is_resolved = false\s+DO UPDATE SET`).
		WillReturnRows(alertRows(true, 1, 0.035))
	mock.ExpectQuery(`INSERT INTO reputation_alerts`).
		WillReturnRows(alertRows(false, 2, 0.041))

	newAlert := func(v float64) *models.ReputationAlert {
		return &models.ReputationAlert{
			AccountID:     "acc_1",
			AlertType:     enum.AlertHighBounceRate,
			Severity:      enum.SeverityWarning,
			DetectedValue: v,
			Threshold:     0.02,
		}
	}

	first, created, err := repo.Upsert(context.Background(), newAlert(0.035))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "alert_1", first.ID)

	second, created, err := repo.Upsert(context.Background(), newAlert(0.041))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.OccurrenceCount)
	assert.Equal(t, 0.041, second.DetectedValue)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReputationAlertRepository_Resolve(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewReputationAlertRepository(db)
	at := time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE "reputation_alerts" SET .*"is_resolved"=.* WHERE id = \$\d+ AND is_resolved = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT \* FROM "reputation_alerts" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "is_resolved", "resolved_by"}).AddRow("alert_1", true, "ops@acme.io"))

	alert, err := repo.Resolve(context.Background(), "alert_1", "ops@acme.io", "warmed down", at)
	require.NoError(t, err)
	assert.True(t, alert.IsResolved)

	// second resolve finds nothing open
	mock.ExpectExec(`UPDATE "reputation_alerts" SET`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT \* FROM "reputation_alerts" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "is_resolved"}).AddRow("alert_1", true))

	_, err = repo.Resolve(context.Background(), "alert_1", "ops@acme.io", "", at)
	assert.ErrorIs(t, err, ErrConflict)

	// unknown alert
	mock.ExpectExec(`UPDATE "reputation_alerts" SET`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT \* FROM "reputation_alerts" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = repo.Resolve(context.Background(), "alert_x", "ops@acme.io", "", at)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
