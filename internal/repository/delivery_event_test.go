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
	"github.com/customeros/mailgovernor/internal/utils"
)

func newBounceEvent() *models.DeliveryEvent {
	return &models.DeliveryEvent{
		AccountID: "acc_1",
		EmailID:   utils.Ptr("email_1"),
		MessageID: "1700.abc@acme.io",
		EventType: enum.EventBounce,
		Timestamp: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
		Source:    enum.EventSourceWebhook,
		Metadata:  models.NewEventMetadata(enum.EventBounce, map[string]any{"bounce_type": "hard"}),
	}
}

func TestDeliveryEventRepository_Apply_NewEvent(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewDeliveryEventRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "delivery_events" .* ON CONFLICT \("message_id","event_type"\) DO NOTHING`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectExec(`UPDATE "sending_accounts" SET "bounce_count"=bounce_count \+ 1 WHERE id = \$\d`).
		WithArgs("acc_1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "sent_emails" SET .*"bounce_count"=bounce_count \+ 1`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT \* FROM "sending_accounts" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "sent_count", "bounce_count", "open_count"}).
			AddRow("acc_1", 100, 3, 40))
	mock.ExpectExec(`UPDATE "sending_accounts" SET "bounce_rate"=\$1,"click_rate"=\$2,"complaint_rate"=\$3,"open_rate"=\$4,"reply_rate"=\$5 WHERE id = \$6`).
		WithArgs(0.03, 0.0, 0.0, 0.4, 0.0, "acc_1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "delivery_events" SET "processed"=\$1 WHERE id = \$2`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := repo.Apply(context.Background(), newBounceEvent())
	require.NoError(t, err)
	assert.False(t, result.Duplicate)
	assert.True(t, result.Event.Processed)
	require.NotNil(t, result.Account)
	assert.InDelta(t, 0.03, *result.Account.BounceRate, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliveryEventRepository_Apply_DuplicateLeavesCountersAlone(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewDeliveryEventRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "delivery_events" .* ON CONFLICT .* DO NOTHING`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}))
	mock.ExpectQuery(`SELECT \* FROM "delivery_events" WHERE message_id = \$1 AND event_type = \$2`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "account_id", "message_id", "event_type", "processed"}).
			AddRow("evt_first", "acc_1", "1700.abc@acme.io", "bounce", true))
	mock.ExpectCommit()

	result, err := repo.Apply(context.Background(), newBounceEvent())
	require.NoError(t, err)
	assert.True(t, result.Duplicate)
	assert.Equal(t, "evt_first", result.Event.ID)
	assert.Nil(t, result.Account)
	// no UPDATE expectations were registered: any counter write would fail here
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliveryEventRepository_Apply_UnknownAccountRollsBack(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewDeliveryEventRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "delivery_events"`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectExec(`UPDATE "sending_accounts" SET "bounce_count"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.Apply(context.Background(), newBounceEvent())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliveryEventRepository_ListByEmailID_NewestFirst(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewDeliveryEventRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "delivery_events" WHERE email_id = \$1 ORDER BY timestamp DESC, created_at DESC`).
		WithArgs("email_1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_type"}).
			AddRow("evt_2", "open").
			AddRow("evt_1", "delivered"))

	events, err := repo.ListByEmailID(context.Background(), "email_1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, enum.EventOpen, events[0].EventType)
	assert.NoError(t, mock.ExpectationsWereMet())
}
