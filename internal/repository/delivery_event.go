package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/customeros/mailgovernor/internal/models"
	"github.com/customeros/mailgovernor/internal/tracing"
)

type ApplyResult struct {
	Duplicate bool
	Event     *models.DeliveryEvent
	// Account is the state after the counters were applied; nil for duplicates.
	Account *models.SendingAccount
}

type DeliveryEventRepository interface {
	Apply(ctx context.Context, event *models.DeliveryEvent) (*ApplyResult, error)
	GetByMessageAndType(ctx context.Context, messageID string, eventType string) (*models.DeliveryEvent, error)
	ListByEmailID(ctx context.Context, emailID string) ([]models.DeliveryEvent, error)
}

type GormDeliveryEventRepository struct {
	db *gorm.DB
}

func NewDeliveryEventRepository(db *gorm.DB) DeliveryEventRepository {
	return &GormDeliveryEventRepository{db: db}
}

// Apply appends the event and materializes it into the account and email
// counters in one transaction. A second event with the same message id and
// type inserts nothing and leaves every counter untouched.
func (r *GormDeliveryEventRepository) Apply(ctx context.Context, event *models.DeliveryEvent) (*ApplyResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DeliveryEventRepository.Apply")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, event.AccountID)
	span.LogFields(
		tracingLog.String("messageId", event.MessageID),
		tracingLog.String("eventType", event.EventType.String()),
	)

	column := models.CounterColumn(event.EventType)
	if column == "" {
		return nil, errors.Errorf("unknown event type %q", event.EventType)
	}

	result := &ApplyResult{Event: event}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		insert := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_id"}, {Name: "event_type"}},
			DoNothing: true,
		}).Create(event)
		if insert.Error != nil {
			return insert.Error
		}
		if insert.RowsAffected == 0 {
			result.Duplicate = true
			var existing models.DeliveryEvent
			if err := tx.Where("message_id = ? AND event_type = ?", event.MessageID, event.EventType).
				First(&existing).Error; err != nil {
				return err
			}
			result.Event = &existing
			return nil
		}

		counter := tx.Model(&models.SendingAccount{}).
			Where("id = ?", event.AccountID).
			UpdateColumn(column, gorm.Expr(column+" + 1"))
		if counter.Error != nil {
			return counter.Error
		}
		if counter.RowsAffected == 0 {
			return ErrNotFound
		}

		if event.EmailID != nil {
			err := tx.Model(&models.SentEmail{}).
				Where("id = ?", *event.EmailID).
				UpdateColumns(map[string]interface{}{
					column:           gorm.Expr(column + " + 1"),
					"first_event_at": gorm.Expr("LEAST(COALESCE(first_event_at, ?), ?)", event.Timestamp, event.Timestamp),
					"last_event_at":  gorm.Expr("GREATEST(COALESCE(last_event_at, ?), ?)", event.Timestamp, event.Timestamp),
				}).Error
			if err != nil {
				return err
			}
		}

		var account models.SendingAccount
		if err := tx.Where("id = ?", event.AccountID).First(&account).Error; err != nil {
			return err
		}
		account.DeriveRates()
		err := tx.Model(&models.SendingAccount{}).
			Where("id = ?", account.ID).
			UpdateColumns(map[string]interface{}{
				"bounce_rate":    account.BounceRate,
				"complaint_rate": account.ComplaintRate,
				"open_rate":      account.OpenRate,
				"click_rate":     account.ClickRate,
				"reply_rate":     account.ReplyRate,
			}).Error
		if err != nil {
			return err
		}
		result.Account = &account

		event.Processed = true
		return tx.Model(&models.DeliveryEvent{}).
			Where("id = ?", event.ID).
			UpdateColumn("processed", true).Error
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			tracing.TraceErr(span, errors.Wrap(err, "db error"))
		}
		return nil, err
	}

	span.LogFields(tracingLog.Bool("result.duplicate", result.Duplicate))
	return result, nil
}

func (r *GormDeliveryEventRepository) GetByMessageAndType(ctx context.Context, messageID string, eventType string) (*models.DeliveryEvent, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DeliveryEventRepository.GetByMessageAndType")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.LogFields(tracingLog.String("messageId", messageID), tracingLog.String("eventType", eventType))

	var event models.DeliveryEvent
	err := r.db.WithContext(ctx).
		Where("message_id = ? AND event_type = ?", messageID, eventType).
		First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return &event, nil
}

// ListByEmailID returns the email's events, most recent first.
func (r *GormDeliveryEventRepository) ListByEmailID(ctx context.Context, emailID string) ([]models.DeliveryEvent, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DeliveryEventRepository.ListByEmailID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, emailID)

	var events []models.DeliveryEvent
	err := r.db.WithContext(ctx).
		Where("email_id = ?", emailID).
		Order("timestamp DESC, created_at DESC").
		Find(&events).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	span.LogFields(tracingLog.Int("result.count", len(events)))
	return events, nil
}
