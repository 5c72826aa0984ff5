package repository

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/customeros/mailgovernor/internal/enum"
	"github.com/customeros/mailgovernor/internal/models"
	"github.com/customeros/mailgovernor/internal/tracing"
	"github.com/customeros/mailgovernor/internal/utils"
)

type SentEmailRepository interface {
	Create(ctx context.Context, email *models.SentEmail) error
	GetByID(ctx context.Context, id string) (*models.SentEmail, error)
	GetByMessageID(ctx context.Context, messageID string) (*models.SentEmail, error)
	UpdateStatus(ctx context.Context, id string, status enum.SentEmailStatus, errMsg string, sentAt *time.Time) error
}

type GormSentEmailRepository struct {
	db *gorm.DB
}

func NewSentEmailRepository(db *gorm.DB) SentEmailRepository {
	return &GormSentEmailRepository{db: db}
}

func (r *GormSentEmailRepository) Create(ctx context.Context, email *models.SentEmail) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SentEmailRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, email.AccountID)

	email.MessageID = utils.NormalizeMessageID(email.MessageID)
	err := r.db.WithContext(ctx).Create(email).Error
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}

func (r *GormSentEmailRepository) GetByID(ctx context.Context, id string) (*models.SentEmail, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SentEmailRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	var email models.SentEmail
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&email).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return &email, nil
}

func (r *GormSentEmailRepository) GetByMessageID(ctx context.Context, messageID string) (*models.SentEmail, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SentEmailRepository.GetByMessageID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.LogFields(tracingLog.String("messageId", messageID))

	var email models.SentEmail
	err := r.db.WithContext(ctx).
		Where("message_id = ?", utils.NormalizeMessageID(messageID)).
		First(&email).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return &email, nil
}

func (r *GormSentEmailRepository) UpdateStatus(ctx context.Context, id string, status enum.SentEmailStatus, errMsg string, sentAt *time.Time) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SentEmailRepository.UpdateStatus")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)
	span.LogFields(tracingLog.String("status", status.String()))

	result := r.db.WithContext(ctx).
		Model(&models.SentEmail{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":  status,
			"error":   errMsg,
			"sent_at": sentAt,
		})
	if result.Error != nil {
		tracing.TraceErr(span, errors.Wrap(result.Error, "db error"))
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
