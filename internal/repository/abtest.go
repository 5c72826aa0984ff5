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
)

type ABTestRepository interface {
	Create(ctx context.Context, test *models.ABTest) error
	GetByID(ctx context.Context, id string) (*models.ABTest, error)
	List(ctx context.Context, status *enum.ABTestStatus) ([]models.ABTest, error)
	ListRunningEndedBefore(ctx context.Context, before time.Time) ([]models.ABTest, error)
	Transition(ctx context.Context, id string, from []enum.ABTestStatus, to enum.ABTestStatus, fields map[string]interface{}) error
	GetVariant(ctx context.Context, variantID string) (*models.ABTestVariant, error)
	IncrementVariantCounter(ctx context.Context, variantID string, column string) error
	CompleteWithWinner(ctx context.Context, testID, variantID string, override bool, at time.Time) error
}

type GormABTestRepository struct {
	db *gorm.DB
}

func NewABTestRepository(db *gorm.DB) ABTestRepository {
	return &GormABTestRepository{db: db}
}

func (r *GormABTestRepository) Create(ctx context.Context, test *models.ABTest) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ABTestRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.LogFields(tracingLog.String("name", test.Name), tracingLog.Int("variants", len(test.Variants)))

	err := r.db.WithContext(ctx).Create(test).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	tracing.TagEntity(span, test.ID)
	return nil
}

func (r *GormABTestRepository) GetByID(ctx context.Context, id string) (*models.ABTest, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ABTestRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	var test models.ABTest
	err := r.db.WithContext(ctx).
		Preload("Variants", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("id = ?", id).
		First(&test).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return &test, nil
}

func (r *GormABTestRepository) List(ctx context.Context, status *enum.ABTestStatus) ([]models.ABTest, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ABTestRepository.List")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	query := r.db.WithContext(ctx).Preload("Variants", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	})
	if status != nil {
		query = query.Where("status = ?", *status)
	}

	var tests []models.ABTest
	err := query.Order("created_at DESC").Find(&tests).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return tests, nil
}

func (r *GormABTestRepository) ListRunningEndedBefore(ctx context.Context, before time.Time) ([]models.ABTest, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ABTestRepository.ListRunningEndedBefore")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var tests []models.ABTest
	err := r.db.WithContext(ctx).
		Preload("Variants").
		Where("status = ? AND ends_at IS NOT NULL AND ends_at < ?", enum.ABTestRunning, before).
		Find(&tests).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return tests, nil
}

// Transition moves the test to status `to` only if it is currently in one of `from`.
func (r *GormABTestRepository) Transition(ctx context.Context, id string, from []enum.ABTestStatus, to enum.ABTestStatus, fields map[string]interface{}) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ABTestRepository.Transition")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)
	span.LogFields(tracingLog.String("to", to.String()))

	updates := map[string]interface{}{"status": to}
	for k, v := range fields {
		updates[k] = v
	}

	result := r.db.WithContext(ctx).
		Model(&models.ABTest{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		tracing.TraceErr(span, errors.Wrap(result.Error, "db error"))
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.missingOrConflict(ctx, id)
	}
	return nil
}

func (r *GormABTestRepository) GetVariant(ctx context.Context, variantID string) (*models.ABTestVariant, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ABTestRepository.GetVariant")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, variantID)

	var variant models.ABTestVariant
	err := r.db.WithContext(ctx).Where("id = ?", variantID).First(&variant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return &variant, nil
}

func (r *GormABTestRepository) IncrementVariantCounter(ctx context.Context, variantID string, column string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ABTestRepository.IncrementVariantCounter")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, variantID)
	span.LogFields(tracingLog.String("column", column))

	result := r.db.WithContext(ctx).
		Model(&models.ABTestVariant{}).
		Where("id = ?", variantID).
		UpdateColumn(column, gorm.Expr(column+" + 1"))
	if result.Error != nil {
		tracing.TraceErr(span, errors.Wrap(result.Error, "db error"))
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CompleteWithWinner marks variantID as the test's only winner and completes the
// test. Automatic decisions require a running test so a winner is decided once;
// an override may also replace the winner of a completed test.
func (r *GormABTestRepository) CompleteWithWinner(ctx context.Context, testID, variantID string, override bool, at time.Time) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ABTestRepository.CompleteWithWinner")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, testID)
	span.LogFields(tracingLog.String("variantId", variantID), tracingLog.Bool("override", override))

	allowed := []enum.ABTestStatus{enum.ABTestRunning}
	if override {
		allowed = append(allowed, enum.ABTestCompleted, enum.ABTestDraft)
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		test := tx.Model(&models.ABTest{}).
			Where("id = ? AND status IN ?", testID, allowed).
			Updates(map[string]interface{}{
				"status":            enum.ABTestCompleted,
				"winner_variant_id": variantID,
				"winner_override":   override,
				"completed_at":      at,
			})
		if test.Error != nil {
			return test.Error
		}
		if test.RowsAffected == 0 {
			return ErrConflict
		}

		if err := tx.Model(&models.ABTestVariant{}).
			Where("test_id = ? AND is_winner = ?", testID, true).
			UpdateColumn("is_winner", false).Error; err != nil {
			return err
		}

		winner := tx.Model(&models.ABTestVariant{}).
			Where("id = ? AND test_id = ?", variantID, testID).
			UpdateColumn("is_winner", true)
		if winner.Error != nil {
			return winner.Error
		}
		if winner.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return r.missingOrConflict(ctx, testID)
		}
		if !errors.Is(err, ErrNotFound) {
			tracing.TraceErr(span, errors.Wrap(err, "db error"))
		}
		return err
	}
	return nil
}

func (r *GormABTestRepository) missingOrConflict(ctx context.Context, id string) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.ABTest{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrConflict
}
