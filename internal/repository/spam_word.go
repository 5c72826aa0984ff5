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

type SpamWordUpdate struct {
	Category *string
	Score    *int
	Active   *bool
}

type SpamWordRepository interface {
	List(ctx context.Context, activeOnly bool) ([]models.SpamWord, error)
	GetByID(ctx context.Context, id string) (*models.SpamWord, error)
	Create(ctx context.Context, word *models.SpamWord) error
	Update(ctx context.Context, id string, update SpamWordUpdate) (*models.SpamWord, error)
	Seed(ctx context.Context, words []models.SpamWord) (int64, error)
}

type GormSpamWordRepository struct {
	db *gorm.DB
}

func NewSpamWordRepository(db *gorm.DB) SpamWordRepository {
	return &GormSpamWordRepository{db: db}
}

func (r *GormSpamWordRepository) List(ctx context.Context, activeOnly bool) ([]models.SpamWord, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SpamWordRepository.List")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.LogFields(tracingLog.Bool("activeOnly", activeOnly))

	query := r.db.WithContext(ctx)
	if activeOnly {
		query = query.Where("active = ?", true)
	}

	var words []models.SpamWord
	err := query.Order("word ASC").Find(&words).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return words, nil
}

func (r *GormSpamWordRepository) GetByID(ctx context.Context, id string) (*models.SpamWord, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SpamWordRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	var word models.SpamWord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&word).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return &word, nil
}

func (r *GormSpamWordRepository) Create(ctx context.Context, word *models.SpamWord) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SpamWordRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.LogFields(tracingLog.String("word", word.Word))

	err := r.db.WithContext(ctx).Create(word).Error
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}

func (r *GormSpamWordRepository) Update(ctx context.Context, id string, update SpamWordUpdate) (*models.SpamWord, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SpamWordRepository.Update")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	fields := map[string]interface{}{}
	if update.Category != nil {
		fields["category"] = *update.Category
	}
	if update.Score != nil {
		fields["score"] = *update.Score
	}
	if update.Active != nil {
		fields["active"] = *update.Active
	}

	if len(fields) > 0 {
		result := r.db.WithContext(ctx).Model(&models.SpamWord{}).Where("id = ?", id).Updates(fields)
		if result.Error != nil {
			tracing.TraceErr(span, errors.Wrap(result.Error, "db error"))
			return nil, result.Error
		}
		if result.RowsAffected == 0 {
			return nil, ErrNotFound
		}
	}
	return r.GetByID(ctx, id)
}

// Seed inserts the words that are not already present and returns how many were added.
func (r *GormSpamWordRepository) Seed(ctx context.Context, words []models.SpamWord) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SpamWordRepository.Seed")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.LogFields(tracingLog.Int("request.count", len(words)))

	if len(words) == 0 {
		return 0, nil
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "word"}}, DoNothing: true}).
		Create(&words)
	if result.Error != nil {
		tracing.TraceErr(span, errors.Wrap(result.Error, "db error"))
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
