package content

import (
	"context"
	"strings"
	"sync"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"golang.org/x/sync/singleflight"

	"github.com/customeros/mailgovernor/dto"
	"github.com/customeros/mailgovernor/interfaces"
	governor_errors "github.com/customeros/mailgovernor/internal/errors"
	"github.com/customeros/mailgovernor/internal/logger"
	"github.com/customeros/mailgovernor/internal/metrics"
	"github.com/customeros/mailgovernor/internal/models"
	"github.com/customeros/mailgovernor/internal/repository"
	"github.com/customeros/mailgovernor/internal/tracing"
)

const (
	maxWordScore    = 10
	defaultCategory = "general"
)

type contentService struct {
	log     logger.Logger
	repos   *repository.Repositories
	metrics *metrics.Metrics

	mu       sync.RWMutex
	snapshot []models.SpamWord
	loaded   bool
	// bumped on every write so a load racing a write is not cached
	version uint64
	loads   singleflight.Group
}

func NewContentService(log logger.Logger, repos *repository.Repositories, m *metrics.Metrics) interfaces.ContentService {
	return &contentService{log: log, repos: repos, metrics: m}
}

func (s *contentService) Check(ctx context.Context, input dto.ContentInput) (*dto.ContentAnalysisResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ContentService.Check")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if strings.TrimSpace(input.Subject) == "" && strings.TrimSpace(input.Body) == "" && strings.TrimSpace(input.HTML) == "" {
		return nil, governor_errors.NewValidationError("subject", "subject or body is required")
	}

	words, err := s.dictionary(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, governor_errors.NewPersistenceError("load spam words", err)
	}

	result := Analyze(input, words)
	s.metrics.ObserveContentCheck(result.DeliverabilityRating.String())
	span.LogFields(
		tracingLog.Int("result.spamRisk", result.SpamRisk),
		tracingLog.String("result.rating", result.DeliverabilityRating.String()),
	)
	return &result, nil
}

// dictionary returns the cached active words, loading them once on a miss.
func (s *contentService) dictionary(ctx context.Context) ([]models.SpamWord, error) {
	s.mu.RLock()
	if s.loaded {
		words := s.snapshot
		s.mu.RUnlock()
		return words, nil
	}
	version := s.version
	s.mu.RUnlock()

	v, err, _ := s.loads.Do("dictionary", func() (interface{}, error) {
		words, err := s.repos.SpamWordRepository.List(ctx, true)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		if s.version == version {
			s.snapshot, s.loaded = words, true
		}
		s.mu.Unlock()
		return words, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.SpamWord), nil
}

func (s *contentService) invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot, s.loaded = nil, false
	s.version++
}

func (s *contentService) ListSpamWords(ctx context.Context) ([]models.SpamWord, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ContentService.ListSpamWords")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	words, err := s.repos.SpamWordRepository.List(ctx, false)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, governor_errors.NewPersistenceError("list spam words", err)
	}
	return words, nil
}

func (s *contentService) CreateSpamWord(ctx context.Context, word models.SpamWord) (*models.SpamWord, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ContentService.CreateSpamWord")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	word.Word = strings.Join(tokenize(word.Word), " ")
	if word.Word == "" {
		return nil, governor_errors.NewValidationError("word", "word must contain letters or digits")
	}
	if word.Score <= 0 || word.Score > maxWordScore {
		return nil, governor_errors.NewValidationError("score", "score must be between 1 and 10")
	}
	word.Category = strings.ToLower(strings.TrimSpace(word.Category))
	if word.Category == "" {
		word.Category = defaultCategory
	}
	word.ID = ""
	word.Active = true

	if err := s.repos.SpamWordRepository.Create(ctx, &word); err != nil {
		tracing.TraceErr(span, err)
		return nil, repository.ServiceError("create spam word", "spam word", word.Word, err)
	}
	s.invalidate()
	tracing.TagEntity(span, word.ID)
	return &word, nil
}

func (s *contentService) UpdateSpamWord(ctx context.Context, id string, update repository.SpamWordUpdate) (*models.SpamWord, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ContentService.UpdateSpamWord")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, id)

	if update.Category == nil && update.Score == nil && update.Active == nil {
		return nil, governor_errors.NewValidationError("", "nothing to update")
	}
	if update.Score != nil && (*update.Score <= 0 || *update.Score > maxWordScore) {
		return nil, governor_errors.NewValidationError("score", "score must be between 1 and 10")
	}
	if update.Category != nil {
		category := strings.ToLower(strings.TrimSpace(*update.Category))
		if category == "" {
			return nil, governor_errors.NewValidationError("category", "category must not be empty")
		}
		update.Category = &category
	}

	word, err := s.repos.SpamWordRepository.Update(ctx, id, update)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, repository.ServiceError("update spam word", "spam word", id, err)
	}
	s.invalidate()
	return word, nil
}

// SeedDefaults installs the default dictionary, skipping words that exist.
func (s *contentService) SeedDefaults(ctx context.Context) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ContentService.SeedDefaults")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	n, err := s.repos.SpamWordRepository.Seed(ctx, DefaultSpamWords())
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, governor_errors.NewPersistenceError("seed spam words", err)
	}
	s.invalidate()
	s.log.Infof("seeded %d spam words", n)
	return n, nil
}
