package abtest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"github.com/customeros/mailgovernor/config"
	"github.com/customeros/mailgovernor/dto"
	"github.com/customeros/mailgovernor/interfaces"
	"github.com/customeros/mailgovernor/internal/enum"
	governor_errors "github.com/customeros/mailgovernor/internal/errors"
	"github.com/customeros/mailgovernor/internal/logger"
	"github.com/customeros/mailgovernor/internal/models"
	"github.com/customeros/mailgovernor/internal/repository"
	"github.com/customeros/mailgovernor/internal/tracing"
	"github.com/customeros/mailgovernor/internal/utils"
)

const (
	VariableSubjectLine = "subject_line"
	VariableFromName    = "from_name"
	VariableSendTime    = "send_time"
	VariableContent     = "content"
)

var knownVariables = []string{VariableSubjectLine, VariableFromName, VariableSendTime, VariableContent}

type abTestService struct {
	log       logger.Logger
	repos     *repository.Repositories
	rotation  interfaces.RotationService
	publisher interfaces.EventPublisher
	cfg       *config.GovernorConfig
	clock     func() time.Time
}

func NewABTestService(log logger.Logger, repos *repository.Repositories, rotation interfaces.RotationService, publisher interfaces.EventPublisher, cfg *config.GovernorConfig) interfaces.ABTestService {
	return &abTestService{
		log:       log,
		repos:     repos,
		rotation:  rotation,
		publisher: publisher,
		cfg:       cfg,
		clock:     utils.Now,
	}
}

func (s *abTestService) Create(ctx context.Context, input dto.CreateTestInput) (*models.ABTest, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ABTestService.Create")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	test, err := s.build(input)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	if err := s.repos.ABTestRepository.Create(ctx, test); err != nil {
		tracing.TraceErr(span, err)
		return nil, repository.ServiceError("create ab test", "ab test", test.Name, err)
	}
	tracing.TagEntity(span, test.ID)
	return test, nil
}

func (s *abTestService) build(input dto.CreateTestInput) (*models.ABTest, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, governor_errors.NewValidationError("name", "is required")
	}
	if len(input.Variants) < 2 {
		return nil, governor_errors.NewValidationError("variants", "at least two variants are required")
	}
	if input.SampleSize < 1 {
		return nil, governor_errors.NewValidationError("sampleSize", "must be at least 1")
	}
	metric := input.WinnerMetric
	if metric == "" {
		metric = enum.WinnerMetricOpen
	}
	if !metric.IsValid() {
		return nil, governor_errors.NewValidationError("winnerMetric", "must be open, click or reply")
	}
	distribution := input.Distribution
	if distribution == "" {
		distribution = enum.DistributionEqual
	}
	if distribution != enum.DistributionEqual && distribution != enum.DistributionWeighted {
		return nil, governor_errors.NewValidationError("distribution", "must be equal or weighted")
	}
	if input.Window < 0 || input.WindowHours < 0 {
		return nil, governor_errors.NewValidationError("window", "must not be negative")
	}
	window := input.Window
	if window == 0 {
		window = time.Duration(input.WindowHours) * time.Hour
	}
	if window == 0 {
		window = s.cfg.ABTestDefaultWindow
	}

	variants := make([]models.ABTestVariant, len(input.Variants))
	total := 0
	for i, v := range input.Variants {
		if distribution == enum.DistributionWeighted && v.Weight <= 0 {
			return nil, governor_errors.NewValidationError(fmt.Sprintf("variants[%d].weight", i), "must be positive")
		}
		total += v.Weight
		variantName := strings.TrimSpace(v.Name)
		if variantName == "" {
			variantName = string(rune('A' + i%26))
		}
		variants[i] = models.ABTestVariant{
			Name:        variantName,
			Position:    i,
			SubjectLine: v.SubjectLine,
			FromName:    v.FromName,
			SendTime:    v.SendTime,
			Content:     v.Content,
			Weight:      v.Weight,
		}
	}
	if distribution == enum.DistributionWeighted && total != 100 {
		return nil, governor_errors.NewValidationError("variants", fmt.Sprintf("weights must sum to 100, got %d", total))
	}
	if distribution == enum.DistributionEqual {
		share := 100 / len(variants)
		for i := range variants {
			variants[i].Weight = share
		}
		variants[0].Weight += 100 - share*len(variants)
	}

	testVariables := input.TestVariables
	for _, v := range testVariables {
		if !utils.IsStringInSlice(v, knownVariables) {
			return nil, governor_errors.NewValidationError("testVariables", fmt.Sprintf("unknown variable %q", v))
		}
	}
	if len(testVariables) == 0 {
		testVariables = differingVariables(variants)
	}

	return &models.ABTest{
		Name:          name,
		TestVariables: testVariables,
		SampleSize:    input.SampleSize,
		WinnerMetric:  metric,
		Distribution:  distribution,
		Status:        enum.ABTestDraft,
		WindowSeconds: int64(window / time.Second),
		Variants:      variants,
	}, nil
}

// differingVariables lists the fields that are not identical across variants.
func differingVariables(variants []models.ABTestVariant) []string {
	var out []string
	first := variants[0]
	differs := func(f func(v models.ABTestVariant) string) bool {
		for _, v := range variants[1:] {
			if f(v) != f(first) {
				return true
			}
		}
		return false
	}
	if differs(func(v models.ABTestVariant) string { return v.SubjectLine }) {
		out = append(out, VariableSubjectLine)
	}
	if differs(func(v models.ABTestVariant) string { return v.FromName }) {
		out = append(out, VariableFromName)
	}
	if differs(func(v models.ABTestVariant) string {
		if v.SendTime == nil {
			return ""
		}
		return v.SendTime.UTC().Format(time.RFC3339)
	}) {
		out = append(out, VariableSendTime)
	}
	if differs(func(v models.ABTestVariant) string { return v.Content }) {
		out = append(out, VariableContent)
	}
	return out
}

func (s *abTestService) Start(ctx context.Context, testID string) (*models.ABTest, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ABTestService.Start")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, testID)

	test, err := s.Get(ctx, testID)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	window := time.Duration(test.WindowSeconds) * time.Second
	if window <= 0 {
		window = s.cfg.ABTestDefaultWindow
	}
	err = s.repos.ABTestRepository.Transition(ctx, testID,
		[]enum.ABTestStatus{enum.ABTestDraft}, enum.ABTestRunning,
		map[string]interface{}{"started_at": now, "ends_at": now.Add(window)})
	if err != nil {
		tracing.TraceErr(span, err)
		if errors.Is(err, repository.ErrConflict) {
			return nil, governor_errors.NewConflictError("ab test %s is %s, only draft tests can start", testID, test.Status)
		}
		return nil, repository.ServiceError("start ab test", "ab test", testID, err)
	}
	return s.Get(ctx, testID)
}

func (s *abTestService) Get(ctx context.Context, testID string) (*models.ABTest, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ABTestService.Get")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, testID)

	test, err := s.repos.ABTestRepository.GetByID(ctx, testID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, repository.ServiceError("get ab test", "ab test", testID, err)
	}
	return test, nil
}

func (s *abTestService) List(ctx context.Context, status *enum.ABTestStatus) ([]models.ABTest, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ABTestService.List")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	tests, err := s.repos.ABTestRepository.List(ctx, status)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, governor_errors.NewPersistenceError("list ab tests", err)
	}
	return tests, nil
}

func (s *abTestService) running(ctx context.Context, testID string) (*models.ABTest, error) {
	test, err := s.Get(ctx, testID)
	if err != nil {
		return nil, err
	}
	if test.Status != enum.ABTestRunning {
		return nil, governor_errors.NewConflictError("ab test %s is %s, not running", testID, test.Status)
	}
	return test, nil
}

func (s *abTestService) AssignVariant(ctx context.Context, testID, recipient string) (*models.ABTestVariant, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ABTestService.AssignVariant")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, testID)

	if strings.TrimSpace(recipient) == "" {
		return nil, governor_errors.NewValidationError("recipient", "is required")
	}
	test, err := s.running(ctx, testID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	variant := Assign(test, recipient)
	span.LogFields(tracingLog.String("variantId", variant.ID))
	return variant, nil
}

// PrepareSend assigns the recipient a variant, reserves an account for it and
// registers the outgoing email so its delivery events count for the variant.
func (s *abTestService) PrepareSend(ctx context.Context, testID, recipient string, exclude []string) (*dto.SendPlan, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ABTestService.PrepareSend")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, testID)

	variant, err := s.AssignVariant(ctx, testID, recipient)
	if err != nil {
		return nil, err
	}

	reserved, err := s.rotation.Select(ctx, dto.SelectRequest{ExcludeIDs: exclude})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	account := reserved.Account

	email := &models.SentEmail{
		AccountID: account.ID,
		MessageID: utils.NormalizeMessageID(utils.GenerateMessageID(account.Domain, testID+":"+recipient)),
		Recipient: utils.NormalizeEmail(recipient),
		Subject:   variant.SubjectLine,
		ABTestID:  &testID,
		VariantID: &variant.ID,
		Status:    enum.SentEmailQueued,
	}
	if err := s.repos.SentEmailRepository.Create(ctx, email); err != nil {
		tracing.TraceErr(span, err)
		return nil, repository.ServiceError("register ab test email", "email", email.MessageID, err)
	}
	if err := s.repos.ABTestRepository.IncrementVariantCounter(ctx, variant.ID, "sent_count"); err != nil {
		tracing.TraceErr(span, err)
		return nil, repository.ServiceError("count ab test send", "variant", variant.ID, err)
	}
	variant.SentCount++

	return &dto.SendPlan{TestID: testID, Variant: variant, Account: account, Email: email}, nil
}

func (s *abTestService) RecordVariantEvent(ctx context.Context, variantID string, eventType enum.DeliveryEventType) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ABTestService.RecordVariantEvent")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, variantID)
	span.LogFields(tracingLog.String("eventType", eventType.String()))

	column := counterColumn(eventType)
	if column == "" {
		return nil
	}
	if err := s.repos.ABTestRepository.IncrementVariantCounter(ctx, variantID, column); err != nil {
		tracing.TraceErr(span, err)
		return repository.ServiceError("record variant event", "variant", variantID, err)
	}
	return nil
}

func (s *abTestService) Evaluate(ctx context.Context, testID string) (*dto.EvaluateResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ABTestService.Evaluate")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, testID)

	test, err := s.Get(ctx, testID)
	if err != nil {
		return nil, err
	}
	result, err := s.decide(ctx, test)
	if err != nil {
		tracing.TraceErr(span, err)
	}
	return result, err
}

// decide completes a running test whose variants all reached the sample size.
// Losing the completion race to another caller is not an error; the stored
// winner is reported instead.
func (s *abTestService) decide(ctx context.Context, test *models.ABTest) (*dto.EvaluateResult, error) {
	result := &dto.EvaluateResult{Rates: Rates(test)}
	if test.Status != enum.ABTestRunning {
		if test.WinnerVariantID != nil {
			result.Decided = true
			result.WinnerVariantID = *test.WinnerVariantID
		}
		return result, nil
	}

	winner, ok := Winner(test)
	if !ok {
		return result, nil
	}

	err := s.repos.ABTestRepository.CompleteWithWinner(ctx, test.ID, winner.ID, false, s.clock())
	if errors.Is(err, repository.ErrConflict) {
		current, getErr := s.Get(ctx, test.ID)
		if getErr != nil {
			return nil, getErr
		}
		if current.WinnerVariantID != nil {
			result.Decided = true
			result.WinnerVariantID = *current.WinnerVariantID
		}
		return result, nil
	}
	if err != nil {
		return nil, repository.ServiceError("complete ab test", "ab test", test.ID, err)
	}

	result.Decided = true
	result.WinnerVariantID = winner.ID
	s.publishCompleted(ctx, test, winner.ID, false)
	s.log.Infof("ab test %s completed, winner %s (%s rate %.4f)", test.ID, winner.ID, test.WinnerMetric, winner.Rate(test.WinnerMetric))
	return result, nil
}

func (s *abTestService) OverrideWinner(ctx context.Context, testID, variantID string) (*models.ABTest, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ABTestService.OverrideWinner")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, testID)
	span.LogFields(tracingLog.String("variantId", variantID), tracingLog.String("operator", utils.GetOperatorFromContext(ctx)))

	if strings.TrimSpace(variantID) == "" {
		return nil, governor_errors.NewValidationError("variantId", "is required")
	}

	test, err := s.Get(ctx, testID)
	if err != nil {
		return nil, err
	}

	err = s.repos.ABTestRepository.CompleteWithWinner(ctx, testID, variantID, true, s.clock())
	if err != nil {
		tracing.TraceErr(span, err)
		switch {
		case errors.Is(err, repository.ErrConflict):
			return nil, governor_errors.NewConflictError("ab test %s is %s, a winner cannot be set", testID, test.Status)
		case errors.Is(err, repository.ErrNotFound):
			return nil, governor_errors.NewNotFoundError("variant", variantID)
		}
		return nil, governor_errors.NewPersistenceError("override ab test winner", err)
	}

	s.publishCompleted(ctx, test, variantID, true)
	return s.Get(ctx, testID)
}

func (s *abTestService) EvaluateRunning(ctx context.Context) (int, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ABTestService.EvaluateRunning")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	status := enum.ABTestRunning
	tests, err := s.List(ctx, &status)
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, err
	}

	decided := 0
	for i := range tests {
		result, err := s.decide(ctx, &tests[i])
		if err != nil {
			s.log.Errorf("failed to evaluate ab test %s: %v", tests[i].ID, err)
			continue
		}
		if result.Decided {
			decided++
		}
	}
	span.LogFields(tracingLog.Int("decided", decided))
	return decided, nil
}

// ExpireOverdue fails running tests whose window ended before every variant
// reached the sample size. Overdue tests that did reach it are decided instead.
func (s *abTestService) ExpireOverdue(ctx context.Context) (int, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ABTestService.ExpireOverdue")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	now := s.clock()
	tests, err := s.repos.ABTestRepository.ListRunningEndedBefore(ctx, now)
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, governor_errors.NewPersistenceError("list overdue ab tests", err)
	}

	failed := 0
	for i := range tests {
		test := &tests[i]
		if _, ok := Winner(test); ok {
			if _, err := s.decide(ctx, test); err != nil {
				s.log.Errorf("failed to decide overdue ab test %s: %v", test.ID, err)
			}
			continue
		}
		err := s.repos.ABTestRepository.Transition(ctx, test.ID,
			[]enum.ABTestStatus{enum.ABTestRunning}, enum.ABTestFailed,
			map[string]interface{}{"completed_at": now})
		if err != nil {
			if !errors.Is(err, repository.ErrConflict) {
				s.log.Errorf("failed to expire ab test %s: %v", test.ID, err)
			}
			continue
		}
		failed++
		s.log.Warnf("ab test %s failed: window ended before every variant reached %d sends", test.ID, test.SampleSize)
	}
	span.LogFields(tracingLog.Int("failed", failed))
	return failed, nil
}

func (s *abTestService) publishCompleted(ctx context.Context, test *models.ABTest, winnerID string, override bool) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.PublishFanoutEvent(ctx, test.ID, enum.AB_TEST, dto.ABTestCompleted{
		TestID:          test.ID,
		WinnerVariantID: winnerID,
		WinnerMetric:    test.WinnerMetric,
		Override:        override,
	})
	if err != nil {
		s.log.Errorf("failed to publish ab test completed for %s: %v", test.ID, err)
	}
}
