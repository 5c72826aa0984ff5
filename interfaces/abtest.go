package interfaces

import (
	"context"

	"github.com/customeros/mailgovernor/dto"
	"github.com/customeros/mailgovernor/internal/enum"
	"github.com/customeros/mailgovernor/internal/models"
)

type ABTestService interface {
	Create(ctx context.Context, input dto.CreateTestInput) (*models.ABTest, error)
	Start(ctx context.Context, testID string) (*models.ABTest, error)
	Get(ctx context.Context, testID string) (*models.ABTest, error)
	List(ctx context.Context, status *enum.ABTestStatus) ([]models.ABTest, error)
	AssignVariant(ctx context.Context, testID, recipient string) (*models.ABTestVariant, error)
	PrepareSend(ctx context.Context, testID, recipient string, exclude []string) (*dto.SendPlan, error)
	RecordVariantEvent(ctx context.Context, variantID string, eventType enum.DeliveryEventType) error
	Evaluate(ctx context.Context, testID string) (*dto.EvaluateResult, error)
	OverrideWinner(ctx context.Context, testID, variantID string) (*models.ABTest, error)
	// EvaluateRunning decides every running test that reached its sample size.
	EvaluateRunning(ctx context.Context) (int, error)
	ExpireOverdue(ctx context.Context) (int, error)
}
