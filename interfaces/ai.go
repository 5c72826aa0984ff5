package interfaces

import (
	"context"

	"github.com/customeros/mailgovernor/dto"
	"github.com/customeros/mailgovernor/internal/models"
)

type AIService interface {
	HealthNarrative(ctx context.Context, account *models.SendingAccount, health *dto.HealthResult) (string, error)
	PlacementNarrative(ctx context.Context, content *dto.ContentAnalysisResult) (string, error)
}
