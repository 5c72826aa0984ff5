package interfaces

import (
	"context"

	"github.com/customeros/mailgovernor/dto"
	"github.com/customeros/mailgovernor/internal/models"
	"github.com/customeros/mailgovernor/internal/repository"
)

type ContentService interface {
	Check(ctx context.Context, input dto.ContentInput) (*dto.ContentAnalysisResult, error)
	ListSpamWords(ctx context.Context) ([]models.SpamWord, error)
	CreateSpamWord(ctx context.Context, word models.SpamWord) (*models.SpamWord, error)
	UpdateSpamWord(ctx context.Context, id string, update repository.SpamWordUpdate) (*models.SpamWord, error)
	SeedDefaults(ctx context.Context) (int64, error)
}
