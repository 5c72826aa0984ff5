package interfaces

import (
	"context"

	"github.com/customeros/mailgovernor/dto"
	"github.com/customeros/mailgovernor/internal/enum"
	"github.com/customeros/mailgovernor/internal/models"
)

type AccountService interface {
	Create(ctx context.Context, input dto.CreateAccountInput) (*models.SendingAccount, error)
	Get(ctx context.Context, id string) (*models.SendingAccount, error)
	List(ctx context.Context) ([]models.SendingAccount, error)
	ListActive(ctx context.Context) ([]models.SendingAccount, error)
	SetStatus(ctx context.Context, id string, status enum.AccountStatus, reason string) (*models.SendingAccount, error)
	StartWarmup(ctx context.Context, id string, plan dto.WarmupPlan) (*models.SendingAccount, error)
	ResetWarmup(ctx context.Context, id string) (*models.SendingAccount, error)
	UpdateAuthFlags(ctx context.Context, domain string, spf, dkim, dmarc bool) (int64, error)
	Limits(ctx context.Context, id string) (*dto.SendingLimits, error)
	DeliverySettings(ctx context.Context) (*dto.DeliverySettings, error)
}
