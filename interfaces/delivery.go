package interfaces

import (
	"context"

	"github.com/customeros/mailgovernor/dto"
	"github.com/customeros/mailgovernor/internal/models"
)

type DeliveryService interface {
	Record(ctx context.Context, event dto.IngestEvent) (*dto.RecordResult, error)
	ListForEmail(ctx context.Context, emailID string) ([]models.DeliveryEvent, error)
}

type AlertService interface {
	Evaluate(ctx context.Context, account *models.SendingAccount) ([]models.ReputationAlert, error)
	RaiseBlacklisted(ctx context.Context, account *models.SendingAccount, reputation *models.DomainReputation) (*models.ReputationAlert, error)
	Resolve(ctx context.Context, alertID, resolvedBy, note string) (*models.ReputationAlert, error)
	List(ctx context.Context, accountID string, unresolvedOnly bool) ([]models.ReputationAlert, error)
}
