package interfaces

import (
	"context"

	"github.com/customeros/mailgovernor/dto"
	"github.com/customeros/mailgovernor/internal/models"
)

type SendingService interface {
	Send(ctx context.Context, request dto.SendRequest) (*dto.SendResult, error)
	TestSend(ctx context.Context, request dto.TestSendRequest) (*dto.SendResult, error)
}

// TransportService puts a message on the wire for an account. It owns no limits.
type TransportService interface {
	Send(ctx context.Context, account *models.SendingAccount, message dto.TransportMessage) (*dto.TransportResult, error)
}
