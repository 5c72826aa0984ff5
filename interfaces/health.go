package interfaces

import (
	"context"

	"github.com/customeros/mailgovernor/dto"
)

type HealthService interface {
	Recompute(ctx context.Context, accountID string) (*dto.HealthResult, error)
	RecomputeAll(ctx context.Context) (int, error)
	// Schedule queues an asynchronous recompute; it never blocks.
	Schedule(accountID string) bool
	Run(ctx context.Context)
}

type WarmupService interface {
	Advance(ctx context.Context) (int, error)
}

type RotationService interface {
	Select(ctx context.Context, request dto.SelectRequest) (*dto.Reserved, error)
}
