package interfaces

import (
	"context"

	"github.com/customeros/mailgovernor/dto"
	"github.com/customeros/mailgovernor/internal/models"
)

type DomainService interface {
	Verify(ctx context.Context, domain string) (*dto.DomainVerificationResult, error)
	VerifyEmailDomain(ctx context.Context, email string) (*dto.DomainVerificationResult, error)
	Get(ctx context.Context, domain string) (*models.DomainRecord, error)
	List(ctx context.Context) ([]models.DomainRecord, error)
	ReverifyStale(ctx context.Context) (int, error)
	IngestDMARCReport(ctx context.Context, input dto.DMARCReportInput) ([]models.DMARCReport, error)
	ListDMARCReports(ctx context.Context, domain string) ([]models.DMARCReport, error)
	ScanReputation(ctx context.Context, domain string) (*dto.ReputationScanResult, error)
	ScanAllReputations(ctx context.Context) error
}
