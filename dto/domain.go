package dto

import (
	"time"

	"github.com/customeros/mailgovernor/internal/enum"
)

type DomainVerificationResult struct {
	Domain        string               `json:"domain"`
	Authenticated bool                 `json:"authenticated"`
	Records       []RecordVerification `json:"records"`
	LastChecked   *time.Time           `json:"lastChecked,omitempty"`
	// accounts on the domain whose auth flags were refreshed
	AccountsUpdated int64 `json:"accountsUpdated"`
}

type RecordVerification struct {
	Type              enum.DNSRecordType      `json:"type"`
	Status            enum.VerificationStatus `json:"status"`
	Host              string                  `json:"host"`
	CurrentRecord     string                  `json:"currentRecord"`
	RecommendedRecord string                  `json:"recommendedRecord"`
	Error             string                  `json:"error,omitempty"`
}

type ReputationScanResult struct {
	Domain           string `json:"domain"`
	DomainAgeDays    int    `json:"domainAgeDays"`
	DomainAgePenalty int    `json:"domainAgePenalty"`
	BlacklistPenalty int    `json:"blacklistPenalty"`
	Blacklisted      bool   `json:"blacklisted"`
	AlertsRaised     int    `json:"alertsRaised"`
}

// DMARCReportInput is one aggregate report attachment, base64 encoded zip or gzip.
type DMARCReportInput struct {
	Content     string `json:"content"`
	ContentType string `json:"contentType"`
	Reporter    string `json:"reporter"`
}
