package dto

import (
	"github.com/customeros/mailgovernor/internal/enum"
	"github.com/customeros/mailgovernor/internal/models"
)

type SendRequest struct {
	To                string   `json:"to"`
	Subject           string   `json:"subject"`
	HTML              string   `json:"html"`
	Text              string   `json:"text"`
	FromName          string   `json:"fromName"`
	ABTestID          string   `json:"abTestId"`
	SkipContentCheck  bool     `json:"skipContentCheck"`
	ExcludeAccountIDs []string `json:"excludeAccountIds"`
}

type SendResult struct {
	EmailID           string                 `json:"emailId"`
	MessageID         string                 `json:"messageId"`
	AccountID         string                 `json:"accountId"`
	From              string                 `json:"from"`
	VariantID         string                 `json:"variantId,omitempty"`
	Status            enum.SentEmailStatus   `json:"status"`
	ProviderMessageID string                 `json:"providerMessageId,omitempty"`
	Error             string                 `json:"error,omitempty"`
	Content           *ContentAnalysisResult `json:"content,omitempty"`
}

type TestSendRequest struct {
	To             string `json:"to"`
	Subject        string `json:"subject"`
	HTML           string `json:"html"`
	From           string `json:"from"`
	FromName       string `json:"fromName"`
	EmailAccountID string `json:"emailAccountId"`
}

type SelectRequest struct {
	ExcludeIDs []string
}

// TransportMessage is what a transport needs to put one message on the wire.
type TransportMessage struct {
	From      string
	FromName  string
	To        string
	Subject   string
	HTML      string
	Text      string
	MessageID string
}

type TransportResult struct {
	ProviderMessageID string
}

// Reserved is the outcome of a successful rotation: the account as it was
// selected, with its usage windows already advanced.
type Reserved struct {
	Account     *models.SendingAccount
	HealthScore int
	Considered  int
	Conflicts   int
}
