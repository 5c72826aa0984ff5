package handlers

import (
	"github.com/customeros/mailgovernor/internal/logger"
	"github.com/customeros/mailgovernor/services"
)

type APIHandlers struct {
	Accounts *AccountsHandler
	Domains  *DomainsHandler
	Postmark *PostmarkHandler
	Content  *ContentHandler
	Sending  *SendingHandler
	Delivery *DeliveryHandler
	ABTests  *ABTestsHandler
	Alerts   *AlertsHandler
}

func InitHandlers(s *services.Services, log logger.Logger) *APIHandlers {
	return &APIHandlers{
		Accounts: NewAccountsHandler(s.AccountService, s.HealthService, s.AIService),
		Domains:  NewDomainsHandler(s.DomainService),
		Postmark: NewPostmarkHandler(s.DomainService, log),
		Content:  NewContentHandler(s.ContentService, s.AIService),
		Sending:  NewSendingHandler(s.SendingService),
		Delivery: NewDeliveryHandler(s.DeliveryService, s.StorageService, log),
		ABTests:  NewABTestsHandler(s.ABTestService),
		Alerts:   NewAlertsHandler(s.AlertService),
	}
}
