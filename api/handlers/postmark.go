package handlers

import (
	"net/http"
	"strings"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"

	custom_err "github.com/customeros/mailgovernor/api/errors"
	"github.com/customeros/mailgovernor/dto"
	"github.com/customeros/mailgovernor/interfaces"
	"github.com/customeros/mailgovernor/internal/logger"
	"github.com/customeros/mailgovernor/internal/tracing"
)

// monitorMailbox is the local part DMARC rua reports are addressed to.
const monitorMailbox = "monitor"

type PostmarkHandler struct {
	domains interfaces.DomainService
	log     logger.Logger
}

func NewPostmarkHandler(domains interfaces.DomainService, log logger.Logger) *PostmarkHandler {
	return &PostmarkHandler{
		domains: domains,
		log:     log,
	}
}

// DMARCMonitor ingests aggregate reports delivered to the monitor mailbox
// through Postmark's inbound webhook.
func (h *PostmarkHandler) DMARCMonitor() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "PostmarkHandler.DMARCMonitor")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var email postmarkInboundEmail
		if err := c.ShouldBindJSON(&email); err != nil {
			custom_err.RespondBadRequest(c, span, err)
			return
		}
		if !email.IsMonitorEmail() {
			span.LogFields(tracingLog.Bool("ignored", true))
			c.JSON(http.StatusAccepted, gin.H{"message": "Ignored", "reports": 0})
			return
		}

		stored := 0
		for _, attachment := range email.Attachments {
			if !isReportAttachment(attachment.ContentType) {
				continue
			}
			reports, err := h.domains.IngestDMARCReport(ctx, dto.DMARCReportInput{
				Content:     attachment.Content,
				ContentType: attachment.ContentType,
				Reporter:    reportProvider(attachment.Name),
			})
			if err != nil {
				// one unreadable attachment does not block the rest
				tracing.TraceErr(span, err)
				h.log.Warnf("skipping DMARC attachment %s from %s: %v", attachment.Name, email.From, err)
				continue
			}
			stored += len(reports)
		}

		c.JSON(http.StatusAccepted, gin.H{"message": "Accepted", "reports": stored})
	}
}

type postmarkAddress struct {
	Email       string `json:"Email"`
	Name        string `json:"Name"`
	MailboxHash string `json:"MailboxHash"`
}

type postmarkAttachment struct {
	Name          string `json:"Name"`
	Content       string `json:"Content"`
	ContentType   string `json:"ContentType"`
	ContentLength int    `json:"ContentLength"`
}

type postmarkInboundEmail struct {
	From        string               `json:"From"`
	ToFull      []postmarkAddress    `json:"ToFull"`
	CcFull      []postmarkAddress    `json:"CcFull"`
	BccFull     []postmarkAddress    `json:"BccFull"`
	Subject     string               `json:"Subject"`
	MessageID   string               `json:"MessageID"`
	Date        string               `json:"Date"`
	Attachments []postmarkAttachment `json:"Attachments"`
}

func (p *postmarkInboundEmail) IsMonitorEmail() bool {
	for _, list := range [][]postmarkAddress{p.ToFull, p.CcFull, p.BccFull} {
		for _, address := range list {
			validation := mailvalidate.ValidateEmailSyntax(address.Email)
			if validation.IsValid && strings.EqualFold(validation.User, monitorMailbox) {
				return true
			}
		}
	}
	return false
}

func isReportAttachment(contentType string) bool {
	switch strings.ToLower(contentType) {
	case "application/zip", "application/gzip", "application/x-gzip", "application/x-zip-compressed":
		return true
	}
	return false
}

// reportProvider reads the reporting org from a file named
// "<org>!<domain>!<begin>!<end>.zip".
func reportProvider(filename string) string {
	org, _, _ := strings.Cut(filename, "!")
	switch org {
	case "enterprise.protection.outlook.com":
		return "outlook.com"
	case "aol.com":
		return "yahoo.com"
	default:
		return org
	}
}
