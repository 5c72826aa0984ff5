package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	custom_err "github.com/customeros/mailgovernor/api/errors"
	"github.com/customeros/mailgovernor/dto"
	"github.com/customeros/mailgovernor/interfaces"
	"github.com/customeros/mailgovernor/internal/tracing"
)

type VerifyDomainRequest struct {
	Domain string `json:"domain"`
}

type VerifyEmailDomainRequest struct {
	Email string `json:"email"`
}

type DomainsHandler struct {
	domains interfaces.DomainService
}

func NewDomainsHandler(domains interfaces.DomainService) *DomainsHandler {
	return &DomainsHandler{domains: domains}
}

func (h *DomainsHandler) VerifyDomain() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DomainsHandler.VerifyDomain")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var request VerifyDomainRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			custom_err.RespondBadRequest(c, span, err)
			return
		}

		result, err := h.domains.Verify(ctx, request.Domain)
		if err != nil {
			custom_err.Respond(c, span, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func (h *DomainsHandler) VerifyEmailDomain() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DomainsHandler.VerifyEmailDomain")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var request VerifyEmailDomainRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			custom_err.RespondBadRequest(c, span, err)
			return
		}

		result, err := h.domains.VerifyEmailDomain(ctx, request.Email)
		if err != nil {
			custom_err.Respond(c, span, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func (h *DomainsHandler) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DomainsHandler.List")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		domains, err := h.domains.List(ctx)
		if err != nil {
			custom_err.Respond(c, span, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"domains": domains})
	}
}

func (h *DomainsHandler) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DomainsHandler.Get")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		record, err := h.domains.Get(ctx, c.Param("domain"))
		if err != nil {
			custom_err.Respond(c, span, err)
			return
		}
		c.JSON(http.StatusOK, record)
	}
}

func (h *DomainsHandler) ScanReputation() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DomainsHandler.ScanReputation")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		result, err := h.domains.ScanReputation(ctx, c.Param("domain"))
		if err != nil {
			custom_err.Respond(c, span, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func (h *DomainsHandler) IngestDMARCReport() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DomainsHandler.IngestDMARCReport")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var request dto.DMARCReportInput
		if err := c.ShouldBindJSON(&request); err != nil {
			custom_err.RespondBadRequest(c, span, err)
			return
		}
		if request.Content == "" {
			errs := custom_err.NewMultiErrors()
			errs.Add("content", "please provide the base64 encoded report", errors.New("content is empty"))
			custom_err.RespondInvalid(c, span, errs)
			return
		}

		reports, err := h.domains.IngestDMARCReport(ctx, request)
		if err != nil {
			custom_err.Respond(c, span, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"reports": reports})
	}
}

func (h *DomainsHandler) ListDMARCReports() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DomainsHandler.ListDMARCReports")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		reports, err := h.domains.ListDMARCReports(ctx, c.Query("domain"))
		if err != nil {
			custom_err.Respond(c, span, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"reports": reports})
	}
}
