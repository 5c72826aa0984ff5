package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	custom_err "github.com/customeros/mailgovernor/api/errors"
	"github.com/customeros/mailgovernor/interfaces"
	"github.com/customeros/mailgovernor/internal/tracing"
)

type ResolveAlertRequest struct {
	// defaults to the operator header
	ResolvedBy string `json:"resolvedBy"`
	Note       string `json:"note"`
}

type AlertsHandler struct {
	alerts interfaces.AlertService
}

func NewAlertsHandler(alerts interfaces.AlertService) *AlertsHandler {
	return &AlertsHandler{alerts: alerts}
}

// List filters by ?accountId= and ?unresolved=true.
func (h *AlertsHandler) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "AlertsHandler.List")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		unresolved, _ := strconv.ParseBool(c.DefaultQuery("unresolved", "false"))
		alerts, err := h.alerts.List(ctx, c.Query("accountId"), unresolved)
		if err != nil {
			custom_err.Respond(c, span, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"alerts": alerts})
	}
}

func (h *AlertsHandler) Resolve() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "AlertsHandler.Resolve")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var request ResolveAlertRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&request); err != nil {
				custom_err.RespondBadRequest(c, span, err)
				return
			}
		}

		alert, err := h.alerts.Resolve(ctx, c.Param("id"), request.ResolvedBy, request.Note)
		if err != nil {
			custom_err.Respond(c, span, err)
			return
		}
		c.JSON(http.StatusOK, alert)
	}
}
