package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"

	custom_err "github.com/customeros/mailgovernor/api/errors"
	"github.com/customeros/mailgovernor/dto"
	"github.com/customeros/mailgovernor/interfaces"
	"github.com/customeros/mailgovernor/internal/logger"
	"github.com/customeros/mailgovernor/internal/tracing"
)

const maxWebhookBody = 1 << 20

type DeliveryHandler struct {
	delivery interfaces.DeliveryService
	// nil when archiving is disabled
	storage interfaces.StorageService
	log     logger.Logger
}

func NewDeliveryHandler(delivery interfaces.DeliveryService, storage interfaces.StorageService, log logger.Logger) *DeliveryHandler {
	return &DeliveryHandler{
		delivery: delivery,
		storage:  storage,
		log:      log,
	}
}

// ListEvents serves /events/:emailId, newest first.
func (h *DeliveryHandler) ListEvents() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DeliveryHandler.ListEvents")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		events, err := h.delivery.ListForEmail(ctx, c.Param("emailId"))
		if err != nil {
			custom_err.Respond(c, span, err)
			return
		}
		c.JSON(http.StatusOK, events)
	}
}

// Webhook ingests one provider feedback event. Redelivery of an event that
// was already applied answers success with duplicate set.
func (h *DeliveryHandler) Webhook() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DeliveryHandler.Webhook")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
		if err != nil {
			custom_err.RespondBadRequest(c, span, err)
			return
		}

		if h.storage != nil {
			key, err := h.storage.ArchiveWebhook(ctx, body)
			if err != nil {
				tracing.TraceErr(span, err)
				h.log.Warnf("failed to archive webhook body: %v", err)
			} else {
				span.LogFields(tracingLog.String("archiveKey", key))
			}
		}

		var payload dto.WebhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			custom_err.RespondBadRequest(c, span, err)
			return
		}

		result, err := h.delivery.Record(ctx, payload.IngestEvent())
		if err != nil {
			custom_err.Respond(c, span, err)
			return
		}
		c.JSON(http.StatusOK, dto.WebhookResponse{
			Success:       true,
			Duplicate:     result.Duplicate,
			AccountPaused: result.AccountPaused,
			Event:         result.Event,
		})
	}
}
