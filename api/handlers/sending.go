package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	custom_err "github.com/customeros/mailgovernor/api/errors"
	"github.com/customeros/mailgovernor/dto"
	"github.com/customeros/mailgovernor/interfaces"
	"github.com/customeros/mailgovernor/internal/enum"
	"github.com/customeros/mailgovernor/internal/tracing"
)

type SendingHandler struct {
	sending interfaces.SendingService
}

func NewSendingHandler(sending interfaces.SendingService) *SendingHandler {
	return &SendingHandler{sending: sending}
}

// Send reserves an account through the governor and delivers the message.
// A transport failure is reported as 502 with the recorded result.
func (h *SendingHandler) Send() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "SendingHandler.Send")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var request dto.SendRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			custom_err.RespondBadRequest(c, span, err)
			return
		}

		result, err := h.sending.Send(ctx, request)
		if err != nil {
			custom_err.Respond(c, span, err)
			return
		}
		c.JSON(statusOfSend(result), result)
	}
}

// TestSend delivers through a named account without touching its limits.
func (h *SendingHandler) TestSend() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "SendingHandler.TestSend")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var request dto.TestSendRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			custom_err.RespondBadRequest(c, span, err)
			return
		}

		result, err := h.sending.TestSend(ctx, request)
		if err != nil {
			custom_err.Respond(c, span, err)
			return
		}
		c.JSON(statusOfSend(result), result)
	}
}

func statusOfSend(result *dto.SendResult) int {
	if result.Status == enum.SentEmailFailed {
		return http.StatusBadGateway
	}
	return http.StatusOK
}
