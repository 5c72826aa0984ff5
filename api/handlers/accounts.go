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

type SetStatusRequest struct {
	Status enum.AccountStatus `json:"status" binding:"required"`
	Reason string             `json:"reason"`
}

type NarrativeResponse struct {
	Health    *dto.HealthResult `json:"health"`
	Narrative string            `json:"narrative"`
}

type AccountsHandler struct {
	accounts interfaces.AccountService
	health   interfaces.HealthService
	ai       interfaces.AIService
}

func NewAccountsHandler(accounts interfaces.AccountService, health interfaces.HealthService, ai interfaces.AIService) *AccountsHandler {
	return &AccountsHandler{
		accounts: accounts,
		health:   health,
		ai:       ai,
	}
}

func (h *AccountsHandler) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "AccountsHandler.List")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		accounts, err := h.accounts.List(ctx)
		if err != nil {
			custom_err.Respond(c, span, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"accounts": accounts})
	}
}

func (h *AccountsHandler) Create() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "AccountsHandler.Create")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var request dto.CreateAccountInput
		if err := c.ShouldBindJSON(&request); err != nil {
			custom_err.RespondBadRequest(c, span, err)
			return
		}

		account, err := h.accounts.Create(ctx, request)
		if err != nil {
			custom_err.Respond(c, span, err)
			return
		}
		c.JSON(http.StatusCreated, account)
	}
}

func (h *AccountsHandler) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "AccountsHandler.Get")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		account, err := h.accounts.Get(ctx, c.Param("id"))
		if err != nil {
			custom_err.Respond(c, span, err)
			return
		}
		c.JSON(http.StatusOK, account)
	}
}

func (h *AccountsHandler) SetStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "AccountsHandler.SetStatus")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var request SetStatusRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			custom_err.RespondBadRequest(c, span, err)
			return
		}

		account, err := h.accounts.SetStatus(ctx, c.Param("id"), request.Status, request.Reason)
		if err != nil {
			custom_err.Respond(c, span, err)
			return
		}
		c.JSON(http.StatusOK, account)
	}
}

func (h *AccountsHandler) StartWarmup() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "AccountsHandler.StartWarmup")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var plan dto.WarmupPlan
		if err := c.ShouldBindJSON(&plan); err != nil {
			custom_err.RespondBadRequest(c, span, err)
			return
		}

		account, err := h.accounts.StartWarmup(ctx, c.Param("id"), plan)
		if err != nil {
			custom_err.Respond(c, span, err)
			return
		}
		c.JSON(http.StatusOK, account)
	}
}

func (h *AccountsHandler) ResetWarmup() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "AccountsHandler.ResetWarmup")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		account, err := h.accounts.ResetWarmup(ctx, c.Param("id"))
		if err != nil {
			custom_err.Respond(c, span, err)
			return
		}
		c.JSON(http.StatusOK, account)
	}
}

// SendingLimits serves /sending-limits/:accountId.
func (h *AccountsHandler) SendingLimits() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "AccountsHandler.SendingLimits")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		limits, err := h.accounts.Limits(ctx, c.Param("accountId"))
		if err != nil {
			custom_err.Respond(c, span, err)
			return
		}
		c.JSON(http.StatusOK, limits)
	}
}

func (h *AccountsHandler) DeliverySettings() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "AccountsHandler.DeliverySettings")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		settings, err := h.accounts.DeliverySettings(ctx)
		if err != nil {
			custom_err.Respond(c, span, err)
			return
		}
		c.JSON(http.StatusOK, settings)
	}
}

func (h *AccountsHandler) RecomputeHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "AccountsHandler.RecomputeHealth")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		result, err := h.health.Recompute(ctx, c.Param("id"))
		if err != nil {
			custom_err.Respond(c, span, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// Narrative recomputes the account's health and explains it in prose.
func (h *AccountsHandler) Narrative() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "AccountsHandler.Narrative")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		id := c.Param("id")
		health, err := h.health.Recompute(ctx, id)
		if err != nil {
			custom_err.Respond(c, span, err)
			return
		}
		account, err := h.accounts.Get(ctx, id)
		if err != nil {
			custom_err.Respond(c, span, err)
			return
		}
		narrative, err := h.ai.HealthNarrative(ctx, account, health)
		if err != nil {
			custom_err.Respond(c, span, err)
			return
		}
		c.JSON(http.StatusOK, NarrativeResponse{Health: health, Narrative: narrative})
	}
}
