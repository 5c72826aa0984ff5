package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	custom_err "github.com/customeros/mailgovernor/api/errors"
	"github.com/customeros/mailgovernor/dto"
	"github.com/customeros/mailgovernor/interfaces"
	"github.com/customeros/mailgovernor/internal/enum"
	"github.com/customeros/mailgovernor/internal/tracing"
)

type OverrideWinnerRequest struct {
	VariantID string `json:"variantId"`
}

type SendPlanRequest struct {
	Recipient         string   `json:"recipient"`
	ExcludeAccountIDs []string `json:"excludeAccountIds"`
}

type ABTestsHandler struct {
	abtests interfaces.ABTestService
}

func NewABTestsHandler(abtests interfaces.ABTestService) *ABTestsHandler {
	return &ABTestsHandler{abtests: abtests}
}

func (h *ABTestsHandler) Create() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "ABTestsHandler.Create")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var request dto.CreateTestInput
		if err := c.ShouldBindJSON(&request); err != nil {
			custom_err.RespondBadRequest(c, span, err)
			return
		}

		test, err := h.abtests.Create(ctx, request)
		if err != nil {
			custom_err.Respond(c, span, err)
			return
		}
		c.JSON(http.StatusCreated, test)
	}
}

// List filters by ?status=.
func (h *ABTestsHandler) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "ABTestsHandler.List")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var status *enum.ABTestStatus
		if value := c.Query("status"); value != "" {
			s := enum.ABTestStatus(value)
			status = &s
		}

		tests, err := h.abtests.List(ctx, status)
		if err != nil {
			custom_err.Respond(c, span, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"tests": tests})
	}
}

func (h *ABTestsHandler) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "ABTestsHandler.Get")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		test, err := h.abtests.Get(ctx, c.Param("id"))
		if err != nil {
			custom_err.Respond(c, span, err)
			return
		}
		c.JSON(http.StatusOK, test)
	}
}

func (h *ABTestsHandler) Start() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "ABTestsHandler.Start")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		test, err := h.abtests.Start(ctx, c.Param("id"))
		if err != nil {
			custom_err.Respond(c, span, err)
			return
		}
		c.JSON(http.StatusOK, test)
	}
}

func (h *ABTestsHandler) Evaluate() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "ABTestsHandler.Evaluate")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		result, err := h.abtests.Evaluate(ctx, c.Param("id"))
		if err != nil {
			custom_err.Respond(c, span, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func (h *ABTestsHandler) OverrideWinner() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "ABTestsHandler.OverrideWinner")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var request OverrideWinnerRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			custom_err.RespondBadRequest(c, span, err)
			return
		}
		if request.VariantID == "" {
			errs := custom_err.NewMultiErrors()
			errs.Add("variantId", "please provide the winning variant", errors.New("variantId is empty"))
			custom_err.RespondInvalid(c, span, errs)
			return
		}

		test, err := h.abtests.OverrideWinner(ctx, c.Param("id"), request.VariantID)
		if err != nil {
			custom_err.Respond(c, span, err)
			return
		}
		c.JSON(http.StatusOK, test)
	}
}

// SendPlan assigns the recipient a variant and reserves an account for it.
func (h *ABTestsHandler) SendPlan() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "ABTestsHandler.SendPlan")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var request SendPlanRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			custom_err.RespondBadRequest(c, span, err)
			return
		}

		plan, err := h.abtests.PrepareSend(ctx, c.Param("id"), request.Recipient, request.ExcludeAccountIDs)
		if err != nil {
			custom_err.Respond(c, span, err)
			return
		}
		c.JSON(http.StatusOK, plan)
	}
}
