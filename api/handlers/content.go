package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	custom_err "github.com/customeros/mailgovernor/api/errors"
	"github.com/customeros/mailgovernor/dto"
	"github.com/customeros/mailgovernor/interfaces"
	"github.com/customeros/mailgovernor/internal/models"
	"github.com/customeros/mailgovernor/internal/repository"
	"github.com/customeros/mailgovernor/internal/tracing"
)

type CreateSpamWordRequest struct {
	Word     string `json:"word"`
	Category string `json:"category"`
	Score    int    `json:"score"`
}

type UpdateSpamWordRequest struct {
	Category *string `json:"category"`
	Score    *int    `json:"score"`
	Active   *bool   `json:"active"`
}

type PlacementResponse struct {
	Analysis  *dto.ContentAnalysisResult `json:"analysis"`
	Narrative string                     `json:"narrative"`
}

type ContentHandler struct {
	content interfaces.ContentService
	ai      interfaces.AIService
}

func NewContentHandler(content interfaces.ContentService, ai interfaces.AIService) *ContentHandler {
	return &ContentHandler{
		content: content,
		ai:      ai,
	}
}

func (h *ContentHandler) CheckContent() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "ContentHandler.CheckContent")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var request dto.ContentInput
		if err := c.ShouldBindJSON(&request); err != nil {
			custom_err.RespondBadRequest(c, span, err)
			return
		}

		result, err := h.content.Check(ctx, request)
		if err != nil {
			custom_err.Respond(c, span, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// PlacementNarrative checks the content and explains the rating in prose.
func (h *ContentHandler) PlacementNarrative() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "ContentHandler.PlacementNarrative")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var request dto.ContentInput
		if err := c.ShouldBindJSON(&request); err != nil {
			custom_err.RespondBadRequest(c, span, err)
			return
		}

		result, err := h.content.Check(ctx, request)
		if err != nil {
			custom_err.Respond(c, span, err)
			return
		}
		narrative, err := h.ai.PlacementNarrative(ctx, result)
		if err != nil {
			custom_err.Respond(c, span, err)
			return
		}
		c.JSON(http.StatusOK, PlacementResponse{Analysis: result, Narrative: narrative})
	}
}

func (h *ContentHandler) ListSpamWords() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "ContentHandler.ListSpamWords")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		words, err := h.content.ListSpamWords(ctx)
		if err != nil {
			custom_err.Respond(c, span, err)
			return
		}
		c.JSON(http.StatusOK, words)
	}
}

func (h *ContentHandler) CreateSpamWord() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "ContentHandler.CreateSpamWord")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var request CreateSpamWordRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			custom_err.RespondBadRequest(c, span, err)
			return
		}
		if strings.TrimSpace(request.Word) == "" {
			errs := custom_err.NewMultiErrors()
			errs.Add("word", "please provide a word or phrase", errors.New("word is empty"))
			custom_err.RespondInvalid(c, span, errs)
			return
		}

		word, err := h.content.CreateSpamWord(ctx, models.SpamWord{
			Word:     request.Word,
			Category: request.Category,
			Score:    request.Score,
			Active:   true,
		})
		if err != nil {
			custom_err.Respond(c, span, err)
			return
		}
		c.JSON(http.StatusCreated, word)
	}
}

func (h *ContentHandler) UpdateSpamWord() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "ContentHandler.UpdateSpamWord")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var request UpdateSpamWordRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			custom_err.RespondBadRequest(c, span, err)
			return
		}

		word, err := h.content.UpdateSpamWord(ctx, c.Param("id"), repository.SpamWordUpdate{
			Category: request.Category,
			Score:    request.Score,
			Active:   request.Active,
		})
		if err != nil {
			custom_err.Respond(c, span, err)
			return
		}
		c.JSON(http.StatusOK, word)
	}
}
