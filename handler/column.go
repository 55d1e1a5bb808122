package handler

import (
	"net/http"

	"github.com/Legalphoenix/tabular-review/model"
	"github.com/Legalphoenix/tabular-review/service"
	"github.com/gin-gonic/gin"
)

type ColumnHandler struct {
	answerService *service.AnswerService
	store         *service.ReviewStore
}

func NewColumnHandler(answerSvc *service.AnswerService) *ColumnHandler {
	return &ColumnHandler{
		answerService: answerSvc,
		store:         service.GetReviewStore(),
	}
}

type SaveColumnRequest struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Prompt string `json:"prompt"`
	Format string `json:"format"`
}

// Save creates a column or edits an existing one. A substantive edit resets
// that column's cells to idle.
func (h *ColumnHandler) Save(c *gin.Context) {
	var req SaveColumnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	col, changed, err := h.store.SaveColumn(model.Column{
		ID:     req.ID,
		Label:  req.Label,
		Prompt: req.Prompt,
		Format: req.Format,
	})
	if err != nil {
		switch err {
		case service.ErrColumnNotFound:
			c.JSON(http.StatusNotFound, gin.H{"error": "Column not found"})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"column":  col,
		"changed": changed,
		"version": h.store.Version(),
	})
}

// List returns all columns in creation order
func (h *ColumnHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"columns": h.store.Columns(),
		"version": h.store.Version(),
	})
}

// Delete removes a column and its cell slice. Requires ?confirm=true.
func (h *ColumnHandler) Delete(c *gin.Context) {
	if c.Query("confirm") != "true" {
		c.JSON(http.StatusConflict, gin.H{"error": "Deletion requires confirm=true"})
		return
	}

	if err := h.store.RemoveColumn(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Column not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Column deleted",
		"version": h.store.Version(),
	})
}

type SuggestPromptRequest struct {
	Label  string `json:"label" binding:"required"`
	Format string `json:"format" binding:"required"`
}

// SuggestPrompt asks the answering service to draft an extraction prompt
// from a column label and format
func (h *ColumnHandler) SuggestPrompt(c *gin.Context) {
	var req SuggestPromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if !model.ValidFormat(req.Format) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown answer format"})
		return
	}

	prompt, err := h.answerService.SuggestPrompt(c.Request.Context(), req.Label, req.Format)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to suggest prompt: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"suggested_prompt": prompt})
}
