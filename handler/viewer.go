package handler

import (
	"net/http"

	"github.com/Legalphoenix/tabular-review/viewer"
	"github.com/gin-gonic/gin"
)

type ViewerHandler struct {
	controller *viewer.Controller
}

func NewViewerHandler(controller *viewer.Controller) *ViewerHandler {
	return &ViewerHandler{controller: controller}
}

type ViewerTargetRequest struct {
	Path            string `json:"path" binding:"required"`
	Page            int    `json:"page" binding:"required"`
	SectionLetter   string `json:"section_letter"`
	SectionsPerPage int    `json:"sections_per_page"`
}

// Open loads a document in the viewer and scrolls to the cited section
func (h *ViewerHandler) Open(c *gin.Context) {
	var req ViewerTargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	status := h.controller.Open(c.Request.Context(), viewer.Target{
		Path:            req.Path,
		Page:            req.Page,
		SectionLetter:   req.SectionLetter,
		SectionsPerPage: req.SectionsPerPage,
	})
	c.JSON(http.StatusOK, status)
}

// Navigate jumps to a new target, reusing the loaded document when the path
// is unchanged
func (h *ViewerHandler) Navigate(c *gin.Context) {
	var req ViewerTargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	status := h.controller.Navigate(c.Request.Context(), viewer.Target{
		Path:            req.Path,
		Page:            req.Page,
		SectionLetter:   req.SectionLetter,
		SectionsPerPage: req.SectionsPerPage,
	})
	c.JSON(http.StatusOK, status)
}

// Close releases the loaded document
func (h *ViewerHandler) Close(c *gin.Context) {
	c.JSON(http.StatusOK, h.controller.Close())
}

// Status reports the viewer's current state
func (h *ViewerHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.controller.Status())
}
