package handler

import (
	"fmt"
	"net/http"

	"github.com/Legalphoenix/tabular-review/service"
	"github.com/gin-gonic/gin"
)

type ExportHandler struct {
	store *service.ReviewStore
}

func NewExportHandler() *ExportHandler {
	return &ExportHandler{store: service.GetReviewStore()}
}

// CSV streams the review table as a CSV download
func (h *ExportHandler) CSV(c *gin.Context) {
	data, err := h.store.BuildCSV()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build CSV: " + err.Error()})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", service.ExportFilename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
}
