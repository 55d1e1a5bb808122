package handler

import (
	"context"
	"net/http"

	"github.com/Legalphoenix/tabular-review/citation"
	"github.com/Legalphoenix/tabular-review/service"
	"github.com/gin-gonic/gin"
)

type CellHandler struct {
	runner *service.CellRunner
	store  *service.ReviewStore
}

func NewCellHandler(runner *service.CellRunner) *CellHandler {
	return &CellHandler{
		runner: runner,
		store:  service.GetReviewStore(),
	}
}

// Table returns the whole review surface in one response: documents, columns
// and the cell matrix keyed by document id then column id
func (h *CellHandler) Table(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"documents": h.store.Documents(),
		"columns":   h.store.Columns(),
		"cells":     h.store.Cells(),
		"version":   h.store.Version(),
	})
}

// Get returns one cell
func (h *CellHandler) Get(c *gin.Context) {
	cell, ok := h.store.Cell(c.Param("docID"), c.Param("colID"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Cell not found"})
		return
	}
	c.JSON(http.StatusOK, cell)
}

// Run launches an answer request for one cell. The request returns
// immediately; callers poll the cell for the outcome. The runner is detached
// from the request context so a closed connection cannot abort the answer.
func (h *CellHandler) Run(c *gin.Context) {
	docID := c.Param("docID")
	colID := c.Param("colID")

	cell, ok := h.store.Cell(docID, colID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Cell not found"})
		return
	}

	go h.runner.RunCell(context.Background(), docID, colID)

	c.JSON(http.StatusAccepted, gin.H{
		"doc_id": docID,
		"col_id": colID,
		"cell":   cell,
	})
}

// RunAll launches answer requests for every idle or errored non-manual cell
func (h *CellHandler) RunAll(c *gin.Context) {
	launched := h.runner.RunAll(context.Background())

	resp := gin.H{"launched": launched}
	if launched == 0 {
		resp["message"] = "Nothing needed processing"
	}
	c.JSON(http.StatusAccepted, resp)
}

type SaveCellRequest struct {
	Answer string `json:"answer"`
}

// Save stores a manually entered or edited answer and marks the cell done
func (h *CellHandler) Save(c *gin.Context) {
	var req SaveCellRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	saved, err := h.store.SaveCellContent(c.Param("docID"), c.Param("colID"), req.Answer)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Cell not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"saved": saved})
}

// Content returns the cell's answer broken into renderable blocks with
// citation markers resolved against the document's manifest
func (h *CellHandler) Content(c *gin.Context) {
	docID := c.Param("docID")
	colID := c.Param("colID")

	cell, ok := h.store.Cell(docID, colID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Cell not found"})
		return
	}
	doc, ok := h.store.Document(docID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
		return
	}
	col, ok := h.store.Column(colID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Column not found"})
		return
	}

	blocks := citation.Render(cell.Answer, doc.Annotated, col.Format)

	c.JSON(http.StatusOK, gin.H{
		"status": cell.Status,
		"blocks": blocks,
	})
}
