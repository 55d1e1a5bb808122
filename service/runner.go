package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/Legalphoenix/tabular-review/model"
)

// citationInstruction is appended to every generated prompt so answers carry
// navigable markers. The marker grammar is [ref:P<page>S<letter>], where the
// page number refers to the annotated document and the letter to one of its
// lettered vertical bands.
const citationInstruction = "\n\nWhen you reference specific content from the document, cite it " +
	"using the printed page number and section letter in a marker of the exact form " +
	"[ref:P<page>S<letter>], for example [ref:P7SD]. Use one marker per referenced location."

// formatSuffixes holds the per-format instruction appended to the base
// prompt. Text and Manual input carry no suffix.
var formatSuffixes = map[string]string{
	model.FormatYesNo:        "\n\nAnswer only with 'Yes' or 'No'.",
	model.FormatBulletedList: "\n\nFormat the answer as a bulleted list (using '*' or '-' for each point).",
	model.FormatDate:         "\n\nExtract the date. If possible, format it as YYYY-MM-DD. If multiple dates are relevant, list them.",
	model.FormatTag:          "\n\nIdentify the single most relevant tag or keyword for this based on the document context.",
	model.FormatMultipleTags: "\n\nIdentify all relevant tags or keywords based on the document context, separated by commas.",
	model.FormatVerbatim:     "\n\nExtract the relevant text verbatim from the document exactly as it appears.",
}

// CellRunner orchestrates asynchronous cell executions against the
// answering service
type CellRunner struct {
	store  *ReviewStore
	answer *AnswerService
}

func NewCellRunner(store *ReviewStore, answer *AnswerService) *CellRunner {
	return &CellRunner{store: store, answer: answer}
}

// BuildPrompt assembles the final prompt for a column: base prompt, the
// format-specific suffix, then the citation instruction
func BuildPrompt(col model.Column) string {
	var b strings.Builder
	b.WriteString(col.Prompt)
	if suffix, ok := formatSuffixes[col.Format]; ok {
		b.WriteString(suffix)
	}
	b.WriteString(citationInstruction)
	return b.String()
}

// RunCell executes one cell. Manual-input columns are skipped without error.
// Missing pairs, still-processing documents, failed preprocessing and absent
// annotated details all fail fast into the cell's error state. Concurrent
// runs of the same cell are not serialized: the last response wins.
func (r *CellRunner) RunCell(ctx context.Context, docID, colID string) {
	col, colOK := r.store.Column(colID)
	if colOK && col.Format == model.FormatManualInput {
		slog.Info("skipping manual input column", "column_id", colID, "label", col.Label)
		return
	}

	doc, docOK := r.store.Document(docID)
	switch {
	case !docOK || !colOK:
		r.store.SetCellResult(docID, colID, model.CellStatusError, "Document or column no longer exists")
		return
	case doc.Status == model.DocStatusProcessing:
		r.store.SetCellResult(docID, colID, model.CellStatusError, "Document is still being preprocessed")
		return
	case doc.Status == model.DocStatusFailed:
		msg := "Document preprocessing failed"
		if doc.ProcessingError != "" {
			msg += ": " + doc.ProcessingError
		}
		r.store.SetCellResult(docID, colID, model.CellStatusError, msg)
		return
	case doc.Annotated == nil || doc.Annotated.AnnotatedPath == "":
		r.store.SetCellResult(docID, colID, model.CellStatusError, "Document has not been preprocessed yet")
		return
	}

	if !r.store.StartCell(docID, colID) {
		return
	}

	answer, err := r.answer.Generate(ctx, doc.Annotated.AnnotatedPath, BuildPrompt(col))
	if err != nil {
		slog.Warn("cell execution failed",
			"document_id", docID,
			"column_id", colID,
			"error", err,
		)
		r.store.SetCellResult(docID, colID, model.CellStatusError, err.Error())
		return
	}

	r.store.SetCellResult(docID, colID, model.CellStatusDone, answer)
}

// RunAll launches RunCell for every pair whose column is not manual input
// and whose cell is idle or errored. Each cell runs in its own goroutine
// with no ordering guarantee and no completion callback. Returns the number
// of cells launched; zero means nothing needed processing.
func (r *CellRunner) RunAll(ctx context.Context) int {
	cells := r.store.Cells()
	launched := 0

	for _, doc := range r.store.Documents() {
		for _, col := range r.store.Columns() {
			if col.Format == model.FormatManualInput {
				continue
			}
			cell, ok := cells[doc.ID][col.ID]
			if !ok {
				continue
			}
			if cell.Status != model.CellStatusIdle && cell.Status != model.CellStatusError {
				continue
			}
			launched++
			go r.RunCell(ctx, doc.ID, col.ID)
		}
	}

	if launched == 0 {
		slog.Info("run all: nothing needed processing")
	} else {
		slog.Info("run all launched", "cells", launched)
	}
	return launched
}
