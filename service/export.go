package service

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/Legalphoenix/tabular-review/model"
)

// ExportFilename is the download name for the CSV artifact
const ExportFilename = "tabular_review_export.csv"

// BuildCSV renders the review table as CSV. The first column is the document
// display name, suffixed with its appendix names when any exist; fields
// containing commas, quotes or newlines are quoted with internal quotes
// doubled.
func (s *ReviewStore) BuildCSV() ([]byte, error) {
	docs := s.Documents()
	cols := s.Columns()
	cells := s.Cells()

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := make([]string, 0, 1+len(cols))
	header = append(header, "Document (Appendices)")
	for _, c := range cols {
		header = append(header, c.Label)
	}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, d := range docs {
		record := make([]string, 0, 1+len(cols))
		record = append(record, documentLabel(d))
		for _, c := range cols {
			record = append(record, cells[d.ID][c.ID].Answer)
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush CSV: %w", err)
	}
	return buf.Bytes(), nil
}

func documentLabel(d *model.Document) string {
	if len(d.Appendices) == 0 {
		return d.Name
	}
	names := make([]string, 0, len(d.Appendices))
	for _, a := range d.Appendices {
		names = append(names, a.Name)
	}
	return fmt.Sprintf("%s (+%d appx: %s)", d.Name, len(d.Appendices), strings.Join(names, ", "))
}
