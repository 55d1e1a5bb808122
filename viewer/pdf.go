package viewer

import (
	"context"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// FileFetcher stages a stored object into a local file. The returned cleanup
// releases the staged copy.
type FileFetcher interface {
	FetchToFile(ctx context.Context, objectName string) (string, func() error, error)
}

// PDFOpener loads stored PDFs through object storage and reads their page
// geometry with pdfcpu
type PDFOpener struct {
	Files FileFetcher
}

func NewPDFOpener(files FileFetcher) *PDFOpener {
	return &PDFOpener{Files: files}
}

func (o *PDFOpener) Open(ctx context.Context, path string) (Document, error) {
	local, cleanup, err := o.Files.FetchToFile(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", path, err)
	}

	dims, err := api.PageDimsFile(local)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to read page dimensions: %w", err)
	}
	if len(dims) == 0 {
		cleanup()
		return nil, fmt.Errorf("document %s has no pages", path)
	}

	return &pdfDocument{dims: dims, cleanup: cleanup}, nil
}

// pdfDocument holds the staged file until Close
type pdfDocument struct {
	dims    []types.Dim
	cleanup func() error
}

func (d *pdfDocument) PageCount() int {
	return len(d.dims)
}

func (d *pdfDocument) PageHeight(page int) (float64, error) {
	if page < 1 || page > len(d.dims) {
		return 0, fmt.Errorf("page %d out of range", page)
	}
	return d.dims[page-1].Height, nil
}

func (d *pdfDocument) Close() error {
	if d.cleanup == nil {
		return nil
	}
	err := d.cleanup()
	d.cleanup = nil
	return err
}
