package model

import (
	"time"
)

// Document represents an uploaded primary document plus its appendices
type Document struct {
	ID              string                    `json:"id"`
	Name            string                    `json:"name"`
	ObjectName      string                    `json:"object_name"`
	Size            int64                     `json:"size"`
	Appendices      []AppendixFile            `json:"appendices"`
	Status          string                    `json:"status"` // not_started, processing, ready, failed
	ProcessingError string                    `json:"processing_error,omitempty"`
	Annotated       *AnnotatedDocumentDetails `json:"annotated,omitempty"`
	CreatedAt       time.Time                 `json:"created_at"`
	UpdatedAt       time.Time                 `json:"updated_at"`
}

// AppendixFile is one appendix attached to a primary document
type AppendixFile struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ObjectName string `json:"object_name"`
	Size       int64  `json:"size"`
}

// AnnotatedDocumentDetails describes the merged, page-annotated PDF produced
// by preprocessing. Annotated page numbers are 1-based and contiguous across
// the manifest entries in listed order.
type AnnotatedDocumentDetails struct {
	AnnotatedPath         string         `json:"annotated_path"`
	SectionsPerPage       int            `json:"sections_per_page"`
	OriginalFilesManifest []ManifestFile `json:"original_files_manifest"`
}

// ManifestFile maps a run of annotated pages back to one original file
type ManifestFile struct {
	Path      string `json:"path"`
	PageCount int    `json:"page_count"`
}

// TotalPages returns the annotated document's page count implied by the manifest
func (d *AnnotatedDocumentDetails) TotalPages() int {
	total := 0
	for _, f := range d.OriginalFilesManifest {
		total += f.PageCount
	}
	return total
}

// Document processing status constants
const (
	DocStatusNotStarted = "not_started"
	DocStatusProcessing = "processing"
	DocStatusReady      = "ready"
	DocStatusFailed     = "failed"
)

// Clone returns a deep copy safe to hand out past the store's lock
func (d *Document) Clone() *Document {
	cp := *d
	cp.Appendices = make([]AppendixFile, len(d.Appendices))
	copy(cp.Appendices, d.Appendices)
	if d.Annotated != nil {
		ann := *d.Annotated
		ann.OriginalFilesManifest = make([]ManifestFile, len(d.Annotated.OriginalFilesManifest))
		copy(ann.OriginalFilesManifest, d.Annotated.OriginalFilesManifest)
		cp.Annotated = &ann
	}
	return &cp
}
