package model

import "errors"

// Cell holds the answer slot for one (document, column) pair
type Cell struct {
	Status string `json:"status"` // idle, loading, done, error
	Answer string `json:"answer"`
}

// Cell status constants
const (
	CellStatusIdle    = "idle"
	CellStatusLoading = "loading"
	CellStatusDone    = "done"
	CellStatusError   = "error"
)

// Validation errors shared by the registries
var (
	ErrEmptyLabel    = errors.New("column label must not be empty")
	ErrEmptyPrompt   = errors.New("column prompt must not be empty")
	ErrUnknownFormat = errors.New("unknown column format")
)
