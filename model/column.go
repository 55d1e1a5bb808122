package model

// Column is a reusable question/extraction definition applied to every document
type Column struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Prompt string `json:"prompt"`
	Format string `json:"format"`
}

// Column format constants
const (
	FormatText         = "Text"
	FormatBulletedList = "Bulleted list"
	FormatYesNo        = "Yes/No"
	FormatDate         = "Date"
	FormatTag          = "Tag"
	FormatMultipleTags = "Multiple tags"
	FormatVerbatim     = "Verbatim"
	FormatManualInput  = "Manual input"
)

// Formats lists every valid column format
var Formats = []string{
	FormatText,
	FormatBulletedList,
	FormatYesNo,
	FormatDate,
	FormatTag,
	FormatMultipleTags,
	FormatVerbatim,
	FormatManualInput,
}

// ValidFormat reports whether f is a known column format
func ValidFormat(f string) bool {
	for _, known := range Formats {
		if f == known {
			return true
		}
	}
	return false
}

// Validate checks the column definition invariants: label non-empty, format
// known, prompt non-empty unless the column is manual input
func (c *Column) Validate() error {
	if c.Label == "" {
		return ErrEmptyLabel
	}
	if !ValidFormat(c.Format) {
		return ErrUnknownFormat
	}
	if c.Prompt == "" && c.Format != FormatManualInput {
		return ErrEmptyPrompt
	}
	return nil
}
