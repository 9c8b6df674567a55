package util

import "errors"

var (
	// ErrNoExtractableText marks PDFs with no text layer (scanned images).
	ErrNoExtractableText = errors.New("no extractable text found in PDF")

	// ErrNotFound is returned by storage lookups for missing rows.
	ErrNotFound = errors.New("not found")
)
