package util

import "errors"

var (
	// ErrNotFound covers conversations and materials that do not exist or
	// do not belong to the requesting user.
	ErrNotFound = errors.New("not found")

	// ErrDimensionMismatch rejects vector index insertions whose chunk and
	// embedding lists differ in length.
	ErrDimensionMismatch = errors.New("chunk and embedding counts differ")

	ErrNoExtractableText   = errors.New("no extractable text found in file")
	ErrUnsupportedFileType = errors.New("unsupported file type")
)
