package store

import "errors"

// Sentinel errors returned by Store implementations. Use errors.Is.
var (
	// ErrNotFound indicates a cursor or link row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrCategoryNotFound indicates the category key matched neither a
	// venture nor a domain. It is fatal for the record, not the pass.
	ErrCategoryNotFound = errors.New("category not found")

	// ErrInvalidInput indicates an upsert without a title or category.
	ErrInvalidInput = errors.New("invalid upsert input")
)
