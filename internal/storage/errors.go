package storage

import "errors"

var (
	// ErrBudgetNotFound is returned when a tenant has no budget row
	ErrBudgetNotFound = errors.New("tenant budget not found")

	// ErrGenerationExists is returned when a generation record ID is reused
	ErrGenerationExists = errors.New("generation record already exists")

	// ErrEmptyCatalog is returned when no enabled provider profiles exist
	ErrEmptyCatalog = errors.New("no provider profiles configured")
)
