package domain

import "errors"

// Errors crossing the apply pipeline boundaries.
var (
	// ErrAlreadyApplied indicates the correlation ID is present in the
	// applied-correlations ledger; the item must be counted as skipped.
	ErrAlreadyApplied = errors.New("correlation already applied")

	// ErrSchemaInvalid indicates the item payload is missing required fields
	// for its entity type.
	ErrSchemaInvalid = errors.New("schema invalid")

	// ErrEmptyCorrelationID indicates an item without an idempotency key.
	ErrEmptyCorrelationID = errors.New("correlation id is required")

	// ErrCorrelationIDTooLong indicates an idempotency key over the wire limit.
	ErrCorrelationIDTooLong = errors.New("correlation id exceeds 128 characters")

	// ErrEmptySiteCode indicates an item without an originating site.
	ErrEmptySiteCode = errors.New("site code is required")

	// ErrEmptyEntityType indicates an item without an entity type.
	ErrEmptyEntityType = errors.New("entity type is required")

	// ErrEmptyEntityID indicates an item without an entity id.
	ErrEmptyEntityID = errors.New("entity id is required")
)
