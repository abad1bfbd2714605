package domain

import "errors"

var (
	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrNotFound is returned when a product, video or job does not exist
	ErrNotFound = errors.New("record not found")

	// ErrStoreUnavailable is returned when the data store cannot be read or written
	ErrStoreUnavailable = errors.New("data store unavailable")

	// ErrBatchInProgress is returned when another batch, smart or rebuild run holds the matcher lease
	ErrBatchInProgress = errors.New("a matching batch is already in progress")

	// ErrLeaseNotAcquired is returned by lockers when the key is already held
	ErrLeaseNotAcquired = errors.New("lease not acquired")

	// ErrLeaseNotHeld is returned when releasing a lease that expired or was taken over
	ErrLeaseNotHeld = errors.New("lease not held")

	// ErrAIUnavailable is returned when the AI completion request fails
	ErrAIUnavailable = errors.New("AI completion request failed")

	// ErrUnsupportedFormat is returned when an uploaded spreadsheet is neither CSV nor XLSX
	ErrUnsupportedFormat = errors.New("unsupported spreadsheet format")
)
