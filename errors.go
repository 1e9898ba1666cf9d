package relay

import "errors"

var (
	// Store errors.
	ErrNoStore     = errors.New("relay: no store configured")
	ErrStoreClosed = errors.New("relay: store closed")

	// Wiring errors.
	ErrNoPool = errors.New("relay: no worker pool wired")

	// Not found errors.
	ErrJobNotFound   = errors.New("relay: job not found")
	ErrQueueNotFound = errors.New("relay: queue not found")
	ErrDLQNotFound   = errors.New("relay: dlq entry not found")

	// Conflict errors.
	ErrJobAlreadyExists = errors.New("relay: job already exists")

	// State errors.
	ErrInvalidState   = errors.New("relay: invalid state transition")
	ErrInvalidOptions = errors.New("relay: invalid job options")
	ErrDraining       = errors.New("relay: draining, not accepting work")
)
