package fulfillment

import (
	"errors"

	"github.com/th2484/ziplineordersystem/internal/store"
)

var (
	// ErrNotFound is returned when a referenced product, order or inventory
	// row does not exist.
	ErrNotFound = store.ErrNotFound
	// ErrUnshippable is returned when a single unit of a product meets or
	// exceeds the mass ceiling. It is never retried.
	ErrUnshippable = errors.New("item is too heavy to ship")
	// ErrMassLimitExceeded is returned when an order shipped as one unit
	// would exceed the mass ceiling.
	ErrMassLimitExceeded = errors.New("order mass exceeds shipment ceiling")
	// ErrIntegrityViolation is returned when a committed shipment weighs at
	// least the ceiling.
	ErrIntegrityViolation = errors.New("shipment integrity violation")
	// ErrConfiguration is returned for duplicate or malformed catalog data.
	ErrConfiguration = errors.New("configuration error")
	// ErrInvalidRequest is returned for malformed intake, restock or
	// shipment payloads.
	ErrInvalidRequest = errors.New("invalid request")
)
