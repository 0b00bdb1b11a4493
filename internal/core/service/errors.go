package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound covers missing bins, assemblies, orders, stations and
	// workers. Not retryable.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientStock means one or more required parts were
	// unavailable. The operation had no effect; retryable.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInvalidState means the operation does not apply to the record's
	// current state, e.g. completing a finished assembly. Not retryable.
	ErrInvalidState = errors.New("invalid state")

	// ErrUnavailable means the underlying store failed mid-operation. The
	// atomic unit was discarded; retryable.
	ErrUnavailable = errors.New("storage unavailable")
)

// InsufficientStockError names the first part that could not be supplied
// during a reservation.
type InsufficientStockError struct {
	BinID    string
	PartID   string
	PartName string
	Quantity int // quantity left in the bin, unchanged
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock of part %q (bin %s, %d left)", e.PartName, e.BinID, e.Quantity)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
