package domain

import "errors"

var (
	ErrNotFound  = errors.New("not found")
	ErrLockHeld  = errors.New("lock already held")
	ErrRateLimit = errors.New("rate limited")

	// ErrValidation marks every local precondition failure. Errors wrapping it
	// are raised before any wallet interaction.
	ErrValidation     = errors.New("validation failed")
	ErrNotOwner       = errors.New("caller is not the slot owner")
	ErrSlotOccupied   = errors.New("slot is occupied")
	ErrBelowMinimum   = errors.New("valuation below minimum")
	ErrInvalidPeriods = errors.New("tax periods must be greater than zero")
	ErrZeroValue      = errors.New("computed transaction value is zero")
	ErrInvalidURI     = errors.New("unsupported creative uri")

	ErrActionInProgress    = errors.New("action in progress")
	ErrAbandoned           = errors.New("caller stopped waiting for action result")
	ErrTransactionReverted = errors.New("transaction reverted")
)
