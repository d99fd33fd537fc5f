package store

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateAction is returned when an action for the same
	// (schedule, instant, device) triple has already been materialized
	ErrDuplicateAction = errors.New("action already materialized")

	// ErrNotClaimed is returned when a conditional status transition
	// finds the row no longer in the expected state
	ErrNotClaimed = errors.New("action not in claimable state")
)
