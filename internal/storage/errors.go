package storage

import "errors"

// Storage errors shared by all store implementations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when an insert collides with an existing
	// key, including the one-pending-claim-per-(team, player) index.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotPending is returned when a conditional claim transition finds the
	// claim already in a terminal state.
	ErrNotPending = errors.New("claim is not pending")

	// ErrInsufficientBudget is returned when a budget deduction would take
	// faab_remaining below zero.
	ErrInsufficientBudget = errors.New("insufficient faab budget")

	// ErrRosterFull is returned when adding a player would exceed roster_max.
	ErrRosterFull = errors.New("roster full")

	// ErrUnavailable is returned when the backing store cannot be reached.
	// Callers treat it as a league-level failure and retry later.
	ErrUnavailable = errors.New("store unavailable")
)
