package storage

import "errors"

// Storage errors shared by all ledger store implementations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record
	// with a key that already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInsufficientFunds is returned when a conditional debit finds balance < amount.
	ErrInsufficientFunds = errors.New("insufficient balance")

	// ErrConflict is returned when a one-way state transition was already taken
	// (investment already sold, fee already paid out).
	ErrConflict = errors.New("state transition already applied")
)
