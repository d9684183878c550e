package inforequests

import "errors"

var (
	// ErrNotFound covers missing rows and ownership misses alike, so a
	// caller cannot tell whether the entity exists under someone else.
	ErrNotFound = errors.New("not found")

	// ErrValidation marks user input violating a field contract.
	ErrValidation = errors.New("validation failed")

	// ErrProtocol marks an attempt to append an action the state machine
	// forbids. The UI should make this unreachable; the engine enforces it
	// regardless.
	ErrProtocol = errors.New("action not allowed by protocol")

	// ErrNotOldest is returned when a classification races: the submitted
	// message is no longer the oldest undecided one.
	ErrNotOldest = errors.New("message is not the oldest undecided")

	// ErrAddressExhausted is returned when the unique reply address cannot
	// be allocated within the token length bound.
	ErrAddressExhausted = errors.New("unique address space exhausted")

	// ErrClosed marks an operation on a closed inforequest.
	ErrClosed = errors.New("inforequest is closed")

	// ErrDissolved marks an attempt to address a dissolved obligee.
	ErrDissolved = errors.New("obligee is dissolved")
)
