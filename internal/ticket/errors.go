package ticket

import "errors"

var (
	// ErrValidation marks an incomplete or malformed submission. Nothing is
	// created when it is returned.
	ErrValidation = errors.New("invalid ticket")

	// ErrForbidden marks a role or ownership guard failure.
	ErrForbidden = errors.New("not allowed")

	// ErrNotFound marks an unknown ticket id.
	ErrNotFound = errors.New("ticket not found")

	// ErrAlreadyHandled is the informational outcome for a lost claim race or
	// an operation on a ticket that already left the relevant state. It is
	// not a fault and never mutates anything.
	ErrAlreadyHandled = errors.New("ticket already handled")

	// ErrSequence marks an operation attempted out of lifecycle order, e.g.
	// a photo before the solution text.
	ErrSequence = errors.New("operation out of order")
)
