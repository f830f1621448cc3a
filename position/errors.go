package position

import "errors"

var (
	// ErrDuplicateOpenPosition: the symbol already has an open position and
	// pyramiding is disabled.
	ErrDuplicateOpenPosition = errors.New("position: symbol already has an open position")

	// ErrPyramidingDisabled: AddTo called on a session with pyramiding off.
	ErrPyramidingDisabled = errors.New("position: pyramiding disabled for session")

	// ErrPositionNotFound: no open position for the symbol.
	ErrPositionNotFound = errors.New("position: no open position for symbol")

	// ErrReduceExceedsPosition: reduce called with a non-positive quantity.
	// A reduce quantity >= the open quantity is not an error; it closes.
	ErrReduceExceedsPosition = errors.New("position: reduce quantity must be positive")

	// ErrInsufficientCapital: margin for the operation exceeds available capital.
	ErrInsufficientCapital = errors.New("position: insufficient available capital")

	// ErrInvalidOpen: degenerate open request (non-positive quantity, price,
	// leverage out of session bounds, or stop/target on the wrong side).
	ErrInvalidOpen = errors.New("position: invalid open request")
)
