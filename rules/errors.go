package rules

import "errors"

var (
	// ErrInvalidFEN indicates a malformed FEN string.
	ErrInvalidFEN = errors.New("invalid position")

	// ErrInvalidPGN indicates a malformed game record.
	ErrInvalidPGN = errors.New("invalid game record")

	// ErrInvalidSquare indicates a malformed square coordinate.
	ErrInvalidSquare = errors.New("invalid square")

	// ErrIllegalMove indicates a move that is not legal in the current position.
	ErrIllegalMove = errors.New("illegal move")
)
