package position

import "errors"

var (
	ErrInvalidRequest      = errors.New("invalid open request")
	ErrPositionExists      = errors.New("position already exists for key")
	ErrMaxPositions        = errors.New("maximum concurrent positions reached")
	ErrInsufficientBalance = errors.New("insufficient available balance")
	ErrPositionNotFound    = errors.New("position not found")
	ErrExecutionFailed     = errors.New("entry execution failed")
	ErrInvalidTransition   = errors.New("status transition not permitted")
	ErrInvalidFraction     = errors.New("partial close fraction must be between 0 and 1")
)
