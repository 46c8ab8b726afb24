package game

import "errors"

var (
	// ErrValidation is returned for blank names, codes or out-of-range
	// settings.
	ErrValidation = errors.New("validation failed")

	ErrRoomNotFound       = errors.New("room not found")
	ErrRoomFull           = errors.New("room is full")
	ErrGameAlreadyStarted = errors.New("game already started")
	ErrNotAuthorized      = errors.New("not authorized")
	ErrInvalidMove        = errors.New("invalid move")
	ErrWrongPhase         = errors.New("action not allowed in the current phase")
	ErrNotReady           = errors.New("waiting for players to be ready")
	ErrNotInRoom          = errors.New("participant is not in this room")
)
