package protocol

import (
	"errors"

	"github.com/lox/fruitpass/internal/game"
	"github.com/lox/fruitpass/internal/session"
)

// ErrorCode is the machine-readable reason in an Error message.
type ErrorCode string

const (
	CodeValidation     ErrorCode = "validation"
	CodeRoomNotFound   ErrorCode = "room_not_found"
	CodeRoomFull       ErrorCode = "room_full"
	CodeAlreadyStarted ErrorCode = "game_already_started"
	CodeNotAuthorized  ErrorCode = "not_authorized"
	CodeInvalidMove    ErrorCode = "invalid_move"
	CodeWrongPhase     ErrorCode = "wrong_phase"
	CodeNotReady       ErrorCode = "not_ready"
	CodeNotInRoom      ErrorCode = "not_in_room"
	CodeTransport      ErrorCode = "sync_transport"
	CodeBadRequest     ErrorCode = "bad_request"
	CodeInternal       ErrorCode = "internal"
)

var codes = []struct {
	err  error
	code ErrorCode
}{
	{game.ErrValidation, CodeValidation},
	{game.ErrRoomNotFound, CodeRoomNotFound},
	{game.ErrRoomFull, CodeRoomFull},
	{game.ErrGameAlreadyStarted, CodeAlreadyStarted},
	{game.ErrNotAuthorized, CodeNotAuthorized},
	{game.ErrInvalidMove, CodeInvalidMove},
	{game.ErrWrongPhase, CodeWrongPhase},
	{game.ErrNotReady, CodeNotReady},
	{game.ErrNotInRoom, CodeNotInRoom},
	{session.ErrTransport, CodeTransport},
	{session.ErrConflict, CodeTransport},
	{ErrMalformed, CodeBadRequest},
}

// CodeFor maps an error to its wire code.
func CodeFor(err error) ErrorCode {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// NewError builds the Error message for err. Internal failures get a generic
// message so backend details stay on the server.
func NewError(err error) Error {
	code := CodeFor(err)
	msg := err.Error()
	if code == CodeInternal {
		msg = "internal error"
	}
	return Error{Code: code, Message: msg}
}
