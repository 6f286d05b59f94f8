package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeAlreadyAuthenticated = "already_authenticated"
	ErrCodeNotAuthenticated     = "not_authenticated"
	ErrCodeNicknameTaken        = "nickname_taken"
	ErrCodeWrongPassword        = "wrong_password"
	ErrCodeRoomNotAvailable     = "room_not_available"
	ErrCodeNoCurrentRoom        = "no_current_room"
	ErrCodeMalformedCommand     = "malformed_command"
	ErrCodeInvalidArgument      = "invalid_argument"
	ErrCodeRoomExists           = "room_exists"
	ErrCodeRateLimited          = "rate_limited"
	ErrCodeInternal             = "internal"
)

var (
	ErrAlreadyAuthenticated = errors.New("already authenticated")
	ErrNotAuthenticated     = errors.New("not authenticated")
	ErrRoomNotAvailable     = errors.New("room not available")
	ErrNoCurrentRoom        = errors.New("no current room")
)

// CoreError wraps a code and the human-readable line sent to the session.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}
