package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeRoomNotFound     = "room_not_found"
	ErrCodeRoomExists       = "room_exists"
	ErrCodeStoreUnavailable = "store_unavailable"
	ErrCodeBusUnavailable   = "bus_unavailable"
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnknownStrategy  = "unknown_strategy"
	ErrCodeUnknownCommand   = "unknown_command"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeInternal         = "internal"
)

var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrRoomExists       = errors.New("room already exists")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrBusUnavailable   = errors.New("bus unavailable")
	ErrBadRequest       = errors.New("bad request")
	ErrUnknownStrategy  = errors.New("unknown strategy")
)

// CoreError wraps a code and human-readable message.
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

// ToCoreError maps an error returned by a strategy to its wire representation.
func ToCoreError(err error) *CoreError {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce
	}
	return coreError(CodeOf(err), err.Error())
}

// CodeOf returns the wire code for err.
func CodeOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRoomNotFound):
		return ErrCodeRoomNotFound
	case errors.Is(err, ErrRoomExists):
		return ErrCodeRoomExists
	case errors.Is(err, ErrStoreUnavailable):
		return ErrCodeStoreUnavailable
	case errors.Is(err, ErrBusUnavailable):
		return ErrCodeBusUnavailable
	case errors.Is(err, ErrBadRequest):
		return ErrCodeBadRequest
	case errors.Is(err, ErrUnknownStrategy):
		return ErrCodeUnknownStrategy
	}
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ErrCodeInternal
}
