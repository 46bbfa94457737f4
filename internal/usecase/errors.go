package usecase

import (
	"errors"
	"fmt"

	"local-chat/internal/integrations/ollama"
	"local-chat/internal/repository"
)

type ErrorCode string

const (
	ErrorInvalidInput ErrorCode = "INVALID_INPUT"
	ErrorBusy         ErrorCode = "BUSY"
	ErrorNetwork      ErrorCode = "NETWORK_ERROR"
	ErrorServer       ErrorCode = "SERVER_ERROR"
	ErrorDecode       ErrorCode = "DECODE_ERROR"
	ErrorStorage      ErrorCode = "STORAGE_ERROR"
	ErrorInternal     ErrorCode = "INTERNAL_ERROR"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Code
	}
	return ""
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// classify maps a store or completion failure onto the error taxonomy.
func classify(reason string, err error) *Error {
	var ue *Error
	if errors.As(err, &ue) {
		return ue
	}
	var (
		storageErr *repository.StorageError
		statusErr  httpStatusCoder
		decodeErr  *ollama.DecodeError
		netErr     *ollama.NetworkError
	)
	switch {
	case errors.As(err, &storageErr):
		return newError(ErrorStorage, reason, err)
	case errors.As(err, &statusErr):
		return newError(ErrorServer, reason, err)
	case errors.As(err, &decodeErr):
		return newError(ErrorDecode, reason, err)
	case errors.As(err, &netErr):
		return newError(ErrorNetwork, reason, err)
	default:
		return newError(ErrorInternal, reason, err)
	}
}
