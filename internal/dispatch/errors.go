package dispatch

import (
	"errors"

	"reminderd/internal/domain"
)

// Error tags a per-obligation failure with its classification.
type Error struct {
	Code domain.ErrorCode
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func wrap(code domain.ErrorCode, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

// CodeOf reports the classification of err, or CodeInternal if it carries none.
func CodeOf(err error) domain.ErrorCode {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return domain.CodeInternal
}
