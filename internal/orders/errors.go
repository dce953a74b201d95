package orders

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrCode string

const (
	CodeNotFound          ErrCode = "NOT_FOUND"
	CodeInvalidRequest    ErrCode = "INVALID_REQUEST"
	CodeInsufficientStock ErrCode = "INSUFFICIENT_STOCK"
	CodeConflict          ErrCode = "CONFLICT"
	CodeForbidden         ErrCode = "FORBIDDEN"
	CodeInvalidSignature  ErrCode = "INVALID_SIGNATURE"
	CodeInvalidState      ErrCode = "INVALID_STATE"
)

// Error is a domain failure carrying an HTTP-equivalent status so the
// transport layer can map it without switching on message text.
type Error struct {
	Code    ErrCode
	Status  int
	Message string
}

func (e *Error) Error() string { return e.Message }

func newError(code ErrCode, status int, format string, args ...any) *Error {
	return &Error{Code: code, Status: status, Message: fmt.Sprintf(format, args...)}
}

func ErrNotFound(format string, args ...any) *Error {
	return newError(CodeNotFound, http.StatusNotFound, format, args...)
}

func ErrInvalidRequest(format string, args ...any) *Error {
	return newError(CodeInvalidRequest, http.StatusBadRequest, format, args...)
}

func ErrInsufficientStock(name string, available, requested int) *Error {
	return newError(CodeInsufficientStock, http.StatusBadRequest,
		"insufficient stock for menu %q: available %d, requested %d", name, available, requested)
}

func ErrConflict(format string, args ...any) *Error {
	return newError(CodeConflict, http.StatusConflict, format, args...)
}

func ErrForbidden(format string, args ...any) *Error {
	return newError(CodeForbidden, http.StatusForbidden, format, args...)
}

func ErrInvalidSignature() *Error {
	return newError(CodeInvalidSignature, http.StatusUnauthorized, "invalid webhook signature")
}

func ErrInvalidState(format string, args ...any) *Error {
	return newError(CodeInvalidState, http.StatusBadRequest, format, args...)
}

// AsError unwraps err into a domain *Error if it is one.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsCode reports whether err is a domain error with the given code.
func IsCode(err error, code ErrCode) bool {
	e, ok := AsError(err)
	return ok && e.Code == code
}
