package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/npezzotti/chatty/internal/errs"
)

type ApiError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

func newApiError(status int) *ApiError {
	return &ApiError{
		StatusCode: status,
		Message:    lower(http.StatusText(status)),
	}
}

func NewBadRequestError() *ApiError {
	return newApiError(http.StatusBadRequest)
}

func NewNotFoundError() *ApiError {
	return newApiError(http.StatusNotFound)
}

func NewInternalServerError(err error) *ApiError {
	e := newApiError(http.StatusInternalServerError)
	e.Err = err
	return e
}

func NewUnauthorizedError() *ApiError {
	return newApiError(http.StatusUnauthorized)
}

func NewForbiddenError() *ApiError {
	return newApiError(http.StatusForbidden)
}

func NewConflictError() *ApiError {
	return newApiError(http.StatusConflict)
}

func NewServiceUnavailableError(err error) *ApiError {
	e := newApiError(http.StatusServiceUnavailable)
	e.Err = err
	return e
}

// NewValidationError reports the first failing field of a request body.
func NewValidationError(err error) *ApiError {
	e := NewBadRequestError()
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		e.Message = fmt.Sprintf("invalid %s: failed %q", lower(fe.Field()), fe.Tag())
	}
	e.Err = err
	return e
}

// fromError maps a domain error onto an ApiError. Client facing kinds keep
// their message; anything else becomes an internal server error.
func fromError(err error) *ApiError {
	var apiErr *ApiError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var status int
	switch errs.KindOf(err) {
	case errs.KindUnauthenticated:
		status = http.StatusUnauthorized
	case errs.KindForbidden:
		status = http.StatusForbidden
	case errs.KindNotFound:
		status = http.StatusNotFound
	case errs.KindConflict:
		status = http.StatusConflict
	case errs.KindInvalid:
		status = http.StatusBadRequest
	default:
		return NewInternalServerError(err)
	}

	var de *errs.Error
	errors.As(err, &de)
	return &ApiError{
		StatusCode: status,
		Message:    de.Message,
		Err:        err,
	}
}
