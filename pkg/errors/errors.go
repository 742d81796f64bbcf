// Package errors defines the typed error carried from domain code to the HTTP
// boundary, and the per-code metadata that decides status and wording.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeProcessed     Code = "ALREADY_PROCESSED"
	CodeInsufficient  Code = "INSUFFICIENT_STOCK"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

// Resolution tells a caller what to do next with a failed request.
type Resolution string

const (
	ResolutionRetry       Resolution = "retry"
	ResolutionChangeInput Resolution = "change_input"
	ResolutionRefetch     Resolution = "refetch"
)

type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
	// ExposeMessage lets the error's own message replace PublicMessage.
	ExposeMessage bool
	Resolution    Resolution
}

type trait uint8

const (
	retryable trait = 1 << iota
	withDetails
	ownMessage
)

func describe(status int, public string, res Resolution, traits trait) Metadata {
	return Metadata{
		HTTPStatus:     status,
		PublicMessage:  public,
		Resolution:     res,
		Retryable:      traits&retryable != 0,
		DetailsAllowed: traits&withDetails != 0,
		ExposeMessage:  traits&ownMessage != 0,
	}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:    describe(http.StatusBadRequest, "validation failed", ResolutionChangeInput, withDetails|ownMessage),
	CodeUnauthorized:  describe(http.StatusUnauthorized, "authentication required", ResolutionChangeInput, ownMessage),
	CodeForbidden:     describe(http.StatusForbidden, "access denied", ResolutionChangeInput, ownMessage),
	CodeNotFound:      describe(http.StatusNotFound, "resource not found", ResolutionRefetch, ownMessage),
	CodeConflict:      describe(http.StatusConflict, "conflict detected", ResolutionRefetch, ownMessage),
	CodeStateConflict: describe(http.StatusUnprocessableEntity, "state transition disallowed", ResolutionRefetch, withDetails|ownMessage),
	CodeProcessed:     describe(http.StatusConflict, "already processed", ResolutionRefetch, withDetails|ownMessage),
	CodeInsufficient:  describe(http.StatusConflict, "insufficient stock", ResolutionChangeInput, withDetails|ownMessage),
	CodeIdempotency:   describe(http.StatusConflict, "idempotency key reused", ResolutionChangeInput, withDetails|ownMessage),
	CodeRateLimit:     describe(http.StatusTooManyRequests, "rate limit exceeded", ResolutionRetry, retryable|ownMessage),
	CodeInternal:      describe(http.StatusInternalServerError, "internal server error", ResolutionRetry, retryable),
	CodeDependency:    describe(http.StatusServiceUnavailable, "dependency unavailable", ResolutionRetry, retryable|withDetails),
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Newf formats message like fmt.Sprintf.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// WithDetails attaches structured details and returns e for chaining.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	default:
		return fmt.Sprintf("%s: %s", e.code, e.message)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}
