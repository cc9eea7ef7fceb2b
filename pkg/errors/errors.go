// Package errors carries the service's typed errors. Each Code maps to an
// HTTP status and public message through MetadataFor.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

// Code is the machine-readable error code returned in API error bodies.
type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	CodeTotalMismatch     Code = "TOTAL_MISMATCH"
	CodeInvalidDiscount   Code = "INVALID_DISCOUNT"
	CodeDiscountExpired   Code = "DISCOUNT_EXPIRED"
	CodeDiscountExhausted Code = "DISCOUNT_EXHAUSTED"
	CodeInsufficientStock Code = "INSUFFICIENT_STOCK"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeNotCancellable    Code = "NOT_CANCELLABLE"
	CodeNotRefundable     Code = "NOT_REFUNDABLE"
	CodeInvalidQuantity   Code = "INVALID_QUANTITY"
	CodeNotDeliverable    Code = "NOT_DELIVERABLE"
)

// Metadata is how a code surfaces over HTTP.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

// flags for the table below
const (
	retryable   = true
	withDetails = true
)

var metadataByCode = map[Code]Metadata{
	CodeValidation:    {http.StatusBadRequest, false, "validation failed", withDetails},
	CodeUnauthorized:  {http.StatusUnauthorized, false, "authentication required", false},
	CodeForbidden:     {http.StatusForbidden, false, "access denied", false},
	CodeNotFound:      {http.StatusNotFound, false, "resource not found", false},
	CodeConflict:      {http.StatusConflict, false, "conflict detected", false},
	CodeStateConflict: {http.StatusUnprocessableEntity, false, "state transition disallowed", withDetails},
	CodeIdempotency:   {http.StatusConflict, false, "idempotency key reused", withDetails},
	CodeRateLimit:     {http.StatusTooManyRequests, false, "rate limit exceeded", false},
	CodeInternal:      {http.StatusInternalServerError, retryable, "internal server error", false},
	CodeDependency:    {http.StatusServiceUnavailable, retryable, "dependency unavailable", withDetails},

	// order placement
	CodeTotalMismatch:     {http.StatusUnprocessableEntity, false, "order total does not match", withDetails},
	CodeInvalidDiscount:   {http.StatusUnprocessableEntity, false, "discount code is not valid", withDetails},
	CodeDiscountExpired:   {http.StatusUnprocessableEntity, false, "discount code has expired", withDetails},
	CodeDiscountExhausted: {http.StatusUnprocessableEntity, false, "discount code has no remaining uses", withDetails},
	CodeInsufficientStock: {http.StatusConflict, false, "insufficient stock", withDetails},

	// lifecycle and after-sales
	CodeInvalidTransition: {http.StatusConflict, false, "status transition not allowed", withDetails},
	CodeNotCancellable:    {http.StatusConflict, false, "order can no longer be cancelled", withDetails},
	CodeNotRefundable:     {http.StatusConflict, false, "order is not eligible for a refund", withDetails},
	CodeInvalidQuantity:   {http.StatusUnprocessableEntity, false, "requested quantity exceeds delivered quantity", withDetails},
	CodeNotDeliverable:    {http.StatusConflict, false, "order has not been delivered", withDetails},
}

// MetadataFor falls back to the internal-error metadata for unknown codes.
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

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
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

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
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

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

// IsDiscountError reports whether err is one of the discount rejection codes.
func IsDiscountError(err error) bool {
	return Is(err, CodeInvalidDiscount) || Is(err, CodeDiscountExpired) || Is(err, CodeDiscountExhausted)
}
