package util

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError("FORBIDDEN", message, http.StatusForbidden, nil)
}

// NewInvalidTransition signals an operation not valid in the current state.
func NewInvalidTransition(from, op string) error {
	return NewDomainError("INVALID_TRANSITION",
		fmt.Sprintf("%s not valid from %s", op, from),
		http.StatusConflict, map[string]any{"status": from, "operation": op})
}

// NewAlreadyAccepted signals a lost accept race.
func NewAlreadyAccepted(ticketID string, acceptedBy *string) error {
	details := map[string]any{"ticket_id": ticketID}
	if acceptedBy != nil {
		details["accepted_by"] = *acceptedBy
	}
	return NewDomainError("ALREADY_ACCEPTED", "ticket already accepted", http.StatusConflict, details)
}

// NewAlreadyClaimed signals a lost claim race.
func NewAlreadyClaimed(ticketID string, claimedBy *string) error {
	details := map[string]any{"ticket_id": ticketID}
	if claimedBy != nil {
		details["claimed_by"] = *claimedBy
	}
	return NewDomainError("ALREADY_CLAIMED", "ticket already claimed", http.StatusConflict, details)
}

// NewCapacityExceeded signals a full category set or the platform channel ceiling.
func NewCapacityExceeded(message string, details map[string]any) error {
	return NewDomainError("CAPACITY_EXCEEDED", message, http.StatusServiceUnavailable, details)
}

// NewExternalUnavailable signals a transiently unreachable collaborator.
func NewExternalUnavailable(collaborator string, err error) error {
	return &DomainError{
		Code:       "EXTERNAL_SERVICE_UNAVAILABLE",
		Message:    fmt.Sprintf("%s unavailable", collaborator),
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}

// IsCode reports whether err carries the given domain error code.
func IsCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}
