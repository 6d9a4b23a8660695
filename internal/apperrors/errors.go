package apperrors

import (
	"fmt"
	"net/http"
)

// Kind is a stable machine-readable error discriminator carried in responses.
type Kind string

const (
	KindInvalidRequest           Kind = "invalid_request"
	KindUnauthorized             Kind = "unauthorized"
	KindSessionNotFound          Kind = "session_not_found"
	KindSessionExpired           Kind = "session_expired"
	KindSessionStateConflict     Kind = "session_state_conflict"
	KindTargetAlreadyRegistered  Kind = "target_already_registered"
	KindDeviceNotFound           Kind = "device_not_found"
	KindDeviceAlreadyRegistered  Kind = "device_already_registered"
	KindQuotaExceeded            Kind = "quota_exceeded"
	KindTooManyAttempts          Kind = "too_many_attempts"
	KindPayloadNotFound          Kind = "payload_not_found"
	KindInternal                 Kind = "internal"
)

// APIError is a domain failure recovered at the service boundary and mapped
// to a response by the HTTP handler layer.
type APIError struct {
	Kind       Kind
	HTTPStatus int
	Message    string
	cause      error
}

func (e *APIError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.cause
}

func NewErrInvalidRequest(message string) *APIError {
	return &APIError{Kind: KindInvalidRequest, HTTPStatus: http.StatusBadRequest, Message: message}
}

func NewErrUnauthorized(message string) *APIError {
	return &APIError{Kind: KindUnauthorized, HTTPStatus: http.StatusForbidden, Message: message}
}

func NewErrMissingAuthorizationToken() *APIError {
	return &APIError{Kind: KindUnauthorized, HTTPStatus: http.StatusUnauthorized, Message: "authorization token is missing"}
}

func NewErrInvalidAuthorizationToken() *APIError {
	return &APIError{Kind: KindUnauthorized, HTTPStatus: http.StatusUnauthorized, Message: "authorization token is invalid"}
}

func NewErrSessionNotFound(code string) *APIError {
	return &APIError{Kind: KindSessionNotFound, HTTPStatus: http.StatusNotFound, Message: fmt.Sprintf("no migration session matches %q", code)}
}

func NewErrSessionExpired(code string) *APIError {
	return &APIError{Kind: KindSessionExpired, HTTPStatus: http.StatusGone, Message: fmt.Sprintf("migration session %q has expired", code)}
}

func NewErrSessionStateConflict(message string) *APIError {
	return &APIError{Kind: KindSessionStateConflict, HTTPStatus: http.StatusConflict, Message: message}
}

func NewErrTargetAlreadyRegistered() *APIError {
	return &APIError{Kind: KindTargetAlreadyRegistered, HTTPStatus: http.StatusConflict, Message: "a different target device is already registered for this session"}
}

func NewErrDeviceNotFound(deviceID string) *APIError {
	return &APIError{Kind: KindDeviceNotFound, HTTPStatus: http.StatusNotFound, Message: fmt.Sprintf("device %q is not registered", deviceID)}
}

func NewErrDeviceAlreadyRegistered(deviceID string) *APIError {
	return &APIError{Kind: KindDeviceAlreadyRegistered, HTTPStatus: http.StatusConflict, Message: fmt.Sprintf("device %q is already registered", deviceID)}
}

func NewErrQuotaExceeded() *APIError {
	return &APIError{Kind: KindQuotaExceeded, HTTPStatus: http.StatusTooManyRequests, Message: "too many active migration sessions for this user"}
}

func NewErrTooManyAttempts() *APIError {
	return &APIError{Kind: KindTooManyAttempts, HTTPStatus: http.StatusTooManyRequests, Message: "too many authorization attempts for this session"}
}

func NewErrPayloadNotFound() *APIError {
	return &APIError{Kind: KindPayloadNotFound, HTTPStatus: http.StatusNotFound, Message: "no payload is available for this session"}
}

// NewErrInternal wraps an unexpected error. The message stays generic so
// store and crypto internals never leak to callers.
func NewErrInternal(err error) *APIError {
	return &APIError{Kind: KindInternal, HTTPStatus: http.StatusInternalServerError, Message: "internal server error", cause: err}
}
