package rbac

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an authorization failure
type Kind string

const (
	// Guard chain denials
	KindUnauthenticated     Kind = "unauthenticated"
	KindTenantMismatch      Kind = "tenant_mismatch"
	KindFeatureNotAvailable Kind = "feature_not_available"
	KindPermissionDenied    Kind = "permission_denied"
	KindNotResourceOwner    Kind = "not_resource_owner"
	KindInsufficientLevel   Kind = "insufficient_role_level"

	// Store failures
	KindRoleNotFound        Kind = "role_not_found"
	KindUserNotFound        Kind = "user_not_found"
	KindPermissionNotFound  Kind = "permission_not_found"
	KindDuplicateRoleName   Kind = "duplicate_role_name"
	KindSystemRoleImmutable Kind = "system_role_immutable"
	KindRoleInUse           Kind = "role_in_use"
	KindPermissionInUse     Kind = "permission_in_use"

	// Input validation
	KindInvalidLevel   Kind = "invalid_level"
	KindInvalidPayload Kind = "invalid_payload"

	// Everything else
	KindInternal Kind = "internal"
)

// Error is a typed authorization failure
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	// Wrapped is the underlying cause, if any
	Wrapped error `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Message
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Is allows errors.Is comparisons against another *Error by kind
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// E creates a typed error
func E(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a typed error around an underlying cause
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Wrapped: err}
}

// KindOf extracts the Kind from an error chain, defaulting to KindInternal
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps a denial kind to its HTTP status code
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindTenantMismatch, KindFeatureNotAvailable, KindPermissionDenied,
		KindNotResourceOwner, KindInsufficientLevel, KindSystemRoleImmutable:
		return http.StatusForbidden
	case KindRoleNotFound, KindUserNotFound, KindPermissionNotFound:
		return http.StatusNotFound
	case KindDuplicateRoleName, KindRoleInUse, KindPermissionInUse:
		return http.StatusConflict
	case KindInvalidLevel, KindInvalidPayload:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
