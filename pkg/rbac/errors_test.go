package rbac

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		kind   Kind
		status int
	}{
		{KindUnauthenticated, http.StatusUnauthorized},
		{KindTenantMismatch, http.StatusForbidden},
		{KindFeatureNotAvailable, http.StatusForbidden},
		{KindPermissionDenied, http.StatusForbidden},
		{KindNotResourceOwner, http.StatusForbidden},
		{KindInsufficientLevel, http.StatusForbidden},
		{KindSystemRoleImmutable, http.StatusForbidden},
		{KindRoleNotFound, http.StatusNotFound},
		{KindUserNotFound, http.StatusNotFound},
		{KindPermissionNotFound, http.StatusNotFound},
		{KindDuplicateRoleName, http.StatusConflict},
		{KindRoleInUse, http.StatusConflict},
		{KindPermissionInUse, http.StatusConflict},
		{KindInvalidLevel, http.StatusBadRequest},
		{KindInvalidPayload, http.StatusBadRequest},
		{KindInternal, http.StatusInternalServerError},
		{Kind("unknown"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			assert.Equal(t, tc.status, HTTPStatus(tc.kind))
		})
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindRoleNotFound, KindOf(E(KindRoleNotFound, "role 7 not found")))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain error")))
	assert.Equal(t, KindInternal, KindOf(nil))

	// Kind survives wrapping with fmt.Errorf
	wrapped := fmt.Errorf("handler: %w", E(KindDuplicateRoleName, "dup"))
	assert.Equal(t, KindDuplicateRoleName, KindOf(wrapped))
}

func TestErrorIs(t *testing.T) {
	err := Wrap(KindRoleInUse, errors.New("cause"), "role busy")

	assert.True(t, errors.Is(err, &Error{Kind: KindRoleInUse}))
	assert.False(t, errors.Is(err, &Error{Kind: KindRoleNotFound}))

	var typed *Error
	assert.True(t, errors.As(err, &typed))
	assert.Equal(t, "role_in_use: role busy", typed.Error())
	assert.EqualError(t, errors.Unwrap(typed), "cause")
}
