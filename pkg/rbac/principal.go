package rbac

import (
	"context"

	"github.com/croplink/croplink/pkg/contextkeys"
)

// Principal is the authenticated identity a request acts as. The guard chain
// builds it during authentication and stores it on the request context; the
// admin handlers read it back for attribution.
type Principal struct {
	UserID         int64
	Username       string
	OrganizationID *int64

	// Permissions is the lazily resolved permission set; nil until the
	// guard's permission stage (or the caller) resolves it.
	Permissions *PermissionSet
}

// IsPlatformAdmin reports whether the principal's resolved set carries the
// platform admin role. False while Permissions is unresolved.
func (p *Principal) IsPlatformAdmin() bool {
	return p.Permissions != nil && p.Permissions.IsPlatformAdmin()
}

// PrincipalFromContext retrieves the authenticated principal, if any
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	principal, ok := ctx.Value(contextkeys.PrincipalKey).(*Principal)
	return principal, ok && principal != nil
}
