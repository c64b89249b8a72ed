package guard

import (
	"context"

	"github.com/croplink/croplink/pkg/orgs"
	"github.com/croplink/croplink/pkg/rbac"
)

// PrincipalSource turns a bearer token into an authenticated principal with
// its permission set resolved. PrincipalLoader is the production
// implementation.
type PrincipalSource interface {
	PrincipalFromToken(ctx context.Context, token string) (*rbac.Principal, error)
}

// FeatureChecker answers plan feature gates. orgs.Service implements it.
type FeatureChecker interface {
	FeatureEnabled(ctx context.Context, orgID int64, feature orgs.Feature) (bool, error)
}

// Authentication resolves the bearer token into a principal. Every denial
// here is Unauthenticated; the caller never learns whether the token was
// unknown, revoked, or expired.
func Authentication(source PrincipalSource) Stage {
	return Stage{Name: StageAuthentication, Run: func(ctx context.Context, req *Request) Result {
		if req.Token == "" {
			return Deny(rbac.KindUnauthenticated, "missing bearer token")
		}

		principal, err := source.PrincipalFromToken(ctx, req.Token)
		if err != nil {
			return Deny(rbac.KindUnauthenticated, "invalid or expired token")
		}

		req.Principal = principal
		return Pass()
	}}
}

// OrgIsolation rejects cross-tenant access. Requests without a tenant target
// pass; platform admins bypass.
func OrgIsolation() Stage {
	return Stage{Name: StageOrgIsolation, Run: func(ctx context.Context, req *Request) Result {
		if req.OrgID == nil {
			return Pass()
		}
		if req.Principal.IsPlatformAdmin() {
			return Bypass()
		}
		if req.Principal.OrganizationID == nil || *req.Principal.OrganizationID != *req.OrgID {
			return Deny(rbac.KindTenantMismatch, "request targets another organization")
		}
		return Pass()
	}}
}

// FeatureAccess enforces plan feature gates. Requests without a feature
// requirement pass; platform admins bypass.
func FeatureAccess(features FeatureChecker) Stage {
	return Stage{Name: StageFeatureAccess, Run: func(ctx context.Context, req *Request) Result {
		if req.Feature == "" {
			return Pass()
		}
		if req.Principal.IsPlatformAdmin() {
			return Bypass()
		}

		orgID := req.OrgID
		if orgID == nil {
			orgID = req.Principal.OrganizationID
		}
		if orgID == nil {
			return Deny(rbac.KindFeatureNotAvailable, "feature %q requires an organization", req.Feature)
		}

		enabled, err := features.FeatureEnabled(ctx, *orgID, req.Feature)
		if err != nil {
			return Deny(rbac.KindInternal, "feature lookup failed")
		}
		if !enabled {
			return Deny(rbac.KindFeatureNotAvailable, "feature %q is not in the organization's plan", req.Feature)
		}
		return Pass()
	}}
}

// PermissionCheck requires the declared permission. Platform admins pass
// through the resolved set's own short-circuit rather than a bypass, so the
// decision is still a real permission answer.
func PermissionCheck(resolver *rbac.Resolver) Stage {
	return Stage{Name: StagePermissionCheck, Run: func(ctx context.Context, req *Request) Result {
		if req.Permission == (rbac.Permission{}) {
			return Pass()
		}

		set := req.Principal.Permissions
		if set == nil {
			resolved, err := resolver.Resolve(ctx, req.Principal.UserID, req.Principal.OrganizationID)
			if err != nil {
				return Deny(rbac.KindInternal, "permission resolution failed")
			}
			req.Principal.Permissions = resolved
			set = resolved
		}

		if !set.Has(req.Permission) {
			return Deny(rbac.KindPermissionDenied, "missing permission %s", req.Permission)
		}
		return Pass()
	}}
}

// ResourceOwnership requires the principal to own the target resource, be
// assigned to it, or clear the resource's minimum role level. Requests
// without a resource context pass; platform admins bypass.
func ResourceOwnership() Stage {
	return Stage{Name: StageResourceOwnership, Run: func(ctx context.Context, req *Request) Result {
		res := req.Resource
		if res == nil {
			return Pass()
		}
		if req.Principal.IsPlatformAdmin() {
			return Bypass()
		}

		userID := req.Principal.UserID
		if res.OwnerID != nil && *res.OwnerID == userID {
			return Pass()
		}
		for _, assigned := range res.AssignedUserIDs {
			if assigned == userID {
				return Pass()
			}
		}

		if res.MinRoleLevel > 0 {
			if set := req.Principal.Permissions; set != nil && set.MaxRoleLevel() >= res.MinRoleLevel {
				return Pass()
			}
			return Deny(rbac.KindInsufficientLevel,
				"%s %s requires ownership or role level %d", res.Type, res.ID, res.MinRoleLevel)
		}
		return Deny(rbac.KindNotResourceOwner, "not the owner of %s %s", res.Type, res.ID)
	}}
}

// DefaultStages builds the standard five-stage chain in order
func DefaultStages(source PrincipalSource, features FeatureChecker, resolver *rbac.Resolver) []Stage {
	return []Stage{
		Authentication(source),
		OrgIsolation(),
		FeatureAccess(features),
		PermissionCheck(resolver),
		ResourceOwnership(),
	}
}
