package rbac

import (
	"context"
	"sort"
)

// PermissionSet is the resolved authority of a principal
type PermissionSet struct {
	perms           map[Permission]struct{}
	isPlatformAdmin bool
	maxRoleLevel    int
	roleNames       []string
}

// NewPermissionSet builds a resolved set directly, outside the resolver.
// Platform admin sets carry the full catalog regardless of perms.
func NewPermissionSet(perms []Permission, maxRoleLevel int, platformAdmin bool) *PermissionSet {
	set := &PermissionSet{
		perms:           make(map[Permission]struct{}),
		maxRoleLevel:    maxRoleLevel,
		isPlatformAdmin: platformAdmin,
	}
	for _, p := range perms {
		set.perms[p] = struct{}{}
	}
	if platformAdmin {
		for _, p := range DefaultPermissionCatalog() {
			set.perms[p] = struct{}{}
		}
	}
	return set
}

// Has reports whether the set grants a permission. Platform admins hold the
// full catalog, so the answer is always true for them.
func (ps *PermissionSet) Has(p Permission) bool {
	if ps.isPlatformAdmin {
		return true
	}
	_, ok := ps.perms[p]
	return ok
}

// IsPlatformAdmin reports whether the principal holds the platform admin role
func (ps *PermissionSet) IsPlatformAdmin() bool {
	return ps.isPlatformAdmin
}

// MaxRoleLevel returns the highest level among the principal's active roles,
// 0 when there are none.
func (ps *PermissionSet) MaxRoleLevel() int {
	return ps.maxRoleLevel
}

// RoleNames returns the names of the principal's active roles
func (ps *PermissionSet) RoleNames() []string {
	return ps.roleNames
}

// List returns the granted permissions in catalog order
func (ps *PermissionSet) List() []Permission {
	perms := make([]Permission, 0, len(ps.perms))
	for p := range ps.perms {
		perms = append(perms, p)
	}
	sort.Slice(perms, func(i, j int) bool {
		if perms[i].Resource != perms[j].Resource {
			return perms[i].Resource < perms[j].Resource
		}
		return perms[i].Action < perms[j].Action
	})
	return perms
}

// Len returns the number of granted permissions
func (ps *PermissionSet) Len() int {
	return len(ps.perms)
}

// Resolver computes a principal's permission set from active assignments.
// The resolver itself is stateless and uncached; callers that need caching
// layer it outside (the guard middleware does).
type Resolver struct {
	store *Store
}

// NewResolver creates a new permission resolver
func NewResolver(store *Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve computes the permission set for a user within an organization.
// A platform admin short-circuits to the full catalog; a user with no active
// assignments resolves to the empty set, which is not an error.
func (r *Resolver) Resolve(ctx context.Context, userID int64, orgID *int64) (*PermissionSet, error) {
	roles, err := r.store.GetActiveRoles(ctx, userID, orgID)
	if err != nil {
		return nil, err
	}

	set := &PermissionSet{perms: make(map[Permission]struct{})}
	for _, role := range roles {
		set.roleNames = append(set.roleNames, role.Name)
		if role.Level > set.maxRoleLevel {
			set.maxRoleLevel = role.Level
		}
		if role.IsPlatformAdmin {
			set.isPlatformAdmin = true
		}
		for _, p := range role.Permissions {
			set.perms[p] = struct{}{}
		}
	}

	if set.isPlatformAdmin {
		// Full catalog, independent of whatever the platform role row carries
		for _, p := range DefaultPermissionCatalog() {
			set.perms[p] = struct{}{}
		}
	}

	return set, nil
}

// Check reports whether a user holds a single permission
func (r *Resolver) Check(ctx context.Context, userID int64, orgID *int64, p Permission) (bool, error) {
	set, err := r.Resolve(ctx, userID, orgID)
	if err != nil {
		return false, err
	}
	return set.Has(p), nil
}

// CheckMany answers a batch of permission checks with a single resolution.
// The result order matches the input order; empty input yields empty output.
func (r *Resolver) CheckMany(ctx context.Context, userID int64, orgID *int64, checks []CheckRequest) ([]CheckResult, error) {
	results := make([]CheckResult, 0, len(checks))
	if len(checks) == 0 {
		return results, nil
	}

	set, err := r.Resolve(ctx, userID, orgID)
	if err != nil {
		return nil, err
	}

	for _, c := range checks {
		results = append(results, CheckResult{
			Resource: c.Resource,
			Action:   c.Action,
			Allowed:  set.Has(Permission{Resource: c.Resource, Action: c.Action}),
		})
	}
	return results, nil
}
