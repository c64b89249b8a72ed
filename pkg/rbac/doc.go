// Package rbac implements the CropLink authorization engine: the permission
// catalog, role and assignment stores, the permission resolver, and the bulk
// assignment coordinator, plus the HTTP admin surface for all of them.
//
// # Data model
//
// A Permission is a (resource, action) pair, e.g. commodity:approve. The
// catalog is seeded at bootstrap and rarely changes; a catalog entry cannot
// be deleted while any role references it.
//
// Roles carry a permission set, a numeric level (higher = more authority),
// and flags for system roles and the platform admin role. System roles
// (Admin, Manager, Employee) are seeded per organization and are immutable
// through the API; the Platform Admin role is global and grants the full
// catalog.
//
// Assignments bind users to roles. Deactivating an assignment flips
// is_active and keeps the row for audit history; assigning an already-active
// pair is an idempotent no-op, and assigning an inactive pair reactivates it.
//
// # Resolution
//
// Resolver.Resolve unions the permission sets of a user's ACTIVE assignments.
// A principal holding the platform admin role short-circuits to the full
// catalog. A principal with no active assignments resolves to the empty set,
// which denies everything. Role level never influences resolution; it is
// consulted only by the resource ownership guard stage.
//
// # Errors
//
// Every failure surfaces as an *Error with a Kind from the denial taxonomy
// (RoleNotFound, DuplicateRoleName, SystemRoleImmutable, RoleInUse, ...).
// HTTPStatus maps kinds onto 400/401/403/404/409 for the admin surface.
package rbac
