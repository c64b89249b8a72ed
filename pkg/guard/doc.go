// Package guard implements the ordered authorization chain every request
// passes through before reaching a handler.
//
// The chain runs five stages in a fixed order: authentication, organization
// isolation, feature access, permission check, and resource ownership. Each
// stage is a plain function over a shared Request; the runner halts on the
// first denial and reports it with a typed kind from pkg/rbac. Platform
// admins bypass the isolation, feature, and ownership stages, and every
// bypass is audit-logged with the stage name.
//
// The chain itself is stateless. Principal resolution is cached in front of
// it by PrincipalLoader, an expiring LRU keyed by user ID that the RBAC
// admin handlers invalidate on every role or assignment mutation.
package guard
