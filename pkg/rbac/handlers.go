package rbac

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/croplink/croplink/pkg/audit"
	"github.com/croplink/croplink/pkg/contextkeys"
	"github.com/croplink/croplink/pkg/httputil"
	"github.com/croplink/croplink/pkg/observability"
)

// CacheInvalidator drops cached principal permission sets after role or
// assignment mutations. The guard middleware's LRU cache implements it.
type CacheInvalidator interface {
	InvalidateUser(userID int64)
	InvalidateAll()
}

// noopInvalidator is used when no cache is wired
type noopInvalidator struct{}

func (noopInvalidator) InvalidateUser(int64) {}
func (noopInvalidator) InvalidateAll()       {}

// Handlers provides the RBAC HTTP admin surface
type Handlers struct {
	store       *Store
	resolver    *Resolver
	auditLogger audit.Logger
	cache       CacheInvalidator
}

// NewHandlers creates RBAC handlers. cache may be nil.
func NewHandlers(store *Store, resolver *Resolver, auditLogger audit.Logger, cache CacheInvalidator) *Handlers {
	if cache == nil {
		cache = noopInvalidator{}
	}
	return &Handlers{
		store:       store,
		resolver:    resolver,
		auditLogger: auditLogger,
		cache:       cache,
	}
}

// RegisterRoutes registers all RBAC routes. The router is expected to already
// be wrapped by the guard middleware requiring role:manage for mutations.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/rbac/roles", h.CreateRole).Methods("POST")
	router.HandleFunc("/rbac/roles", h.ListRoles).Methods("GET")
	router.HandleFunc("/rbac/roles/{id}", h.GetRole).Methods("GET")
	router.HandleFunc("/rbac/roles/{id}", h.UpdateRole).Methods("PUT")
	router.HandleFunc("/rbac/roles/{id}", h.DeleteRole).Methods("DELETE")

	router.HandleFunc("/rbac/permissions", h.ListPermissions).Methods("GET")

	router.HandleFunc("/rbac/check-permission", h.CheckPermission).Methods("POST")
	router.HandleFunc("/rbac/check-permissions", h.CheckPermissions).Methods("POST")
	router.HandleFunc("/rbac/user-permissions", h.UserPermissions).Methods("GET")

	router.HandleFunc("/rbac/users/{userId}/roles", h.AssignRole).Methods("POST")
	router.HandleFunc("/rbac/users/{userId}/roles", h.UserRoles).Methods("GET")
	router.HandleFunc("/rbac/users/{userId}/roles/{roleId}", h.DeactivateRole).Methods("DELETE")

	router.HandleFunc("/rbac/bulk/assign-roles", h.BulkAssignRoles).Methods("POST")
}

// writeError maps a typed rbac error onto the HTTP contract
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := KindOf(err)
	status := HTTPStatus(kind)

	if status >= 500 {
		observability.FromContext(r.Context()).WithError(err).Error("rbac handler failed")
		httputil.WriteErrorCode(w, status, string(KindInternal), "internal error")
		return
	}
	httputil.WriteErrorCode(w, status, string(kind), err.Error())
}

func (h *Handlers) actor(r *http.Request) (*Principal, *int64) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		return nil, nil
	}
	id := principal.UserID
	return principal, &id
}

func (h *Handlers) audit(r *http.Request, event *audit.Event) {
	ctx := r.Context()
	event.WithRequest(r, contextkeys.GetRequestID(ctx))
	if err := h.auditLogger.Log(ctx, event); err != nil {
		observability.FromContext(ctx).WithError(err).Warn("failed to write audit event")
	}
}

func roleAttributes(role *Role) map[string]interface{} {
	return map[string]interface{}{
		"organization_id":   role.OrganizationID,
		"name":              role.Name,
		"description":       role.Description,
		"level":             role.Level,
		"is_system_role":    role.IsSystemRole,
		"is_platform_admin": role.IsPlatformAdmin,
		"is_active":         role.IsActive,
		"permissions":       role.Permissions,
		"created_at":        role.CreatedAt,
		"updated_at":        role.UpdatedAt,
	}
}

func assignmentAttributes(a *Assignment) map[string]interface{} {
	return map[string]interface{}{
		"user_id":         a.UserID,
		"role_id":         a.RoleID,
		"organization_id": a.OrganizationID,
		"is_active":       a.IsActive,
		"assigned_by":     a.AssignedBy,
		"assigned_at":     a.AssignedAt,
		"deactivated_at":  a.DeactivatedAt,
		"deactivated_by":  a.DeactivatedBy,
	}
}

// CreateRole creates a custom role in the caller's organization
func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	principal, actorID := h.actor(r)

	var req struct {
		Name           string       `json:"name"`
		Description    string       `json:"description"`
		Level          int          `json:"level"`
		OrganizationID *int64       `json:"organization_id,omitempty"`
		Permissions    []Permission `json:"permissions"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, "invalid request body")
		return
	}

	orgID := req.OrganizationID
	if principal != nil && !principal.IsPlatformAdmin() {
		// Tenants create roles in their own organization only
		orgID = principal.OrganizationID
	}

	role := &Role{
		OrganizationID: orgID,
		Name:           req.Name,
		Description:    req.Description,
		Level:          req.Level,
		IsActive:       true,
		Permissions:    req.Permissions,
		CreatedBy:      actorID,
	}

	if err := h.store.CreateRole(r.Context(), role); err != nil {
		h.writeError(w, r, err)
		return
	}

	roleID := strconv.FormatInt(role.ID, 10)
	h.audit(r, audit.RoleEvent(audit.EventTypeRoleCreated, actorID, orgID, roleID, "created role "+role.Name))
	httputil.WriteResource(w, http.StatusCreated, "role", roleID, roleAttributes(role))
}

// ListRoles lists roles visible to the caller
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	principal, _ := h.actor(r)

	var filter RoleFilter
	if principal != nil && !principal.IsPlatformAdmin() {
		filter.OrganizationID = principal.OrganizationID
	} else if orgID, err := httputil.QueryInt64(r, "organization_id"); err == nil && orgID != nil {
		filter.OrganizationID = orgID
	}
	if system, err := httputil.QueryBool(r, "is_system_role"); err == nil && system != nil {
		filter.IsSystemRole = system
	}

	roles, err := h.store.ListRoles(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resources := make([]httputil.Resource, 0, len(roles))
	for i := range roles {
		resources = append(resources, httputil.Resource{
			Type:       "role",
			ID:         strconv.FormatInt(roles[i].ID, 10),
			Attributes: roleAttributes(&roles[i]),
		})
	}
	httputil.WriteResourceList(w, http.StatusOK, resources)
}

// GetRole retrieves a single role
func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	roleID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, "invalid role id")
		return
	}

	role, err := h.store.GetRole(r.Context(), roleID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteResource(w, http.StatusOK, "role", strconv.FormatInt(role.ID, 10), roleAttributes(role))
}

// UpdateRole applies a partial patch to a custom role
func (h *Handlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	roleID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, "invalid role id")
		return
	}

	var patch RolePatch
	if err := httputil.DecodeJSON(r, &patch); err != nil {
		httputil.WriteBadRequest(w, "invalid request body")
		return
	}

	role, err := h.store.UpdateRole(r.Context(), roleID, patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	// Role permissions changed; every cached principal may hold stale sets
	h.cache.InvalidateAll()

	_, actorID := h.actor(r)
	id := strconv.FormatInt(role.ID, 10)
	h.audit(r, audit.RoleEvent(audit.EventTypeRoleUpdated, actorID, role.OrganizationID, id, "updated role "+role.Name))
	httputil.WriteResource(w, http.StatusOK, "role", id, roleAttributes(role))
}

// DeleteRole deletes a custom role with no active assignments
func (h *Handlers) DeleteRole(w http.ResponseWriter, r *http.Request) {
	roleID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, "invalid role id")
		return
	}

	if err := h.store.DeleteRole(r.Context(), roleID); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.cache.InvalidateAll()

	_, actorID := h.actor(r)
	h.audit(r, audit.RoleEvent(audit.EventTypeRoleDeleted, actorID, nil, strconv.FormatInt(roleID, 10), "deleted role"))
	httputil.WriteNoContent(w)
}

// ListPermissions lists the permission catalog
func (h *Handlers) ListPermissions(w http.ResponseWriter, r *http.Request) {
	var filter PermissionFilter
	if resource := r.URL.Query().Get("resource"); resource != "" {
		filter.Resource = Resource(resource)
	}

	perms, err := h.store.ListPermissions(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resources := make([]httputil.Resource, 0, len(perms))
	for _, p := range perms {
		resources = append(resources, httputil.Resource{
			Type: "permission",
			ID:   p.String(),
			Attributes: map[string]interface{}{
				"resource": p.Resource,
				"action":   p.Action,
			},
		})
	}
	httputil.WriteResourceList(w, http.StatusOK, resources)
}

// CheckPermission answers a single permission check for the current principal
func (h *Handlers) CheckPermission(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req CheckRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteErrorCode(w, http.StatusBadRequest, string(KindInvalidPayload), "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		h.writeError(w, r, err)
		return
	}

	allowed, err := h.resolver.Check(r.Context(), principal.UserID, principal.OrganizationID,
		Permission{Resource: req.Resource, Action: req.Action})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	httputil.WriteResource(w, http.StatusOK, "permission-check",
		Permission{Resource: req.Resource, Action: req.Action}.String(),
		map[string]interface{}{
			"resource": req.Resource,
			"action":   req.Action,
			"allowed":  allowed,
		})
}

// CheckPermissions answers a batch of permission checks with one resolution
func (h *Handlers) CheckPermissions(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req struct {
		Checks []CheckRequest `json:"checks"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteErrorCode(w, http.StatusBadRequest, string(KindInvalidPayload), "invalid request body")
		return
	}
	for _, c := range req.Checks {
		if err := c.Validate(); err != nil {
			h.writeError(w, r, err)
			return
		}
	}

	results, err := h.resolver.CheckMany(r.Context(), principal.UserID, principal.OrganizationID, req.Checks)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	httputil.WriteResource(w, http.StatusOK, "permission-check-batch", "",
		map[string]interface{}{"results": results})
}

// UserPermissions returns the current principal's resolved permission set
func (h *Handlers) UserPermissions(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	set, err := h.resolver.Resolve(r.Context(), principal.UserID, principal.OrganizationID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	httputil.WriteResource(w, http.StatusOK, "user-permissions", strconv.FormatInt(principal.UserID, 10),
		map[string]interface{}{
			"permissions":       set.List(),
			"roles":             set.RoleNames(),
			"is_platform_admin": set.IsPlatformAdmin(),
		})
}

// AssignRole assigns a role to a user
func (h *Handlers) AssignRole(w http.ResponseWriter, r *http.Request) {
	userID, err := httputil.PathInt64(r, "userId")
	if err != nil {
		httputil.WriteBadRequest(w, "invalid user id")
		return
	}

	var req struct {
		RoleID int64 `json:"role_id"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil || req.RoleID == 0 {
		httputil.WriteBadRequest(w, "role_id is required")
		return
	}

	_, actorID := h.actor(r)
	assignment, err := h.store.AssignRole(r.Context(), userID, req.RoleID, actorID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.cache.InvalidateUser(userID)
	h.audit(r, audit.AssignmentEvent(audit.EventTypeRoleAssigned, actorID, assignment.OrganizationID,
		userID, strconv.FormatInt(req.RoleID, 10), "assigned role"))
	httputil.WriteResource(w, http.StatusCreated, "assignment",
		strconv.FormatInt(assignment.ID, 10), assignmentAttributes(assignment))
}

// UserRoles lists a user's assignments, active and historical
func (h *Handlers) UserRoles(w http.ResponseWriter, r *http.Request) {
	userID, err := httputil.PathInt64(r, "userId")
	if err != nil {
		httputil.WriteBadRequest(w, "invalid user id")
		return
	}

	assignments, err := h.store.ListAssignmentsForUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resources := make([]httputil.Resource, 0, len(assignments))
	for i := range assignments {
		resources = append(resources, httputil.Resource{
			Type:       "assignment",
			ID:         strconv.FormatInt(assignments[i].ID, 10),
			Attributes: assignmentAttributes(&assignments[i]),
		})
	}
	httputil.WriteResourceList(w, http.StatusOK, resources)
}

// DeactivateRole deactivates a user's role assignment
func (h *Handlers) DeactivateRole(w http.ResponseWriter, r *http.Request) {
	userID, err := httputil.PathInt64(r, "userId")
	if err != nil {
		httputil.WriteBadRequest(w, "invalid user id")
		return
	}
	roleID, err := httputil.PathInt64(r, "roleId")
	if err != nil {
		httputil.WriteBadRequest(w, "invalid role id")
		return
	}

	_, actorID := h.actor(r)
	if err := h.store.DeactivateAssignment(r.Context(), userID, roleID, actorID); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.cache.InvalidateUser(userID)
	h.audit(r, audit.AssignmentEvent(audit.EventTypeRoleDeactivated, actorID, nil,
		userID, strconv.FormatInt(roleID, 10), "deactivated role assignment"))
	httputil.WriteNoContent(w)
}

// BulkAssignRoles assigns or deactivates one role for many users with
// per-item error isolation. A missing role fails the whole batch with 404.
// is_active defaults to true; false deactivates the role for each user.
func (h *Handlers) BulkAssignRoles(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoleID   int64   `json:"role_id"`
		UserIDs  []int64 `json:"user_ids"`
		IsActive *bool   `json:"is_active"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil || req.RoleID == 0 {
		httputil.WriteBadRequest(w, "role_id and user_ids are required")
		return
	}
	isActive := req.IsActive == nil || *req.IsActive

	_, actorID := h.actor(r)
	result, err := h.store.BulkAssignRole(r.Context(), req.RoleID, req.UserIDs, isActive, actorID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	for _, item := range result.Results {
		if item.Success {
			h.cache.InvalidateUser(item.UserID)
		}
	}

	event := audit.AssignmentEvent(audit.EventTypeBulkRolesAssigned, actorID, nil,
		0, strconv.FormatInt(req.RoleID, 10), "bulk role assignment")
	event.Metadata["success_count"] = result.SuccessCount
	event.Metadata["failure_count"] = result.FailureCount
	event.Metadata["is_active"] = isActive
	h.audit(r, event)

	httputil.WriteResource(w, http.StatusOK, "bulk-assignment", strconv.FormatInt(req.RoleID, 10),
		map[string]interface{}{
			"role_id":       result.RoleID,
			"success_count": result.SuccessCount,
			"failure_count": result.FailureCount,
			"results":       result.Results,
		})
}
