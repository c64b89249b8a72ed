package rbac

import (
	"fmt"
	"strings"
	"time"
)

// Resource represents a resource type in the platform
type Resource string

const (
	ResourceFarm         Resource = "farm"
	ResourceCommodity    Resource = "commodity"
	ResourceOrder        Resource = "order"
	ResourceInventory    Resource = "inventory"
	ResourceListing      Resource = "listing"
	ResourceOrganization Resource = "organization"
	ResourceUser         Resource = "user"
	ResourceRole         Resource = "role"
	ResourceBilling      Resource = "billing"
	ResourceInsight      Resource = "insight"
	ResourceAnalytics    Resource = "analytics"
)

// Action represents an action that can be performed on a resource
type Action string

const (
	ActionCreate  Action = "create"
	ActionRead    Action = "read"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionApprove Action = "approve"
	ActionPublish Action = "publish"
	ActionExport  Action = "export"
	ActionManage  Action = "manage"
)

// Permission represents a specific permission (resource + action)
type Permission struct {
	Resource Resource `json:"resource"`
	Action   Action   `json:"action"`
}

// String returns the canonical resource:action form
func (p Permission) String() string {
	return string(p.Resource) + ":" + string(p.Action)
}

// ParsePermission parses a resource:action string
func ParsePermission(s string) (Permission, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Permission{}, fmt.Errorf("invalid permission %q, want resource:action", s)
	}
	return Permission{Resource: Resource(parts[0]), Action: Action(parts[1])}, nil
}

// Role represents a role with a set of permissions. System roles are seeded
// per organization and immutable through the API; the platform admin role is
// global (OrganizationID nil) and resolves to the full catalog.
type Role struct {
	ID              int64        `json:"id"`
	OrganizationID  *int64       `json:"organization_id,omitempty"`
	Name            string       `json:"name"`
	Description     string       `json:"description,omitempty"`
	Level           int          `json:"level"`
	IsSystemRole    bool         `json:"is_system_role"`
	IsPlatformAdmin bool         `json:"is_platform_admin"`
	IsActive        bool         `json:"is_active"`
	Permissions     []Permission `json:"permissions"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
	CreatedBy       *int64       `json:"created_by,omitempty"`
}

// Role level bounds. Level 0 is allowed for roles that carry no authority
// ordering; system roles use 10/50/100.
const (
	MinRoleLevel = 0
	MaxRoleLevel = 100
)

// System role names
const (
	RoleNameAdmin         = "Admin"
	RoleNameManager       = "Manager"
	RoleNameEmployee      = "Employee"
	RoleNamePlatformAdmin = "Platform Admin"
)

// System role levels
const (
	LevelAdmin    = 100
	LevelManager  = 50
	LevelEmployee = 10
)

// RolePatch is a partial role update; nil fields are left unchanged
type RolePatch struct {
	Name        *string       `json:"name,omitempty"`
	Description *string       `json:"description,omitempty"`
	Level       *int          `json:"level,omitempty"`
	IsActive    *bool         `json:"is_active,omitempty"`
	Permissions *[]Permission `json:"permissions,omitempty"`
}

// RoleFilter filters role listings
type RoleFilter struct {
	OrganizationID *int64
	IsSystemRole   *bool
	Level          *int
}

// Assignment represents a user-role binding. Deactivated assignments are
// kept for audit history.
type Assignment struct {
	ID             int64      `json:"id"`
	UserID         int64      `json:"user_id"`
	RoleID         int64      `json:"role_id"`
	OrganizationID *int64     `json:"organization_id,omitempty"`
	IsActive       bool       `json:"is_active"`
	AssignedBy     *int64     `json:"assigned_by,omitempty"`
	AssignedAt     time.Time  `json:"assigned_at"`
	DeactivatedAt  *time.Time `json:"deactivated_at,omitempty"`
	DeactivatedBy  *int64     `json:"deactivated_by,omitempty"`
}

// PermissionFilter filters catalog listings
type PermissionFilter struct {
	Resource Resource
}

// CheckRequest is a single permission check payload
type CheckRequest struct {
	Resource Resource `json:"resource"`
	Action   Action   `json:"action"`
}

// Validate rejects malformed check payloads
func (c CheckRequest) Validate() error {
	if c.Resource == "" || c.Action == "" {
		return E(KindInvalidPayload, "resource and action are required")
	}
	return nil
}

// CheckResult is the outcome of a single permission check
type CheckResult struct {
	Resource Resource `json:"resource"`
	Action   Action   `json:"action"`
	Allowed  bool     `json:"allowed"`
}

// BulkAssignItem is the per-user outcome of a bulk role assignment
type BulkAssignItem struct {
	UserID  int64  `json:"user_id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Kind    Kind   `json:"error_kind,omitempty"`
}

// BulkAssignResult aggregates a bulk role assignment.
// SuccessCount+FailureCount always equals len(Results), and Results preserves
// the input ordering of user IDs.
type BulkAssignResult struct {
	RoleID       int64            `json:"role_id"`
	SuccessCount int              `json:"success_count"`
	FailureCount int              `json:"failure_count"`
	Results      []BulkAssignItem `json:"results"`
}

// DefaultPermissionCatalog returns the seeded permission catalog: CRUD on
// every resource plus the resource-specific verbs.
func DefaultPermissionCatalog() []Permission {
	resources := []Resource{
		ResourceFarm, ResourceCommodity, ResourceOrder, ResourceInventory,
		ResourceListing, ResourceOrganization, ResourceUser, ResourceRole,
		ResourceBilling, ResourceInsight, ResourceAnalytics,
	}

	var catalog []Permission
	for _, r := range resources {
		for _, a := range []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete} {
			catalog = append(catalog, Permission{Resource: r, Action: a})
		}
	}

	catalog = append(catalog,
		Permission{Resource: ResourceOrder, Action: ActionApprove},
		Permission{Resource: ResourceListing, Action: ActionPublish},
		Permission{Resource: ResourceAnalytics, Action: ActionExport},
		Permission{Resource: ResourceRole, Action: ActionManage},
		Permission{Resource: ResourceBilling, Action: ActionManage},
	)

	return catalog
}

// SystemRoles returns the per-organization system role templates
func SystemRoles() []Role {
	return []Role{
		{
			Name:         RoleNameAdmin,
			Description:  "Full access to all organization resources",
			Level:        LevelAdmin,
			IsSystemRole: true,
			IsActive:     true,
			Permissions:  DefaultPermissionCatalog(),
		},
		{
			Name:         RoleNameManager,
			Description:  "Operational management of farms, commodities, and trade",
			Level:        LevelManager,
			IsSystemRole: true,
			IsActive:     true,
			Permissions: []Permission{
				{ResourceFarm, ActionCreate}, {ResourceFarm, ActionRead},
				{ResourceFarm, ActionUpdate},
				{ResourceCommodity, ActionCreate}, {ResourceCommodity, ActionRead},
				{ResourceCommodity, ActionUpdate},
				{ResourceOrder, ActionCreate}, {ResourceOrder, ActionRead},
				{ResourceOrder, ActionUpdate}, {ResourceOrder, ActionApprove},
				{ResourceInventory, ActionCreate}, {ResourceInventory, ActionRead},
				{ResourceInventory, ActionUpdate},
				{ResourceListing, ActionCreate}, {ResourceListing, ActionRead},
				{ResourceListing, ActionUpdate}, {ResourceListing, ActionPublish},
				{ResourceUser, ActionRead},
				{ResourceAnalytics, ActionRead}, {ResourceAnalytics, ActionExport},
				{ResourceInsight, ActionRead},
			},
		},
		{
			Name:         RoleNameEmployee,
			Description:  "Day-to-day field and warehouse work",
			Level:        LevelEmployee,
			IsSystemRole: true,
			IsActive:     true,
			Permissions: []Permission{
				{ResourceFarm, ActionRead},
				{ResourceCommodity, ActionRead},
				{ResourceOrder, ActionCreate}, {ResourceOrder, ActionRead},
				{ResourceInventory, ActionRead}, {ResourceInventory, ActionUpdate},
				{ResourceListing, ActionRead},
			},
		},
	}
}

// PlatformAdminRole returns the global platform admin role template. It
// carries no explicit permission set; the resolver short-circuits it to the
// full catalog.
func PlatformAdminRole() Role {
	return Role{
		Name:            RoleNamePlatformAdmin,
		Description:     "Cross-tenant platform operations",
		Level:           MaxRoleLevel,
		IsSystemRole:    true,
		IsPlatformAdmin: true,
		IsActive:        true,
	}
}
