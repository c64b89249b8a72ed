package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// UserDirectory answers user existence checks. The auth store implements it;
// tests inject fakes.
type UserDirectory interface {
	UserExists(ctx context.Context, userID int64) (bool, error)
}

// Store handles RBAC data persistence
type Store struct {
	db    *sql.DB
	users UserDirectory
}

// NewStore creates a new RBAC store
func NewStore(db *sql.DB, users UserDirectory) *Store {
	return &Store{db: db, users: users}
}

// orgMatch is a null-safe organization comparison usable on both engines
const orgMatch = `(organization_id = $%d OR (organization_id IS NULL AND $%d IS NULL))`

// isUniqueViolation reports whether an error is the unique-index violation a
// concurrent writer slipped past the name pre-check. Postgres reports class
// 23505; sqlite (tests) only exposes the message.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// --- Permission catalog ---

// ListPermissions lists catalog entries, optionally filtered by resource,
// ordered by resource then action.
func (s *Store) ListPermissions(ctx context.Context, filter PermissionFilter) ([]Permission, error) {
	query := `SELECT resource, action FROM permissions`
	args := []interface{}{}
	if filter.Resource != "" {
		query += ` WHERE resource = $1`
		args = append(args, string(filter.Resource))
	}
	query += ` ORDER BY resource, action`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, Wrap(KindInternal, err, "failed to list permissions")
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.Resource, &p.Action); err != nil {
			return nil, Wrap(KindInternal, err, "failed to scan permission")
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// PermissionExists reports whether a catalog entry exists
func (s *Store) PermissionExists(ctx context.Context, p Permission) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM permissions WHERE resource = $1 AND action = $2)`,
		string(p.Resource), string(p.Action),
	).Scan(&exists)
	if err != nil {
		return false, Wrap(KindInternal, err, "failed to check permission existence")
	}
	return exists, nil
}

// CreatePermission adds a catalog entry; creating an existing pair is a no-op
func (s *Store) CreatePermission(ctx context.Context, p Permission) error {
	if p.Resource == "" || p.Action == "" {
		return E(KindInvalidPayload, "resource and action are required")
	}

	exists, err := s.PermissionExists(ctx, p)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO permissions (resource, action) VALUES ($1, $2)`,
		string(p.Resource), string(p.Action))
	if err != nil {
		return Wrap(KindInternal, err, "failed to create permission %s", p)
	}
	return nil
}

// DeletePermission removes a catalog entry, refusing while any role still
// references it. The check and delete run in one transaction.
func (s *Store) DeletePermission(ctx context.Context, p Permission) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Wrap(KindInternal, err, "failed to begin transaction")
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM permissions WHERE resource = $1 AND action = $2`,
		string(p.Resource), string(p.Action)).Scan(&id)
	if err == sql.ErrNoRows {
		return E(KindPermissionNotFound, "permission %s not found", p)
	}
	if err != nil {
		return Wrap(KindInternal, err, "failed to look up permission")
	}

	var refs int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM role_permissions WHERE permission_id = $1`, id).Scan(&refs)
	if err != nil {
		return Wrap(KindInternal, err, "failed to count permission references")
	}
	if refs > 0 {
		return E(KindPermissionInUse, "permission %s is referenced by %d role(s)", p, refs)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM permissions WHERE id = $1`, id); err != nil {
		return Wrap(KindInternal, err, "failed to delete permission")
	}
	return tx.Commit()
}

// --- Roles ---

// CreateRole creates a new role with its permission set. The role name must
// be unique within the organization, case-insensitively.
func (s *Store) CreateRole(ctx context.Context, role *Role) error {
	if role.Name == "" {
		return E(KindInvalidPayload, "role name is required")
	}
	if role.Level < MinRoleLevel || role.Level > MaxRoleLevel {
		return E(KindInvalidLevel, "role level %d outside [%d, %d]", role.Level, MinRoleLevel, MaxRoleLevel)
	}

	for _, p := range role.Permissions {
		exists, err := s.PermissionExists(ctx, p)
		if err != nil {
			return err
		}
		if !exists {
			return E(KindPermissionNotFound, "permission %s is not in the catalog", p)
		}
	}

	dup, err := s.roleNameTaken(ctx, role.Name, role.OrganizationID)
	if err != nil {
		return err
	}
	if dup {
		return E(KindDuplicateRoleName, "role %q already exists in this organization", role.Name)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Wrap(KindInternal, err, "failed to begin transaction")
	}
	defer tx.Rollback()

	now := time.Now()
	err = tx.QueryRowContext(ctx, `
		INSERT INTO roles (organization_id, name, description, level, is_system_role, is_platform_admin, is_active, created_at, updated_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		role.OrganizationID, role.Name, role.Description, role.Level,
		role.IsSystemRole, role.IsPlatformAdmin, role.IsActive,
		now, now, role.CreatedBy,
	).Scan(&role.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return E(KindDuplicateRoleName, "role %q already exists in this organization", role.Name)
		}
		return Wrap(KindInternal, err, "failed to create role")
	}

	if err := replacePermissions(ctx, tx, role.ID, role.Permissions); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return Wrap(KindInternal, err, "failed to commit role creation")
	}

	role.CreatedAt = now
	role.UpdatedAt = now
	return nil
}

func (s *Store) roleNameTaken(ctx context.Context, name string, orgID *int64) (bool, error) {
	query := fmt.Sprintf(
		`SELECT EXISTS(SELECT 1 FROM roles WHERE LOWER(name) = LOWER($1) AND `+orgMatch+`)`, 2, 3)
	var taken bool
	if err := s.db.QueryRowContext(ctx, query, name, orgID, orgID).Scan(&taken); err != nil {
		return false, Wrap(KindInternal, err, "failed to check role name")
	}
	return taken, nil
}

const roleColumns = `id, organization_id, name, description, level, is_system_role, is_platform_admin, is_active, created_at, updated_at, created_by`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRole(scanner rowScanner) (*Role, error) {
	var role Role
	var orgID, createdBy sql.NullInt64
	var description sql.NullString

	err := scanner.Scan(
		&role.ID, &orgID, &role.Name, &description, &role.Level,
		&role.IsSystemRole, &role.IsPlatformAdmin, &role.IsActive,
		&role.CreatedAt, &role.UpdatedAt, &createdBy,
	)
	if err != nil {
		return nil, err
	}

	role.Description = description.String
	if orgID.Valid {
		id := orgID.Int64
		role.OrganizationID = &id
	}
	if createdBy.Valid {
		id := createdBy.Int64
		role.CreatedBy = &id
	}
	return &role, nil
}

// GetRole retrieves a role by ID with its permission set
func (s *Store) GetRole(ctx context.Context, roleID int64) (*Role, error) {
	role, err := scanRole(s.db.QueryRowContext(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE id = $1`, roleID))
	if err == sql.ErrNoRows {
		return nil, E(KindRoleNotFound, "role %d not found", roleID)
	}
	if err != nil {
		return nil, Wrap(KindInternal, err, "failed to get role")
	}

	if err := s.loadPermissions(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// GetRoleByName retrieves a role by case-insensitive name within an organization
func (s *Store) GetRoleByName(ctx context.Context, name string, orgID *int64) (*Role, error) {
	query := fmt.Sprintf(
		`SELECT `+roleColumns+` FROM roles WHERE LOWER(name) = LOWER($1) AND `+orgMatch, 2, 3)
	role, err := scanRole(s.db.QueryRowContext(ctx, query, name, orgID, orgID))
	if err == sql.ErrNoRows {
		return nil, E(KindRoleNotFound, "role %q not found", name)
	}
	if err != nil {
		return nil, Wrap(KindInternal, err, "failed to get role")
	}

	if err := s.loadPermissions(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// ListRoles lists roles matching the filter, system roles first then by name
func (s *Store) ListRoles(ctx context.Context, filter RoleFilter) ([]Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if filter.OrganizationID != nil {
		// Org-scoped listings include the global platform role
		query += fmt.Sprintf(` AND (organization_id = $%d OR organization_id IS NULL)`, argPos)
		args = append(args, *filter.OrganizationID)
		argPos++
	}
	if filter.IsSystemRole != nil {
		query += fmt.Sprintf(` AND is_system_role = $%d`, argPos)
		args = append(args, *filter.IsSystemRole)
		argPos++
	}
	if filter.Level != nil {
		query += fmt.Sprintf(` AND level = $%d`, argPos)
		args = append(args, *filter.Level)
		argPos++
	}
	query += ` ORDER BY is_system_role DESC, name ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, Wrap(KindInternal, err, "failed to list roles")
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, Wrap(KindInternal, err, "failed to scan role")
		}
		roles = append(roles, *role)
	}
	if err := rows.Err(); err != nil {
		return nil, Wrap(KindInternal, err, "failed to iterate roles")
	}

	for i := range roles {
		if err := s.loadPermissions(ctx, &roles[i]); err != nil {
			return nil, err
		}
	}
	return roles, nil
}

// UpdateRole applies a partial patch to a role. System roles are immutable.
func (s *Store) UpdateRole(ctx context.Context, roleID int64, patch RolePatch) (*Role, error) {
	role, err := s.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if role.IsSystemRole {
		return nil, E(KindSystemRoleImmutable, "system role %q cannot be modified", role.Name)
	}

	if patch.Name != nil {
		if *patch.Name == "" {
			return nil, E(KindInvalidPayload, "role name is required")
		}
		// A case-only rename compares against the role itself; skip the check
		if !strings.EqualFold(*patch.Name, role.Name) {
			dup, err := s.roleNameTaken(ctx, *patch.Name, role.OrganizationID)
			if err != nil {
				return nil, err
			}
			if dup {
				return nil, E(KindDuplicateRoleName, "role %q already exists in this organization", *patch.Name)
			}
		}
		role.Name = *patch.Name
	}
	if patch.Level != nil {
		if *patch.Level < MinRoleLevel || *patch.Level > MaxRoleLevel {
			return nil, E(KindInvalidLevel, "role level %d outside [%d, %d]", *patch.Level, MinRoleLevel, MaxRoleLevel)
		}
		role.Level = *patch.Level
	}
	if patch.Description != nil {
		role.Description = *patch.Description
	}
	if patch.IsActive != nil {
		role.IsActive = *patch.IsActive
	}
	if patch.Permissions != nil {
		for _, p := range *patch.Permissions {
			exists, err := s.PermissionExists(ctx, p)
			if err != nil {
				return nil, err
			}
			if !exists {
				return nil, E(KindPermissionNotFound, "permission %s is not in the catalog", p)
			}
		}
		role.Permissions = *patch.Permissions
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, Wrap(KindInternal, err, "failed to begin transaction")
	}
	defer tx.Rollback()

	role.UpdatedAt = time.Now()
	_, err = tx.ExecContext(ctx, `
		UPDATE roles SET name = $1, description = $2, level = $3, is_active = $4, updated_at = $5 WHERE id = $6`,
		role.Name, role.Description, role.Level, role.IsActive, role.UpdatedAt, role.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, E(KindDuplicateRoleName, "role %q already exists in this organization", role.Name)
		}
		return nil, Wrap(KindInternal, err, "failed to update role")
	}

	if patch.Permissions != nil {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM role_permissions WHERE role_id = $1`, role.ID); err != nil {
			return nil, Wrap(KindInternal, err, "failed to clear role permissions")
		}
		if err := replacePermissions(ctx, tx, role.ID, role.Permissions); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, Wrap(KindInternal, err, "failed to commit role update")
	}
	return role, nil
}

// DeleteRole deletes a role. System roles are immutable, and a role with any
// active assignment is refused; the check and delete run in one transaction
// so a concurrent assignment cannot slip between them.
func (s *Store) DeleteRole(ctx context.Context, roleID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Wrap(KindInternal, err, "failed to begin transaction")
	}
	defer tx.Rollback()

	role, err := scanRole(tx.QueryRowContext(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE id = $1`, roleID))
	if err == sql.ErrNoRows {
		return E(KindRoleNotFound, "role %d not found", roleID)
	}
	if err != nil {
		return Wrap(KindInternal, err, "failed to get role")
	}
	if role.IsSystemRole {
		return E(KindSystemRoleImmutable, "system role %q cannot be deleted", role.Name)
	}

	var active int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM role_assignments WHERE role_id = $1 AND is_active = $2`,
		roleID, true).Scan(&active)
	if err != nil {
		return Wrap(KindInternal, err, "failed to count active assignments")
	}
	if active > 0 {
		return E(KindRoleInUse, "role %q has %d active assignment(s)", role.Name, active)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return Wrap(KindInternal, err, "failed to delete role permissions")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM role_assignments WHERE role_id = $1`, roleID); err != nil {
		return Wrap(KindInternal, err, "failed to delete historical assignments")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, roleID); err != nil {
		return Wrap(KindInternal, err, "failed to delete role")
	}
	return tx.Commit()
}

// loadPermissions populates a role's permission set from the join table
func (s *Store) loadPermissions(ctx context.Context, role *Role) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.resource, p.action
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1
		ORDER BY p.resource, p.action`, role.ID)
	if err != nil {
		return Wrap(KindInternal, err, "failed to load role permissions")
	}
	defer rows.Close()

	role.Permissions = []Permission{}
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.Resource, &p.Action); err != nil {
			return Wrap(KindInternal, err, "failed to scan role permission")
		}
		role.Permissions = append(role.Permissions, p)
	}
	return rows.Err()
}

// replacePermissions inserts the join rows for a role's permission set
func replacePermissions(ctx context.Context, tx *sql.Tx, roleID int64, perms []Permission) error {
	for _, p := range perms {
		var permID int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM permissions WHERE resource = $1 AND action = $2`,
			string(p.Resource), string(p.Action)).Scan(&permID)
		if err == sql.ErrNoRows {
			return E(KindPermissionNotFound, "permission %s is not in the catalog", p)
		}
		if err != nil {
			return Wrap(KindInternal, err, "failed to look up permission")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)`,
			roleID, permID); err != nil {
			return Wrap(KindInternal, err, "failed to attach permission %s", p)
		}
	}
	return nil
}

// --- Assignments ---

// AssignRole binds a user to a role. Idempotent per (user, role): an active
// pair is a no-op success, an inactive pair is reactivated with fresh
// attribution, otherwise a new assignment row is created.
func (s *Store) AssignRole(ctx context.Context, userID, roleID int64, assignedBy *int64) (*Assignment, error) {
	role, err := s.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}

	exists, err := s.users.UserExists(ctx, userID)
	if err != nil {
		return nil, Wrap(KindInternal, err, "failed to check user existence")
	}
	if !exists {
		return nil, E(KindUserNotFound, "user %d not found", userID)
	}

	existing, err := s.getAssignment(ctx, userID, roleID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if existing != nil {
		if existing.IsActive {
			return existing, nil
		}
		_, err = s.db.ExecContext(ctx, `
			UPDATE role_assignments
			SET is_active = $1, assigned_by = $2, assigned_at = $3, deactivated_at = NULL, deactivated_by = NULL
			WHERE id = $4`,
			true, assignedBy, now, existing.ID)
		if err != nil {
			return nil, Wrap(KindInternal, err, "failed to reactivate assignment")
		}
		existing.IsActive = true
		existing.AssignedBy = assignedBy
		existing.AssignedAt = now
		existing.DeactivatedAt = nil
		existing.DeactivatedBy = nil
		return existing, nil
	}

	assignment := &Assignment{
		UserID:         userID,
		RoleID:         roleID,
		OrganizationID: role.OrganizationID,
		IsActive:       true,
		AssignedBy:     assignedBy,
		AssignedAt:     now,
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO role_assignments (user_id, role_id, organization_id, is_active, assigned_by, assigned_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		userID, roleID, role.OrganizationID, true, assignedBy, now,
	).Scan(&assignment.ID)
	if err != nil {
		return nil, Wrap(KindInternal, err, "failed to create assignment")
	}
	return assignment, nil
}

// DeactivateAssignment flips an assignment inactive, preserving the row for
// audit history. Deactivating a missing or already-inactive pair is a no-op.
func (s *Store) DeactivateAssignment(ctx context.Context, userID, roleID int64, deactivatedBy *int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE role_assignments
		SET is_active = $1, deactivated_at = $2, deactivated_by = $3
		WHERE user_id = $4 AND role_id = $5 AND is_active = $6`,
		false, time.Now(), deactivatedBy, userID, roleID, true)
	if err != nil {
		return Wrap(KindInternal, err, "failed to deactivate assignment")
	}
	return nil
}

const assignmentColumns = `id, user_id, role_id, organization_id, is_active, assigned_by, assigned_at, deactivated_at, deactivated_by`

func scanAssignment(scanner rowScanner) (*Assignment, error) {
	var a Assignment
	var orgID, assignedBy, deactivatedBy sql.NullInt64
	var deactivatedAt sql.NullTime

	err := scanner.Scan(
		&a.ID, &a.UserID, &a.RoleID, &orgID, &a.IsActive,
		&assignedBy, &a.AssignedAt, &deactivatedAt, &deactivatedBy,
	)
	if err != nil {
		return nil, err
	}

	if orgID.Valid {
		id := orgID.Int64
		a.OrganizationID = &id
	}
	if assignedBy.Valid {
		id := assignedBy.Int64
		a.AssignedBy = &id
	}
	if deactivatedAt.Valid {
		t := deactivatedAt.Time
		a.DeactivatedAt = &t
	}
	if deactivatedBy.Valid {
		id := deactivatedBy.Int64
		a.DeactivatedBy = &id
	}
	return &a, nil
}

func (s *Store) getAssignment(ctx context.Context, userID, roleID int64) (*Assignment, error) {
	a, err := scanAssignment(s.db.QueryRowContext(ctx,
		`SELECT `+assignmentColumns+` FROM role_assignments WHERE user_id = $1 AND role_id = $2`,
		userID, roleID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, Wrap(KindInternal, err, "failed to get assignment")
	}
	return a, nil
}

// ListAssignmentsForUser lists a user's assignments, active and historical,
// most recently assigned first.
func (s *Store) ListAssignmentsForUser(ctx context.Context, userID int64) ([]Assignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+assignmentColumns+` FROM role_assignments WHERE user_id = $1 ORDER BY assigned_at DESC, id DESC`,
		userID)
	if err != nil {
		return nil, Wrap(KindInternal, err, "failed to list assignments")
	}
	defer rows.Close()

	var assignments []Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, Wrap(KindInternal, err, "failed to scan assignment")
		}
		assignments = append(assignments, *a)
	}
	return assignments, rows.Err()
}

// GetActiveRoles returns the roles behind a user's ACTIVE assignments within
// an organization, permission sets loaded. The global platform admin role is
// included regardless of organization.
func (s *Store) GetActiveRoles(ctx context.Context, userID int64, orgID *int64) ([]Role, error) {
	query := `
		SELECT r.id, r.organization_id, r.name, r.description, r.level,
		       r.is_system_role, r.is_platform_admin, r.is_active,
		       r.created_at, r.updated_at, r.created_by
		FROM role_assignments ra
		JOIN roles r ON r.id = ra.role_id
		WHERE ra.user_id = $1 AND ra.is_active = $2 AND r.is_active = $3
		  AND (r.is_platform_admin = $4
		       OR (r.organization_id = $5 OR (r.organization_id IS NULL AND $6 IS NULL)))
		ORDER BY r.level DESC, r.name`

	rows, err := s.db.QueryContext(ctx, query, userID, true, true, true, orgID, orgID)
	if err != nil {
		return nil, Wrap(KindInternal, err, "failed to get active roles")
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, Wrap(KindInternal, err, "failed to scan role")
		}
		roles = append(roles, *role)
	}
	if err := rows.Err(); err != nil {
		return nil, Wrap(KindInternal, err, "failed to iterate roles")
	}

	for i := range roles {
		if err := s.loadPermissions(ctx, &roles[i]); err != nil {
			return nil, err
		}
	}
	return roles, nil
}
