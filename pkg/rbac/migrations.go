package rbac

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all RBAC migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create permissions catalog",
			SQL: `
				CREATE TABLE IF NOT EXISTS permissions (
					id BIGSERIAL PRIMARY KEY,
					resource VARCHAR(50) NOT NULL,
					action VARCHAR(50) NOT NULL,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					UNIQUE(resource, action)
				);

				CREATE INDEX idx_permissions_resource ON permissions(resource);
			`,
		},
		{
			Version:     2,
			Description: "Create roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS roles (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT REFERENCES organizations(id) ON DELETE CASCADE,
					name VARCHAR(255) NOT NULL,
					description TEXT,
					level INT NOT NULL DEFAULT 0,
					is_system_role BOOLEAN NOT NULL DEFAULT FALSE,
					is_platform_admin BOOLEAN NOT NULL DEFAULT FALSE,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					created_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					CONSTRAINT chk_roles_level CHECK (level >= 0 AND level <= 100)
				);

				CREATE UNIQUE INDEX idx_roles_name_org
					ON roles(LOWER(name), COALESCE(organization_id, 0));
				CREATE INDEX idx_roles_organization_id ON roles(organization_id);
				CREATE INDEX idx_roles_is_system_role ON roles(is_system_role);
			`,
		},
		{
			Version:     3,
			Description: "Create role_permissions join table",
			SQL: `
				CREATE TABLE IF NOT EXISTS role_permissions (
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					permission_id BIGINT NOT NULL REFERENCES permissions(id),
					PRIMARY KEY (role_id, permission_id)
				);

				CREATE INDEX idx_role_permissions_permission_id ON role_permissions(permission_id);
			`,
		},
		{
			Version:     4,
			Description: "Create role_assignments table",
			SQL: `
				CREATE TABLE IF NOT EXISTS role_assignments (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					role_id BIGINT NOT NULL REFERENCES roles(id),
					organization_id BIGINT REFERENCES organizations(id) ON DELETE CASCADE,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					assigned_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					assigned_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					deactivated_at TIMESTAMP WITH TIME ZONE,
					deactivated_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					UNIQUE(user_id, role_id)
				);

				CREATE INDEX idx_role_assignments_user_id ON role_assignments(user_id);
				CREATE INDEX idx_role_assignments_role_id ON role_assignments(role_id);
				CREATE INDEX idx_role_assignments_is_active ON role_assignments(is_active);
			`,
		},
		{
			Version:     5,
			Description: "Create api_tokens table",
			SQL: `
				CREATE TABLE IF NOT EXISTS api_tokens (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					token_hash VARCHAR(64) NOT NULL UNIQUE,
					token_prefix VARCHAR(32) NOT NULL,
					name VARCHAR(255) NOT NULL,
					description TEXT,
					expires_at TIMESTAMP WITH TIME ZONE,
					last_used_at TIMESTAMP WITH TIME ZONE,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					revoked_at TIMESTAMP WITH TIME ZONE,
					revoked_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					revoke_reason TEXT
				);

				CREATE INDEX idx_api_tokens_user_id ON api_tokens(user_id);
				CREATE INDEX idx_api_tokens_expires_at ON api_tokens(expires_at);
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS rbac_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM rbac_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO rbac_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// SeedCatalog inserts any missing default catalog entries
func SeedCatalog(ctx context.Context, store *Store) error {
	for _, p := range DefaultPermissionCatalog() {
		if err := store.CreatePermission(ctx, p); err != nil {
			return fmt.Errorf("failed to seed permission %s: %w", p, err)
		}
	}
	return nil
}

// SeedSystemRoles creates the per-organization system roles for an
// organization if they do not exist yet. This is the privileged path exempt
// from the system-role immutability rule.
func SeedSystemRoles(ctx context.Context, store *Store, orgID int64) error {
	for _, template := range SystemRoles() {
		role := template
		role.OrganizationID = &orgID

		_, err := store.GetRoleByName(ctx, role.Name, &orgID)
		if err == nil {
			continue
		}
		if KindOf(err) != KindRoleNotFound {
			return fmt.Errorf("failed to check system role %q: %w", role.Name, err)
		}

		if err := store.CreateRole(ctx, &role); err != nil {
			return fmt.Errorf("failed to seed system role %q: %w", role.Name, err)
		}
	}
	return nil
}

// SeedPlatformAdminRole creates the global platform admin role once
func SeedPlatformAdminRole(ctx context.Context, store *Store) error {
	role := PlatformAdminRole()

	_, err := store.GetRoleByName(ctx, role.Name, nil)
	if err == nil {
		return nil
	}
	if KindOf(err) != KindRoleNotFound {
		return fmt.Errorf("failed to check platform admin role: %w", err)
	}

	if err := store.CreateRole(ctx, &role); err != nil {
		return fmt.Errorf("failed to seed platform admin role: %w", err)
	}
	return nil
}
