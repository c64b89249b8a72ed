package guard

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/croplink/croplink/pkg/auth"
	"github.com/croplink/croplink/pkg/rbac"
)

type loaderFixture struct {
	db     *sql.DB
	loader *PrincipalLoader
	store  *rbac.Store
	token  string
}

func setupLoader(t *testing.T) *loaderFixture {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			organization_id INTEGER NOT NULL,
			username TEXT NOT NULL,
			email TEXT,
			full_name TEXT,
			is_bot BOOLEAN NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_login_at TIMESTAMP
		);

		CREATE TABLE api_tokens (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			token_hash TEXT NOT NULL UNIQUE,
			token_prefix TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			expires_at TIMESTAMP,
			last_used_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			revoked_at TIMESTAMP,
			revoked_by INTEGER,
			revoke_reason TEXT
		);

		CREATE TABLE permissions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			resource TEXT NOT NULL,
			action TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(resource, action)
		);

		CREATE TABLE roles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			organization_id INTEGER,
			name TEXT NOT NULL,
			description TEXT,
			level INTEGER NOT NULL DEFAULT 0,
			is_system_role BOOLEAN NOT NULL DEFAULT 0,
			is_platform_admin BOOLEAN NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			created_by INTEGER
		);

		CREATE TABLE role_permissions (
			role_id INTEGER NOT NULL,
			permission_id INTEGER NOT NULL,
			PRIMARY KEY (role_id, permission_id)
		);

		CREATE TABLE role_assignments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			role_id INTEGER NOT NULL,
			organization_id INTEGER,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			assigned_by INTEGER,
			assigned_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			deactivated_at TIMESTAMP,
			deactivated_by INTEGER,
			UNIQUE(user_id, role_id)
		);
	`
	_, err = db.Exec(schema)
	require.NoError(t, err)

	ctx := context.Background()
	userStore := auth.NewStore(db)
	rbacStore := rbac.NewStore(db, userStore)
	require.NoError(t, rbac.SeedCatalog(ctx, rbacStore))

	_, err = db.Exec(`INSERT INTO users (id, organization_id, username) VALUES (7, 1, 'ada')`)
	require.NoError(t, err)

	// Mint a well-formed token and store its hash the way CreateToken would
	token, hash, prefix, err := auth.NewTokenGenerator().GenerateToken()
	require.NoError(t, err)
	_, err = db.Exec(
		`INSERT INTO api_tokens (user_id, token_hash, token_prefix, name) VALUES (7, $1, $2, 'test')`,
		hash, prefix)
	require.NoError(t, err)

	loader := NewPrincipalLoader(
		auth.NewTokenManager(db), userStore, rbac.NewResolver(rbacStore),
		16, time.Minute, nil)

	return &loaderFixture{db: db, loader: loader, store: rbacStore, token: token}
}

func TestPrincipalLoader(t *testing.T) {
	f := setupLoader(t)
	ctx := context.Background()

	role := &rbac.Role{
		Name: "Reader", Level: 10, IsActive: true, OrganizationID: int64Ptr(1),
		Permissions: []rbac.Permission{{Resource: rbac.ResourceFarm, Action: rbac.ActionRead}},
	}
	require.NoError(t, f.store.CreateRole(ctx, role))
	_, err := f.store.AssignRole(ctx, 7, role.ID, nil)
	require.NoError(t, err)

	principal, err := f.loader.PrincipalFromToken(ctx, f.token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), principal.UserID)
	assert.Equal(t, "ada", principal.Username)
	require.NotNil(t, principal.OrganizationID)
	assert.Equal(t, int64(1), *principal.OrganizationID)
	require.NotNil(t, principal.Permissions)
	assert.True(t, principal.Permissions.Has(rbac.Permission{Resource: rbac.ResourceFarm, Action: rbac.ActionRead}))
}

func TestPrincipalLoaderCacheInvalidation(t *testing.T) {
	f := setupLoader(t)
	ctx := context.Background()

	reader := &rbac.Role{
		Name: "Reader", Level: 10, IsActive: true, OrganizationID: int64Ptr(1),
		Permissions: []rbac.Permission{{Resource: rbac.ResourceFarm, Action: rbac.ActionRead}},
	}
	require.NoError(t, f.store.CreateRole(ctx, reader))
	_, err := f.store.AssignRole(ctx, 7, reader.ID, nil)
	require.NoError(t, err)

	principal, err := f.loader.PrincipalFromToken(ctx, f.token)
	require.NoError(t, err)
	writer := rbac.Permission{Resource: rbac.ResourceFarm, Action: rbac.ActionUpdate}
	assert.False(t, principal.Permissions.Has(writer))

	// Grant another role; the cached set does not see it yet
	editor := &rbac.Role{
		Name: "Editor", Level: 20, IsActive: true, OrganizationID: int64Ptr(1),
		Permissions: []rbac.Permission{writer},
	}
	require.NoError(t, f.store.CreateRole(ctx, editor))
	_, err = f.store.AssignRole(ctx, 7, editor.ID, nil)
	require.NoError(t, err)

	cached, err := f.loader.PrincipalFromToken(ctx, f.token)
	require.NoError(t, err)
	assert.False(t, cached.Permissions.Has(writer))

	f.loader.InvalidateUser(7)

	fresh, err := f.loader.PrincipalFromToken(ctx, f.token)
	require.NoError(t, err)
	assert.True(t, fresh.Permissions.Has(writer))
}

func TestPrincipalLoaderRevokedToken(t *testing.T) {
	f := setupLoader(t)
	ctx := context.Background()

	_, err := f.loader.PrincipalFromToken(ctx, f.token)
	require.NoError(t, err)

	// Revocation bites immediately even while the principal is cached
	_, err = f.db.Exec(`UPDATE api_tokens SET revoked_at = CURRENT_TIMESTAMP`)
	require.NoError(t, err)

	_, err = f.loader.PrincipalFromToken(ctx, f.token)
	assert.ErrorIs(t, err, auth.ErrTokenInvalid)
}

func TestPrincipalLoaderInactiveUser(t *testing.T) {
	f := setupLoader(t)
	ctx := context.Background()

	_, err := f.db.Exec(`UPDATE users SET is_active = 0 WHERE id = 7`)
	require.NoError(t, err)

	_, err = f.loader.PrincipalFromToken(ctx, f.token)
	assert.ErrorIs(t, err, auth.ErrTokenInvalid)
}
