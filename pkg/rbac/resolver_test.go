package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveNoAssignments(t *testing.T) {
	store := setupTestStore(t, 7)
	resolver := NewResolver(store)
	ctx := context.Background()

	set, err := resolver.Resolve(ctx, 7, int64Ptr(1))
	require.NoError(t, err)
	assert.Equal(t, 0, set.Len())
	assert.False(t, set.IsPlatformAdmin())
	assert.Equal(t, 0, set.MaxRoleLevel())
	assert.False(t, set.Has(Permission{ResourceFarm, ActionRead}))
}

func TestResolveUnionsRoles(t *testing.T) {
	store := setupTestStore(t, 7)
	resolver := NewResolver(store)
	ctx := context.Background()
	orgID := int64Ptr(1)

	reader := &Role{Name: "Reader", Level: 10, IsActive: true, OrganizationID: orgID,
		Permissions: []Permission{{ResourceFarm, ActionRead}, {ResourceOrder, ActionRead}}}
	writer := &Role{Name: "Writer", Level: 30, IsActive: true, OrganizationID: orgID,
		Permissions: []Permission{{ResourceFarm, ActionRead}, {ResourceFarm, ActionUpdate}}}
	require.NoError(t, store.CreateRole(ctx, reader))
	require.NoError(t, store.CreateRole(ctx, writer))

	for _, r := range []*Role{reader, writer} {
		_, err := store.AssignRole(ctx, 7, r.ID, nil)
		require.NoError(t, err)
	}

	set, err := resolver.Resolve(ctx, 7, orgID)
	require.NoError(t, err)
	assert.Equal(t, 3, set.Len())
	assert.True(t, set.Has(Permission{ResourceFarm, ActionRead}))
	assert.True(t, set.Has(Permission{ResourceFarm, ActionUpdate}))
	assert.True(t, set.Has(Permission{ResourceOrder, ActionRead}))
	assert.False(t, set.Has(Permission{ResourceOrder, ActionUpdate}))
	assert.Equal(t, 30, set.MaxRoleLevel())
	assert.ElementsMatch(t, []string{"Reader", "Writer"}, set.RoleNames())
}

func TestResolvePlatformAdmin(t *testing.T) {
	store := setupTestStore(t, 7)
	resolver := NewResolver(store)
	ctx := context.Background()

	require.NoError(t, SeedPlatformAdminRole(ctx, store))
	platform, err := store.GetRoleByName(ctx, RoleNamePlatformAdmin, nil)
	require.NoError(t, err)
	_, err = store.AssignRole(ctx, 7, platform.ID, nil)
	require.NoError(t, err)

	// The platform role carries no explicit permissions, yet resolves to
	// everything in any organization.
	for _, orgID := range []*int64{int64Ptr(1), int64Ptr(42), nil} {
		set, err := resolver.Resolve(ctx, 7, orgID)
		require.NoError(t, err)
		assert.True(t, set.IsPlatformAdmin())
		assert.Equal(t, len(DefaultPermissionCatalog()), set.Len())
		assert.True(t, set.Has(Permission{ResourceBilling, ActionManage}))
	}
}

func TestResolveSeesDeactivation(t *testing.T) {
	store := setupTestStore(t, 7)
	resolver := NewResolver(store)
	ctx := context.Background()
	orgID := int64Ptr(1)

	role := &Role{Name: "Temp", Level: 10, IsActive: true, OrganizationID: orgID,
		Permissions: []Permission{{ResourceListing, ActionPublish}}}
	require.NoError(t, store.CreateRole(ctx, role))
	_, err := store.AssignRole(ctx, 7, role.ID, nil)
	require.NoError(t, err)

	allowed, err := resolver.Check(ctx, 7, orgID, Permission{ResourceListing, ActionPublish})
	require.NoError(t, err)
	assert.True(t, allowed)

	require.NoError(t, store.DeactivateAssignment(ctx, 7, role.ID, nil))

	allowed, err = resolver.Check(ctx, 7, orgID, Permission{ResourceListing, ActionPublish})
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestCheckMany(t *testing.T) {
	store := setupTestStore(t, 7)
	resolver := NewResolver(store)
	ctx := context.Background()
	orgID := int64Ptr(1)

	role := &Role{Name: "Clerk", Level: 10, IsActive: true, OrganizationID: orgID,
		Permissions: []Permission{{ResourceInventory, ActionRead}, {ResourceInventory, ActionUpdate}}}
	require.NoError(t, store.CreateRole(ctx, role))
	_, err := store.AssignRole(ctx, 7, role.ID, nil)
	require.NoError(t, err)

	checks := []CheckRequest{
		{ResourceInventory, ActionUpdate},
		{ResourceBilling, ActionManage},
		{ResourceInventory, ActionRead},
	}
	results, err := resolver.CheckMany(ctx, 7, orgID, checks)
	require.NoError(t, err)
	require.Len(t, results, len(checks))

	// Batch results agree with single checks, in input order
	for i, c := range checks {
		assert.Equal(t, c.Resource, results[i].Resource)
		assert.Equal(t, c.Action, results[i].Action)

		single, err := resolver.Check(ctx, 7, orgID, Permission{c.Resource, c.Action})
		require.NoError(t, err)
		assert.Equal(t, single, results[i].Allowed)
	}
	assert.True(t, results[0].Allowed)
	assert.False(t, results[1].Allowed)
	assert.True(t, results[2].Allowed)
}

func TestCheckManyEmpty(t *testing.T) {
	store := setupTestStore(t, 7)
	resolver := NewResolver(store)

	results, err := resolver.CheckMany(context.Background(), 7, int64Ptr(1), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestPermissionSetList(t *testing.T) {
	set := &PermissionSet{perms: map[Permission]struct{}{
		{ResourceOrder, ActionRead}:   {},
		{ResourceFarm, ActionUpdate}:  {},
		{ResourceFarm, ActionCreate}:  {},
		{ResourceBilling, ActionRead}: {},
	}}

	list := set.List()
	require.Len(t, list, 4)
	assert.Equal(t, Permission{ResourceBilling, ActionRead}, list[0])
	assert.Equal(t, Permission{ResourceFarm, ActionCreate}, list[1])
	assert.Equal(t, Permission{ResourceFarm, ActionUpdate}, list[2])
	assert.Equal(t, Permission{ResourceOrder, ActionRead}, list[3])
}
