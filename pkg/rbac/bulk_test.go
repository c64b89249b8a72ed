package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkAssignRoleMissingRole(t *testing.T) {
	store := setupTestStore(t, 1, 2)

	result, err := store.BulkAssignRole(context.Background(), 9999, []int64{1, 2}, true, nil)
	assert.Nil(t, result)
	assert.Equal(t, KindRoleNotFound, KindOf(err))

	// No item ran
	assignments, listErr := store.ListAssignmentsForUser(context.Background(), 1)
	require.NoError(t, listErr)
	assert.Empty(t, assignments)
}

func TestBulkAssignRolePartialFailure(t *testing.T) {
	store := setupTestStore(t, 1, 3)
	ctx := context.Background()

	role := &Role{Name: "Picker", Level: 5, IsActive: true, OrganizationID: int64Ptr(1)}
	require.NoError(t, store.CreateRole(ctx, role))

	// User 2 does not exist; 1 and 3 do
	userIDs := []int64{1, 2, 3}
	result, err := store.BulkAssignRole(ctx, role.ID, userIDs, true, int64Ptr(100))
	require.NoError(t, err)

	assert.Equal(t, role.ID, result.RoleID)
	assert.Equal(t, 2, result.SuccessCount)
	assert.Equal(t, 1, result.FailureCount)
	assert.Equal(t, len(userIDs), result.SuccessCount+result.FailureCount)
	require.Len(t, result.Results, len(userIDs))

	// Results preserve input order
	for i, userID := range userIDs {
		assert.Equal(t, userID, result.Results[i].UserID)
	}

	assert.True(t, result.Results[0].Success)
	assert.False(t, result.Results[1].Success)
	assert.Equal(t, KindUserNotFound, result.Results[1].Kind)
	assert.NotEmpty(t, result.Results[1].Error)
	assert.True(t, result.Results[2].Success)

	// The failure did not roll back the successes
	roles, err := store.GetActiveRoles(ctx, 3, int64Ptr(1))
	require.NoError(t, err)
	assert.Len(t, roles, 1)
}

func TestBulkAssignRoleIdempotent(t *testing.T) {
	store := setupTestStore(t, 1, 2)
	ctx := context.Background()

	role := &Role{Name: "Driver", Level: 5, IsActive: true, OrganizationID: int64Ptr(1)}
	require.NoError(t, store.CreateRole(ctx, role))

	first, err := store.BulkAssignRole(ctx, role.ID, []int64{1, 2}, true, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, first.SuccessCount)

	// Re-running the same batch succeeds without duplicating rows
	second, err := store.BulkAssignRole(ctx, role.ID, []int64{1, 2}, true, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, second.SuccessCount)
	assert.Equal(t, 0, second.FailureCount)

	assignments, err := store.ListAssignmentsForUser(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, assignments, 1)
}

func TestBulkAssignRoleDeactivate(t *testing.T) {
	store := setupTestStore(t, 1, 2, 3)
	ctx := context.Background()

	role := &Role{Name: "Seasonal", Level: 5, IsActive: true, OrganizationID: int64Ptr(1)}
	require.NoError(t, store.CreateRole(ctx, role))

	assigned, err := store.BulkAssignRole(ctx, role.ID, []int64{1, 2, 3}, true, int64Ptr(100))
	require.NoError(t, err)
	require.Equal(t, 3, assigned.SuccessCount)

	result, err := store.BulkAssignRole(ctx, role.ID, []int64{1, 2}, false, int64Ptr(100))
	require.NoError(t, err)
	assert.Equal(t, 2, result.SuccessCount)
	assert.Equal(t, 0, result.FailureCount)

	// Deactivated users lose the role; user 3 keeps it
	for _, userID := range []int64{1, 2} {
		roles, err := store.GetActiveRoles(ctx, userID, int64Ptr(1))
		require.NoError(t, err)
		assert.Empty(t, roles)
	}
	roles, err := store.GetActiveRoles(ctx, 3, int64Ptr(1))
	require.NoError(t, err)
	assert.Len(t, roles, 1)

	// Rows survive deactivation for audit history
	assignments, err := store.ListAssignmentsForUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	assert.False(t, assignments[0].IsActive)
}

func TestBulkAssignRoleDeactivateMissingRole(t *testing.T) {
	store := setupTestStore(t, 1)

	result, err := store.BulkAssignRole(context.Background(), 9999, []int64{1}, false, nil)
	assert.Nil(t, result)
	assert.Equal(t, KindRoleNotFound, KindOf(err))
}

func TestBulkAssignRoleEmptyBatch(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	role := &Role{Name: "Empty", Level: 5, IsActive: true, OrganizationID: int64Ptr(1)}
	require.NoError(t, store.CreateRole(ctx, role))

	result, err := store.BulkAssignRole(ctx, role.ID, nil, true, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, result.SuccessCount)
	assert.Equal(t, 0, result.FailureCount)
	assert.Empty(t, result.Results)
}
