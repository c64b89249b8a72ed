package rbac

import (
	"context"
	"errors"
)

// BulkAssignRole assigns one role to many users, or deactivates it for many
// users when isActive is false. A missing role aborts the whole batch before
// any item runs; per-user failures are captured as result items rather than
// errors. Results preserve the input ordering and SuccessCount+FailureCount
// always equals len(userIDs).
func (s *Store) BulkAssignRole(ctx context.Context, roleID int64, userIDs []int64, isActive bool, assignedBy *int64) (*BulkAssignResult, error) {
	// Batch-level precondition: the role must exist
	if _, err := s.GetRole(ctx, roleID); err != nil {
		return nil, err
	}

	result := &BulkAssignResult{
		RoleID:  roleID,
		Results: make([]BulkAssignItem, 0, len(userIDs)),
	}

	for _, userID := range userIDs {
		item := BulkAssignItem{UserID: userID}

		var err error
		if isActive {
			_, err = s.AssignRole(ctx, userID, roleID, assignedBy)
		} else {
			err = s.DeactivateAssignment(ctx, userID, roleID, assignedBy)
		}
		if err != nil {
			item.Success = false
			item.Kind = KindOf(err)
			var typed *Error
			if errors.As(err, &typed) {
				item.Error = typed.Message
			} else {
				item.Error = err.Error()
			}
			result.FailureCount++
		} else {
			item.Success = true
			result.SuccessCount++
		}

		result.Results = append(result.Results, item)
	}

	return result, nil
}
