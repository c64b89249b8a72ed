package audit

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock
}

func TestNewDBLogger(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_logs").WillReturnResult(sqlmock.NewResult(0, 0))

		logger, err := NewDBLogger(db)
		require.NoError(t, err)
		assert.NotNil(t, logger)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nil database", func(t *testing.T) {
		logger, err := NewDBLogger(nil)
		assert.Error(t, err)
		assert.Nil(t, logger)
		assert.Contains(t, err.Error(), "database connection is required")
	})

	t.Run("table creation error", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_logs").WillReturnError(errors.New("table creation failed"))

		logger, err := NewDBLogger(db)
		assert.Error(t, err)
		assert.Nil(t, logger)
		assert.Contains(t, err.Error(), "failed to ensure audit_logs table")
	})
}

func TestDBLogger_Log(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	logger := &DBLogger{db: db}

	t.Run("denial event", func(t *testing.T) {
		userID := int64(42)
		orgID := int64(7)
		event := DenialEvent(&userID, &orgID, "permission_check", "permission_denied", "missing commodity:approve")

		mock.ExpectQuery("INSERT INTO audit_logs").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

		err := logger.Log(context.Background(), event)
		require.NoError(t, err)
		assert.Equal(t, int64(1), event.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("bypass event carries stage", func(t *testing.T) {
		userID := int64(1)
		event := BypassEvent(&userID, nil, "org_isolation")
		assert.Equal(t, EventTypeAuthzBypass, event.EventType)
		assert.Equal(t, "org_isolation", event.Stage)

		mock.ExpectQuery("INSERT INTO audit_logs").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(2)))

		err := logger.Log(context.Background(), event)
		require.NoError(t, err)
	})

	t.Run("insert error", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO audit_logs").WillReturnError(errors.New("connection lost"))

		err := logger.Log(context.Background(), NewEvent(EventTypeRoleCreated, EventStatusSuccess))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to insert audit log")
	})
}

func TestDBLogger_Search(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	logger := &DBLogger{db: db}
	now := time.Now().UTC()
	userID := int64(42)
	orgID := int64(7)

	rows := sqlmock.NewRows([]string{
		"id", "timestamp", "event_type", "status",
		"user_id", "username", "organization_id",
		"stage", "denial_kind",
		"resource_type", "resource_id",
		"ip_address", "user_agent", "request_id",
		"message", "metadata",
	}).AddRow(
		int64(1), now, string(EventTypeAuthzDenied), string(EventStatusDenied),
		userID, "alice", orgID,
		"feature_access", "feature_not_available", "feature", "ai_insights",
		"10.0.0.1", "curl/8.0", "req-123",
		"plan does not include ai_insights", []byte(`{"plan":"basic"}`),
	)

	mock.ExpectQuery("SELECT (.+) FROM audit_logs").WillReturnRows(rows)

	stage := "feature_access"
	events, err := logger.Search(context.Background(), SearchFilter{
		OrganizationID: &orgID,
		Stage:          stage,
		Limit:          10,
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventTypeAuthzDenied, events[0].EventType)
	assert.Equal(t, "feature_access", events[0].Stage)
	assert.Equal(t, "feature_not_available", events[0].DenialKind)
	assert.Equal(t, "basic", events[0].Metadata["plan"])
}
