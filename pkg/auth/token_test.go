package auth

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenGenerator_GenerateToken(t *testing.T) {
	tg := NewTokenGenerator()

	token, tokenHash, tokenPrefix, err := tg.GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	// Check token format
	if !strings.HasPrefix(token, TokenPrefix) {
		t.Errorf("Token should start with %q, got %q", TokenPrefix, token)
	}

	// Check hash length (SHA256 = 64 hex chars)
	if len(tokenHash) != 64 {
		t.Errorf("TokenHash length = %d, want 64", len(tokenHash))
	}

	// Check prefix format
	if !strings.HasPrefix(tokenPrefix, TokenPrefix) {
		t.Errorf("TokenPrefix should start with %q, got %q", TokenPrefix, tokenPrefix)
	}

	// Token should be long enough
	if len(token) < len(TokenPrefix)+8 {
		t.Errorf("Token too short: %d chars", len(token))
	}
}

func TestTokenGenerator_GenerateToken_Uniqueness(t *testing.T) {
	tg := NewTokenGenerator()

	tokens := make(map[string]bool)
	hashes := make(map[string]bool)

	for i := 0; i < 100; i++ {
		token, tokenHash, _, err := tg.GenerateToken()
		if err != nil {
			t.Fatalf("GenerateToken() error = %v", err)
		}

		if tokens[token] {
			t.Errorf("Duplicate token generated: %s", token)
		}
		if hashes[tokenHash] {
			t.Errorf("Duplicate token hash generated: %s", tokenHash)
		}

		tokens[token] = true
		hashes[tokenHash] = true
	}
}

func TestTokenGenerator_HashToken(t *testing.T) {
	tg := NewTokenGenerator()

	token := "croplink_test123"
	hash1 := tg.HashToken(token)
	hash2 := tg.HashToken(token)

	if hash1 != hash2 {
		t.Errorf("HashToken not deterministic: %s != %s", hash1, hash2)
	}
	if len(hash1) != 64 {
		t.Errorf("Hash length = %d, want 64", len(hash1))
	}
	if hash1 == tg.HashToken("croplink_test124") {
		t.Error("Different tokens produced the same hash")
	}
}

func TestTokenGenerator_ValidateTokenFormat(t *testing.T) {
	tg := NewTokenGenerator()

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{"valid token", "croplink_abc123def456", false},
		{"missing prefix", "spoke_abc123def456", true},
		{"empty token", "", true},
		{"prefix only", "croplink_", true},
		{"invalid base64url", "croplink_!!!not-base64!!!", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tg.ValidateTokenFormat(tt.token)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTokenFormat(%q) error = %v, wantErr %v", tt.token, err, tt.wantErr)
			}
		})
	}
}

func TestTokenGenerator_ExtractPrefix(t *testing.T) {
	tg := NewTokenGenerator()

	if got := tg.ExtractPrefix("croplink_abcdefgh123456"); got != "croplink_abcdefgh" {
		t.Errorf("ExtractPrefix() = %q, want %q", got, "croplink_abcdefgh")
	}
	if got := tg.ExtractPrefix("wrong_abcdefgh"); got != "" {
		t.Errorf("ExtractPrefix() on foreign token = %q, want empty", got)
	}
}

func setupTokenMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock
}

func TestTokenManager_CreateToken(t *testing.T) {
	db, mock := setupTokenMockDB(t)
	defer db.Close()

	tm := NewTokenManager(db)
	now := time.Now()

	mock.ExpectQuery("INSERT INTO api_tokens").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), now))

	apiToken, plaintext, err := tm.CreateToken(context.Background(), 42, "ci-bot", "pipeline token", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(7), apiToken.ID)
	assert.Equal(t, int64(42), apiToken.UserID)
	assert.True(t, strings.HasPrefix(plaintext, TokenPrefix))
	assert.NotContains(t, apiToken.TokenHash, plaintext, "plaintext must not appear in the stored hash")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenManager_ValidateToken(t *testing.T) {
	t.Run("valid token", func(t *testing.T) {
		db, mock := setupTokenMockDB(t)
		defer db.Close()

		tm := NewTokenManager(db)
		token := "croplink_dGVzdHRva2VuMTIzNDU2Nzg"
		hash := tm.generator.HashToken(token)
		now := time.Now()

		rows := sqlmock.NewRows([]string{
			"id", "user_id", "token_hash", "token_prefix", "name", "description",
			"expires_at", "last_used_at", "created_at", "revoked_at",
		}).AddRow(int64(3), int64(42), hash, "croplink_dGVzdHRv", "ci-bot", "desc", nil, nil, now, nil)

		mock.ExpectQuery("SELECT (.+) FROM api_tokens").WithArgs(hash).WillReturnRows(rows)
		mock.ExpectExec("UPDATE api_tokens SET last_used_at").WillReturnResult(sqlmock.NewResult(0, 1))

		got, err := tm.ValidateToken(context.Background(), token)
		require.NoError(t, err)
		assert.Equal(t, int64(42), got.UserID)
		assert.NotNil(t, got.LastUsedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown token", func(t *testing.T) {
		db, mock := setupTokenMockDB(t)
		defer db.Close()

		tm := NewTokenManager(db)
		mock.ExpectQuery("SELECT (.+) FROM api_tokens").WillReturnError(sql.ErrNoRows)

		_, err := tm.ValidateToken(context.Background(), "croplink_dGVzdHRva2VuMTIzNDU2Nzg")
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("revoked token", func(t *testing.T) {
		db, mock := setupTokenMockDB(t)
		defer db.Close()

		tm := NewTokenManager(db)
		token := "croplink_dGVzdHRva2VuMTIzNDU2Nzg"
		hash := tm.generator.HashToken(token)
		now := time.Now()
		revoked := now.Add(-time.Hour)

		rows := sqlmock.NewRows([]string{
			"id", "user_id", "token_hash", "token_prefix", "name", "description",
			"expires_at", "last_used_at", "created_at", "revoked_at",
		}).AddRow(int64(3), int64(42), hash, "croplink_dGVzdHRv", "ci-bot", "", nil, nil, now, revoked)

		mock.ExpectQuery("SELECT (.+) FROM api_tokens").WithArgs(hash).WillReturnRows(rows)

		_, err := tm.ValidateToken(context.Background(), token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("expired token", func(t *testing.T) {
		db, mock := setupTokenMockDB(t)
		defer db.Close()

		tm := NewTokenManager(db)
		token := "croplink_dGVzdHRva2VuMTIzNDU2Nzg"
		hash := tm.generator.HashToken(token)
		now := time.Now()
		expired := now.Add(-time.Minute)

		rows := sqlmock.NewRows([]string{
			"id", "user_id", "token_hash", "token_prefix", "name", "description",
			"expires_at", "last_used_at", "created_at", "revoked_at",
		}).AddRow(int64(3), int64(42), hash, "croplink_dGVzdHRv", "ci-bot", "", expired, nil, now, nil)

		mock.ExpectQuery("SELECT (.+) FROM api_tokens").WithArgs(hash).WillReturnRows(rows)

		_, err := tm.ValidateToken(context.Background(), token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("malformed token skips database", func(t *testing.T) {
		db, mock := setupTokenMockDB(t)
		defer db.Close()

		tm := NewTokenManager(db)
		_, err := tm.ValidateToken(context.Background(), "not-a-croplink-token")
		assert.ErrorIs(t, err, ErrTokenInvalid)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTokenManager_RevokeToken(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		db, mock := setupTokenMockDB(t)
		defer db.Close()

		tm := NewTokenManager(db)
		mock.ExpectExec("UPDATE api_tokens").
			WithArgs(int64(1), "rotated", int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := tm.RevokeToken(context.Background(), 3, 1, "rotated")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already revoked", func(t *testing.T) {
		db, mock := setupTokenMockDB(t)
		defer db.Close()

		tm := NewTokenManager(db)
		mock.ExpectExec("UPDATE api_tokens").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := tm.RevokeToken(context.Background(), 3, 1, "rotated")
		assert.Error(t, err)
	})
}

func TestTokenManager_CleanupExpiredTokens(t *testing.T) {
	db, mock := setupTokenMockDB(t)
	defer db.Close()

	tm := NewTokenManager(db)
	mock.ExpectExec("DELETE FROM api_tokens").WillReturnResult(sqlmock.NewResult(0, 5))

	deleted, err := tm.CleanupExpiredTokens(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAPIToken_IsValid(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	tests := []struct {
		name  string
		token APIToken
		want  bool
	}{
		{"no expiry, not revoked", APIToken{}, true},
		{"future expiry", APIToken{ExpiresAt: &future}, true},
		{"past expiry", APIToken{ExpiresAt: &past}, false},
		{"revoked", APIToken{RevokedAt: &past}, false},
		{"revoked and expired", APIToken{ExpiresAt: &past, RevokedAt: &past}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.token.IsValid(); got != tt.want {
				t.Errorf("IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}
