package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// TokenPrefix identifies CropLink tokens
	TokenPrefix = "croplink_"
	// TokenLength is the total length of random bytes (32 bytes = 256 bits)
	TokenLength = 32
)

// ErrTokenInvalid is returned when a token is unknown, revoked, or expired
var ErrTokenInvalid = errors.New("invalid or expired token")

// TokenGenerator generates and validates API tokens
type TokenGenerator struct{}

// NewTokenGenerator creates a new token generator
func NewTokenGenerator() *TokenGenerator {
	return &TokenGenerator{}
}

// GenerateToken creates a new API token
// Format: croplink_<base64url(32 random bytes)>
func (tg *TokenGenerator) GenerateToken() (token string, tokenHash string, tokenPrefix string, err error) {
	randomBytes := make([]byte, TokenLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	// base64url, no padding
	encodedToken := base64.RawURLEncoding.EncodeToString(randomBytes)
	fullToken := TokenPrefix + encodedToken

	hash := sha256.Sum256([]byte(fullToken))
	hashStr := hex.EncodeToString(hash[:])

	// First 8 chars after the prefix are kept for display/identification
	prefix := TokenPrefix
	if len(encodedToken) >= 8 {
		prefix = TokenPrefix + encodedToken[:8]
	}

	return fullToken, hashStr, prefix, nil
}

// HashToken computes the SHA256 hash of a token for lookup
func (tg *TokenGenerator) HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// ValidateTokenFormat checks if a token has the correct format
func (tg *TokenGenerator) ValidateTokenFormat(token string) error {
	if !strings.HasPrefix(token, TokenPrefix) {
		return fmt.Errorf("token must start with %q", TokenPrefix)
	}

	encodedPart := strings.TrimPrefix(token, TokenPrefix)
	if len(encodedPart) == 0 {
		return fmt.Errorf("token is too short")
	}

	if _, err := base64.RawURLEncoding.DecodeString(encodedPart); err != nil {
		return fmt.Errorf("invalid token encoding: %w", err)
	}

	return nil
}

// ExtractPrefix extracts the prefix from a token for display
func (tg *TokenGenerator) ExtractPrefix(token string) string {
	if !strings.HasPrefix(token, TokenPrefix) {
		return ""
	}

	encodedPart := strings.TrimPrefix(token, TokenPrefix)
	if len(encodedPart) >= 8 {
		return TokenPrefix + encodedPart[:8]
	}

	return token
}

// TokenManager manages API token lifecycle backed by the api_tokens table
type TokenManager struct {
	db        *sql.DB
	generator *TokenGenerator
}

// NewTokenManager creates a new token manager
func NewTokenManager(db *sql.DB) *TokenManager {
	return &TokenManager{
		db:        db,
		generator: NewTokenGenerator(),
	}
}

// CreateToken creates a new API token and returns the plaintext token once.
// The plaintext is never stored.
func (tm *TokenManager) CreateToken(ctx context.Context, userID int64, name, description string, expiresAt *time.Time) (*APIToken, string, error) {
	token, tokenHash, tokenPrefix, err := tm.generator.GenerateToken()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	apiToken := &APIToken{
		UserID:      userID,
		TokenHash:   tokenHash,
		TokenPrefix: tokenPrefix,
		Name:        name,
		Description: description,
		ExpiresAt:   expiresAt,
	}

	query := `
		INSERT INTO api_tokens (user_id, token_hash, token_prefix, name, description, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, created_at`
	err = tm.db.QueryRowContext(ctx, query,
		userID, tokenHash, tokenPrefix, name, description, expiresAt,
	).Scan(&apiToken.ID, &apiToken.CreatedAt)
	if err != nil {
		return nil, "", fmt.Errorf("failed to store token: %w", err)
	}

	return apiToken, token, nil
}

// ValidateToken resolves a presented token to its record, rejecting revoked
// and expired tokens, and stamps last_used_at.
func (tm *TokenManager) ValidateToken(ctx context.Context, token string) (*APIToken, error) {
	if err := tm.generator.ValidateTokenFormat(token); err != nil {
		return nil, ErrTokenInvalid
	}

	tokenHash := tm.generator.HashToken(token)

	query := `
		SELECT id, user_id, token_hash, token_prefix, name, description,
		       expires_at, last_used_at, created_at, revoked_at
		FROM api_tokens
		WHERE token_hash = $1`
	var t APIToken
	var description sql.NullString
	err := tm.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&t.ID, &t.UserID, &t.TokenHash, &t.TokenPrefix, &t.Name, &description,
		&t.ExpiresAt, &t.LastUsedAt, &t.CreatedAt, &t.RevokedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrTokenInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}
	t.Description = description.String

	if !t.IsValid() {
		return nil, ErrTokenInvalid
	}

	// Best effort; a failed stamp must not fail authentication
	now := time.Now()
	_, _ = tm.db.ExecContext(ctx,
		`UPDATE api_tokens SET last_used_at = $1 WHERE id = $2`, now, t.ID)
	t.LastUsedAt = &now

	return &t, nil
}

// RevokeToken revokes a token
func (tm *TokenManager) RevokeToken(ctx context.Context, tokenID, revokedBy int64, reason string) error {
	result, err := tm.db.ExecContext(ctx, `
		UPDATE api_tokens
		SET revoked_at = NOW(), revoked_by = $1, revoke_reason = $2
		WHERE id = $3 AND revoked_at IS NULL`,
		revokedBy, reason, tokenID)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check revocation: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("token %d not found or already revoked", tokenID)
	}
	return nil
}

// ListUserTokens lists all tokens for a user, newest first
func (tm *TokenManager) ListUserTokens(ctx context.Context, userID int64) ([]*APIToken, error) {
	query := `
		SELECT id, user_id, token_prefix, name, description,
		       expires_at, last_used_at, created_at, revoked_at, revoked_by, revoke_reason
		FROM api_tokens
		WHERE user_id = $1
		ORDER BY created_at DESC`
	rows, err := tm.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*APIToken
	for rows.Next() {
		var t APIToken
		var description, revokeReason sql.NullString
		if err := rows.Scan(
			&t.ID, &t.UserID, &t.TokenPrefix, &t.Name, &description,
			&t.ExpiresAt, &t.LastUsedAt, &t.CreatedAt, &t.RevokedAt, &t.RevokedBy, &revokeReason,
		); err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		t.Description = description.String
		t.RevokeReason = revokeReason.String
		tokens = append(tokens, &t)
	}
	return tokens, rows.Err()
}

// CleanupExpiredTokens deletes tokens whose expiry has passed. Revoked tokens
// are kept for audit history.
func (tm *TokenManager) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	result, err := tm.db.ExecContext(ctx,
		`DELETE FROM api_tokens WHERE expires_at IS NOT NULL AND expires_at < NOW() AND revoked_at IS NULL`)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up expired tokens: %w", err)
	}
	return result.RowsAffected()
}
