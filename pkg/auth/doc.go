// Package auth provides user accounts and API token management for the
// CropLink platform.
//
// Tokens are opaque bearer credentials of the form
// croplink_[base64url(32 random bytes)], stored only as SHA-256 hashes.
// ValidateToken resolves a presented token to its owning user, which the
// authorization guard chain then turns into a request principal.
//
// Permissions themselves live in pkg/rbac; this package answers "who is
// calling", not "what may they do".
package auth
