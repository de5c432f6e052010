package model

import "time"

// User mirrors a row of the `users` table. The roles column holds the
// comma-joined RoleSet; email is stored lowercase and is unique.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Email        – unique, normalized email address.
//  Name         – display name.
//  PasswordHash – bcrypt hashed password; never serialized to clients.
//  Roles        – set of roles granted to the user.
//  CreatedAt    – timestamp of creation.
//  UpdatedAt    – timestamp of last update.
type User struct {
	ID           uint64    // users.id
	Email        string    // users.email
	Name         string    // users.name
	PasswordHash string    // users.password_hash
	Roles        RoleSet   // users.roles (comma-joined)
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}

// RefreshToken models an entry in the `refresh_tokens` table. Only the
// SHA-256 hash of a token is stored; the raw value exists solely in
// cookie transit. Revoked rows are retained for reuse detection rather
// than deleted.
//
// Fields:
//  ID        – primary key identifier.
//  UserID    – owner of the token.
//  TokenHash – SHA-256 hex digest of the raw token value.
//  ExpiresAt – expiration timestamp.
//  Revoked   – set on rotation-out, logout or reuse detection.
//  CreatedAt – timestamp of creation.
type RefreshToken struct {
	ID        uint64    // refresh_tokens.id
	UserID    uint64    // refresh_tokens.user_id
	TokenHash string    // refresh_tokens.token_hash
	ExpiresAt time.Time // refresh_tokens.expires_at
	Revoked   bool      // refresh_tokens.revoked
	CreatedAt time.Time // refresh_tokens.created_at
}
