// Package user defines the user model used throughout the application,
// particularly for authentication and per-user file ownership.
package user

// User represents a system user.
// PasswordHash is an opaque bcrypt hash; it never leaves the storage layer
// except for credential verification at login.
type User struct {
	// ID is the unique identifier of the user, assigned by the storage
	// backend on registration and immutable afterwards.
	ID int64

	// Username is unique across all users.
	Username string

	// PasswordHash is the salted one-way hash of the user's password.
	PasswordHash string
}
