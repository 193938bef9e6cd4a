// Package storage declares the interface every relational backend
// (postgres, sqlite, in-memory) implements.
package storage

import (
	"context"

	"github.com/patric-chuzhbe/filekeeper/internal/models"
	"github.com/patric-chuzhbe/filekeeper/internal/user"
)

type Storage interface {
	// CreateUser inserts a new user and returns its id. Uniqueness of the
	// username is enforced by the store itself; a violation is reported as
	// models.ErrDuplicateUsername.
	CreateUser(ctx context.Context, username, passwordHash string) (int64, error)

	// FindUserByUsername returns models.ErrNotFound when no such user exists.
	FindUserByUsername(ctx context.Context, username string) (*user.User, error)

	// GetUserByID returns models.ErrNotFound when no such user exists.
	GetUserByID(ctx context.Context, userID int64) (*user.User, error)

	// RecordFile appends a metadata row for a stored file and returns its id.
	RecordFile(ctx context.Context, ownerUserID int64, filename, physicalPath string) (int64, error)

	// GetUserFiles returns the recorded logical-to-physical name pairs
	// for the given owner, oldest first.
	GetUserFiles(ctx context.Context, ownerUserID int64) ([]models.FileRecord, error)

	GetNumberOfUsers(ctx context.Context) (int64, error)

	GetNumberOfFiles(ctx context.Context) (int64, error)

	Ping(ctx context.Context) error

	Close() error
}
