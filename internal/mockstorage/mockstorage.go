// Package mockstorage provides a testify-based mock implementation
// of the storage interface. It is used for unit testing HTTP handlers
// by simulating storage behavior, including failure injection.
package mockstorage

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/patric-chuzhbe/filekeeper/internal/models"
	"github.com/patric-chuzhbe/filekeeper/internal/user"
)

// StorageMock is a testify mock that implements the storage interface
// used by the service and the auth middleware.
type StorageMock struct {
	mock.Mock
}

// CreateUser mocks user creation.
func (m *StorageMock) CreateUser(ctx context.Context, username, passwordHash string) (int64, error) {
	args := m.Called(ctx, username, passwordHash)
	return args.Get(0).(int64), args.Error(1)
}

// FindUserByUsername mocks the username lookup.
func (m *StorageMock) FindUserByUsername(ctx context.Context, username string) (*user.User, error) {
	args := m.Called(ctx, username)
	usr, _ := args.Get(0).(*user.User)
	return usr, args.Error(1)
}

// GetUserByID mocks the id lookup.
func (m *StorageMock) GetUserByID(ctx context.Context, userID int64) (*user.User, error) {
	args := m.Called(ctx, userID)
	usr, _ := args.Get(0).(*user.User)
	return usr, args.Error(1)
}

// RecordFile mocks appending a file metadata row.
func (m *StorageMock) RecordFile(ctx context.Context, ownerUserID int64, filename, physicalPath string) (int64, error) {
	args := m.Called(ctx, ownerUserID, filename, physicalPath)
	return args.Get(0).(int64), args.Error(1)
}

// GetUserFiles mocks reading the metadata rows of an owner.
func (m *StorageMock) GetUserFiles(ctx context.Context, ownerUserID int64) ([]models.FileRecord, error) {
	args := m.Called(ctx, ownerUserID)
	records, _ := args.Get(0).([]models.FileRecord)
	return records, args.Error(1)
}

// GetNumberOfUsers mocks the user count.
func (m *StorageMock) GetNumberOfUsers(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// GetNumberOfFiles mocks the file count.
func (m *StorageMock) GetNumberOfFiles(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// Ping mocks the health check.
func (m *StorageMock) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Close mocks releasing the storage resources.
func (m *StorageMock) Close() error {
	args := m.Called()
	return args.Error(0)
}
