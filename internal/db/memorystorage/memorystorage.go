// Package memorystorage provides an in-memory implementation of the
// storage interface. It backs unit tests and zero-config local runs;
// nothing survives a restart.
package memorystorage

import (
	"context"
	"fmt"
	"sync"

	"github.com/patric-chuzhbe/filekeeper/internal/models"
	"github.com/patric-chuzhbe/filekeeper/internal/user"
)

type MemoryStorage struct {
	mu sync.RWMutex

	users         map[int64]*user.User
	usernameIndex map[string]int64
	nextUserID    int64

	files      []models.FileRecord
	nextFileID int64
}

func New() (*MemoryStorage, error) {
	return &MemoryStorage{
		users:         map[int64]*user.User{},
		usernameIndex: map[string]int64{},
		nextUserID:    1,
		files:         []models.FileRecord{},
		nextFileID:    1,
	}, nil
}

func (theStorage *MemoryStorage) CreateUser(ctx context.Context, username, passwordHash string) (int64, error) {
	theStorage.mu.Lock()
	defer theStorage.mu.Unlock()

	if _, exists := theStorage.usernameIndex[username]; exists {
		return 0, fmt.Errorf("%w: %q", models.ErrDuplicateUsername, username)
	}

	userID := theStorage.nextUserID
	theStorage.nextUserID++

	theStorage.users[userID] = &user.User{
		ID:           userID,
		Username:     username,
		PasswordHash: passwordHash,
	}
	theStorage.usernameIndex[username] = userID

	return userID, nil
}

func (theStorage *MemoryStorage) FindUserByUsername(ctx context.Context, username string) (*user.User, error) {
	theStorage.mu.RLock()
	defer theStorage.mu.RUnlock()

	userID, exists := theStorage.usernameIndex[username]
	if !exists {
		return nil, models.ErrNotFound
	}

	return copyUser(theStorage.users[userID]), nil
}

func (theStorage *MemoryStorage) GetUserByID(ctx context.Context, userID int64) (*user.User, error) {
	theStorage.mu.RLock()
	defer theStorage.mu.RUnlock()

	usr, exists := theStorage.users[userID]
	if !exists {
		return nil, models.ErrNotFound
	}

	return copyUser(usr), nil
}

func (theStorage *MemoryStorage) RecordFile(
	ctx context.Context,
	ownerUserID int64,
	filename,
	physicalPath string,
) (int64, error) {
	theStorage.mu.Lock()
	defer theStorage.mu.Unlock()

	fileID := theStorage.nextFileID
	theStorage.nextFileID++

	theStorage.files = append(theStorage.files, models.FileRecord{
		ID:           fileID,
		OwnerUserID:  ownerUserID,
		Filename:     filename,
		PhysicalPath: physicalPath,
	})

	return fileID, nil
}

func (theStorage *MemoryStorage) GetUserFiles(ctx context.Context, ownerUserID int64) ([]models.FileRecord, error) {
	theStorage.mu.RLock()
	defer theStorage.mu.RUnlock()

	result := []models.FileRecord{}
	for _, record := range theStorage.files {
		if record.OwnerUserID == ownerUserID {
			result = append(result, record)
		}
	}

	return result, nil
}

func (theStorage *MemoryStorage) GetNumberOfUsers(ctx context.Context) (int64, error) {
	theStorage.mu.RLock()
	defer theStorage.mu.RUnlock()

	return int64(len(theStorage.users)), nil
}

func (theStorage *MemoryStorage) GetNumberOfFiles(ctx context.Context) (int64, error) {
	theStorage.mu.RLock()
	defer theStorage.mu.RUnlock()

	return int64(len(theStorage.files)), nil
}

func (theStorage *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}

func (theStorage *MemoryStorage) Close() error {
	return nil
}

func copyUser(usr *user.User) *user.User {
	userCopy := *usr
	return &userCopy
}
