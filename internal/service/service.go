// Package service composes the storage backends into the backup
// operations: registration, login, upload, download, listing and stats.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/thoas/go-funk"

	"github.com/patric-chuzhbe/filekeeper/internal/auth"
	"github.com/patric-chuzhbe/filekeeper/internal/logger"
	"github.com/patric-chuzhbe/filekeeper/internal/models"
	"github.com/patric-chuzhbe/filekeeper/internal/user"
)

type storage interface {
	CreateUser(ctx context.Context, username, passwordHash string) (int64, error)
	FindUserByUsername(ctx context.Context, username string) (*user.User, error)
	GetUserByID(ctx context.Context, userID int64) (*user.User, error)
	RecordFile(ctx context.Context, ownerUserID int64, filename, physicalPath string) (int64, error)
	GetUserFiles(ctx context.Context, ownerUserID int64) ([]models.FileRecord, error)
	GetNumberOfUsers(ctx context.Context) (int64, error)
	GetNumberOfFiles(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}

type fileKeeper interface {
	ResolveUserDir(userID int64) (string, error)
	Store(dir, desiredFilename string, data io.Reader) (string, error)
	List(userID int64) ([]string, error)
	Open(userID int64, filename string) (*os.File, error)
}

type Service struct {
	db    storage
	files fileKeeper
}

func New(db storage, files fileKeeper) *Service {
	return &Service{
		db:    db,
		files: files,
	}
}

// Register hashes the password and creates the user. The duplicate check
// is not pre-flighted: the store's uniqueness constraint is the arbiter,
// and its violation surfaces as models.ErrDuplicateUsername.
func (s *Service) Register(ctx context.Context, username, password string) (int64, error) {
	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return 0, fmt.Errorf("hashing password: %w", err)
	}

	return s.db.CreateUser(ctx, username, passwordHash)
}

// Login verifies the credentials and returns the matching user.
// An unknown username and a wrong password are indistinguishable to the
// caller: both come back as models.ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, username, password string) (*user.User, error) {
	usr, err := s.db.FindUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidCredentials
		}
		return nil, err
	}

	if !auth.CheckPassword(usr.PasswordHash, password) {
		return nil, models.ErrInvalidCredentials
	}

	return usr, nil
}

// Upload resolves the owner's directory, writes the stream under a
// collision-free physical name and records the logical-to-physical mapping.
// The file write and the metadata insert are independent; a failed insert
// leaves the already-written file in place and is reported to the caller.
func (s *Service) Upload(
	ctx context.Context,
	userID int64,
	desiredFilename string,
	data io.Reader,
) (string, error) {
	dir, err := s.files.ResolveUserDir(userID)
	if err != nil {
		return "", err
	}

	storedAs, err := s.files.Store(dir, desiredFilename, data)
	if err != nil {
		return "", err
	}

	_, err = s.db.RecordFile(ctx, userID, desiredFilename, filepath.Join(dir, storedAs))
	if err != nil {
		logger.Log.Warnln("file stored but metadata insert failed", "user_id", userID, "stored_as", storedAs)
		return "", err
	}

	return storedAs, nil
}

// Download opens the stored file for the owner.
func (s *Service) Download(userID int64, filename string) (*os.File, error) {
	return s.files.Open(userID, filename)
}

// ListDirectory enumerates the physical filenames currently stored for the
// user. The directory is the source of truth here; a user who has not
// uploaded anything yet gets an empty list.
func (s *Service) ListDirectory(userID int64) ([]string, error) {
	return s.files.List(userID)
}

// GetUserFiles returns the recorded logical-to-physical name pairs for the
// user from the metadata store.
func (s *Service) GetUserFiles(ctx context.Context, userID int64) (models.UserFiles, error) {
	records, err := s.db.GetUserFiles(ctx, userID)
	if err != nil {
		return nil, err
	}

	mapped := funk.Map(records, func(record models.FileRecord) models.UserFile {
		return models.UserFile{
			Filename: record.Filename,
			StoredAs: filepath.Base(record.PhysicalPath),
		}
	}).([]models.UserFile)

	return models.UserFiles(mapped), nil
}

// GetInternalStats returns totals over all users and recorded files.
func (s *Service) GetInternalStats(ctx context.Context) (models.InternalStatsResponse, error) {
	users, err := s.db.GetNumberOfUsers(ctx)
	if err != nil {
		return models.InternalStatsResponse{}, err
	}

	files, err := s.db.GetNumberOfFiles(ctx)
	if err != nil {
		return models.InternalStatsResponse{}, err
	}

	return models.InternalStatsResponse{
		Users: users,
		Files: files,
	}, nil
}

// Ping checks the health of the database/storage layer.
func (s *Service) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
