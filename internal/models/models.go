package models

import "errors"

type RegisterRequest struct {
	Username string `json:"username" validate:"required,max=150"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type RegisterResponse struct {
	UserID int64 `json:"user_id"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	UserID int64  `json:"user_id"`
	Token  string `json:"token"`
}

type UploadResponse struct {
	Filename string `json:"filename"`
	StoredAs string `json:"stored_as"`
}

// UserFile pairs the filename the client uploaded with the physical
// name chosen by collision resolution.
type UserFile struct {
	Filename string `json:"filename"`
	StoredAs string `json:"stored_as"`
}

type UserFiles []UserFile

// FileRecord is an append-only metadata row for a stored file.
type FileRecord struct {
	ID           int64
	OwnerUserID  int64
	Filename     string
	PhysicalPath string
}

type InternalStatsResponse struct {
	Users int64 `json:"users"`
	Files int64 `json:"files"`
}

const (
	StorageTypeUnknown = iota
	StorageTypePostgresql
	StorageTypeSqlite
	StorageTypeMemory
)

var ErrDuplicateUsername = errors.New("the username is already taken")

var ErrInvalidCredentials = errors.New("invalid username or password")

var ErrMissingFile = errors.New("no file in the request")

var ErrInvalidFilename = errors.New("invalid filename")

var ErrNotFound = errors.New("not found")

var ErrStorageUnavailable = errors.New("file storage is unavailable")

var ErrWriteFailed = errors.New("failed to write the file")
