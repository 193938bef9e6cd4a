package service

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/filekeeper/internal/db/memorystorage"
	"github.com/patric-chuzhbe/filekeeper/internal/filestore"
	"github.com/patric-chuzhbe/filekeeper/internal/logger"
	"github.com/patric-chuzhbe/filekeeper/internal/mockstorage"
	"github.com/patric-chuzhbe/filekeeper/internal/models"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	require.NoError(t, logger.Init("debug"))

	db, err := memorystorage.New()
	require.NoError(t, err)

	files, err := filestore.New(filepath.Join(t.TempDir(), "uploads"))
	require.NoError(t, err)

	return New(db, files)
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newTestService(t)

	userID, err := svc.Register(context.Background(), "alice", "password-1")
	require.NoError(t, err)
	require.NotZero(t, userID)

	usr, err := svc.Login(context.Background(), "alice", "password-1")
	require.NoError(t, err)
	assert.Equal(t, userID, usr.ID)
	assert.Equal(t, "alice", usr.Username)
}

func TestRegisterDuplicateUsername(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Register(context.Background(), "alice", "password-1")
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), "alice", "another-password")
	assert.ErrorIs(t, err, models.ErrDuplicateUsername)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Register(context.Background(), "alice", "password-1")
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), "alice", "wrong")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), "nobody", "password-1")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	svc := newTestService(t)

	userID, err := svc.Register(context.Background(), "alice", "password-1")
	require.NoError(t, err)

	storedAs, err := svc.Upload(context.Background(), userID, "notes.txt", strings.NewReader("my backup"))
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", storedAs)

	file, err := svc.Download(userID, storedAs)
	require.NoError(t, err)
	defer file.Close()

	data, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Equal(t, "my backup", string(data))
}

func TestUploadRecordsMetadata(t *testing.T) {
	svc := newTestService(t)

	userID, err := svc.Register(context.Background(), "alice", "password-1")
	require.NoError(t, err)

	_, err = svc.Upload(context.Background(), userID, "a.txt", strings.NewReader("one"))
	require.NoError(t, err)

	_, err = svc.Upload(context.Background(), userID, "a.txt", strings.NewReader("two"))
	require.NoError(t, err)

	userFiles, err := svc.GetUserFiles(context.Background(), userID)
	require.NoError(t, err)

	assert.Equal(t, models.UserFiles{
		{Filename: "a.txt", StoredAs: "a.txt"},
		{Filename: "a.txt", StoredAs: "a_1.txt"},
	}, userFiles)
}

func TestUsersAreIsolated(t *testing.T) {
	svc := newTestService(t)

	aliceID, err := svc.Register(context.Background(), "alice", "password-1")
	require.NoError(t, err)

	bobID, err := svc.Register(context.Background(), "bob", "password-2")
	require.NoError(t, err)

	_, err = svc.Upload(context.Background(), aliceID, "shared.txt", strings.NewReader("alice's data"))
	require.NoError(t, err)

	// Same filename, different owner: no collision suffix and no leakage.
	storedAs, err := svc.Upload(context.Background(), bobID, "shared.txt", strings.NewReader("bob's data"))
	require.NoError(t, err)
	assert.Equal(t, "shared.txt", storedAs)

	aliceNames, err := svc.ListDirectory(aliceID)
	require.NoError(t, err)
	assert.Equal(t, []string{"shared.txt"}, aliceNames)

	file, err := svc.Download(bobID, "shared.txt")
	require.NoError(t, err)
	defer file.Close()

	data, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Equal(t, "bob's data", string(data))
}

func TestListDirectoryForFreshUser(t *testing.T) {
	svc := newTestService(t)

	userID, err := svc.Register(context.Background(), "alice", "password-1")
	require.NoError(t, err)

	names, err := svc.ListDirectory(userID)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestUploadRejectsTraversalFilename(t *testing.T) {
	svc := newTestService(t)

	userID, err := svc.Register(context.Background(), "alice", "password-1")
	require.NoError(t, err)

	_, err = svc.Upload(context.Background(), userID, "../escape.txt", strings.NewReader("payload"))
	assert.ErrorIs(t, err, models.ErrInvalidFilename)
}

func TestUploadReportsMetadataInsertFailure(t *testing.T) {
	require.NoError(t, logger.Init("debug"))

	db := &mockstorage.StorageMock{}
	db.On("RecordFile", mock.Anything, int64(1), "a.txt", mock.Anything).
		Return(int64(0), errors.New("insert failed"))

	files, err := filestore.New(filepath.Join(t.TempDir(), "uploads"))
	require.NoError(t, err)

	svc := New(db, files)

	_, err = svc.Upload(context.Background(), 1, "a.txt", strings.NewReader("payload"))
	assert.Error(t, err)
	db.AssertExpectations(t)
}

func TestGetInternalStats(t *testing.T) {
	svc := newTestService(t)

	userID, err := svc.Register(context.Background(), "alice", "password-1")
	require.NoError(t, err)

	_, err = svc.Upload(context.Background(), userID, "a.txt", strings.NewReader("one"))
	require.NoError(t, err)

	stats, err := svc.GetInternalStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.InternalStatsResponse{Users: 1, Files: 1}, stats)
}
