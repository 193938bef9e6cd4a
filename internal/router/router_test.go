package router

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/filekeeper/internal/auth"
	"github.com/patric-chuzhbe/filekeeper/internal/db/memorystorage"
	"github.com/patric-chuzhbe/filekeeper/internal/filestore"
	"github.com/patric-chuzhbe/filekeeper/internal/ipchecker"
	"github.com/patric-chuzhbe/filekeeper/internal/logger"
	"github.com/patric-chuzhbe/filekeeper/internal/models"
	"github.com/patric-chuzhbe/filekeeper/internal/service"
)

const (
	testCookieName    = "filekeeper_auth"
	testTrustedSubnet = "192.168.0.0/24"
	testMaxUploadSize = 1 << 20
)

var testSigningKey = []byte("0123456789abcdef0123456789abcdef")

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	require.NoError(t, logger.Init("debug"))

	db, err := memorystorage.New()
	require.NoError(t, err)

	files, err := filestore.New(filepath.Join(t.TempDir(), "uploads"))
	require.NoError(t, err)

	theAuth := auth.New(db, testCookieName, testSigningKey, time.Hour)

	theIPChecker, err := ipchecker.New(testTrustedSubnet)
	require.NoError(t, err)

	handler := New(
		service.New(db, files),
		theAuth,
		theAuth,
		theIPChecker,
		testCookieName,
		testMaxUploadSize,
	)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return srv
}

func registerTestUser(t *testing.T, srv *httptest.Server, username, password string) int64 {
	t.Helper()

	resp, err := resty.New().R().
		SetHeader("Content-Type", "application/json").
		SetBody(models.RegisterRequest{Username: username, Password: password}).
		Post(srv.URL + "/register")
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode())

	var registered models.RegisterResponse
	require.NoError(t, json.Unmarshal(resp.Body(), &registered))

	return registered.UserID
}

func loginTestUser(t *testing.T, srv *httptest.Server, username, password string) models.LoginResponse {
	t.Helper()

	resp, err := resty.New().R().
		SetHeader("Content-Type", "application/json").
		SetBody(models.LoginRequest{Username: username, Password: password}).
		Post(srv.URL + "/login")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())

	var loggedIn models.LoginResponse
	require.NoError(t, json.Unmarshal(resp.Body(), &loggedIn))

	return loggedIn
}

func uploadTestFile(
	t *testing.T,
	srv *httptest.Server,
	token, filename, content string,
) models.UploadResponse {
	t.Helper()

	resp, err := resty.New().R().
		SetAuthToken(token).
		SetFileReader("file", filename, strings.NewReader(content)).
		Post(srv.URL + "/upload")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())

	var uploaded models.UploadResponse
	require.NoError(t, json.Unmarshal(resp.Body(), &uploaded))

	return uploaded
}

func TestPostRegister(t *testing.T) {
	srv := newTestServer(t)

	type tExpectedResponse struct {
		code int
	}
	type tTestCase struct {
		name             string
		body             string
		expectedResponse tExpectedResponse
	}

	testCases := []tTestCase{
		{
			name:             "positive",
			body:             `{"username": "alice", "password": "password-1"}`,
			expectedResponse: tExpectedResponse{http.StatusCreated},
		},
		{
			name:             "duplicate_username",
			body:             `{"username": "alice", "password": "another-password"}`,
			expectedResponse: tExpectedResponse{http.StatusBadRequest},
		},
		{
			name:             "short_password",
			body:             `{"username": "bob", "password": "abc"}`,
			expectedResponse: tExpectedResponse{http.StatusBadRequest},
		},
		{
			name:             "empty_JSON",
			body:             `{}`,
			expectedResponse: tExpectedResponse{http.StatusBadRequest},
		},
		{
			name:             "malformed_JSON",
			body:             `{"username": `,
			expectedResponse: tExpectedResponse{http.StatusBadRequest},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			resp, err := resty.New().R().
				SetHeader("Content-Type", "application/json").
				SetBody(testCase.body).
				Post(srv.URL + "/register")
			assert.NoError(t, err, "error making HTTP request")

			assert.Equal(t, testCase.expectedResponse.code, resp.StatusCode(), "Response code didn't match expected value")
		})
	}
}

func TestPostLogin(t *testing.T) {
	srv := newTestServer(t)
	userID := registerTestUser(t, srv, "alice", "password-1")

	loggedIn := loginTestUser(t, srv, "alice", "password-1")
	assert.Equal(t, userID, loggedIn.UserID)
	assert.NotEmpty(t, loggedIn.Token)

	resp, err := resty.New().R().
		SetHeader("Content-Type", "application/json").
		SetBody(`{"username": "alice", "password": "wrong"}`).
		Post(srv.URL + "/login")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode())

	resp, err = resty.New().R().
		SetHeader("Content-Type", "application/json").
		SetBody(`{"username": "nobody", "password": "password-1"}`).
		Post(srv.URL + "/login")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode())
}

func TestPostUpload(t *testing.T) {
	srv := newTestServer(t)
	registerTestUser(t, srv, "alice", "password-1")
	loggedIn := loginTestUser(t, srv, "alice", "password-1")

	uploaded := uploadTestFile(t, srv, loggedIn.Token, "a.txt", "first")
	assert.Equal(t, "a.txt", uploaded.Filename)
	assert.Equal(t, "a.txt", uploaded.StoredAs)

	uploaded = uploadTestFile(t, srv, loggedIn.Token, "a.txt", "second")
	assert.Equal(t, "a.txt", uploaded.Filename)
	assert.Equal(t, "a_1.txt", uploaded.StoredAs)

	uploaded = uploadTestFile(t, srv, loggedIn.Token, "a.txt", "third")
	assert.Equal(t, "a_2.txt", uploaded.StoredAs)
}

func TestPostUploadWithoutFilePart(t *testing.T) {
	srv := newTestServer(t)
	registerTestUser(t, srv, "alice", "password-1")
	loggedIn := loginTestUser(t, srv, "alice", "password-1")

	resp, err := resty.New().R().
		SetAuthToken(loggedIn.Token).
		SetFormData(map[string]string{"unrelated": "field"}).
		Post(srv.URL + "/upload")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode())
}

func TestPostUploadWithoutToken(t *testing.T) {
	srv := newTestServer(t)

	resp, err := resty.New().R().
		SetFileReader("file", "a.txt", strings.NewReader("payload")).
		Post(srv.URL + "/upload")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode())
}

func TestPostUploadWithForeignUserIDFormField(t *testing.T) {
	srv := newTestServer(t)
	userID := registerTestUser(t, srv, "alice", "password-1")
	registerTestUser(t, srv, "bob", "password-2")
	loggedInBob := loginTestUser(t, srv, "bob", "password-2")

	resp, err := resty.New().R().
		SetAuthToken(loggedInBob.Token).
		SetFileReader("file", "a.txt", strings.NewReader("payload")).
		SetFormData(map[string]string{"user_id": fmt.Sprintf("%d", userID)}).
		Post(srv.URL + "/upload")
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode())
}

func TestGetDownloadRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	userID := registerTestUser(t, srv, "alice", "password-1")
	loggedIn := loginTestUser(t, srv, "alice", "password-1")

	content := "backup payload " + uuid.NewString()
	uploaded := uploadTestFile(t, srv, loggedIn.Token, "data.bin", content)

	resp, err := resty.New().R().
		SetAuthToken(loggedIn.Token).
		Get(fmt.Sprintf("%s/download/%d/%s", srv.URL, userID, uploaded.StoredAs))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Equal(t, content, string(resp.Body()))
	assert.Contains(t, resp.Header().Get("Content-Disposition"), "attachment")
}

func TestGetDownloadAbsentFile(t *testing.T) {
	srv := newTestServer(t)
	userID := registerTestUser(t, srv, "alice", "password-1")
	loggedIn := loginTestUser(t, srv, "alice", "password-1")

	resp, err := resty.New().R().
		SetAuthToken(loggedIn.Token).
		Get(fmt.Sprintf("%s/download/%d/missing.txt", srv.URL, userID))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode())
}

func TestGetDownloadMalformedUserID(t *testing.T) {
	srv := newTestServer(t)
	registerTestUser(t, srv, "alice", "password-1")
	loggedIn := loginTestUser(t, srv, "alice", "password-1")

	resp, err := resty.New().R().
		SetAuthToken(loggedIn.Token).
		Get(srv.URL + "/download/not-a-number/a.txt")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode())
}

func TestUsersCannotReachEachOthersFiles(t *testing.T) {
	srv := newTestServer(t)

	aliceID := registerTestUser(t, srv, "alice", "password-1")
	registerTestUser(t, srv, "bob", "password-2")

	loggedInAlice := loginTestUser(t, srv, "alice", "password-1")
	loggedInBob := loginTestUser(t, srv, "bob", "password-2")

	uploadTestFile(t, srv, loggedInAlice.Token, "secret.txt", "alice's secret")

	// Bob addressing Alice's resources is rejected outright.
	resp, err := resty.New().R().
		SetAuthToken(loggedInBob.Token).
		Get(fmt.Sprintf("%s/download/%d/secret.txt", srv.URL, aliceID))
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode())

	resp, err = resty.New().R().
		SetAuthToken(loggedInBob.Token).
		Get(fmt.Sprintf("%s/files/%d", srv.URL, aliceID))
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode())
}

func TestGetFiles(t *testing.T) {
	srv := newTestServer(t)
	userID := registerTestUser(t, srv, "alice", "password-1")
	loggedIn := loginTestUser(t, srv, "alice", "password-1")

	resp, err := resty.New().R().
		SetAuthToken(loggedIn.Token).
		Get(fmt.Sprintf("%s/files/%d", srv.URL, userID))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())

	var names []string
	require.NoError(t, json.Unmarshal(resp.Body(), &names))
	assert.Empty(t, names)

	uploadTestFile(t, srv, loggedIn.Token, "b.txt", "b")
	uploadTestFile(t, srv, loggedIn.Token, "a.txt", "a")
	uploadTestFile(t, srv, loggedIn.Token, "a.txt", "a again")

	resp, err = resty.New().R().
		SetAuthToken(loggedIn.Token).
		Get(fmt.Sprintf("%s/files/%d", srv.URL, userID))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())

	require.NoError(t, json.Unmarshal(resp.Body(), &names))
	assert.Equal(t, []string{"a.txt", "a_1.txt", "b.txt"}, names)
}

func TestGetAPIUserFiles(t *testing.T) {
	srv := newTestServer(t)
	registerTestUser(t, srv, "alice", "password-1")
	loggedIn := loginTestUser(t, srv, "alice", "password-1")

	uploadTestFile(t, srv, loggedIn.Token, "a.txt", "one")
	uploadTestFile(t, srv, loggedIn.Token, "a.txt", "two")

	resp, err := resty.New().R().
		SetAuthToken(loggedIn.Token).
		Get(srv.URL + "/api/user/files")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())

	var userFiles models.UserFiles
	require.NoError(t, json.Unmarshal(resp.Body(), &userFiles))
	assert.Equal(t, models.UserFiles{
		{Filename: "a.txt", StoredAs: "a.txt"},
		{Filename: "a.txt", StoredAs: "a_1.txt"},
	}, userFiles)
}

func TestGetPing(t *testing.T) {
	srv := newTestServer(t)

	resp, err := resty.New().R().Get(srv.URL + "/ping")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())
}

func TestGetAPIInternalStats(t *testing.T) {
	srv := newTestServer(t)
	registerTestUser(t, srv, "alice", "password-1")
	loggedIn := loginTestUser(t, srv, "alice", "password-1")
	uploadTestFile(t, srv, loggedIn.Token, "a.txt", "one")

	resp, err := resty.New().R().
		SetHeader("X-Real-IP", "192.168.0.10").
		Get(srv.URL + "/api/internal/stats")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())

	var stats models.InternalStatsResponse
	require.NoError(t, json.Unmarshal(resp.Body(), &stats))
	assert.Equal(t, models.InternalStatsResponse{Users: 1, Files: 1}, stats)

	resp, err = resty.New().R().
		SetHeader("X-Real-IP", "10.0.0.1").
		Get(srv.URL + "/api/internal/stats")
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode())
}
