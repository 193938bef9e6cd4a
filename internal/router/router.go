// Package router assembles the chi mux and implements the HTTP handlers
// of the backup service.
package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/patric-chuzhbe/filekeeper/internal/auth"
	"github.com/patric-chuzhbe/filekeeper/internal/authenticator"
	"github.com/patric-chuzhbe/filekeeper/internal/gzippedhttp"
	"github.com/patric-chuzhbe/filekeeper/internal/ipchecker"
	"github.com/patric-chuzhbe/filekeeper/internal/logger"
	"github.com/patric-chuzhbe/filekeeper/internal/models"
	"github.com/patric-chuzhbe/filekeeper/internal/service"
)

type tokenIssuer interface {
	BuildJWTString(userID int64) (string, error)
}

// Router carries the handler dependencies; its methods are the HTTP
// handlers mounted by New.
type Router struct {
	service        *service.Service
	tokens         tokenIssuer
	ipChecker      *ipchecker.IPChecker
	validate       *validator.Validate
	authCookieName string
	maxUploadSize  int64
}

// New builds the service mux: public registration/login/ping, token-guarded
// file operations and the subnet-guarded internal stats endpoint.
func New(
	svc *service.Service,
	theAuthenticator authenticator.Authenticator,
	tokens tokenIssuer,
	ipChecker *ipchecker.IPChecker,
	authCookieName string,
	maxUploadSize int64,
) *chi.Mux {
	myRouter := &Router{
		service:        svc,
		tokens:         tokens,
		ipChecker:      ipChecker,
		validate:       validator.New(),
		authCookieName: authCookieName,
		maxUploadSize:  maxUploadSize,
	}

	router := chi.NewRouter()
	router.Use(
		logger.WithLoggingHTTPMiddleware,
		gzippedhttp.UngzipRequest,
	)

	router.With(gzippedhttp.GzipResponse).Post(`/register`, myRouter.PostRegister)
	router.With(gzippedhttp.GzipResponse).Post(`/login`, myRouter.PostLogin)
	router.Get(`/ping`, myRouter.GetPing)

	router.Group(func(authenticated chi.Router) {
		authenticated.Use(theAuthenticator.AuthenticateUser)

		authenticated.Post(`/upload`, myRouter.PostUpload)
		// The download response is raw file bytes; it stays outside the
		// gzip response middleware.
		authenticated.Get(`/download/{user_id}/{filename}`, myRouter.GetDownload)
		authenticated.With(gzippedhttp.GzipResponse).Get(`/files/{user_id}`, myRouter.GetFiles)
		authenticated.With(gzippedhttp.GzipResponse).Get(`/api/user/files`, myRouter.GetAPIUserFiles)
	})

	router.With(gzippedhttp.GzipResponse).Get(`/api/internal/stats`, myRouter.GetAPIInternalStats)

	return router
}

// PostRegister handles POST /register: creates a user from a JSON
// username/password pair. A taken username answers 400, per the public
// contract of the service.
func (theRouter *Router) PostRegister(response http.ResponseWriter, request *http.Request) {
	var registerRequest models.RegisterRequest
	if err := json.NewDecoder(request.Body).Decode(&registerRequest); err != nil {
		http.Error(response, err.Error(), http.StatusBadRequest)
		return
	}

	if err := theRouter.validate.Struct(registerRequest); err != nil {
		http.Error(response, err.Error(), http.StatusBadRequest)
		return
	}

	userID, err := theRouter.service.Register(request.Context(), registerRequest.Username, registerRequest.Password)
	if err != nil {
		if errors.Is(err, models.ErrDuplicateUsername) {
			http.Error(response, models.ErrDuplicateUsername.Error(), http.StatusBadRequest)
			return
		}
		logger.Log.Debugln("Error calling the `theRouter.service.Register()`: ", zap.Error(err))
		response.WriteHeader(http.StatusInternalServerError)
		return
	}

	writeJSONResponse(response, http.StatusCreated, models.RegisterResponse{UserID: userID})
}

// PostLogin handles POST /login: verifies the credentials and issues a
// signed token, returned both in the body and as a cookie.
func (theRouter *Router) PostLogin(response http.ResponseWriter, request *http.Request) {
	var loginRequest models.LoginRequest
	if err := json.NewDecoder(request.Body).Decode(&loginRequest); err != nil {
		http.Error(response, err.Error(), http.StatusBadRequest)
		return
	}

	if err := theRouter.validate.Struct(loginRequest); err != nil {
		http.Error(response, err.Error(), http.StatusBadRequest)
		return
	}

	usr, err := theRouter.service.Login(request.Context(), loginRequest.Username, loginRequest.Password)
	if err != nil {
		if errors.Is(err, models.ErrInvalidCredentials) {
			http.Error(response, models.ErrInvalidCredentials.Error(), http.StatusUnauthorized)
			return
		}
		logger.Log.Debugln("Error calling the `theRouter.service.Login()`: ", zap.Error(err))
		response.WriteHeader(http.StatusInternalServerError)
		return
	}

	token, err := theRouter.tokens.BuildJWTString(usr.ID)
	if err != nil {
		logger.Log.Debugln("Error calling the `theRouter.tokens.BuildJWTString()`: ", zap.Error(err))
		response.WriteHeader(http.StatusInternalServerError)
		return
	}

	http.SetCookie(
		response,
		&http.Cookie{
			Name:  theRouter.authCookieName,
			Value: token,
		},
	)

	writeJSONResponse(response, http.StatusOK, models.LoginResponse{
		UserID: usr.ID,
		Token:  token,
	})
}

// PostUpload handles POST /upload: a multipart form with a `file` part.
// The acting user comes from the token; an optional `user_id` form field
// must agree with it.
func (theRouter *Router) PostUpload(response http.ResponseWriter, request *http.Request) {
	userID, ok := auth.UserIDFromContext(request.Context())
	if !ok {
		response.WriteHeader(http.StatusUnauthorized)
		return
	}

	if err := request.ParseMultipartForm(theRouter.maxUploadSize); err != nil {
		http.Error(response, err.Error(), http.StatusBadRequest)
		return
	}

	if formUserID := request.FormValue("user_id"); formUserID != "" {
		claimedID, err := strconv.ParseInt(formUserID, 10, 64)
		if err != nil {
			http.Error(response, "malformed user_id", http.StatusBadRequest)
			return
		}
		if claimedID != userID {
			response.WriteHeader(http.StatusForbidden)
			return
		}
	}

	filePart, fileHeader, err := request.FormFile("file")
	if err != nil {
		http.Error(response, models.ErrMissingFile.Error(), http.StatusBadRequest)
		return
	}
	defer filePart.Close()

	storedAs, err := theRouter.service.Upload(request.Context(), userID, fileHeader.Filename, filePart)
	if err != nil {
		theRouter.writeStorageError(response, err)
		return
	}

	writeJSONResponse(response, http.StatusOK, models.UploadResponse{
		Filename: fileHeader.Filename,
		StoredAs: storedAs,
	})
}

// GetDownload handles GET /download/{user_id}/{filename}: streams the file
// back as an attachment. Only the owner named by the token may download.
func (theRouter *Router) GetDownload(response http.ResponseWriter, request *http.Request) {
	userID, ok := theRouter.authorizedPathUserID(response, request)
	if !ok {
		return
	}

	filename := chi.URLParam(request, "filename")
	file, err := theRouter.service.Download(userID, filename)
	if err != nil {
		theRouter.writeStorageError(response, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.WriteHeader(http.StatusInternalServerError)
		return
	}

	response.Header().Set("Content-Type", "application/octet-stream")
	response.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", info.Name()))
	response.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))

	if _, err := io.Copy(response, file); err != nil {
		logger.Log.Debugln("Error streaming the file: ", zap.Error(err))
	}
}

// GetFiles handles GET /files/{user_id}: the physical filenames currently
// stored for the user, possibly an empty array.
func (theRouter *Router) GetFiles(response http.ResponseWriter, request *http.Request) {
	userID, ok := theRouter.authorizedPathUserID(response, request)
	if !ok {
		return
	}

	filenames, err := theRouter.service.ListDirectory(userID)
	if err != nil {
		theRouter.writeStorageError(response, err)
		return
	}

	writeJSONResponse(response, http.StatusOK, filenames)
}

// GetAPIUserFiles handles GET /api/user/files: the metadata-store view of
// the token owner's files as logical/physical name pairs.
func (theRouter *Router) GetAPIUserFiles(response http.ResponseWriter, request *http.Request) {
	userID, ok := auth.UserIDFromContext(request.Context())
	if !ok {
		response.WriteHeader(http.StatusUnauthorized)
		return
	}

	userFiles, err := theRouter.service.GetUserFiles(request.Context(), userID)
	if err != nil {
		logger.Log.Debugln("Error calling the `theRouter.service.GetUserFiles()`: ", zap.Error(err))
		response.WriteHeader(http.StatusInternalServerError)
		return
	}

	writeJSONResponse(response, http.StatusOK, userFiles)
}

// GetPing handles GET /ping: storage layer health.
func (theRouter *Router) GetPing(response http.ResponseWriter, request *http.Request) {
	if err := theRouter.service.Ping(request.Context()); err != nil {
		response.WriteHeader(http.StatusInternalServerError)
		return
	}

	response.WriteHeader(http.StatusOK)
}

// GetAPIInternalStats handles GET /api/internal/stats for callers inside
// the trusted subnet.
func (theRouter *Router) GetAPIInternalStats(response http.ResponseWriter, request *http.Request) {
	clientIP, err := theRouter.ipChecker.GetClientIP(request)
	if err != nil || !theRouter.ipChecker.Check(clientIP) {
		response.WriteHeader(http.StatusForbidden)
		return
	}

	stats, err := theRouter.service.GetInternalStats(request.Context())
	if err != nil {
		logger.Log.Debugln("Error calling the `theRouter.service.GetInternalStats()`: ", zap.Error(err))
		response.WriteHeader(http.StatusInternalServerError)
		return
	}

	writeJSONResponse(response, http.StatusOK, stats)
}

// authorizedPathUserID parses the {user_id} path parameter and checks it
// against the authenticated user. Non-numeric ids (including traversal
// attempts) never reach the filesystem.
func (theRouter *Router) authorizedPathUserID(response http.ResponseWriter, request *http.Request) (int64, bool) {
	userID, err := strconv.ParseInt(chi.URLParam(request, "user_id"), 10, 64)
	if err != nil {
		http.Error(response, "malformed user_id", http.StatusBadRequest)
		return 0, false
	}

	authenticatedUserID, ok := auth.UserIDFromContext(request.Context())
	if !ok {
		response.WriteHeader(http.StatusUnauthorized)
		return 0, false
	}

	if userID != authenticatedUserID {
		response.WriteHeader(http.StatusForbidden)
		return 0, false
	}

	return userID, true
}

func (theRouter *Router) writeStorageError(response http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		http.Error(response, models.ErrNotFound.Error(), http.StatusNotFound)
	case errors.Is(err, models.ErrInvalidFilename), errors.Is(err, models.ErrMissingFile):
		http.Error(response, err.Error(), http.StatusBadRequest)
	default:
		logger.Log.Debugln("storage operation failed: ", zap.Error(err))
		response.WriteHeader(http.StatusInternalServerError)
	}
}

func writeJSONResponse(response http.ResponseWriter, statusCode int, payload interface{}) {
	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(statusCode)
	if err := json.NewEncoder(response).Encode(payload); err != nil {
		logger.Log.Debugln("Error encoding the JSON response: ", zap.Error(err))
	}
}
