// Package app initializes and runs the main application service.
// It configures logging, storage, authentication, and routing,
// and handles graceful shutdown.
package app

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/patric-chuzhbe/filekeeper/internal/auth"
	"github.com/patric-chuzhbe/filekeeper/internal/config"
	"github.com/patric-chuzhbe/filekeeper/internal/db/memorystorage"
	"github.com/patric-chuzhbe/filekeeper/internal/db/postgresdb"
	"github.com/patric-chuzhbe/filekeeper/internal/db/sqlitedb"
	"github.com/patric-chuzhbe/filekeeper/internal/db/storage"
	"github.com/patric-chuzhbe/filekeeper/internal/filestore"
	"github.com/patric-chuzhbe/filekeeper/internal/ipchecker"
	"github.com/patric-chuzhbe/filekeeper/internal/logger"
	"github.com/patric-chuzhbe/filekeeper/internal/models"
	"github.com/patric-chuzhbe/filekeeper/internal/router"
	"github.com/patric-chuzhbe/filekeeper/internal/service"
)

// App encapsulates the configuration, HTTP handler and storage backends
// needed to run the backup service.
type App struct {
	cfg         *config.Config
	db          storage.Storage
	httpHandler http.Handler
}

// New initializes a new instance of App by:
// - loading configuration
// - initializing logger
// - selecting and setting up the relational storage backend
// - setting up the file store, authentication and the router
func New() (*App, error) {
	var err error
	app := &App{}

	app.cfg, err = config.New()
	if err != nil {
		return nil, err
	}

	err = logger.Init(app.cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	app.db, err = getStorageByType(app.cfg)
	if err != nil {
		return nil, err
	}

	files, err := filestore.New(app.cfg.StorageRoot)
	if err != nil {
		return nil, err
	}

	tokenSigningSecretKey, err := base64.URLEncoding.DecodeString(app.cfg.AuthTokenSigningSecretKey)
	if err != nil {
		return nil, err
	}

	theAuth := auth.New(
		app.db,
		app.cfg.AuthCookieName,
		tokenSigningSecretKey,
		app.cfg.AuthTokenTTL,
	)

	theIPChecker, err := ipchecker.New(app.cfg.TrustedSubnet)
	if err != nil {
		return nil, err
	}

	app.httpHandler = router.New(
		service.New(app.db, files),
		theAuth,
		theAuth,
		theIPChecker,
		app.cfg.AuthCookieName,
		app.cfg.MaxUploadSize,
	)

	return app, nil
}

// Run starts the HTTP server with graceful shutdown support.
// It listens for system signals and cleans up resources upon termination.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Log.Infoln("server running", "RunAddr", a.cfg.RunAddr)

	server := &http.Server{
		Addr:    a.cfg.RunAddr,
		Handler: a.httpHandler,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Log.Infoln("Received shutdown signal. Closing the storage and exiting...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		return a.db.Close()

	case err := <-serverErrCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Close finalizes resources used by App such as logging.
func (a *App) Close() {
	if err := logger.Sync(); err != nil {
		fmt.Println("Logger sync error:", err)
	}
}

func getAvailableStorageType(cfg *config.Config) int {
	if cfg.DatabaseDSN != "" {
		return models.StorageTypePostgresql
	}

	if cfg.DBFileName != "" {
		return models.StorageTypeSqlite
	}

	return models.StorageTypeMemory
}

func getStorageByType(cfg *config.Config) (storage.Storage, error) {
	switch getAvailableStorageType(cfg) {
	case models.StorageTypePostgresql:
		return postgresdb.New(
			context.Background(),
			cfg.DatabaseDSN,
			cfg.DBConnectionTimeout,
			filepath.Join(cfg.MigrationsDir, "postgres"),
		)

	case models.StorageTypeSqlite:
		return sqlitedb.New(
			cfg.DBFileName,
			filepath.Join(cfg.MigrationsDir, "sqlite"),
		)
	}

	return memorystorage.New()
}
