// Package sqlitedb provides a SQLite-based implementation of the storage
// interface. It is the single-node default: one file on the same host that
// holds the uploaded content.
package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pressly/goose/v3"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/patric-chuzhbe/filekeeper/internal/models"
	"github.com/patric-chuzhbe/filekeeper/internal/user"
)

// SqliteDB is a SQLite-backed implementation of the storage interface
// using the CGo-free modernc driver.
type SqliteDB struct {
	database *sql.DB
}

// New opens (or creates) the SQLite database file, runs schema
// migrations, and returns a configured SqliteDB instance.
func New(dbFileName, migrationsDir string) (*SqliteDB, error) {
	database, err := sql.Open("sqlite", dbFileName)
	if err != nil {
		return nil, err
	}

	// The service writes from concurrent request handlers; a single
	// connection serializes them instead of tripping SQLITE_BUSY.
	database.SetMaxOpenConns(1)

	result := &SqliteDB{database: database}

	if err := goose.SetDialect("sqlite3"); err != nil {
		return nil,
			fmt.Errorf(
				"in internal/db/sqlitedb/sqlitedb.go/New(): error while `goose.SetDialect()` calling: %w",
				err,
			)
	}

	if err := goose.Up(result.database, migrationsDir); err != nil {
		return nil,
			fmt.Errorf(
				"in internal/db/sqlitedb/sqlitedb.go/New(): error while `goose.Up()` calling: %w",
				err,
			)
	}

	return result, nil
}

// CreateUser inserts a new user record and returns the assigned id.
// A duplicate username surfaces as models.ErrDuplicateUsername.
func (db *SqliteDB) CreateUser(ctx context.Context, username, passwordHash string) (int64, error) {
	result, err := db.database.ExecContext(
		ctx,
		`INSERT INTO users (username, password_hash) VALUES (?, ?)`,
		username,
		passwordHash,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %q", models.ErrDuplicateUsername, username)
		}
		return 0, err
	}

	return result.LastInsertId()
}

// FindUserByUsername fetches a user by the unique username.
func (db *SqliteDB) FindUserByUsername(ctx context.Context, username string) (*user.User, error) {
	row := db.database.QueryRowContext(
		ctx,
		`SELECT id, username, password_hash FROM users WHERE username = ?`,
		username,
	)

	return scanUser(row)
}

// GetUserByID fetches a user by id.
func (db *SqliteDB) GetUserByID(ctx context.Context, userID int64) (*user.User, error) {
	row := db.database.QueryRowContext(
		ctx,
		`SELECT id, username, password_hash FROM users WHERE id = ?`,
		userID,
	)

	return scanUser(row)
}

// RecordFile appends a metadata row for a stored file and returns its id.
func (db *SqliteDB) RecordFile(
	ctx context.Context,
	ownerUserID int64,
	filename,
	physicalPath string,
) (int64, error) {
	result, err := db.database.ExecContext(
		ctx,
		`INSERT INTO files (user_id, filename, filepath) VALUES (?, ?, ?)`,
		ownerUserID,
		filename,
		physicalPath,
	)
	if err != nil {
		return 0, err
	}

	return result.LastInsertId()
}

// GetUserFiles returns the metadata rows recorded for the owner, oldest first.
func (db *SqliteDB) GetUserFiles(ctx context.Context, ownerUserID int64) ([]models.FileRecord, error) {
	rows, err := db.database.QueryContext(
		ctx,
		`SELECT id, user_id, filename, filepath FROM files WHERE user_id = ? ORDER BY id`,
		ownerUserID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []models.FileRecord{}
	for rows.Next() {
		var record models.FileRecord
		err = rows.Scan(&record.ID, &record.OwnerUserID, &record.Filename, &record.PhysicalPath)
		if err != nil {
			return nil, err
		}

		result = append(result, record)
	}

	err = rows.Err()
	if err != nil {
		return nil, err
	}

	return result, nil
}

// GetNumberOfUsers returns the total count of registered users.
func (db *SqliteDB) GetNumberOfUsers(ctx context.Context) (int64, error) {
	return db.count(ctx, `SELECT COUNT(*) FROM users`)
}

// GetNumberOfFiles returns the total count of recorded files.
func (db *SqliteDB) GetNumberOfFiles(ctx context.Context) (int64, error) {
	return db.count(ctx, `SELECT COUNT(*) FROM files`)
}

// Ping verifies the database file is still reachable.
func (db *SqliteDB) Ping(ctx context.Context) error {
	return db.database.PingContext(ctx)
}

// Close closes the database and releases any associated resources.
func (db *SqliteDB) Close() error {
	return db.database.Close()
}

func (db *SqliteDB) count(ctx context.Context, query string) (int64, error) {
	var result int64
	if err := db.database.QueryRowContext(ctx, query).Scan(&result); err != nil {
		return 0, err
	}

	return result, nil
}

func isUniqueViolation(err error) bool {
	var liteErr *sqlite.Error
	if !errors.As(err, &liteErr) {
		return false
	}

	code := liteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
		code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func scanUser(row *sql.Row) (*user.User, error) {
	usr := &user.User{}
	err := row.Scan(&usr.ID, &usr.Username, &usr.PasswordHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}

	return usr, nil
}
