// Package postgresdb provides a PostgreSQL-based implementation of the
// storage interface for persisting users and file metadata.
package postgresdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/patric-chuzhbe/filekeeper/internal/models"
	"github.com/patric-chuzhbe/filekeeper/internal/user"
)

// uniqueViolationCode is the SQLSTATE class 23 code postgres reports when
// an insert breaks a unique constraint.
const uniqueViolationCode = "23505"

// PostgresDB is a PostgreSQL-backed implementation of the storage
// interface. It handles all persistence operations via a database/sql
// connection pool over the pgx stdlib driver.
type PostgresDB struct {
	database          *sql.DB
	connectionTimeout time.Duration
}

// New establishes a connection to the PostgreSQL database,
// runs schema migrations, and returns a configured PostgresDB instance.
func New(
	ctx context.Context,
	databaseDSN string,
	connectionTimeout time.Duration,
	migrationsDir string,
) (*PostgresDB, error) {
	database, err := sql.Open("pgx", databaseDSN)
	if err != nil {
		return nil, err
	}

	result := &PostgresDB{
		database:          database,
		connectionTimeout: connectionTimeout,
	}

	if err := goose.SetDialect("postgres"); err != nil {
		return nil,
			fmt.Errorf(
				"in internal/db/postgresdb/postgresdb.go/New(): error while `goose.SetDialect()` calling: %w",
				err,
			)
	}

	if err := goose.Up(result.database, migrationsDir); err != nil {
		return nil,
			fmt.Errorf(
				"in internal/db/postgresdb/postgresdb.go/New(): error while `goose.Up()` calling: %w",
				err,
			)
	}

	return result, nil
}

// CreateUser inserts a new user record and returns the assigned id.
// A duplicate username surfaces as models.ErrDuplicateUsername.
func (db *PostgresDB) CreateUser(ctx context.Context, username, passwordHash string) (int64, error) {
	row := db.database.QueryRowContext(
		ctx,
		`INSERT INTO users (username, password_hash) VALUES ($1, $2) RETURNING id`,
		username,
		passwordHash,
	)

	var userID int64
	if err := row.Scan(&userID); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return 0, fmt.Errorf("%w: %q", models.ErrDuplicateUsername, username)
		}
		return 0, err
	}

	return userID, nil
}

// FindUserByUsername fetches a user by the unique username.
func (db *PostgresDB) FindUserByUsername(ctx context.Context, username string) (*user.User, error) {
	row := db.database.QueryRowContext(
		ctx,
		`SELECT id, username, password_hash FROM users WHERE username = $1`,
		username,
	)

	return scanUser(row)
}

// GetUserByID fetches a user by id.
func (db *PostgresDB) GetUserByID(ctx context.Context, userID int64) (*user.User, error) {
	row := db.database.QueryRowContext(
		ctx,
		`SELECT id, username, password_hash FROM users WHERE id = $1`,
		userID,
	)

	return scanUser(row)
}

// RecordFile appends a metadata row for a stored file and returns its id.
func (db *PostgresDB) RecordFile(
	ctx context.Context,
	ownerUserID int64,
	filename,
	physicalPath string,
) (int64, error) {
	row := db.database.QueryRowContext(
		ctx,
		`INSERT INTO files (user_id, filename, filepath) VALUES ($1, $2, $3) RETURNING id`,
		ownerUserID,
		filename,
		physicalPath,
	)

	var fileID int64
	if err := row.Scan(&fileID); err != nil {
		return 0, err
	}

	return fileID, nil
}

// GetUserFiles returns the metadata rows recorded for the owner, oldest first.
func (db *PostgresDB) GetUserFiles(ctx context.Context, ownerUserID int64) ([]models.FileRecord, error) {
	rows, err := db.database.QueryContext(
		ctx,
		`SELECT id, user_id, filename, filepath FROM files WHERE user_id = $1 ORDER BY id`,
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
func (db *PostgresDB) GetNumberOfUsers(ctx context.Context) (int64, error) {
	return db.count(ctx, `SELECT COUNT(*) FROM users`)
}

// GetNumberOfFiles returns the total count of recorded files.
func (db *PostgresDB) GetNumberOfFiles(ctx context.Context) (int64, error) {
	return db.count(ctx, `SELECT COUNT(*) FROM files`)
}

// Ping verifies connectivity with the PostgreSQL database within the configured timeout.
func (db *PostgresDB) Ping(ctx context.Context) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, db.connectionTimeout)
	defer cancel()

	return db.database.PingContext(ctxWithTimeout)
}

// Close closes the database connection and releases any associated resources.
func (db *PostgresDB) Close() error {
	return db.database.Close()
}

func (db *PostgresDB) count(ctx context.Context, query string) (int64, error) {
	var result int64
	if err := db.database.QueryRowContext(ctx, query).Scan(&result); err != nil {
		return 0, err
	}

	return result, nil
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
